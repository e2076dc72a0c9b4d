package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mircov/lessongrab"
)

func newTestClient(t *testing.T, headers http.Header) *HTTPClient {
	t.Helper()
	config := DefaultHTTPClientConfig
	config.Headers = headers
	client, err := NewHTTPClient(config)
	require.NoError(t, err)
	return client
}

func TestFetchTextForwardsHeaders(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("#EXTM3U\n"))
	}))
	defer server.Close()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer token")
	client := newTestClient(t, headers)
	text, err := client.FetchText(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", text)
	assert.Equal(t, "Bearer token", gotAuth)
}

func TestFetchBinaryNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(t, nil)
	_, err := client.FetchBinary(context.Background(), server.URL)
	require.Error(t, err)
	var netErr *lessongrab.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusForbidden, netErr.StatusCode)
	assert.Equal(t, server.URL, netErr.URL)
}

func TestFetchBinaryCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := newTestClient(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.FetchBinary(ctx, server.URL)
	assert.ErrorIs(t, err, context.Canceled)
}
