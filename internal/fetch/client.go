// Package fetch provides the HTTP collaborator used by every resolver: plain
// text/binary GETs that forward ambient credentials, and the retrying
// segment fetcher built on top of them.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/mircov/lessongrab"
)

// Client is the minimal fetch interface the resolvers consume. Both methods
// must honour ctx for cancellation and surface a non-2xx status as an error.
type Client interface {
	FetchText(ctx context.Context, url string) (string, error)
	FetchBinary(ctx context.Context, url string) ([]byte, error)
}

type HTTPClientConfig struct {
	// Headers are sent on every request (ambient credentials, user agent, ...).
	Headers http.Header
	// Jar holds ambient session cookies; a fresh in-memory jar if nil.
	Jar     http.CookieJar
	Timeout time.Duration
}

var DefaultHTTPClientConfig = HTTPClientConfig{
	Timeout: 60 * time.Second,
}

// HTTPClient implements Client over net/http.
type HTTPClient struct {
	client  *http.Client
	headers http.Header
}

func NewHTTPClient(config HTTPClientConfig) (*HTTPClient, error) {
	jar := config.Jar
	if jar == nil {
		var err error
		if jar, err = cookiejar.New(nil); err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
	}
	return &HTTPClient{
		client: &http.Client{
			Jar:     jar,
			Timeout: config.Timeout,
		},
		headers: config.Headers,
	}, nil
}

func (c *HTTPClient) FetchText(ctx context.Context, url string) (string, error) {
	data, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *HTTPClient) FetchBinary(ctx context.Context, url string) ([]byte, error) {
	return c.get(ctx, url)
}

func (c *HTTPClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &lessongrab.NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &lessongrab.NetworkError{URL: url, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &lessongrab.NetworkError{URL: url, Err: err}
	}
	return data, nil
}
