package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	failures int
	calls    int
	data     []byte
	onCall   func(call int)
}

func (c *scriptedClient) FetchText(ctx context.Context, url string) (string, error) {
	data, err := c.FetchBinary(ctx, url)
	return string(data), err
}

func (c *scriptedClient) FetchBinary(ctx context.Context, url string) ([]byte, error) {
	c.calls++
	if c.onCall != nil {
		c.onCall(c.calls)
	}
	if c.calls <= c.failures {
		return nil, errors.New("boom")
	}
	return c.data, nil
}

func recordingSleep(delays *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	assert := assert.New(t)
	var delays []time.Duration
	client := &scriptedClient{failures: 2, data: []byte("segment")}
	f := NewSegmentFetcher(client, SegmentFetcherConfig{Sleep: recordingSleep(&delays)})
	data, err := f.Fetch(context.Background(), "https://h/seg0.ts")
	require.NoError(t, err)
	assert.Equal([]byte("segment"), data)
	assert.Equal(3, client.calls)
	assert.Equal([]time.Duration{250 * time.Millisecond, 500 * time.Millisecond}, delays)
}

func TestFetchExhaustsBudget(t *testing.T) {
	assert := assert.New(t)
	var delays []time.Duration
	client := &scriptedClient{failures: 100}
	f := NewSegmentFetcher(client, SegmentFetcherConfig{Sleep: recordingSleep(&delays)})
	_, err := f.Fetch(context.Background(), "https://h/seg0.ts")
	require.Error(t, err)
	assert.Equal(DefaultRetryBudget, client.calls)
	assert.Len(delays, DefaultRetryBudget-1)
	assert.Contains(err.Error(), "https://h/seg0.ts")
	assert.Contains(err.Error(), "boom")
}

func TestFetchCancelledBeforeAttempt(t *testing.T) {
	client := &scriptedClient{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewSegmentFetcher(client, DefaultSegmentFetcherConfig)
	_, err := f.Fetch(ctx, "https://h/seg0.ts")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, client.calls)
}

func TestFetchCancelledMidRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &scriptedClient{failures: 100}
	client.onCall = func(call int) {
		if call == 2 {
			cancel()
		}
	}
	var delays []time.Duration
	f := NewSegmentFetcher(client, SegmentFetcherConfig{Sleep: recordingSleep(&delays)})
	_, err := f.Fetch(ctx, "https://h/seg0.ts")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, client.calls)
}

func TestBackoff(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(250*time.Millisecond, Backoff(0))
	assert.Equal(500*time.Millisecond, Backoff(1))
	assert.Equal(time.Second, Backoff(2))
	assert.Equal(2*time.Second, Backoff(3))
	assert.Equal(3*time.Second, Backoff(4))
	assert.Equal(3*time.Second, Backoff(40))
}

func TestSleepContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := SleepContext(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
