package fetch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultRetryBudget is the total number of attempts per segment.
	DefaultRetryBudget = 12

	backoffBase = 250 * time.Millisecond
	backoffCap  = 3 * time.Second
)

// SleepFunc pauses for the given duration, returning early with ctx.Err() if
// the context is cancelled first.
type SleepFunc = func(ctx context.Context, d time.Duration) error

type SegmentFetcherConfig struct {
	RetryBudget int
	Sleep       SleepFunc
}

var DefaultSegmentFetcherConfig = SegmentFetcherConfig{
	RetryBudget: DefaultRetryBudget,
	Sleep:       SleepContext,
}

// SegmentFetcher retrieves one binary segment at a time with bounded retries
// and exponential backoff. Cancellation is checked before every attempt and
// wakes any in-progress backoff sleep, so it always bypasses the retry loop.
type SegmentFetcher struct {
	client Client
	config SegmentFetcherConfig
	log    *zap.SugaredLogger
}

func NewSegmentFetcher(client Client, config SegmentFetcherConfig) *SegmentFetcher {
	if config.RetryBudget <= 0 {
		config.RetryBudget = DefaultRetryBudget
	}
	if config.Sleep == nil {
		config.Sleep = SleepContext
	}
	return &SegmentFetcher{
		client: client,
		config: config,
		log:    zap.S().Named("fetch"),
	}
}

// Fetch downloads one segment, retrying transient failures up to the budget.
func (f *SegmentFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < f.config.RetryBudget; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := f.client.FetchBinary(ctx, url)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if attempt == f.config.RetryBudget-1 {
			break
		}
		delay := Backoff(attempt)
		f.log.Debugw("segment fetch failed, retrying", "url", url, "attempt", attempt+1, "delay", delay, "error", err)
		if err := f.config.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("segment %s failed after %d attempts: %w", url, f.config.RetryBudget, lastErr)
}

// Backoff returns the delay inserted after the given zero-based failed
// attempt: base × 2^attempt, capped.
func Backoff(attempt int) time.Duration {
	if attempt > 30 {
		return backoffCap
	}
	d := backoffBase << uint(attempt)
	if d > backoffCap {
		return backoffCap
	}
	return d
}

// SleepContext is the default SleepFunc, rejecting immediately on cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
