package api

import (
	"context"
	"time"

	"github.com/warp/payroll-engine/generic"
)

// RetryPolicy retries read-only or idempotent calls that fail with
// ErrStorageUnavailable. Any other error is returned immediately.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

var DefaultRetry = RetryPolicy{
	Attempts:  3,
	BaseDelay: 50 * time.Millisecond,
	MaxDelay:  500 * time.Millisecond,
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx is done. The delay doubles after each failure.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || !generic.IsRetryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
