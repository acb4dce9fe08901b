package service

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how an operation is retried. Attempts run strictly
// one after another.
type RetryPolicy struct {
	MaxAttempts int
	// Delay returns the pause after the given failed attempt (1-based).
	Delay func(attempt int) time.Duration
	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool
}

// LinearPolicy waits base, 2*base, 3*base... between attempts.
func LinearPolicy(maxAttempts int, base time.Duration, retryable func(error) bool) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Delay:       func(n int) time.Duration { return time.Duration(n) * base },
		Retryable:   retryable,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. The last error is returned unwrapped.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	attempt := 0
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		if p.Delay == nil {
			return 0, false
		}
		return p.Delay(attempt), false
	})
	return retry.Do(ctx, retry.WithMaxRetries(uint64(max-1), backoff), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && p.Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
