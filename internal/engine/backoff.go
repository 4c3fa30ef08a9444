package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/ragserve/internal/provider"
)

// isRetryable checks if an error is worth retrying.
func isRetryable(err error) bool {
	var retryErr *provider.RetryableError
	return errors.As(err, &retryErr)
}

// backoff returns a duration for attempt n (0-indexed) with jitter.
func backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// withRetries runs fn up to maxAttempts times, backing off between attempts.
// Only transient provider errors are retried; everything else escalates
// immediately. Each attempt gets its own timeout-bounded context.
func withRetries(ctx context.Context, maxAttempts int, timeout time.Duration, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := range maxAttempts {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		lastErr = fn(callCtx)
		cancel()
		if lastErr == nil || !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
