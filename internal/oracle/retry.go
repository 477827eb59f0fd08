package oracle

import (
	"context"
	"log/slog"
	"time"
)

// DefaultAttempts is the page-load budget for transient failures.
const DefaultAttempts = 3

// RetryPolicy controls Retry.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	// Values below 1 mean DefaultAttempts.
	Attempts int

	// Backoff is the wait before the second try, doubled for each
	// further try. Zero disables waiting.
	Backoff time.Duration

	// Reset runs before every retry, typically a visit to the home page.
	// Its error is logged and otherwise ignored.
	Reset func(ctx context.Context) error
}

// Retry calls fn until it succeeds, returns a permanent error, or the
// attempt budget runs out. Only transient errors (see IsTransient) are
// retried. The last error is returned unchanged.
func Retry[T any](ctx context.Context, policy RetryPolicy, logger *slog.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = DefaultAttempts
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) || attempt == attempts-1 {
			break
		}

		wait := policy.Backoff * (1 << uint(attempt))
		logger.WarnContext(ctx, "transient fetch failure, retrying",
			"attempt", attempt+1,
			"max_attempts", attempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err)

		if policy.Reset != nil {
			if rerr := policy.Reset(ctx); rerr != nil {
				logger.WarnContext(ctx, "session reset failed", "error", rerr)
			}
		}
		if err := Sleep(ctx, wait); err != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
