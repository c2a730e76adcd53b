// Package retry implements a fixed-delay retry policy decoupled from
// logging: call sites decide what happens on each failed attempt through
// the Notify hook, so the policy itself can be exercised without I/O.
package retry

import (
	"context"
	"time"
)

// Policy retries an operation up to MaxAttempts times with a fixed Backoff
// between attempts. Retryable classifies which errors are worth another
// attempt; a nil Retryable retries everything. Notify, when set, is called
// after every failed attempt with final=true on the last one.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	Retryable   func(error) bool
	Notify      func(attempt int, final bool, err error)
}

// Do runs op until it succeeds, exhausts MaxAttempts, hits a non-retryable
// error, or ctx is cancelled. The backoff wait respects ctx; cancellation
// during a wait returns ctx.Err().
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		retryable := p.Retryable == nil || p.Retryable(lastErr)
		final := attempt == attempts || !retryable

		if p.Notify != nil {
			p.Notify(attempt, final, lastErr)
		}
		if final {
			return lastErr
		}

		if p.Backoff > 0 {
			timer := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return lastErr
}
