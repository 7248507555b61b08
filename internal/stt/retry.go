package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/kamibot/internal/timeout"
)

// ErrMaxRetriesExceeded is returned once every attempt has timed out.
var ErrMaxRetriesExceeded = errors.New("stt: max retries exceeded")

// RetryPolicy controls how timed-out transcription attempts are retried.
// Attempts run back to back with no backoff.
type RetryPolicy struct {
	Retries int
}

// DefaultRetryPolicy returns a RetryPolicy allowing two extra attempts.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{Retries: 2}
}

// ShouldRetry returns true if err is a timeout and attempt (1-indexed) has
// not exhausted the retry budget. Other error kinds are never retried.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt > p.Retries {
		return false
	}
	return errors.Is(err, timeout.ErrTimeout)
}

// Execute runs fn up to Retries+1 times. It returns nil on success, the
// error itself for non-timeout failures and ErrMaxRetriesExceeded (wrapping
// the last timeout) when the budget is used up.
func (p *RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.Retries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, timeout.ErrTimeout) {
			return err
		}
		lastErr = err
		if !p.ShouldRetry(err, attempt) {
			break
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, p.Retries+1, lastErr)
}
