package stt

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/user/kamibot/internal/timeout"
	"github.com/user/kamibot/internal/types"
)

// DefaultAttemptTimeout bounds one attempt when no positive timeout is given.
const DefaultAttemptTimeout = 2500 * time.Millisecond

// Retrier bounds each transcription attempt with a fixed timeout and retries
// attempts that time out. It implements types.Transcriber.
type Retrier struct {
	transcriber    types.Transcriber
	attemptTimeout time.Duration
	policy         *RetryPolicy
	attempts       atomic.Int64
}

// NewRetrier wraps t. Every attempt is bounded by attemptTimeout and up to
// retries extra attempts are made after a timeout. A non-positive
// attemptTimeout selects DefaultAttemptTimeout.
func NewRetrier(t types.Transcriber, attemptTimeout time.Duration, retries int) *Retrier {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	if retries < 0 {
		retries = 0
	}
	return &Retrier{
		transcriber:    t,
		attemptTimeout: attemptTimeout,
		policy:         &RetryPolicy{Retries: retries},
	}
}

// Transcribe returns the next utterance, retrying on timeout.
func (r *Retrier) Transcribe(ctx context.Context) (string, error) {
	var text string
	err := r.policy.Execute(ctx, func(ctx context.Context) error {
		n := r.attempts.Add(1)
		out, err := timeout.Do(ctx, r.attemptTimeout, "STT transcription", func(ctx context.Context) (string, error) {
			return r.transcriber.TranscribeNext(ctx, r.attemptTimeout)
		})
		if err != nil {
			slog.Debug("transcription attempt failed", "attempt", n, "error", err)
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// TranscribeNext satisfies types.Transcriber. The per-attempt timeout set at
// construction is used; the caller's bound applies to the whole call.
func (r *Retrier) TranscribeNext(ctx context.Context, _ time.Duration) (string, error) {
	return r.Transcribe(ctx)
}

// Attempts returns the number of attempts made so far.
func (r *Retrier) Attempts() int64 {
	return r.attempts.Load()
}
