// Package timeout races an operation against a deadline. It is the single
// place stage deadlines are enforced; callers parameterize it with a label
// and a bound.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout matches every *Error via errors.Is.
var ErrTimeout = errors.New("timeout")

// Error reports which stage ran out of time and the configured bound.
type Error struct {
	Label string
	Bound time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s exceeded %s", e.Label, e.Bound)
}

func (e *Error) Is(target error) bool {
	return target == ErrTimeout
}

// Seconds converts a configured number of seconds into a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

type result[T any] struct {
	value T
	err   error
}

// Do runs op concurrently with a timer of length bound and returns whichever
// finishes first. When the timer wins the result is an *Error. When ctx is
// cancelled first the result is ctx.Err(). The context handed to op is
// cancelled before Do returns, so a losing op is asked to stop.
func Do[T any](ctx context.Context, bound time.Duration, label string, op func(ctx context.Context) (T, error)) (T, error) {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so the op goroutine never blocks after losing the race.
	done := make(chan result[T], 1)
	go func() {
		v, err := op(opCtx)
		done <- result[T]{value: v, err: err}
	}()

	timer := time.NewTimer(bound)
	defer timer.Stop()

	var zero T
	select {
	case r := <-done:
		return r.value, r.err
	case <-timer.C:
		return zero, &Error{Label: label, Bound: bound}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
