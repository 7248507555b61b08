package timeout

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDoOperationWins(t *testing.T) {
	got, err := Do(context.Background(), time.Second, "fast op", func(ctx context.Context) (string, error) {
		return "done", nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "done" {
		t.Errorf("expected 'done', got %q", got)
	}
}

func TestDoOperationErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	_, err := Do(context.Background(), time.Second, "failing op", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("operation error must not be reported as a timeout")
	}
}

func TestDoDeadlineWins(t *testing.T) {
	cancelled := make(chan struct{})
	_, err := Do(context.Background(), 20*time.Millisecond, "STT transcription", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		close(cancelled)
		return "", ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}

	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if te.Label != "STT transcription" || te.Bound != 20*time.Millisecond {
		t.Errorf("unexpected timeout details: %+v", te)
	}
	if !strings.Contains(err.Error(), "STT transcription exceeded 20ms") {
		t.Errorf("unexpected message: %q", err.Error())
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("losing operation was not cancelled")
	}
}

func TestDoParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, time.Minute, "slow op", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("cancellation must not be reported as a timeout")
	}
}

func TestSeconds(t *testing.T) {
	if got := Seconds(0.05); got != 50*time.Millisecond {
		t.Errorf("expected 50ms, got %v", got)
	}
	if got := Seconds(8); got != 8*time.Second {
		t.Errorf("expected 8s, got %v", got)
	}
}
