package ui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/user/kamibot/internal/agent"
)

type recordingSink struct {
	mu     sync.Mutex
	events []agent.Event
	err    error
}

func (s *recordingSink) Record(_ context.Context, e agent.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func TestPumpDeliversInOrderToEverySink(t *testing.T) {
	events := make(chan agent.Event, 3)
	events <- agent.Event{Kind: agent.EventStateChanged, State: agent.StateListening}
	events <- agent.Event{Kind: agent.EventHeardUtterance, Text: "hello"}
	events <- agent.Event{Kind: agent.EventStateChanged, State: agent.StateIdle}
	close(events)

	failing := &recordingSink{err: errors.New("disk full")}
	ok := &recordingSink{}
	Pump(context.Background(), events, failing, ok)

	for _, s := range []*recordingSink{failing, ok} {
		if len(s.events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(s.events))
		}
		if s.events[0].State != agent.StateListening || s.events[1].Text != "hello" || s.events[2].State != agent.StateIdle {
			t.Errorf("events out of order: %+v", s.events)
		}
	}
}

func TestPumpStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Pump(ctx, make(chan agent.Event), &recordingSink{})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not return after cancel")
	}
}
