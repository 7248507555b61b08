package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/user/kamibot/internal/types"
)

type fakeWake struct {
	mu       sync.Mutex
	startErr error
	starts   int
	stops    int
	events   chan types.WakeEvent
}

func newFakeWake() *fakeWake {
	return &fakeWake{events: make(chan types.WakeEvent, 8)}
}

func (w *fakeWake) Start(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.starts++
	return w.startErr
}

func (w *fakeWake) Stop(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stops++
	return nil
}

func (w *fakeWake) Events() <-chan types.WakeEvent { return w.events }

func (w *fakeWake) fire(keyword string) {
	w.events <- types.WakeEvent{Keyword: keyword, DetectedAt: time.Now()}
}

// transcriberFunc adapts a function to types.Transcriber.
type transcriberFunc func(ctx context.Context) (string, error)

func (f transcriberFunc) TranscribeNext(ctx context.Context, _ time.Duration) (string, error) {
	return f(ctx)
}

func says(text string) transcriberFunc {
	return func(context.Context) (string, error) { return text, nil }
}

// hangs blocks until the context ends.
func hangs() transcriberFunc {
	return func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
}

type recordingSpeaker struct {
	mu     sync.Mutex
	spoken []string
	stops  int
	err    error
}

func (s *recordingSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return s.err
}

func (s *recordingSpeaker) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *recordingSpeaker) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type fakeGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	delay   time.Duration
	prompts []string
	system  string
	vision  *types.VisionContext
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt, systemPrompt string, vision *types.VisionContext) (string, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	g.system = systemPrompt
	g.vision = vision
	return g.reply, g.err
}

type fakeVision struct {
	summary string
	err     error
	calls   int
}

func (v *fakeVision) CaptureDescription(context.Context) (types.VisionContext, error) {
	v.calls++
	if v.err != nil {
		return types.VisionContext{}, v.err
	}
	return types.NewVisionContext(v.summary), nil
}

// collector drains an agent's event stream in the background.
type collector struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func collect(a *Agent) *collector {
	c := &collector{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		for e := range a.Events() {
			c.mu.Lock()
			c.events = append(c.events, e)
			c.mu.Unlock()
		}
	}()
	return c
}

// finish closes the agent and returns every event it emitted.
func (c *collector) finish(t *testing.T, a *Agent) []Event {
	t.Helper()
	a.Close()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("event stream did not close")
	}
	return c.snapshot()
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func ofKind(events []Event, kind EventKind) []Event {
	var out []Event
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func statesOf(events []Event) []State {
	var out []State
	for _, e := range ofKind(events, EventStateChanged) {
		out = append(out, e.State)
	}
	return out
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var errBoom = errors.New("boom")
