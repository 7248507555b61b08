package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/user/kamibot/internal/vision"
)

func newTestAgent(cfg Config, deps Deps) *Agent {
	if deps.Wake == nil {
		deps.Wake = newFakeWake()
	}
	if deps.Speaker == nil {
		deps.Speaker = &recordingSpeaker{}
	}
	return New(cfg, deps)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.STTTimeoutSeconds = 1
	cfg.LLMTimeoutSeconds = 1
	return cfg
}

func TestHappyPathTurn(t *testing.T) {
	speaker := &recordingSpeaker{}
	gen := &fakeGenerator{reply: "Hi from BMO!"}
	a := newTestAgent(fastConfig(), Deps{Transcriber: says("hello"), Speaker: speaker, Generator: gen})
	c := collect(a)

	if err := a.HandleWake(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a.State() != StateIdle {
		t.Errorf("expected final state idle, got %s", a.State())
	}
	if a.Expression() != ExpressionHappy {
		t.Errorf("expected expression reset to happy, got %s", a.Expression())
	}

	spoken := speaker.calls()
	if len(spoken) != 1 || spoken[0] != "Hi from BMO!" {
		t.Errorf("expected exactly one speak call with 'Hi from BMO!', got %v", spoken)
	}
	if len(gen.prompts) != 1 || gen.prompts[0] != "hello" {
		t.Errorf("expected generator prompt 'hello', got %v", gen.prompts)
	}
	if gen.system != DefaultSystemPrompt {
		t.Errorf("unexpected system prompt %q", gen.system)
	}

	events := c.finish(t, a)
	replies := ofKind(events, EventGeneratedResponse)
	if len(replies) != 1 || replies[0].Text != "Hi from BMO!" {
		t.Errorf("expected one GeneratedResponse 'Hi from BMO!', got %+v", replies)
	}
	heard := ofKind(events, EventHeardUtterance)
	if len(heard) != 1 || heard[0].Text != "hello" {
		t.Errorf("expected one HeardUtterance 'hello', got %+v", heard)
	}
	if errs := ofKind(events, EventError); len(errs) != 0 {
		t.Errorf("expected no errors, got %+v", errs)
	}

	wantStates := []State{StateListening, StateThinking, StateSpeaking, StateIdle}
	gotStates := statesOf(events)
	if len(gotStates) != len(wantStates) {
		t.Fatalf("expected states %v, got %v", wantStates, gotStates)
	}
	for i := range wantStates {
		if gotStates[i] != wantStates[i] {
			t.Errorf("state %d: expected %s, got %s", i, wantStates[i], gotStates[i])
		}
	}

	faces := ofKind(events, EventExpressionChanged)
	if len(faces) != 2 || faces[0].Expression != ExpressionExcited || faces[1].Expression != ExpressionHappy {
		t.Errorf("expected excited then happy, got %+v", faces)
	}

	turnID := events[0].TurnID
	if turnID == "" {
		t.Fatal("expected events to carry a turn id")
	}
	for _, e := range events {
		if e.TurnID != turnID {
			t.Errorf("expected every event in turn %s, got %s", turnID, e.TurnID)
		}
	}
}

func TestEventOrderMatchesStateMutation(t *testing.T) {
	a := newTestAgent(fastConfig(), Deps{Transcriber: says("hello"), Generator: &fakeGenerator{reply: "ok"}})
	c := collect(a)
	a.HandleWake(context.Background())
	events := c.finish(t, a)

	// Heard comes after listening and before thinking; the reply before speaking.
	order := make([]string, 0, len(events))
	for _, e := range events {
		switch e.Kind {
		case EventStateChanged:
			order = append(order, string(e.State))
		case EventHeardUtterance, EventGeneratedResponse:
			order = append(order, string(e.Kind))
		}
	}
	want := "listening,heard_utterance,thinking,generated_response,speaking,idle"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("expected order %s, got %s", want, got)
	}
}

func TestSTTTimeoutEndsTurn(t *testing.T) {
	cfg := fastConfig()
	cfg.STTTimeoutSeconds = 0.05
	speaker := &recordingSpeaker{}
	a := newTestAgent(cfg, Deps{Transcriber: hangs(), Speaker: speaker, Generator: &fakeGenerator{reply: "x"}})
	c := collect(a)

	if err := a.HandleWake(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a.State() != StateIdle {
		t.Errorf("expected final state idle, got %s", a.State())
	}
	if n := len(speaker.calls()); n != 0 {
		t.Errorf("expected zero speak calls, got %d", n)
	}

	events := c.finish(t, a)
	errs := ofKind(events, EventError)
	if len(errs) != 1 {
		t.Fatalf("expected one error event, got %+v", errs)
	}
	if !strings.HasPrefix(errs[0].Text, "Transcription failed: STT transcription exceeded") {
		t.Errorf("unexpected error text %q", errs[0].Text)
	}
	states := statesOf(events)
	if states[len(states)-2] != StateError || states[len(states)-1] != StateIdle {
		t.Errorf("expected error then idle at the end, got %v", states)
	}
}

func TestLLMTimeoutEndsTurn(t *testing.T) {
	cfg := fastConfig()
	cfg.LLMTimeoutSeconds = 0.05
	speaker := &recordingSpeaker{}
	gen := &fakeGenerator{reply: "late", delay: time.Second}
	a := newTestAgent(cfg, Deps{Transcriber: says("hello"), Speaker: speaker, Generator: gen})
	c := collect(a)

	a.HandleWake(context.Background())
	events := c.finish(t, a)

	errs := ofKind(events, EventError)
	if len(errs) != 1 || !strings.HasPrefix(errs[0].Text, "Agent processing failed: LLM generation exceeded") {
		t.Fatalf("unexpected error events %+v", errs)
	}
	if len(ofKind(events, EventGeneratedResponse)) != 0 {
		t.Error("expected no generated response")
	}
	if len(speaker.calls()) != 0 {
		t.Error("expected no speech")
	}
	if a.State() != StateIdle {
		t.Errorf("expected idle, got %s", a.State())
	}
}

func TestTTSFailureReported(t *testing.T) {
	speaker := &recordingSpeaker{err: errBoom}
	a := newTestAgent(fastConfig(), Deps{Transcriber: says("hello"), Speaker: speaker, Generator: &fakeGenerator{reply: "Okay"}})
	c := collect(a)

	a.HandleWake(context.Background())
	events := c.finish(t, a)

	errs := ofKind(events, EventError)
	if len(errs) != 1 || errs[0].Text != "TTS failed: boom" {
		t.Fatalf("unexpected error events %+v", errs)
	}
	if a.State() != StateIdle || a.Expression() != ExpressionHappy {
		t.Errorf("expected idle and happy, got %s and %s", a.State(), a.Expression())
	}
}

func TestVisionPathGroundsReply(t *testing.T) {
	cfg := fastConfig()
	cfg.VisionEnabled = true
	cam := &fakeVision{summary: "A desk with a keyboard"}
	gen := &fakeGenerator{reply: "I see a keyboard."}
	a := newTestAgent(cfg, Deps{Transcriber: says("What do you see?"), Generator: gen, Vision: cam})

	a.HandleWake(context.Background())
	a.Close()

	if cam.calls != 1 {
		t.Errorf("expected one capture, got %d", cam.calls)
	}
	if gen.vision == nil || gen.vision.Summary != "A desk with a keyboard" {
		t.Errorf("expected vision context passed to generator, got %+v", gen.vision)
	}
}

func TestVisionDisabledSkipsCapture(t *testing.T) {
	cam := &fakeVision{summary: "unused"}
	gen := &fakeGenerator{reply: "ok"}
	a := newTestAgent(fastConfig(), Deps{Transcriber: says("look here"), Generator: gen, Vision: cam})

	a.HandleWake(context.Background())
	a.Close()

	if cam.calls != 0 {
		t.Errorf("expected no capture with vision disabled, got %d", cam.calls)
	}
	if gen.vision != nil {
		t.Error("expected no vision context")
	}
}

func TestVisionTextRouteSkipsCapture(t *testing.T) {
	cfg := fastConfig()
	cfg.VisionEnabled = true
	cam := &fakeVision{summary: "unused"}
	a := newTestAgent(cfg, Deps{Transcriber: says("tell me a joke"), Generator: &fakeGenerator{reply: "ok"}, Vision: cam})

	a.HandleWake(context.Background())
	a.Close()

	if cam.calls != 0 {
		t.Errorf("expected no capture for a text route, got %d", cam.calls)
	}
}

func TestVisionFailureIsFatalToTurn(t *testing.T) {
	tests := []struct {
		name    string
		capture *fakeVision
	}{
		{"no capture service", nil},
		{"capture failed", &fakeVision{err: &vision.CaptureFailedError{Err: errBoom}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fastConfig()
			cfg.VisionEnabled = true
			speaker := &recordingSpeaker{}
			gen := &fakeGenerator{reply: "x"}
			deps := Deps{Transcriber: says("show me"), Speaker: speaker, Generator: gen}
			if tt.capture != nil {
				deps.Vision = tt.capture
			}
			a := newTestAgent(cfg, deps)
			c := collect(a)

			a.HandleWake(context.Background())
			events := c.finish(t, a)

			errs := ofKind(events, EventError)
			if len(errs) != 1 || !strings.HasPrefix(errs[0].Text, "Agent processing failed:") {
				t.Fatalf("unexpected error events %+v", errs)
			}
			if len(gen.prompts) != 0 || len(speaker.calls()) != 0 {
				t.Error("expected the turn to end before generation")
			}
			if a.State() != StateIdle {
				t.Errorf("expected idle, got %s", a.State())
			}
		})
	}
}

func TestStopMidTurn(t *testing.T) {
	wake := newFakeWake()
	speaker := &recordingSpeaker{}
	a := newTestAgent(fastConfig(), Deps{Wake: wake, Transcriber: hangs(), Speaker: speaker, Generator: &fakeGenerator{reply: "x"}})
	c := collect(a)

	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	wake.fire("BMO")
	waitUntil(t, "listening", func() bool { return a.State() == StateListening })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("stop took %s", elapsed)
	}
	if a.State() != StateIdle {
		t.Errorf("expected idle after stop, got %s", a.State())
	}
	if wake.stops != 1 || speaker.stops != 1 {
		t.Errorf("expected wake and speaker stopped once, got %d and %d", wake.stops, speaker.stops)
	}

	// The slot was released: a new turn can run.
	a.deps.Transcriber = says("hello")
	if err := a.HandleWake(context.Background()); err != nil {
		t.Fatalf("expected slot released after stop, got %v", err)
	}

	events := c.finish(t, a)
	if errs := ofKind(events, EventError); len(errs) != 0 {
		t.Errorf("cancellation must not emit errors, got %+v", errs)
	}
}

func TestConcurrentWakeDropped(t *testing.T) {
	release := make(chan struct{})
	stt := transcriberFunc(func(ctx context.Context) (string, error) {
		select {
		case <-release:
			return "hello", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	a := newTestAgent(fastConfig(), Deps{Transcriber: stt, Generator: &fakeGenerator{reply: "ok"}})
	c := collect(a)

	first := make(chan error, 1)
	go func() { first <- a.HandleWake(context.Background()) }()
	waitUntil(t, "listening", func() bool { return a.State() == StateListening })

	if err := a.HandleWake(context.Background()); !errors.Is(err, ErrTurnActive) {
		t.Fatalf("expected ErrTurnActive, got %v", err)
	}
	close(release)
	if err := <-first; err != nil {
		t.Fatal(err)
	}

	events := c.finish(t, a)
	if n := len(ofKind(events, EventHeardUtterance)); n != 1 {
		t.Errorf("expected exactly one turn, got %d utterances", n)
	}
	if n := len(ofKind(events, EventError)); n != 0 {
		t.Errorf("a dropped wake produces no event, got %d errors", n)
	}
}

func TestWakeLoopMatchesKeywordCaseInsensitively(t *testing.T) {
	wake := newFakeWake()
	speaker := &recordingSpeaker{}
	a := newTestAgent(fastConfig(), Deps{Wake: wake, Transcriber: says("hello"), Speaker: speaker, Generator: &fakeGenerator{reply: "Hi from BMO!"}})

	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	wake.fire("alexa")
	wake.fire("bmo")
	waitUntil(t, "speech", func() bool { return len(speaker.calls()) == 1 })
	waitUntil(t, "idle", func() bool { return a.State() == StateIdle })

	if err := a.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(speaker.calls()); n != 1 {
		t.Errorf("expected only the matching keyword to start a turn, got %d", n)
	}
	a.Close()
}

func TestInvalidTransitionWaitsForRecover(t *testing.T) {
	wake := newFakeWake()
	wake.startErr = errBoom
	a := newTestAgent(fastConfig(), Deps{Wake: wake, Transcriber: says("hello"), Generator: &fakeGenerator{reply: "ok"}})
	c := collect(a)

	if err := a.Start(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("expected start error, got %v", err)
	}
	if a.State() != StateError {
		t.Fatalf("expected error state after failed start, got %s", a.State())
	}

	// Error cannot move to Listening; the agent stays in Error.
	if err := a.HandleWake(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a.State() != StateError {
		t.Fatalf("expected agent to stay in error, got %s", a.State())
	}

	if err := a.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if a.State() != StateIdle {
		t.Fatalf("expected idle after recover, got %s", a.State())
	}
	if err := a.HandleWake(context.Background()); err != nil {
		t.Fatal(err)
	}

	events := c.finish(t, a)
	errs := ofKind(events, EventError)
	if len(errs) != 2 {
		t.Fatalf("expected two error events, got %+v", errs)
	}
	if errs[0].Text != "Wake word service failed to start: boom" {
		t.Errorf("unexpected start error %q", errs[0].Text)
	}
	if errs[1].Text != "invalid transition from error to listening" {
		t.Errorf("unexpected transition error %q", errs[1].Text)
	}
	if n := len(ofKind(events, EventGeneratedResponse)); n != 1 {
		t.Errorf("expected one reply after recovery, got %d", n)
	}
}

func TestRecoverFromIdleIsNoop(t *testing.T) {
	a := newTestAgent(fastConfig(), Deps{})
	c := collect(a)
	if err := a.Recover(); err != nil {
		t.Errorf("expected no error from idle, got %v", err)
	}
	if events := c.finish(t, a); len(events) != 0 {
		t.Errorf("expected no events, got %+v", events)
	}
}

func TestRecoverRefusedMidTurn(t *testing.T) {
	a := newTestAgent(fastConfig(), Deps{})
	a.forceState(StateThinking)
	if err := a.Recover(); !errors.Is(err, ErrTurnActive) {
		t.Errorf("expected ErrTurnActive, got %v", err)
	}
	if a.State() != StateThinking {
		t.Errorf("expected state unchanged, got %s", a.State())
	}
	a.Close()
}

func TestSlotReleasedAfterFailure(t *testing.T) {
	cfg := fastConfig()
	cfg.STTTimeoutSeconds = 0.02
	a := newTestAgent(cfg, Deps{Transcriber: hangs(), Generator: &fakeGenerator{reply: "x"}})
	for i := 0; i < 3; i++ {
		if err := a.HandleWake(context.Background()); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}
	a.Close()
}

func TestClose(t *testing.T) {
	a := newTestAgent(fastConfig(), Deps{Transcriber: says("hello"), Generator: &fakeGenerator{reply: "ok"}})
	c := collect(a)
	a.HandleWake(context.Background())
	events := c.finish(t, a)
	if len(events) == 0 {
		t.Error("expected queued events to be delivered before close")
	}

	a.Close()
	if err := a.HandleWake(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := a.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Start, got %v", err)
	}
}
