// Package agent is the conversational orchestrator: it owns the state
// machine and runs one listen, think, speak turn per accepted wake event.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/kamibot/internal/timeout"
	"github.com/user/kamibot/internal/types"
	"github.com/user/kamibot/internal/vision"
)

var (
	// ErrTurnActive is returned by HandleWake when another turn holds the slot.
	ErrTurnActive = errors.New("agent: turn already active")
	ErrClosed     = errors.New("agent: closed")
)

// Deps are the capability implementations an Agent drives. Vision may be nil.
type Deps struct {
	Wake        types.WakeWordSource
	Transcriber types.Transcriber
	Speaker     types.Speaker
	Generator   types.Generator
	Vision      types.VisionCapture
}

// Agent is the orchestrator. State and expression are written only while
// holding mu, and every mutation enqueues its event under the same lock.
type Agent struct {
	cfg  Config
	deps Deps

	mu         sync.Mutex
	state      State
	expression Expression
	turnID     types.TurnID
	halt       chan struct{}
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	closed     bool

	slot   *semaphore.Weighted
	turns  sync.WaitGroup
	events *eventQueue
}

// New builds an agent in Idle with a Happy face.
func New(cfg Config, deps Deps) *Agent {
	return &Agent{
		cfg:        cfg.Enforced(),
		deps:       deps,
		state:      StateIdle,
		expression: ExpressionHappy,
		halt:       make(chan struct{}),
		slot:       semaphore.NewWeighted(1),
		events:     newEventQueue(),
	}
}

// Events is the ordered output stream. It closes after Close.
func (a *Agent) Events() <-chan Event {
	return a.events.out
}

// Config returns the enforced configuration.
func (a *Agent) Config() Config {
	return a.cfg
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) Expression() Expression {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.expression
}

// Start starts the wake source and forwards matching wake events to turns.
// A start failure is also reported on the event stream.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.loopDone != nil {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	if err := a.deps.Wake.Start(ctx); err != nil {
		a.emitError(fmt.Sprintf("Wake word service failed to start: %v", err))
		return fmt.Errorf("start wake word source: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.mu.Lock()
	a.loopCancel = cancel
	a.loopDone = done
	a.mu.Unlock()

	go a.wakeLoop(loopCtx, done)
	slog.Info("agent started", "wake_word", a.cfg.WakeWord)
	return nil
}

func (a *Agent) wakeLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	events := a.deps.Wake.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !strings.EqualFold(ev.Keyword, a.cfg.WakeWord) {
				slog.Debug("ignoring wake event", "keyword", ev.Keyword)
				continue
			}
			if !a.slot.TryAcquire(1) {
				slog.Debug("wake event dropped, turn active")
				continue
			}
			a.turns.Add(1)
			go func() {
				defer a.turns.Done()
				defer a.slot.Release(1)
				a.runTurn(ctx)
			}()
		}
	}
}

// HandleWake runs one turn synchronously, as if a wake event was accepted.
func (a *Agent) HandleWake(ctx context.Context) error {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !a.slot.TryAcquire(1) {
		return ErrTurnActive
	}
	a.turns.Add(1)
	defer a.turns.Done()
	defer a.slot.Release(1)
	a.runTurn(ctx)
	return nil
}

// Stop cancels the in-flight turn, stops the wake source and the speaker,
// waits for turns to finish and forces Idle.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	close(a.halt)
	a.halt = make(chan struct{})
	cancel, done := a.loopCancel, a.loopDone
	a.loopCancel, a.loopDone = nil, nil
	a.mu.Unlock()

	var errs []error
	if cancel != nil {
		cancel()
	}
	if err := a.deps.Wake.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop wake word source: %w", err))
	}
	if err := a.deps.Speaker.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop speaker: %w", err))
	}

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}
	turnsDone := make(chan struct{})
	go func() {
		a.turns.Wait()
		close(turnsDone)
	}()
	select {
	case <-turnsDone:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for turn: %w", ctx.Err()))
	}

	a.forceState(StateIdle)
	slog.Info("agent stopped")
	return errors.Join(errs...)
}

// Close tears down the event stream. A closed agent cannot be restarted.
func (a *Agent) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()
	a.events.close()
}

// Recover moves Error back to Idle. It is a no-op when already Idle and
// fails with ErrTurnActive while a turn is running.
func (a *Agent) Recover() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case StateIdle:
		return nil
	case StateError:
		a.setStateLocked(StateIdle)
		return nil
	default:
		return ErrTurnActive
	}
}

// transition applies the table; rejected transitions do not mutate state.
func (a *Agent) transition(next State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !IsValidTransition(a.state, next) {
		return &InvalidTransitionError{From: a.state, To: next}
	}
	a.setStateLocked(next)
	return nil
}

// forceState bypasses the table.
func (a *Agent) forceState(next State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setStateLocked(next)
}

func (a *Agent) setStateLocked(next State) {
	a.state = next
	a.pushLocked(Event{Kind: EventStateChanged, State: next})
}

func (a *Agent) setExpression(e Expression) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expression = e
	a.pushLocked(Event{Kind: EventExpressionChanged, Expression: e})
}

func (a *Agent) emit(kind EventKind, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pushLocked(Event{Kind: kind, Text: text})
}

func (a *Agent) emitError(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setStateLocked(StateError)
	a.pushLocked(Event{Kind: EventError, Text: msg})
}

func (a *Agent) pushLocked(e Event) {
	e.TurnID = a.turnID
	e.At = time.Now()
	a.events.push(e)
}

// stageError labels a failure with the turn stage it came from.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + " failed: " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func (a *Agent) runTurn(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	id := types.NewTurnID()
	a.mu.Lock()
	halt := a.halt
	a.turnID = id
	a.mu.Unlock()

	go func() {
		select {
		case <-halt:
			cancel()
		case <-ctx.Done():
		}
	}()

	log := slog.With("turn_id", id)
	log.Debug("turn started")

	err := a.turn(ctx)
	switch {
	case err == nil:
		log.Debug("turn finished")
	case ctx.Err() != nil:
		log.Info("turn cancelled")
		a.forceState(StateIdle)
	default:
		var inv *InvalidTransitionError
		if errors.As(err, &inv) {
			log.Error("turn aborted", "error", err)
			a.emitError(err.Error())
			break
		}
		log.Warn("turn failed", "error", err)
		a.emitError(err.Error())
		a.forceState(StateIdle)
	}

	a.mu.Lock()
	a.turnID = ""
	a.mu.Unlock()
}

func (a *Agent) turn(ctx context.Context) error {
	if err := a.transition(StateListening); err != nil {
		return err
	}
	bound := a.cfg.sttBound()
	text, err := timeout.Do(ctx, bound, "STT transcription", func(ctx context.Context) (string, error) {
		return a.deps.Transcriber.TranscribeNext(ctx, bound)
	})
	if err != nil {
		return &stageError{stage: "Transcription", err: err}
	}
	a.emit(EventHeardUtterance, text)
	return a.respond(ctx, text)
}

func (a *Agent) respond(ctx context.Context, utterance string) error {
	if err := a.transition(StateThinking); err != nil {
		return err
	}

	var vc *types.VisionContext
	if RouteFor(utterance) == RouteVision && a.cfg.VisionEnabled {
		if a.deps.Vision == nil {
			return &stageError{stage: "Agent processing", err: fmt.Errorf("%w: vision requested but no capture service is configured", vision.ErrUnavailable)}
		}
		snap, err := a.deps.Vision.CaptureDescription(ctx)
		if err != nil {
			return &stageError{stage: "Agent processing", err: err}
		}
		vc = &snap
	}

	reply, err := timeout.Do(ctx, a.cfg.llmBound(), "LLM generation", func(ctx context.Context) (string, error) {
		return a.deps.Generator.Generate(ctx, utterance, a.cfg.SystemPrompt, vc)
	})
	if err != nil {
		return &stageError{stage: "Agent processing", err: err}
	}
	a.emit(EventGeneratedResponse, reply)
	return a.speak(ctx, reply)
}

func (a *Agent) speak(ctx context.Context, text string) error {
	if err := a.transition(StateSpeaking); err != nil {
		return err
	}
	a.setExpression(ExpressionFor(text))
	err := a.deps.Speaker.Speak(ctx, text)
	a.setExpression(ExpressionHappy)
	if err != nil {
		return &stageError{stage: "TTS", err: err}
	}
	return a.transition(StateIdle)
}
