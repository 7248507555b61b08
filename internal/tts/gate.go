// Package tts serializes speech output so that at most one utterance is
// voiced at a time.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInterrupted is returned by Speak when a later Speak pre-empted it.
var ErrInterrupted = errors.New("tts: utterance interrupted")

// Synthesizer is the speech engine boundary. Speak starts an utterance and
// returns immediately; IsSpeaking reports whether one is still playing.
type Synthesizer interface {
	Speak(text string) error
	IsSpeaking() bool
	StopSpeaking() bool
}

// Gate implements types.Speaker on top of a Synthesizer.
type Gate struct {
	synth Synthesizer
	poll  time.Duration

	mu            sync.Mutex
	generation    atomic.Uint64
	interruptions atomic.Int64
}

// NewGate wraps synth.
func NewGate(synth Synthesizer) *Gate {
	return &Gate{synth: synth, poll: 10 * time.Millisecond}
}

// Speak voices text and waits for it to finish. An utterance already in
// progress is stopped immediately and counted as an interruption.
func (g *Gate) Speak(ctx context.Context, text string) error {
	text = Speakable(text)
	if text == "" {
		return nil
	}

	g.mu.Lock()
	// Bump before stopping so a pre-empted waiter always sees the new
	// generation once it observes silence.
	gen := g.generation.Add(1)
	if g.synth.IsSpeaking() {
		g.synth.StopSpeaking()
		g.interruptions.Add(1)
		slog.Debug("tts interrupted previous utterance", "interruptions", g.interruptions.Load())
		if err := g.waitSilent(ctx); err != nil {
			g.mu.Unlock()
			return err
		}
	}
	if err := g.synth.Speak(text); err != nil {
		g.mu.Unlock()
		return fmt.Errorf("start utterance: %w", err)
	}
	g.mu.Unlock()

	return g.waitDone(ctx, gen)
}

// Stop silences any utterance. Safe to call at any time, any number of times.
func (g *Gate) Stop(_ context.Context) error {
	g.synth.StopSpeaking()
	return nil
}

// Interruptions returns how many utterances were cut short by a new one.
func (g *Gate) Interruptions() int64 {
	return g.interruptions.Load()
}

func (g *Gate) waitSilent(ctx context.Context) error {
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()
	for g.synth.IsSpeaking() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (g *Gate) waitDone(ctx context.Context, gen uint64) error {
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()
	for {
		if !g.synth.IsSpeaking() {
			if g.generation.Load() != gen {
				return ErrInterrupted
			}
			return nil
		}
		select {
		case <-ctx.Done():
			if g.generation.Load() == gen {
				g.synth.StopSpeaking()
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
