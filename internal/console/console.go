// Package console is a terminal harness for the agent: typed lines stand in
// for the microphone and agent events are printed as they happen.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/user/kamibot/internal/agent"
)

// Utterances accepts typed text as if it had been transcribed.
type Utterances interface {
	Enqueue(text string)
}

// Recoverer clears a stuck Error state.
type Recoverer interface {
	Recover() error
}

// RecoverCommand is the console line that asks the agent to leave Error.
const RecoverCommand = "/recover"

// Reader turns stdin lines into raw wake signals and utterances.
//
// A line equal to the wake word is a raw detection. A line that starts with
// the wake word queues the remainder as the next utterance and then signals.
// RecoverCommand calls the Recoverer set with OnRecover. Any other non-empty
// line is queued as an utterance.
type Reader struct {
	wakeWord  string
	queue     Utterances
	recoverer Recoverer
	signals   chan time.Time
	now       func() time.Time
}

// NewReader creates a Reader for the given wake word.
func NewReader(wakeWord string, queue Utterances) *Reader {
	return &Reader{
		wakeWord: wakeWord,
		queue:    queue,
		signals:  make(chan time.Time, 8),
		now:      time.Now,
	}
}

// OnRecover routes RecoverCommand lines to rec. Call before Run.
func (r *Reader) OnRecover(rec Recoverer) {
	r.recoverer = rec
}

// Signals is the raw detection stream. It closes when Run returns.
func (r *Reader) Signals() <-chan time.Time {
	return r.signals
}

// Run reads lines from in until EOF or ctx ends.
func (r *Reader) Run(ctx context.Context, in io.Reader) error {
	defer close(r.signals)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		r.handle(ctx, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read console: %w", err)
	}
	return nil
}

func (r *Reader) handle(ctx context.Context, line string) {
	if line == "" {
		return
	}
	if r.recoverer != nil && strings.EqualFold(line, RecoverCommand) {
		if err := r.recoverer.Recover(); err != nil {
			slog.Warn("recover refused", "error", err)
		}
		return
	}
	rest, woke := r.stripWakeWord(line)
	if rest != "" {
		r.queue.Enqueue(rest)
	}
	if !woke {
		return
	}
	select {
	case r.signals <- r.now():
	case <-ctx.Done():
	}
}

// stripWakeWord reports whether line begins with the wake word and returns
// what follows it, trimmed of separators.
func (r *Reader) stripWakeWord(line string) (string, bool) {
	n := len(r.wakeWord)
	if n == 0 || len(line) < n || !strings.EqualFold(line[:n], r.wakeWord) {
		return line, false
	}
	rest := line[n:]
	if rest != "" && !strings.ContainsAny(rest[:1], " ,:!.") {
		// "bmobile" is not a wake word.
		return line, false
	}
	return strings.TrimLeft(rest, " ,:!."), true
}

// Printer writes agent events as human-readable lines.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPrinter creates a Printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Record implements ui.Sink. Spoken replies are printed by the synthesizer.
func (p *Printer) Record(_ context.Context, e agent.Event) error {
	var line string
	switch e.Kind {
	case agent.EventStateChanged:
		line = fmt.Sprintf("[%s]", e.State)
	case agent.EventExpressionChanged:
		line = fmt.Sprintf("(%s)", e.Expression)
	case agent.EventHeardUtterance:
		line = "You: " + e.Text
	case agent.EventError:
		line = "error: " + e.Text
	default:
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.out, line)
	return err
}
