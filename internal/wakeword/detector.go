// Package wakeword turns a continuous raw detection signal into a debounced
// stream of wake events.
package wakeword

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/user/kamibot/internal/types"
)

// DefaultDebounce is the minimum spacing between two accepted detections.
const DefaultDebounce = 800 * time.Millisecond

// Detector implements types.WakeWordSource.
type Detector struct {
	keyword  string
	debounce time.Duration

	mu      sync.Mutex
	running bool
	closed  bool
	last    time.Time
	hasLast bool
	events  chan types.WakeEvent
}

// NewDetector creates a stopped detector. A non-positive debounce selects
// DefaultDebounce.
func NewDetector(keyword string, debounce time.Duration) *Detector {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Detector{
		keyword:  keyword,
		debounce: debounce,
		events:   make(chan types.WakeEvent, 16),
	}
}

// Start begins forwarding accepted detections.
func (d *Detector) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = true
	return nil
}

// Stop stops forwarding. The last accepted timestamp is kept, so a quick
// restart still honours the debounce window.
func (d *Detector) Stop(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	return nil
}

// Events returns the stream of accepted wake events.
func (d *Detector) Events() <-chan types.WakeEvent {
	return d.events
}

// Detect feeds one raw detection observed at the given time. It reports
// whether the detection was forwarded. A detection dropped because the
// consumer is behind does not open a debounce window.
func (d *Detector) Detect(at time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running || d.closed {
		return false
	}
	if d.hasLast && at.Sub(d.last) < d.debounce {
		return false
	}

	select {
	case d.events <- types.WakeEvent{Keyword: d.keyword, DetectedAt: at}:
	default:
		slog.Warn("wake event dropped, consumer is behind", "keyword", d.keyword)
		return false
	}
	d.last = at
	d.hasLast = true
	return true
}

// Listen pumps raw detections from signals until ctx ends or signals closes.
func (d *Detector) Listen(ctx context.Context, signals <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case at, ok := <-signals:
			if !ok {
				return
			}
			d.Detect(at)
		}
	}
}

// Close ends the event stream. The detector cannot be used afterwards.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.running = false
	close(d.events)
}
