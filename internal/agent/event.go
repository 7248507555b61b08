package agent

import (
	"sync"
	"time"

	"github.com/user/kamibot/internal/types"
)

type EventKind string

const (
	EventStateChanged      EventKind = "state_changed"
	EventExpressionChanged EventKind = "expression_changed"
	EventHeardUtterance    EventKind = "heard_utterance"
	EventGeneratedResponse EventKind = "generated_response"
	EventError             EventKind = "error"
)

// Event is one unit of observable agent output. Only the field matching
// Kind is meaningful: State, Expression, or Text.
type Event struct {
	Kind       EventKind    `json:"kind"`
	State      State        `json:"state,omitempty"`
	Expression Expression   `json:"expression,omitempty"`
	Text       string       `json:"text,omitempty"`
	TurnID     types.TurnID `json:"turn_id,omitempty"`
	At         time.Time    `json:"at"`
}

// eventQueue is an unbounded FIFO drained onto a channel by one goroutine,
// so producers never block on a slow consumer.
type eventQueue struct {
	mu      sync.Mutex
	pending []Event
	closed  bool
	signal  chan struct{}
	out     chan Event
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		signal: make(chan struct{}, 1),
		out:    make(chan Event),
	}
	go q.run()
	return q
}

func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, e)
	q.mu.Unlock()
	q.wake()
}

func (q *eventQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// close stops accepting events. Events already queued are still delivered
// before the output channel closes.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *eventQueue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-q.signal
			continue
		}
		for _, e := range batch {
			q.out <- e
		}
	}
}
