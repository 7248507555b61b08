package stt

import (
	"context"
	"sync"
	"time"
)

// QueueTranscriber hands out transcripts that were enqueued ahead of time,
// in order. TranscribeNext blocks until one is available or ctx ends.
type QueueTranscriber struct {
	mu      sync.Mutex
	pending []string
	ready   chan struct{}
}

// NewQueueTranscriber creates a transcriber preloaded with initial.
func NewQueueTranscriber(initial ...string) *QueueTranscriber {
	q := &QueueTranscriber{ready: make(chan struct{}, 1)}
	for _, s := range initial {
		q.Enqueue(s)
	}
	return q
}

// Enqueue appends a transcript.
func (q *QueueTranscriber) Enqueue(text string) {
	q.mu.Lock()
	q.pending = append(q.pending, text)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued transcripts.
func (q *QueueTranscriber) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *QueueTranscriber) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return "", false
	}
	text := q.pending[0]
	q.pending = q.pending[1:]
	return text, true
}

// TranscribeNext returns the oldest queued transcript.
func (q *QueueTranscriber) TranscribeNext(ctx context.Context, _ time.Duration) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if text, ok := q.pop(); ok {
			return text, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.ready:
		}
	}
}
