// Package vision turns a camera snapshot into a short description for the
// language model.
package vision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/user/kamibot/internal/types"
)

var (
	ErrDisabled    = errors.New("vision: disabled")
	ErrUnavailable = errors.New("vision: capture unavailable")
)

// CaptureFailedError wraps a frame capture failure.
type CaptureFailedError struct {
	Err error
}

func (e *CaptureFailedError) Error() string {
	return fmt.Sprintf("vision capture failed: %v", e.Err)
}

func (e *CaptureFailedError) Unwrap() error { return e.Err }

// FrameCapturer grabs one raw camera frame.
type FrameCapturer interface {
	CaptureFrame(ctx context.Context) ([]byte, error)
}

// SnapshotService implements types.VisionCapture.
type SnapshotService struct {
	enabled  bool
	capturer FrameCapturer

	mu     sync.Mutex
	queued *types.VisionContext
}

// NewSnapshotService returns a service. capturer may be nil, in which case
// only queued summaries can be delivered.
func NewSnapshotService(enabled bool, capturer FrameCapturer) *SnapshotService {
	return &SnapshotService{enabled: enabled, capturer: capturer}
}

// QueueSummary stores a description to be returned by the next capture
// instead of grabbing a frame. It is consumed once.
func (s *SnapshotService) QueueSummary(summary string) {
	vc := types.NewVisionContext(summary)
	s.mu.Lock()
	s.queued = &vc
	s.mu.Unlock()
}

func (s *SnapshotService) CaptureDescription(ctx context.Context) (types.VisionContext, error) {
	if !s.enabled {
		return types.VisionContext{}, ErrDisabled
	}

	s.mu.Lock()
	if q := s.queued; q != nil {
		s.queued = nil
		s.mu.Unlock()
		return *q, nil
	}
	s.mu.Unlock()

	if s.capturer == nil {
		return types.VisionContext{}, ErrUnavailable
	}
	frame, err := s.capturer.CaptureFrame(ctx)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return types.VisionContext{}, err
		}
		return types.VisionContext{}, &CaptureFailedError{Err: err}
	}
	return types.NewVisionContext(fmt.Sprintf("Captured on-demand frame (%d bytes).", len(frame))), nil
}

// FileCapturer reads the latest frame from a file written by an external
// camera process.
type FileCapturer struct {
	Path string
}

func (f FileCapturer) CaptureFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(f.Path) == "" {
		return nil, ErrUnavailable
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no frame at %s", ErrUnavailable, f.Path)
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return data, nil
}
