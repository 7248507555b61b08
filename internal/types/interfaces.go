// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

// WakeWordSource produces debounced wake events while started.
type WakeWordSource interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Events() <-chan WakeEvent
}

// Transcriber returns the next complete utterance. timeout is the bound the
// caller will enforce; implementations may use it as a hint.
type Transcriber interface {
	TranscribeNext(ctx context.Context, timeout time.Duration) (string, error)
}

// Speaker voices text. Speak returns once the utterance has finished.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop(ctx context.Context) error
}

// Generator produces a reply for a prompt, optionally grounded by vision.
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string, vision *VisionContext) (string, error)
}

// VisionCapture describes what the camera currently sees.
type VisionCapture interface {
	CaptureDescription(ctx context.Context) (VisionContext, error)
}

// PermissionProvider reports and requests microphone access.
type PermissionProvider interface {
	CurrentStatus() PermissionStatus
	RequestPermission(ctx context.Context) PermissionStatus
}
