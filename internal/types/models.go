// internal/types/models.go
package types

import (
	"time"
)

// WakeEvent is one accepted wake-word occurrence.
type WakeEvent struct {
	Keyword    string    `json:"keyword"`
	DetectedAt time.Time `json:"detected_at"`
}

// VisionContext is a snapshot description used to ground a reply.
type VisionContext struct {
	Summary    string    `json:"summary"`
	CapturedAt time.Time `json:"captured_at"`
}

// NewVisionContext stamps a summary with the current time.
func NewVisionContext(summary string) VisionContext {
	return VisionContext{Summary: summary, CapturedAt: time.Now()}
}

// PermissionStatus is the microphone authorization state reported by the platform.
type PermissionStatus string

const (
	PermissionAuthorized   PermissionStatus = "authorized"
	PermissionDenied       PermissionStatus = "denied"
	PermissionRestricted   PermissionStatus = "restricted"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// ParsePermissionStatus maps a config string onto a PermissionStatus.
// Unknown values are treated as undetermined.
func ParsePermissionStatus(s string) PermissionStatus {
	switch PermissionStatus(s) {
	case PermissionAuthorized, PermissionDenied, PermissionRestricted:
		return PermissionStatus(s)
	default:
		return PermissionUndetermined
	}
}
