// Package state provides the filesystem-backed journal of agent events.
package state

import (
	"context"

	"github.com/user/kamibot/internal/agent"
)

// Recorder persists agent events.
type Recorder interface {
	Record(ctx context.Context, e agent.Event) error
}

// Compile-time interface compliance check.
var _ Recorder = (*Journal)(nil)
