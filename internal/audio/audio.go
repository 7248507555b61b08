// Package audio gates microphone input behind the platform permission.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/user/kamibot/internal/types"
)

var ErrMicrophoneDenied = errors.New("audio: microphone access denied")

// StaticPermission is a PermissionProvider whose answers come from
// configuration. The OS prompt itself lives outside this process.
type StaticPermission struct {
	mu      sync.Mutex
	status  types.PermissionStatus
	onAsk   types.PermissionStatus
	askings int
}

// NewStaticPermission reports status until asked; a request turns an
// undetermined status into onRequest.
func NewStaticPermission(status, onRequest types.PermissionStatus) *StaticPermission {
	return &StaticPermission{status: status, onAsk: onRequest}
}

func (p *StaticPermission) CurrentStatus() types.PermissionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *StaticPermission) RequestPermission(ctx context.Context) types.PermissionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.askings++
	if p.status == types.PermissionUndetermined {
		p.status = p.onAsk
	}
	return p.status
}

// Requests returns how many times permission was requested.
func (p *StaticPermission) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.askings
}

// Coordinator prepares audio input at startup.
type Coordinator struct {
	permissions types.PermissionProvider
}

func NewCoordinator(p types.PermissionProvider) *Coordinator {
	return &Coordinator{permissions: p}
}

// PrepareInput succeeds only when the microphone is, or becomes, authorized.
func (c *Coordinator) PrepareInput(ctx context.Context) error {
	status := c.permissions.CurrentStatus()
	switch status {
	case types.PermissionAuthorized:
		return nil
	case types.PermissionUndetermined:
		granted := c.permissions.RequestPermission(ctx)
		if granted != types.PermissionAuthorized {
			slog.Warn("microphone permission refused", "status", granted)
			return fmt.Errorf("%w: request returned %s", ErrMicrophoneDenied, granted)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrMicrophoneDenied, status)
	}
}
