// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type SessionID string
type TurnID string
type EventID string

// NewSessionID identifies one agent lifetime (one orchestrator instance).
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

func NewEventID() EventID {
	return EventID(uuid.New().String())
}
