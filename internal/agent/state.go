package agent

import "fmt"

// State is the conversational phase.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateThinking  State = "thinking"
	StateSpeaking  State = "speaking"
	StateError     State = "error"
)

// States lists every state, in lifecycle order.
var States = []State{StateIdle, StateListening, StateThinking, StateSpeaking, StateError}

// Expression is the face shown by the UI.
type Expression string

const (
	ExpressionHappy    Expression = "happy"
	ExpressionNeutral  Expression = "neutral"
	ExpressionCurious  Expression = "curious"
	ExpressionExcited  Expression = "excited"
	ExpressionSquint   Expression = "squint"
	ExpressionSpeaking Expression = "speaking"
)

var transitions = map[State][]State{
	StateIdle:      {StateListening},
	StateListening: {StateThinking, StateIdle, StateError},
	StateThinking:  {StateSpeaking, StateIdle, StateError},
	StateSpeaking:  {StateIdle, StateError},
	StateError:     {StateIdle},
}

// IsValidTransition reports whether from may move to to. Self transitions
// are always allowed.
func IsValidTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError is returned for a transition outside the table.
// State is left unchanged.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}
