package cursor

import (
	"errors"
	"time"

	"github.com/vietddude/snapshotter/internal/core/domain"
)

// State is an alias for domain.CursorState for internal use.
type State = domain.CursorState

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[State][]State{
	domain.CursorStateUninitialized: {domain.CursorStateInitializing, domain.CursorStateShuttingDown},
	domain.CursorStateInitializing: {
		domain.CursorStatePolling,
		domain.CursorStateCatchingUp,
		domain.CursorStateShuttingDown,
	},
	domain.CursorStatePolling: {
		domain.CursorStateCatchingUp,
		domain.CursorStateInitializing,
		domain.CursorStateShuttingDown,
	},
	domain.CursorStateCatchingUp: {
		domain.CursorStatePolling,
		domain.CursorStateInitializing,
		domain.CursorStateShuttingDown,
	},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}

	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case domain.CursorStateUninitialized:
		return "Uninitialized - detector not started"
	case domain.CursorStateInitializing:
		return "Initializing - waiting for the first chain head"
	case domain.CursorStatePolling:
		return "Polling - following the chain head"
	case domain.CursorStateCatchingUp:
		return "Catching up - window clamped to the most recent blocks"
	case domain.CursorStateShuttingDown:
		return "Shutting down - no further windows"
	default:
		return "Unknown state"
	}
}
