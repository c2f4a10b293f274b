package interpreter

import "errors"

// State is a stage of the two-phase tool-calling protocol.
type State string

const (
	// Non-terminal states
	StateAwaitingToolSelection State = "awaiting_tool_selection" // First provider request in flight
	StateExecutingOperations   State = "executing_operations"    // Applying the selected operations
	StateAwaitingNarration     State = "awaiting_narration"      // Second provider request in flight

	// Terminal states
	StateDone   State = "done"
	StateFailed State = "failed"
)

// ErrInvalidTransition is returned when a state transition is not allowed.
var ErrInvalidTransition = errors.New("invalid interpreter state transition")

// ValidTransitions defines allowed state transitions.
var ValidTransitions = map[State][]State{
	StateAwaitingToolSelection: {StateExecutingOperations, StateDone, StateFailed},
	StateExecutingOperations:   {StateAwaitingNarration, StateFailed},
	StateAwaitingNarration:     {StateDone, StateFailed},
	StateDone:                  {},
	StateFailed:                {},
}

// IsTerminal returns true if no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

func (s State) String() string {
	return string(s)
}

// CanTransitionTo checks if a transition from s to target is valid.
func (s State) CanTransitionTo(target State) bool {
	for _, t := range ValidTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// TransitionTo returns target when the transition is allowed.
func (s State) TransitionTo(target State) (State, error) {
	if !s.CanTransitionTo(target) {
		return s, ErrInvalidTransition
	}
	return target, nil
}
