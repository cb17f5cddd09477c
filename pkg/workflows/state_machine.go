package workflows

import "fmt"

// StateMachine enforces status transitions for a closed set of states
type StateMachine[S ~string] struct {
	allowedTransitions map[S][]S
}

// NewStateMachine creates a new state machine with allowed transitions.
// Every state must appear as a key, terminal states with an empty slice.
func NewStateMachine[S ~string](transitions map[S][]S) *StateMachine[S] {
	for from, targets := range transitions {
		for _, to := range targets {
			if _, ok := transitions[to]; !ok {
				panic(fmt.Sprintf("workflows: transition %s -> %s targets an undeclared state", from, to))
			}
		}
	}
	return &StateMachine[S]{allowedTransitions: transitions}
}

// Known reports whether the state is part of the machine
func (sm *StateMachine[S]) Known(state S) bool {
	_, ok := sm.allowedTransitions[state]
	return ok
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine[S]) CanTransition(from, to S) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the state
func (sm *StateMachine[S]) IsTerminal(state S) bool {
	allowed, exists := sm.allowedTransitions[state]
	return exists && len(allowed) == 0
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine[S]) GetAllowedTransitions(from S) []S {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []S{}
	}
	out := make([]S, len(allowed))
	copy(out, allowed)
	return out
}

// Transition returns an error when from -> to is not allowed
func (sm *StateMachine[S]) Transition(from, to S) error {
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("invalid status transition from %q to %q", from, to)
	}
	return nil
}
