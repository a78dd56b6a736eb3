package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition   = errors.New("statemachine: transition needs a target state and an event")
	ErrInvalidEvent        = errors.New("statemachine: nil event")
	ErrNilInitialState     = errors.New("statemachine: nil initial state")
	ErrDuplicateTransition = errors.New("statemachine: duplicate unguarded transition")
	ErrUnreachableState    = errors.New("statemachine: state is unreachable from the initial state")
	ErrUnknownState        = errors.New("statemachine: unknown state")
)

// NoTransitionError reports that the table declares no edge for State and Event.
type NoTransitionError struct {
	State string
	Event string
}

func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("statemachine: no transition from %q on %q", e.State, e.Event)
}

// RejectedError reports that edges exist for State and Event but every guard refused.
type RejectedError struct {
	State string
	Event string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("statemachine: transition from %q on %q rejected by guards", e.State, e.Event)
}

// IsNoTransition reports whether err wraps a *NoTransitionError.
func IsNoTransition(err error) bool {
	var e *NoTransitionError
	return errors.As(err, &e)
}

// IsRejected reports whether err wraps a *RejectedError.
func IsRejected(err error) bool {
	var e *RejectedError
	return errors.As(err, &e)
}
