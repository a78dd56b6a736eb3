package statemachine

import "context"

// State is a node of the transition table, identified by its name.
type State interface {
	Name() string
}

// Event is an input that may move a session from one state to another.
type Event interface {
	Name() string
}

// Guard vetoes a transition at runtime. data is whatever the caller passed to Next.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Transition is one edge of the table. A nil From makes the edge global:
// it applies from every state unless a state-specific edge matches first.
type Transition struct {
	From   State
	To     State
	Event  Event
	Guards []Guard
}

// StringState is a State named by its value.
type StringState string

func (s StringState) Name() string { return string(s) }

// StringEvent is an Event named by its value.
type StringEvent string

func (e StringEvent) Name() string { return string(e) }
