package statemachine

import (
	"fmt"
)

// Option configures a table during construction.
type Option func(*Table) error

// TransitionOption configures a single transition.
type TransitionOption func(*Transition)

// New builds and validates a transition table.
func New(initialState State, opts ...Option) (*Table, error) {
	if initialState == nil {
		return nil, ErrNilInitialState
	}

	t := newTable(initialState)
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// MustNew is New that panics on an invalid table.
func MustNew(initialState State, opts ...Option) *Table {
	t, err := New(initialState, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return t
}

// WithStates declares states up front. Declared states must be reachable.
func WithStates(states ...State) Option {
	return func(t *Table) error {
		for _, s := range states {
			if s == nil {
				return fmt.Errorf("%w: nil state", ErrUnknownState)
			}
			t.addState(s)
		}
		return nil
	}
}

// WithTransition adds a single transition.
func WithTransition(from, to State, event Event, opts ...TransitionOption) Option {
	return func(t *Table) error {
		if from == nil {
			return ErrInvalidTransition
		}
		tr := Transition{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&tr)
		}
		return t.add(tr)
	}
}

// WithGlobalTransition adds a transition that applies from every state.
// Transitions declared for a specific state take precedence.
func WithGlobalTransition(to State, event Event, opts ...TransitionOption) Option {
	return func(t *Table) error {
		tr := Transition{To: to, Event: event}
		for _, opt := range opts {
			opt(&tr)
		}
		return t.add(tr)
	}
}

// WithTransitions adds multiple transitions at once. A nil From makes a
// global transition.
func WithTransitions(transitions []Transition) Option {
	return func(t *Table) error {
		for i, tr := range transitions {
			if err := t.add(tr); err != nil {
				return fmt.Errorf("failed to add transition[%d] %s->%s on %s: %w",
					i, nameOf(tr.From), nameOf(tr.To), nameOf(tr.Event), err)
			}
		}
		return nil
	}
}

// WithGuard adds a single guard to a transition.
func WithGuard(guard Guard) TransitionOption {
	return func(tr *Transition) {
		if guard != nil {
			tr.Guards = append(tr.Guards, guard)
		}
	}
}

// WithGuards adds multiple guards to a transition.
func WithGuards(guards ...Guard) TransitionOption {
	return func(tr *Transition) {
		for _, guard := range guards {
			if guard != nil {
				tr.Guards = append(tr.Guards, guard)
			}
		}
	}
}

func nameOf(v interface{ Name() string }) string {
	if v == nil {
		return "*"
	}
	return v.Name()
}
