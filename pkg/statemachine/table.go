package statemachine

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Table is an immutable transition table. It holds no current state, so a
// single Table serves any number of entities whose state is stored elsewhere.
// It is safe for concurrent use once built.
type Table struct {
	initial State
	states  map[string]State
	order   []string
	edges   map[string]map[string][]Transition
	global  map[string][]Transition
}

func newTable(initial State) *Table {
	t := &Table{
		initial: initial,
		states:  make(map[string]State),
		edges:   make(map[string]map[string][]Transition),
		global:  make(map[string][]Transition),
	}
	t.addState(initial)
	return t
}

func (t *Table) addState(s State) {
	if _, ok := t.states[s.Name()]; ok {
		return
	}
	t.states[s.Name()] = s
	t.order = append(t.order, s.Name())
}

func (t *Table) add(tr Transition) error {
	if tr.To == nil || tr.Event == nil {
		return ErrInvalidTransition
	}

	var bucket map[string][]Transition
	if tr.From == nil {
		bucket = t.global
	} else {
		t.addState(tr.From)
		bucket = t.edges[tr.From.Name()]
		if bucket == nil {
			bucket = make(map[string][]Transition)
			t.edges[tr.From.Name()] = bucket
		}
	}
	t.addState(tr.To)

	existing := bucket[tr.Event.Name()]
	for _, prev := range existing {
		// An unguarded transition always wins, so anything after it is dead.
		if len(prev.Guards) == 0 {
			return fmt.Errorf("%w: %s on %s", ErrDuplicateTransition, nameOf(tr.From), tr.Event.Name())
		}
	}
	bucket[tr.Event.Name()] = append(existing, tr)
	return nil
}

// validate checks that every known state can be reached from the initial one.
func (t *Table) validate() error {
	reached := map[string]bool{t.initial.Name(): true}
	queue := []string{t.initial.Name()}

	globalTargets := make([]string, 0, len(t.global))
	for _, list := range t.global {
		for _, tr := range list {
			globalTargets = append(globalTargets, tr.To.Name())
		}
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		next := slices.Clone(globalTargets)
		for _, list := range t.edges[name] {
			for _, tr := range list {
				next = append(next, tr.To.Name())
			}
		}
		for _, n := range next {
			if !reached[n] {
				reached[n] = true
				queue = append(queue, n)
			}
		}
	}

	var errs []error
	for _, name := range t.order {
		if !reached[name] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnreachableState, name))
		}
	}
	return errors.Join(errs...)
}

// Initial returns the state new entities start in.
func (t *Table) Initial() State {
	return t.initial
}

// Lookup resolves a stored state name.
func (t *Table) Lookup(name string) (State, bool) {
	s, ok := t.states[name]
	return s, ok
}

// States returns all states in declaration order.
func (t *Table) States() []State {
	out := make([]State, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.states[name])
	}
	return out
}

// Next returns the state reached from `from` on event. Transitions declared
// for the state are tried before global ones; the first whose guards all pass
// wins.
func (t *Table) Next(ctx context.Context, from State, event Event, data any) (State, error) {
	if event == nil {
		return nil, ErrInvalidEvent
	}
	if from == nil {
		return nil, fmt.Errorf("%w: <nil>", ErrUnknownState)
	}
	if _, ok := t.states[from.Name()]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownState, from.Name())
	}

	candidates := t.candidates(from, event)
	if len(candidates) == 0 {
		return nil, &NoTransitionError{State: from.Name(), Event: event.Name()}
	}

	for _, tr := range candidates {
		if guardsPass(ctx, tr.Guards, from, event, data) {
			return tr.To, nil
		}
	}
	return nil, &RejectedError{State: from.Name(), Event: event.Name()}
}

// Can reports whether Next would succeed.
func (t *Table) Can(ctx context.Context, from State, event Event, data any) bool {
	_, err := t.Next(ctx, from, event, data)
	return err == nil
}

// Events lists the events with a transition out of from, ignoring guards,
// sorted by name.
func (t *Table) Events(from State) []Event {
	seen := make(map[string]Event)
	if from != nil {
		for name, list := range t.edges[from.Name()] {
			seen[name] = list[0].Event
		}
	}
	for name, list := range t.global {
		if _, ok := seen[name]; !ok {
			seen[name] = list[0].Event
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]Event, len(names))
	for i, name := range names {
		out[i] = seen[name]
	}
	return out
}

// Transitions returns a copy of every declared transition.
func (t *Table) Transitions() []Transition {
	var out []Transition
	for _, name := range t.order {
		for _, list := range t.edges[name] {
			out = append(out, list...)
		}
	}
	for _, list := range t.global {
		out = append(out, list...)
	}
	return out
}

func (t *Table) candidates(from State, event Event) []Transition {
	specific := t.edges[from.Name()][event.Name()]
	global := t.global[event.Name()]
	if len(global) == 0 {
		return specific
	}
	return append(slices.Clone(specific), global...)
}

func guardsPass(ctx context.Context, guards []Guard, from State, event Event, data any) bool {
	for _, g := range guards {
		if !g(ctx, from, event, data) {
			return false
		}
	}
	return true
}
