// Package statemachine provides a declarative, stateless finite-state-machine
// transition table.
//
// A Table knows which events move which states where, but it never stores a
// current state. Callers load the state of an entity from wherever they keep
// it, ask the table for the next state and persist the result themselves.
// That makes one Table safe to share between goroutines and processes that
// operate on many entities at once.
//
// States and events are anything with a Name method. StringState and
// StringEvent cover the common case.
//
// # Usage
//
//	const (
//	    Draft     = statemachine.StringState("draft")
//	    InReview  = statemachine.StringState("in_review")
//	    Submit    = statemachine.StringEvent("submit")
//	    Reset     = statemachine.StringEvent("reset")
//	)
//
//	table := statemachine.MustNew(Draft,
//	    statemachine.WithTransition(Draft, InReview, Submit),
//	    statemachine.WithGlobalTransition(Draft, Reset),
//	)
//
//	next, err := table.Next(ctx, Draft, Submit, nil) // InReview
//
// # Guards
//
// Guards veto a transition based on runtime data. Several transitions may
// share a (state, event) pair as long as every one but the last is guarded;
// they are tried in declaration order and the first whose guards all pass
// wins. Transitions declared for a specific state are tried before global
// ones.
//
// # Validation
//
// New rejects tables with nil targets, shadowed unguarded duplicates and
// states that cannot be reached from the initial state.
//
// # Errors
//
// Next returns *NoTransitionError when nothing is declared for the pair and
// *RejectedError when guards blocked every candidate. IsNoTransition and
// IsRejected tell them apart.
package statemachine
