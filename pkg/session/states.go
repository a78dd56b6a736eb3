package session

import "github.com/dmitrymomot/supportcore/pkg/statemachine"

// Conversation states.
const (
	StateStart          = statemachine.StringState("start")
	StateAwaitingAuth   = statemachine.StringState("awaiting_auth")
	StateAuthenticated  = statemachine.StringState("authenticated")
	StateBrowsingOrders = statemachine.StringState("browsing_orders")
	StateSupportFlow    = statemachine.StringState("support_flow")
)

// Conversation events.
const (
	EventStartAuth     = statemachine.StringEvent("start_auth")
	EventAuthSucceeded = statemachine.StringEvent("auth_succeeded")
	EventAuthFailed    = statemachine.StringEvent("auth_failed")
	EventBrowseOrders  = statemachine.StringEvent("browse_orders")
	EventOpenSupport   = statemachine.StringEvent("open_support")
	EventDone          = statemachine.StringEvent("done")
	EventCancel        = statemachine.StringEvent("cancel")
	EventLogout        = statemachine.StringEvent("logout")
)

// DefaultTransitions is the support bot conversation graph.
//
//	start ──start_auth──► awaiting_auth ──auth_succeeded──► authenticated
//	                         │  ▲   │                          │      ▲
//	                         └──┘   cancel ──► start           │      │ done/cancel
//	                      auth_failed              browse_orders/open_support
//	                                                           ▼      │
//	                                         browsing_orders | support_flow
//
// logout returns to start from every state.
func DefaultTransitions() []statemachine.Transition {
	return []statemachine.Transition{
		{From: StateStart, To: StateAwaitingAuth, Event: EventStartAuth},
		{From: StateAwaitingAuth, To: StateAuthenticated, Event: EventAuthSucceeded},
		{From: StateAwaitingAuth, To: StateAwaitingAuth, Event: EventAuthFailed},
		{From: StateAwaitingAuth, To: StateStart, Event: EventCancel},
		{From: StateAuthenticated, To: StateBrowsingOrders, Event: EventBrowseOrders},
		{From: StateAuthenticated, To: StateSupportFlow, Event: EventOpenSupport},
		{From: StateBrowsingOrders, To: StateAuthenticated, Event: EventDone},
		{From: StateBrowsingOrders, To: StateAuthenticated, Event: EventCancel},
		{From: StateBrowsingOrders, To: StateSupportFlow, Event: EventOpenSupport},
		{From: StateSupportFlow, To: StateAuthenticated, Event: EventDone},
		{From: StateSupportFlow, To: StateAuthenticated, Event: EventCancel},
		{From: StateSupportFlow, To: StateBrowsingOrders, Event: EventBrowseOrders},
		{To: StateStart, Event: EventLogout},
	}
}

// DefaultTable builds the transition table for DefaultTransitions.
func DefaultTable() *statemachine.Table {
	return statemachine.MustNew(StateStart,
		statemachine.WithStates(StateStart, StateAwaitingAuth, StateAuthenticated, StateBrowsingOrders, StateSupportFlow),
		statemachine.WithTransitions(DefaultTransitions()),
	)
}
