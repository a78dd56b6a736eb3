// Package session keeps per-user conversation sessions in a kvstore.Store
// and moves them through a declarative state machine.
//
// A session is a small JSON record stored under "session:{user_id}" with an
// idle TTL. Every activity (a transition, Touch or Record) refreshes the TTL,
// and an expired session is indistinguishable from one that never existed.
//
// # Concurrency
//
// The Manager holds no locks. Each mutation is one kvstore.Patch applied
// atomically by the store. Touch, Record and SetData patch unconditionally,
// so any number of them can run side by side for the same user without
// failing or losing a history marker. A transition is resolved against the
// state it read and patched only if the stored state is still that one; if
// another transition won the race it is resolved again from the new state.
// Creation uses an atomic insert that also enforces the concurrent session
// cap.
//
// # Identity
//
// Authenticate can bind an external identity to the user under
// "auth:{identity}" for Config.AuthTTL. LookupByIdentity follows the binding
// back to the live session. Logging out or destroying the session drops it.
//
// # Session cap
//
// Config.MaxSessions bounds live sessions. With ScopeGlobal every session in
// the store counts; with ScopeInstance only sessions created by this Manager
// (identified by its instance ID) do. Reaching the cap rejects new sessions
// with ErrMaxSessionsExceeded but never affects existing ones.
//
// # Usage
//
//	store := redis.NewStore(client)
//	manager := session.New(store,
//	    session.WithConfigFunc(func() session.Config { ... }),
//	    session.WithLogger(log),
//	)
//
//	sess, err := manager.Create(ctx, userID)
//	sess, err = manager.Transition(ctx, userID, session.EventStartAuth)
//	if errors.Is(err, session.ErrInvalidStateTransition) {
//	    // tell the user the action is not available right now
//	}
//	sess, err = manager.TransitionWith(ctx, userID, session.EventAuthFailed,
//	    map[string]any{"attempts": 2})
//	sess, err = manager.Authenticate(ctx, userID, nationalID, profile)
//
// The default conversation graph is returned by DefaultTable and can be
// replaced with WithTable.
package session
