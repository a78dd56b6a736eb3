package session

import "errors"

var (
	// ErrSessionNotFound indicates no live session exists for the user.
	// Expired sessions report the same error.
	ErrSessionNotFound = errors.New("session.not_found")

	// ErrMaxSessionsExceeded indicates the concurrent session cap is reached
	ErrMaxSessionsExceeded = errors.New("session.max_sessions_exceeded")

	// ErrInvalidStateTransition indicates the event has no edge from the current state
	ErrInvalidStateTransition = errors.New("session.invalid_state_transition")

	// ErrConcurrentUpdate indicates the session state kept changing under every retry
	ErrConcurrentUpdate = errors.New("session.concurrent_update")

	// ErrEmptyUserID indicates an operation was called without a user identifier
	ErrEmptyUserID = errors.New("session.empty_user_id")

	// ErrInvalidAuthData indicates the auth payload could not be serialized
	ErrInvalidAuthData = errors.New("session.invalid_auth_data")

	// ErrInvalidData indicates a session data value could not be serialized
	ErrInvalidData = errors.New("session.invalid_data")

	// ErrIdentityNotFound indicates no live session is bound to the identity
	ErrIdentityNotFound = errors.New("session.identity_not_found")

	// ErrNotAuthenticated indicates the session carries no auth payload
	ErrNotAuthenticated = errors.New("session.not_authenticated")

	// ErrCorruptSession indicates a stored record could not be decoded
	ErrCorruptSession = errors.New("session.corrupt")
)
