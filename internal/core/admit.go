package core

import (
	"context"
	"errors"

	"github.com/dmitrymomot/supportcore/pkg/logger"
	"github.com/dmitrymomot/supportcore/pkg/ratelimit"
	"github.com/dmitrymomot/supportcore/pkg/session"
)

// Admission is the result of admitting one inbound user event.
type Admission struct {
	Session  *session.Session
	Decision *ratelimit.Decision
}

// Admit resolves or creates the user's session, then counts the request
// against the rate limit and refreshes the session TTL.
//
// It fails with ErrMaintenance in maintenance mode, with
// session.ErrMaxSessionsExceeded when a new session does not fit, and with an
// error matching ratelimit.ErrRateLimitExceeded when the quota is used up; in
// the last case the returned Admission carries the decision so the caller can
// tell the user when to retry. Storage failures are returned as is and must be
// treated as a denial.
func (c *Core) Admit(ctx context.Context, userID string) (*Admission, error) {
	ctx = logger.WithUserID(ctx, userID)

	if c.config.MustCurrent().MaintenanceMode {
		return nil, ErrMaintenance
	}

	sess, err := c.sessions.Create(ctx, userID)
	if err != nil {
		return nil, err
	}

	decision, err := c.limiter.CheckAndIncrement(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return &Admission{Session: sess, Decision: decision}, decision.Err()
	}

	touched, err := c.sessions.Touch(ctx, userID)
	switch {
	case err == nil:
		sess = touched
	case errors.Is(err, session.ErrSessionNotFound):
		// destroyed concurrently, e.g. by a logout racing this event
		c.logger.DebugContext(ctx, "session vanished during admission", logger.UserID(userID))
	default:
		return nil, err
	}

	return &Admission{Session: sess, Decision: decision}, nil
}

// Context returns ctx carrying the admitted session and its user for logging.
func (a *Admission) Context(ctx context.Context) context.Context {
	if a == nil || a.Session == nil {
		return ctx
	}
	return logger.WithUserID(session.NewContext(ctx, a.Session), a.Session.UserID)
}
