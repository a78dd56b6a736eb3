package ratelimit

import "time"

// Scope names a fixed admission window.
type Scope string

const (
	ScopeHour Scope = "hour"
	ScopeDay  Scope = "day"
)

// Length returns the window duration.
func (s Scope) Length() time.Duration {
	switch s {
	case ScopeHour:
		return time.Hour
	case ScopeDay:
		return 24 * time.Hour
	default:
		return 0
	}
}

// scopes lists windows in evaluation order.
var scopes = [...]Scope{ScopeHour, ScopeDay}

// Limits are the per-user request quotas. A limit <= 0 disables that window.
type Limits struct {
	Hour int
	Day  int
}

func (l Limits) of(scope Scope) int {
	if scope == ScopeHour {
		return l.Hour
	}
	return l.Day
}

// LimitsFunc returns the quotas for the next check.
type LimitsFunc func() Limits

// Window is the state of one counter.
type Window struct {
	Scope     Scope
	Bucket    int64
	Limit     int
	Count     int64
	Remaining int
	ResetAt   time.Time
}

// Exceeded reports whether the counter went past its limit.
func (w Window) Exceeded() bool {
	return w.Limit > 0 && w.Count > int64(w.Limit)
}

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Exceeded is the window that rejected the request, empty when allowed.
	Exceeded Scope

	// RemainingHour and RemainingDay are the quotas left after this request.
	// -1 means the window is unlimited.
	RemainingHour int
	RemainingDay  int

	// ResetAt is when the rejecting window resets, or the hourly reset when allowed.
	ResetAt time.Time

	Hour Window
	Day  Window

	now time.Time
}

// RetryAfter returns how long to wait before the next request can be allowed.
// Returns 0 if the current request was allowed.
func (d *Decision) RetryAfter() time.Duration {
	if d.Allowed {
		return 0
	}
	return max(d.ResetAt.Sub(d.now), 0)
}

// Err returns an error matching ErrRateLimitExceeded when the request was
// rejected, or nil.
func (d *Decision) Err() error {
	if d.Allowed {
		return nil
	}
	w := d.Hour
	if d.Exceeded == ScopeDay {
		w = d.Day
	}
	return &ExceededError{Scope: d.Exceeded, Limit: w.Limit, ResetAt: d.ResetAt}
}

func newDecision(now time.Time, hour, day Window) *Decision {
	d := &Decision{
		Allowed:       true,
		RemainingHour: hour.Remaining,
		RemainingDay:  day.Remaining,
		ResetAt:       hour.ResetAt,
		Hour:          hour,
		Day:           day,
		now:           now,
	}
	for _, w := range []Window{hour, day} {
		if w.Exceeded() {
			d.Allowed = false
			d.Exceeded = w.Scope
			d.ResetAt = w.ResetAt
			break
		}
	}
	return d
}
