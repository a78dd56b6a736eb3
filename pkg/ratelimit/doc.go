// Package ratelimit implements per-user admission control with two fixed
// windows: one hour and one day.
//
// Windows are aligned to the Unix epoch in UTC, so the hourly bucket changes
// at the top of every hour and the daily bucket at midnight UTC. Each request
// atomically increments the counter of the current bucket for both windows;
// a counter is created with a TTL equal to the time left in its window and
// disappears on its own once the window closes.
//
// A request is rejected when either post-increment count exceeds its limit.
// The hourly window is checked first. The increment is never rolled back, so
// retrying a rejected request does not probe the limit for free.
//
// # Usage
//
//	limiter := ratelimit.New(store, ratelimit.WithLimits(ratelimit.Limits{Hour: 100, Day: 1000}))
//
//	decision, err := limiter.CheckAndIncrement(ctx, userID)
//	if err != nil {
//	    // storage unavailable: deny
//	}
//	if !decision.Allowed {
//	    return decision.Err() // matches ErrRateLimitExceeded
//	}
//
// Counters are stored under "ratelimit:{user}:{scope}:{bucket}".
package ratelimit
