package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Common rate limiting errors.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrKeyRequired       = errors.New("key is required")
	ErrCorruptCounter    = errors.New("corrupt rate limit counter")
)

// ExceededError names the window that rejected a request.
type ExceededError struct {
	Scope   Scope
	Limit   int
	ResetAt time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %s, resets at %s",
		e.Limit, e.Scope, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}
