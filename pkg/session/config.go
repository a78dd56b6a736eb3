package session

import (
	"time"

	"github.com/dmitrymomot/supportcore/pkg/kvstore"
)

// CapScope selects which sessions count against MaxSessions.
type CapScope string

const (
	// ScopeGlobal counts every live session in the shared store.
	ScopeGlobal CapScope = "global"
	// ScopeInstance counts only sessions created by this manager instance.
	ScopeInstance CapScope = "instance"
)

// Config holds session limits
type Config struct {
	// MaxSessions caps concurrently live sessions (<= 0 disables the cap)
	MaxSessions int
	CapScope    CapScope
	// Timeout is the idle TTL, refreshed on every activity
	Timeout time.Duration
	// AuthTTL is how long Authenticate binds an identity to a user.
	// Zero falls back to Timeout.
	AuthTTL time.Duration
}

func (c Config) authTTL() time.Duration {
	if c.AuthTTL > 0 {
		return c.AuthTTL
	}
	return c.Timeout
}

// ConfigFunc returns the limits to apply to the next operation.
// It is called once per operation so limits can change at runtime.
type ConfigFunc func() Config

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		MaxSessions: 1000,
		CapScope:    ScopeGlobal,
		Timeout:     30 * time.Minute,
		AuthTTL:     time.Hour,
	}
}

// NewFromConfig creates a new Manager with static limits.
func NewFromConfig(store kvstore.Store, cfg Config, opts ...Option) *Manager {
	configOpts := []Option{
		WithConfig(cfg),
	}

	configOpts = append(configOpts, opts...)

	return New(store, configOpts...)
}
