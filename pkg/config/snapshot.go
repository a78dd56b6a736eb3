package config

import (
	"errors"
	"maps"
	"strings"
	"time"
)

// CapScope selects what MAX_SESSIONS counts against.
type CapScope string

const (
	// CapScopeGlobal counts every session in the shared store.
	CapScopeGlobal CapScope = "global"
	// CapScopeInstance counts sessions created by this process only.
	CapScopeInstance CapScope = "instance"
)

// Snapshot is one immutable view of the runtime settings.
// A new Snapshot is built on every reload; existing ones are never modified.
type Snapshot struct {
	MaxSessions     int      `env:"MAX_SESSIONS" envDefault:"1000"`
	SessionCapScope CapScope `env:"SESSION_CAP_SCOPE" envDefault:"global"`
	SessionTimeout  int      `env:"SESSION_TIMEOUT" envDefault:"1800"` // seconds
	AuthTTL         int      `env:"AUTH_TTL" envDefault:"3600"`        // seconds

	MaxRequestsHour int `env:"MAX_REQUESTS_HOUR" envDefault:"100"`
	MaxRequestsDay  int `env:"MAX_REQUESTS_DAY" envDefault:"1000"`

	CacheSize int `env:"CACHE_SIZE" envDefault:"1000"`
	CacheTTL  int `env:"CACHE_TTL" envDefault:"3600"` // seconds

	EnableDynamicConfig bool   `env:"ENABLE_DYNAMIC_CONFIG" envDefault:"false"`
	DynamicConfigSource string `env:"DYNAMIC_CONFIG_SOURCE"`

	MaintenanceMode bool            `env:"MAINTENANCE_MODE" envDefault:"false"`
	Features        map[string]bool `env:"FEATURE_FLAGS"`

	LoadedAt time.Time `env:"-"`
	Revision uint64    `env:"-"`
}

// Validate reports every violated constraint at once.
func (s *Snapshot) Validate() error {
	var errs []error

	positive := []struct {
		name  string
		value int
	}{
		{"MAX_SESSIONS", s.MaxSessions},
		{"SESSION_TIMEOUT", s.SessionTimeout},
		{"AUTH_TTL", s.AuthTTL},
		{"MAX_REQUESTS_HOUR", s.MaxRequestsHour},
		{"MAX_REQUESTS_DAY", s.MaxRequestsDay},
		{"CACHE_SIZE", s.CacheSize},
		{"CACHE_TTL", s.CacheTTL},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, &ValidationError{Field: p.name, Reason: "must be a positive integer"})
		}
	}

	switch s.SessionCapScope {
	case CapScopeGlobal, CapScopeInstance:
	default:
		errs = append(errs, &ValidationError{Field: "SESSION_CAP_SCOPE", Reason: `must be "global" or "instance"`})
	}

	if s.EnableDynamicConfig && strings.TrimSpace(s.DynamicConfigSource) == "" {
		errs = append(errs, &ValidationError{Field: "DYNAMIC_CONFIG_SOURCE", Reason: "required when ENABLE_DYNAMIC_CONFIG is true"})
	}

	return errors.Join(errs...)
}

func (s *Snapshot) SessionTTL() time.Duration {
	return time.Duration(s.SessionTimeout) * time.Second
}

func (s *Snapshot) AuthTTLDuration() time.Duration {
	return time.Duration(s.AuthTTL) * time.Second
}

func (s *Snapshot) CacheTTLDuration() time.Duration {
	return time.Duration(s.CacheTTL) * time.Second
}

// Feature reports whether the named flag is enabled. Unknown flags are off.
func (s *Snapshot) Feature(name string) bool {
	return s.Features[name]
}

// clone returns a deep copy so a published snapshot never shares mutable state.
func (s *Snapshot) clone() *Snapshot {
	c := *s
	c.Features = maps.Clone(s.Features)
	return &c
}
