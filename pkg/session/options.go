package session

import (
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/supportcore/pkg/statemachine"
)

// Option is a functional option for configuring the Manager
type Option func(*Manager)

// WithConfig sets static limits
func WithConfig(config Config) Option {
	return func(m *Manager) {
		m.config = func() Config { return config }
	}
}

// WithConfigFunc reads limits from fn on every operation, typically from a
// hot-reloadable configuration snapshot.
func WithConfigFunc(fn ConfigFunc) Option {
	return func(m *Manager) {
		if fn != nil {
			m.config = fn
		}
	}
}

// WithTable replaces the conversation state machine.
func WithTable(table *statemachine.Table) Option {
	return func(m *Manager) {
		if table != nil {
			m.table = table
		}
	}
}

// WithInstanceID sets the identifier used for the instance cap scope.
func WithInstanceID(id string) Option {
	return func(m *Manager) {
		if id != "" {
			m.instanceID = id
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithObserver reports session lifecycle events, e.g. to metrics.
func WithObserver(observer Observer) Option {
	return func(m *Manager) {
		m.observer = observer
	}
}

// WithMaxAttempts bounds how often a transition is re-resolved after
// another transition of the same session won the race.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}
