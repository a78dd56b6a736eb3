package config

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"os"
	"sync"
	"sync/atomic"

	"github.com/caarlos0/env/v11"
	"github.com/jonboulle/clockwork"
)

// ReloadObserver is notified about every reload attempt.
type ReloadObserver interface {
	ConfigReloaded(err error)
}

// ReloadHook runs after a new snapshot is published.
type ReloadHook func(previous, current *Snapshot)

// Manager owns the current Snapshot. Readers call Current and never block;
// Load and Reload build a complete new snapshot, validate it and publish it
// with a single atomic swap, so a reader sees either the old or the new
// snapshot, never a mix.
type Manager struct {
	current  atomic.Pointer[Snapshot]
	mu       sync.Mutex
	hooks    []ReloadHook
	revision uint64

	environ  func() map[string]string
	resolve  SourceResolver
	clock    clockwork.Clock
	logger   *slog.Logger
	observer ReloadObserver
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithEnviron replaces the process environment as the settings source.
func WithEnviron(environ func() map[string]string) ManagerOption {
	return func(m *Manager) {
		if environ != nil {
			m.environ = environ
		}
	}
}

// WithStaticEnviron parses from a fixed map. Handy in tests.
func WithStaticEnviron(environ map[string]string) ManagerOption {
	return WithEnviron(func() map[string]string { return maps.Clone(environ) })
}

// WithSourceResolver replaces how DYNAMIC_CONFIG_SOURCE is turned into a Source.
func WithSourceResolver(resolve SourceResolver) ManagerOption {
	return func(m *Manager) {
		if resolve != nil {
			m.resolve = resolve
		}
	}
}

func WithManagerClock(clock clockwork.Clock) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithReloadObserver(observer ReloadObserver) ManagerOption {
	return func(m *Manager) {
		m.observer = observer
	}
}

// NewManager creates a manager with no snapshot. Call Load before Current.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		environ: func() map[string]string { return env.ToMap(os.Environ()) },
		resolve: ResolveSource,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load builds and publishes the first snapshot. It fails fast on invalid
// settings and can be called again to retry.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Load() != nil {
		return nil
	}
	_, err := m.swap(ctx)
	return err
}

// Reload re-reads all settings. On any failure the previous snapshot stays
// active and the error is returned.
func (m *Manager) Reload(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.swap(ctx)
	if m.observer != nil {
		m.observer.ConfigReloaded(err)
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "config reload rejected, keeping previous settings",
			slog.Any("error", err))
		return nil, err
	}

	m.logger.InfoContext(ctx, "config reloaded",
		slog.Uint64("revision", snap.Revision),
		slog.Int("max_sessions", snap.MaxSessions),
		slog.Int("max_requests_hour", snap.MaxRequestsHour),
		slog.Int("max_requests_day", snap.MaxRequestsDay),
		slog.Bool("maintenance_mode", snap.MaintenanceMode))
	return snap, nil
}

// Current returns the active snapshot, or nil before Load succeeded.
// The returned value must be treated as read-only.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// MustCurrent is Current for callers that require a loaded manager.
func (m *Manager) MustCurrent() *Snapshot {
	snap := m.current.Load()
	if snap == nil {
		panic(ErrConfigNotLoaded)
	}
	return snap
}

// OnReload registers a hook run after every successful Load or Reload.
func (m *Manager) OnReload(hook ReloadHook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks = append(m.hooks, hook)
}

// swap builds, validates and publishes a snapshot. Caller must hold mu.
func (m *Manager) swap(ctx context.Context) (*Snapshot, error) {
	snap, err := m.build(ctx)
	if err != nil {
		return nil, err
	}

	m.revision++
	snap.Revision = m.revision
	snap.LoadedAt = m.clock.Now()

	previous := m.current.Swap(snap)
	for _, hook := range m.hooks {
		hook(previous, snap)
	}
	return snap, nil
}

func (m *Manager) build(ctx context.Context) (*Snapshot, error) {
	environment := m.environ()

	base := &Snapshot{}
	if err := Parse(base, WithEnvironment(environment)); err != nil {
		return nil, errors.Join(ErrValidation, err)
	}
	if !base.EnableDynamicConfig {
		return base.clone(), nil
	}

	source, err := m.resolve(ctx, base.DynamicConfigSource)
	if err != nil {
		return nil, err
	}
	data, err := source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	overrides, err := parseOverrides(data)
	if err != nil {
		return nil, err
	}

	merged := maps.Clone(environment)
	if merged == nil {
		merged = make(map[string]string, len(overrides))
	}
	maps.Copy(merged, overrides)

	snap := &Snapshot{}
	if err := Parse(snap, WithEnvironment(merged)); err != nil {
		return nil, errors.Join(ErrValidation, err)
	}
	return snap.clone(), nil
}
