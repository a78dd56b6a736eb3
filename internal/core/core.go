// Package core wires the configuration, session, rate limit and cache
// managers to one store and runs the admission pipeline for inbound events.
package core

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/supportcore/internal/metrics"
	"github.com/dmitrymomot/supportcore/pkg/cache"
	"github.com/dmitrymomot/supportcore/pkg/config"
	"github.com/dmitrymomot/supportcore/pkg/kvstore"
	"github.com/dmitrymomot/supportcore/pkg/logger"
	"github.com/dmitrymomot/supportcore/pkg/ratelimit"
	"github.com/dmitrymomot/supportcore/pkg/session"
)

// Core is the state and admission layer used by message handlers.
type Core struct {
	config   *config.Manager
	store    kvstore.Store
	sessions *session.Manager
	limiter  *ratelimit.Limiter
	cache    *cache.Manager
	logger   *slog.Logger
}

// Option configures Core.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	clock      clockwork.Clock
	metrics    *metrics.Set
	instanceID string
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMetrics reports every component to the given collectors.
func WithMetrics(set *metrics.Set) Option {
	return func(o *options) {
		o.metrics = set
	}
}

// WithInstanceID identifies this process for the instance session cap scope.
func WithInstanceID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.instanceID = id
		}
	}
}

// New builds the managers. cfg must already be loaded; every manager reads
// the current snapshot on each call, so a reload applies to the next request.
func New(cfg *config.Manager, store kvstore.Store, opts ...Option) (*Core, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	if cfg == nil || cfg.Current() == nil {
		return nil, config.ErrConfigNotLoaded
	}

	o := &options{
		logger:     slog.Default(),
		clock:      clockwork.NewRealClock(),
		instanceID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(o)
	}

	sessionOpts := []session.Option{
		session.WithConfigFunc(func() session.Config { return SessionConfig(cfg.MustCurrent()) }),
		session.WithInstanceID(o.instanceID),
		session.WithClock(o.clock),
		session.WithLogger(o.logger),
	}
	limiterOpts := []ratelimit.Option{
		ratelimit.WithLimitsFunc(func() ratelimit.Limits { return RateLimits(cfg.MustCurrent()) }),
		ratelimit.WithClock(o.clock),
		ratelimit.WithLogger(o.logger),
	}
	cacheOpts := []cache.Option{
		cache.WithConfigFunc(func() cache.Config { return CacheConfig(cfg.MustCurrent()) }),
		cache.WithClock(o.clock),
		cache.WithLogger(o.logger),
	}
	if o.metrics != nil {
		sessionOpts = append(sessionOpts, session.WithObserver(o.metrics.Session))
		limiterOpts = append(limiterOpts, ratelimit.WithObserver(o.metrics.RateLimit))
		cacheOpts = append(cacheOpts, cache.WithObserver(o.metrics.Cache))
	}

	c := &Core{
		config:   cfg,
		store:    store,
		sessions: session.New(store, sessionOpts...),
		limiter:  ratelimit.New(store, limiterOpts...),
		cache:    cache.New(store, cacheOpts...),
		logger:   o.logger.With(logger.Component("core")),
	}
	cfg.OnReload(c.logReload)
	return c, nil
}

func (c *Core) Sessions() *session.Manager  { return c.sessions }
func (c *Core) Limiter() *ratelimit.Limiter { return c.limiter }
func (c *Core) Cache() *cache.Manager       { return c.cache }
func (c *Core) Config() *config.Manager     { return c.config }
func (c *Core) Store() kvstore.Store        { return c.store }

// Reload re-reads the configuration. On failure the previous settings stay active.
func (c *Core) Reload(ctx context.Context) (*config.Snapshot, error) {
	return c.config.Reload(ctx)
}

func (c *Core) logReload(previous, current *config.Snapshot) {
	if previous == nil || previous.MaintenanceMode == current.MaintenanceMode {
		return
	}
	if current.MaintenanceMode {
		c.logger.Warn("maintenance mode enabled, new requests are rejected")
		return
	}
	c.logger.Info("maintenance mode disabled")
}

// SessionConfig maps a snapshot to session limits.
func SessionConfig(s *config.Snapshot) session.Config {
	return session.Config{
		MaxSessions: s.MaxSessions,
		CapScope:    session.CapScope(s.SessionCapScope),
		Timeout:     s.SessionTTL(),
		AuthTTL:     s.AuthTTLDuration(),
	}
}

// RateLimits maps a snapshot to rate limit quotas.
func RateLimits(s *config.Snapshot) ratelimit.Limits {
	return ratelimit.Limits{Hour: s.MaxRequestsHour, Day: s.MaxRequestsDay}
}

// CacheConfig maps a snapshot to cache bounds.
func CacheConfig(s *config.Snapshot) cache.Config {
	return cache.Config{Size: s.CacheSize, TTL: s.CacheTTLDuration()}
}
