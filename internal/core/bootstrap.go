package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/supportcore/internal/metrics"
	"github.com/dmitrymomot/supportcore/pkg/config"
	"github.com/dmitrymomot/supportcore/pkg/logger"
	"github.com/dmitrymomot/supportcore/pkg/redis"
)

// Settings are the process-level settings that cannot change at runtime.
type Settings struct {
	Redis  redis.Config
	Logger logger.Config
}

// LoadSettings parses Settings from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := config.Load(&s.Redis); err != nil {
		return Settings{}, err
	}
	if err := config.Load(&s.Logger); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Runtime is a fully wired Core together with the resources it owns.
type Runtime struct {
	*Core

	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Set
	Client   *goredis.Client
	Breaker  *redis.CircuitBreakerHook
}

// RuntimeOption tunes Open.
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	logger        *slog.Logger
	configOptions []config.ManagerOption
	coreOptions   []Option
}

// WithRuntimeLogger replaces the logger built from Settings.Logger.
func WithRuntimeLogger(logger *slog.Logger) RuntimeOption {
	return func(o *runtimeOptions) {
		o.logger = logger
	}
}

// WithConfigOptions passes extra options to the configuration manager.
func WithConfigOptions(opts ...config.ManagerOption) RuntimeOption {
	return func(o *runtimeOptions) {
		o.configOptions = append(o.configOptions, opts...)
	}
}

// WithCoreOptions passes extra options to New.
func WithCoreOptions(opts ...Option) RuntimeOption {
	return func(o *runtimeOptions) {
		o.coreOptions = append(o.coreOptions, opts...)
	}
}

// Open connects to Redis, loads the runtime configuration and builds a Core
// reporting to a fresh metrics registry. Invalid configuration or an
// unreachable Redis fails fast.
func Open(ctx context.Context, settings Settings, opts ...RuntimeOption) (*Runtime, error) {
	o := &runtimeOptions{}
	for _, opt := range opts {
		opt(o)
	}
	log := o.logger
	if log == nil {
		log = logger.NewFromConfig(settings.Logger)
	}

	registry := metrics.NewRegistry()
	set := metrics.NewSet(registry)

	breaker := redis.NewCircuitBreakerHookFromConfig(settings.Redis,
		redis.WithBreakerLogger(log),
		redis.WithBreakerObserver(set.Redis),
	)
	client, err := redis.Connect(ctx, settings.Redis, breaker, redis.NewMetricsHook(set.Redis))
	if err != nil {
		return nil, err
	}

	manager := config.NewManager(append([]config.ManagerOption{
		config.WithManagerLogger(log),
		config.WithReloadObserver(set.Config),
	}, o.configOptions...)...)
	if err := manager.Load(ctx); err != nil {
		return nil, errors.Join(err, client.Close())
	}

	c, err := New(manager, redis.NewStore(client, redis.WithConfig(settings.Redis)), append([]Option{
		WithLogger(log),
		WithMetrics(set),
	}, o.coreOptions...)...)
	if err != nil {
		return nil, errors.Join(err, client.Close())
	}

	return &Runtime{
		Core:     c,
		Logger:   log,
		Registry: registry,
		Metrics:  set,
		Client:   client,
		Breaker:  breaker,
	}, nil
}

// Healthcheck pings Redis through the circuit breaker.
func (r *Runtime) Healthcheck(ctx context.Context) error {
	return redis.Healthcheck(r.Client)(ctx)
}

// MetricsHandler serves the runtime's collectors in the Prometheus text format.
func (r *Runtime) MetricsHandler() http.Handler {
	return metrics.Handler(r.Registry)
}

// Close releases the Redis connection pool.
func (r *Runtime) Close() error {
	return r.Client.Close()
}
