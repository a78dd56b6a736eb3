package redis

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/redis/go-redis/v9"
)

// CircuitBreakerHook fails Redis calls fast while the server is unhealthy.
// Once the breaker opens, commands return ErrCircuitOpen without touching the
// network until the delay elapses and a probe succeeds.
type CircuitBreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ redis.Hook = (*CircuitBreakerHook)(nil)

// StateObserver receives breaker state changes.
type StateObserver interface {
	BreakerStateChanged(state string)
}

// BreakerOption configures a CircuitBreakerHook.
type BreakerOption func(*breakerOptions)

type breakerOptions struct {
	failureThreshold uint
	delay            time.Duration
	logger           *slog.Logger
	observer         StateObserver
}

// WithBreakerThreshold sets the number of consecutive failures that open the circuit.
func WithBreakerThreshold(n uint) BreakerOption {
	return func(o *breakerOptions) {
		if n > 0 {
			o.failureThreshold = n
		}
	}
}

// WithBreakerDelay sets how long the circuit stays open before a probe is allowed.
func WithBreakerDelay(d time.Duration) BreakerOption {
	return func(o *breakerOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithBreakerLogger sets the logger used for state changes.
func WithBreakerLogger(logger *slog.Logger) BreakerOption {
	return func(o *breakerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBreakerObserver reports state changes to a metrics sink.
func WithBreakerObserver(observer StateObserver) BreakerOption {
	return func(o *breakerOptions) {
		o.observer = observer
	}
}

// NewCircuitBreakerHook creates a hook. Defaults: 5 consecutive failures open the
// circuit, it stays open 30s, one successful probe closes it.
func NewCircuitBreakerHook(opts ...BreakerOption) *CircuitBreakerHook {
	o := breakerOptions{
		failureThreshold: 5,
		delay:            30 * time.Second,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(o.failureThreshold).
		WithDelay(o.delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			o.logger.Warn("redis circuit breaker state changed",
				slog.String("component", "redis"),
				slog.String("from", e.OldState.String()),
				slog.String("to", e.NewState.String()),
			)
			if o.observer != nil {
				o.observer.BreakerStateChanged(e.NewState.String())
			}
		}).
		Build()

	return &CircuitBreakerHook{cb: cb}
}

// NewCircuitBreakerHookFromConfig applies the breaker settings of cfg.
func NewCircuitBreakerHookFromConfig(cfg Config, opts ...BreakerOption) *CircuitBreakerHook {
	base := []BreakerOption{
		WithBreakerThreshold(cfg.BreakerFailureThreshold),
		WithBreakerDelay(cfg.BreakerDelay),
	}
	return NewCircuitBreakerHook(append(base, opts...)...)
}

func (h *CircuitBreakerHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, errors.Join(ErrCircuitOpen, circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		h.record(err)
		return conn, err
	}
}

func (h *CircuitBreakerHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			err := errors.Join(ErrCircuitOpen, circuitbreaker.ErrOpen)
			cmd.SetErr(err)
			return err
		}
		err := next(ctx, cmd)
		h.record(err)
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			err := errors.Join(ErrCircuitOpen, circuitbreaker.ErrOpen)
			for _, cmd := range cmds {
				cmd.SetErr(err)
			}
			return err
		}
		err := next(ctx, cmds)
		h.record(err)
		return err
	}
}

// State returns the current breaker state.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}

// record counts server and network failures only. A missing key or an
// EVALSHA cache miss is a healthy answer.
func (h *CircuitBreakerHook) record(err error) {
	switch {
	case err == nil, errors.Is(err, redis.Nil), redis.HasErrorPrefix(err, "NOSCRIPT"):
		h.cb.RecordSuccess()
	default:
		h.cb.RecordError(err)
	}
}
