package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RedisMetrics holds Prometheus metrics for Redis commands and the circuit breaker.
type RedisMetrics struct {
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	DialErrors      prometheus.Counter
	BreakerState    prometheus.Gauge
	BreakerChanges  *prometheus.CounterVec
}

// NewRedisMetrics creates and registers Redis metrics on the given registry.
func NewRedisMetrics(reg prometheus.Registerer) *RedisMetrics {
	m := &RedisMetrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "commands_total",
			Help:      "Total Redis commands by command and status.",
		}, []string{"command", "status"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "command_duration_seconds",
			Help:      "Redis command duration in seconds.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"command"}),
		DialErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "dial_errors_total",
			Help:      "Total Redis connection errors.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		BreakerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Circuit breaker state transitions by new state.",
		}, []string{"state"}),
	}

	reg.MustRegister(m.Commands, m.CommandDuration, m.DialErrors, m.BreakerState, m.BreakerChanges)
	return m
}

func (m *RedisMetrics) ObserveCommand(name string, d time.Duration, err error) {
	m.Commands.WithLabelValues(name, status(err)).Inc()
	m.CommandDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *RedisMetrics) ObserveDialError() {
	m.DialErrors.Inc()
}

func (m *RedisMetrics) BreakerStateChanged(state string) {
	m.BreakerChanges.WithLabelValues(state).Inc()
	switch state {
	case "closed":
		m.BreakerState.Set(0)
	case "half-open":
		m.BreakerState.Set(1)
	case "open":
		m.BreakerState.Set(2)
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
