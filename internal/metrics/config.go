package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConfigMetrics holds Prometheus metrics for configuration reloads.
type ConfigMetrics struct {
	Reloads *prometheus.CounterVec
}

// NewConfigMetrics creates and registers config metrics on the given registry.
func NewConfigMetrics(reg prometheus.Registerer) *ConfigMetrics {
	m := &ConfigMetrics{
		Reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "reloads_total",
			Help:      "Total configuration reloads by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(m.Reloads)
	return m
}

func (m *ConfigMetrics) ConfigReloaded(err error) {
	m.Reloads.WithLabelValues(status(err)).Inc()
}
