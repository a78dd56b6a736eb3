package metrics

import "github.com/prometheus/client_golang/prometheus"

// RateLimitMetrics holds Prometheus metrics for admission decisions.
type RateLimitMetrics struct {
	Decisions *prometheus.CounterVec
}

// NewRateLimitMetrics creates and registers rate limit metrics on the given registry.
func NewRateLimitMetrics(reg prometheus.Registerer) *RateLimitMetrics {
	m := &RateLimitMetrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Total admission decisions by result and exceeded scope.",
		}, []string{"result", "scope"}),
	}

	reg.MustRegister(m.Decisions)
	return m
}

func (m *RateLimitMetrics) RequestAdmitted() {
	m.Decisions.WithLabelValues("allowed", "").Inc()
}

func (m *RateLimitMetrics) RequestRejected(scope string) {
	m.Decisions.WithLabelValues("rejected", scope).Inc()
}
