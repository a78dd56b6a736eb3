package metrics

import "github.com/prometheus/client_golang/prometheus"

// SessionMetrics holds Prometheus metrics for session lifecycle events.
type SessionMetrics struct {
	Created     prometheus.Counter
	Rejected    prometheus.Counter
	Destroyed   prometheus.Counter
	Transitions *prometheus.CounterVec
}

// NewSessionMetrics creates and registers session metrics on the given registry.
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		Created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Total sessions created.",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "rejected_total",
			Help:      "Total session creations refused by the session cap.",
		}),
		Destroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "destroyed_total",
			Help:      "Total sessions destroyed explicitly.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Total state transitions by event and target state.",
		}, []string{"event", "to"}),
	}

	reg.MustRegister(m.Created, m.Rejected, m.Destroyed, m.Transitions)
	return m
}

func (m *SessionMetrics) SessionCreated()   { m.Created.Inc() }
func (m *SessionMetrics) SessionRejected()  { m.Rejected.Inc() }
func (m *SessionMetrics) SessionDestroyed() { m.Destroyed.Inc() }

func (m *SessionMetrics) SessionTransitioned(_, event, to string) {
	m.Transitions.WithLabelValues(event, to).Inc()
}
