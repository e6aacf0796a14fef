package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SessionMetrics tracks sessions whose announce streams feed a routing table.
type SessionMetrics struct {
	// ActiveSessions is the number of announce streams currently being served.
	// Labels: origin (local, remote)
	ActiveSessions *prometheus.GaugeVec

	// SessionsTotal counts finished sessions by how they ended.
	// Labels: origin, status (success, failure)
	SessionsTotal *prometheus.CounterVec
}

// NewSessionMetrics creates session metrics registered with the default registry.
func NewSessionMetrics() *SessionMetrics {
	return NewSessionMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewSessionMetricsWithRegistry creates session metrics registered with reg.
func NewSessionMetricsWithRegistry(reg prometheus.Registerer) *SessionMetrics {
	factory := promauto.With(reg)
	return &SessionMetrics{
		ActiveSessions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "moq_relay",
				Subsystem: "sessions",
				Name:      "active",
				Help:      "Current number of sessions whose announcements are being routed.",
			},
			[]string{"origin"},
		),
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "moq_relay",
				Subsystem: "sessions",
				Name:      "total",
				Help:      "Total number of finished sessions, broken down by origin kind and status.",
			},
			[]string{"origin", "status"},
		),
	}
}

// SessionStarted increments the active gauge for the origin kind.
func (m *SessionMetrics) SessionStarted(originKind string) {
	m.ActiveSessions.WithLabelValues(originKind).Inc()
}

// SessionEnded decrements the active gauge and counts the outcome.
func (m *SessionMetrics) SessionEnded(originKind string, err error) {
	m.ActiveSessions.WithLabelValues(originKind).Dec()
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	m.SessionsTotal.WithLabelValues(originKind, status).Inc()
}
