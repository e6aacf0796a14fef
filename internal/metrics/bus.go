package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusMetrics holds metrics for an announcement bus.
type BusMetrics struct {
	// Subscribers is the current number of live subscriptions.
	Subscribers prometheus.Gauge

	// EventsTotal counts transitions broadcast to subscribers.
	// Labels: kind (active, ended)
	EventsTotal *prometheus.CounterVec
}

// NewBusMetrics creates bus metrics registered with the default registry.
func NewBusMetrics(subsystem string) *BusMetrics {
	return NewBusMetricsWithRegistry(prometheus.DefaultRegisterer, subsystem)
}

// NewBusMetricsWithRegistry creates bus metrics registered with reg.
func NewBusMetricsWithRegistry(reg prometheus.Registerer, subsystem string) *BusMetrics {
	factory := promauto.With(reg)
	return &BusMetrics{
		Subscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "moq_relay",
				Subsystem: subsystem,
				Name:      "subscribers",
				Help:      "Current number of announcement subscribers.",
			},
		),
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "moq_relay",
				Subsystem: subsystem,
				Name:      "events_total",
				Help:      "Total number of path transitions broadcast, broken down by kind.",
			},
			[]string{"kind"},
		),
	}
}

// SubscriberAdded increments the subscriber gauge.
func (m *BusMetrics) SubscriberAdded() {
	m.Subscribers.Inc()
}

// SubscriberRemoved decrements the subscriber gauge.
func (m *BusMetrics) SubscriberRemoved() {
	m.Subscribers.Dec()
}

// RecordEvent counts a broadcast transition.
func (m *BusMetrics) RecordEvent(kind string) {
	m.EventsTotal.WithLabelValues(kind).Inc()
}
