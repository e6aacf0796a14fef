package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Route lookup result label values.
const (
	RouteHit  = "hit"
	RouteMiss = "miss"
)

// RoutingMetrics holds metrics for the origin routing table.
type RoutingMetrics struct {
	// AnnouncesTotal counts recorded announcements.
	// Labels: origin (local, remote)
	AnnouncesTotal *prometheus.CounterVec

	// UnannouncesTotal counts recorded withdrawals, including no-op ones.
	// Labels: origin (local, remote)
	UnannouncesTotal *prometheus.CounterVec

	// ActivePaths is the number of paths with at least one origin.
	ActivePaths prometheus.Gauge

	// RouteLookupsTotal counts route queries by result.
	// Labels: result (hit, miss)
	RouteLookupsTotal *prometheus.CounterVec
}

// NewRoutingMetrics creates routing metrics registered with the default
// registry. subsystem separates tables when a node runs more than one
// (for example "local" and "origins").
func NewRoutingMetrics(subsystem string) *RoutingMetrics {
	return NewRoutingMetricsWithRegistry(prometheus.DefaultRegisterer, subsystem)
}

// NewRoutingMetricsWithRegistry creates routing metrics registered with reg.
// Useful for testing to avoid conflicts with the default registry.
func NewRoutingMetricsWithRegistry(reg prometheus.Registerer, subsystem string) *RoutingMetrics {
	factory := promauto.With(reg)
	return &RoutingMetrics{
		AnnouncesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "moq_relay",
				Subsystem: subsystem,
				Name:      "announces_total",
				Help:      "Total number of announcements recorded, broken down by origin kind.",
			},
			[]string{"origin"},
		),
		UnannouncesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "moq_relay",
				Subsystem: subsystem,
				Name:      "unannounces_total",
				Help:      "Total number of withdrawals recorded, broken down by origin kind.",
			},
			[]string{"origin"},
		),
		ActivePaths: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "moq_relay",
				Subsystem: subsystem,
				Name:      "active_paths",
				Help:      "Current number of paths with at least one announcing origin.",
			},
		),
		RouteLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "moq_relay",
				Subsystem: subsystem,
				Name:      "route_lookups_total",
				Help:      "Total number of route lookups, broken down by result.",
			},
			[]string{"result"},
		),
	}
}

// RecordAnnounce counts an announcement from an origin of the given kind.
func (m *RoutingMetrics) RecordAnnounce(originKind string) {
	m.AnnouncesTotal.WithLabelValues(originKind).Inc()
}

// RecordUnannounce counts a withdrawal from an origin of the given kind.
func (m *RoutingMetrics) RecordUnannounce(originKind string) {
	m.UnannouncesTotal.WithLabelValues(originKind).Inc()
}

// SetActivePaths sets the active path gauge.
func (m *RoutingMetrics) SetActivePaths(n int) {
	m.ActivePaths.Set(float64(n))
}

// RecordLookup counts a route lookup.
func (m *RoutingMetrics) RecordLookup(found bool) {
	result := RouteMiss
	if found {
		result = RouteHit
	}
	m.RouteLookupsTotal.WithLabelValues(result).Inc()
}
