package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StatusSuccess is the label value for successful operations.
const StatusSuccess = "success"

// StatusFailure is the label value for failed operations.
const StatusFailure = "failure"

// Cluster mirror operation label values.
const (
	OpPublish   = "publish"
	OpWithdraw  = "withdraw"
	OpRegister  = "register"
	OpListPeers = "list"
)

// ClusterMetrics holds metrics for cluster membership and announcement mirroring.
type ClusterMetrics struct {
	// Peers is the current number of peer relays with announced paths.
	Peers prometheus.Gauge

	// OperationsTotal counts metadata store operations.
	// Labels: op (publish, withdraw, register, list), status (success, failure)
	OperationsTotal *prometheus.CounterVec
}

// NewClusterMetrics creates cluster metrics registered with the default registry.
func NewClusterMetrics() *ClusterMetrics {
	return NewClusterMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewClusterMetricsWithRegistry creates cluster metrics registered with reg.
func NewClusterMetricsWithRegistry(reg prometheus.Registerer) *ClusterMetrics {
	factory := promauto.With(reg)
	return &ClusterMetrics{
		Peers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "moq_relay",
				Subsystem: "cluster",
				Name:      "peers",
				Help:      "Current number of peer relays announcing paths.",
			},
		),
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "moq_relay",
				Subsystem: "cluster",
				Name:      "operations_total",
				Help:      "Total number of metadata store operations, broken down by operation and status.",
			},
			[]string{"op", "status"},
		),
	}
}

// SetPeers sets the peer gauge.
func (m *ClusterMetrics) SetPeers(n int) {
	m.Peers.Set(float64(n))
}

// RecordOperation records a metadata store operation outcome.
func (m *ClusterMetrics) RecordOperation(op string, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	m.OperationsTotal.WithLabelValues(op, status).Inc()
}
