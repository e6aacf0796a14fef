// Package metrics provides Prometheus metrics for the relay.
//
// Exposed metrics include:
//   - Routing table activity: announcements, withdrawals, active paths and
//     route lookups (hit/miss), per table
//   - Announcement bus: subscriber count and broadcast transitions
//   - Sessions feeding the routing tables, by origin kind
//   - Cluster mirroring: peer count and metadata operations
//   - Metadata store latency by operation
//
// Metrics are exposed via a dedicated HTTP server on /metrics in Prometheus format.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	routingMetrics := metrics.NewRoutingMetricsWithRegistry(reg, "origins")
//	table := routing.NewRegistry(bus, routing.WithMetrics(routingMetrics))
//
//	srv := metrics.NewServerWithRegistry(":9090", reg)
//	srv.Start()
package metrics
