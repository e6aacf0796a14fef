package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRoutingMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRoutingMetricsWithRegistry(reg, "origins")

	m.RecordAnnounce("local")
	m.RecordAnnounce("remote")
	m.RecordAnnounce("remote")
	m.RecordUnannounce("remote")
	m.SetActivePaths(2)
	m.RecordLookup(true)
	m.RecordLookup(false)
	m.RecordLookup(false)

	if got := testutil.ToFloat64(m.AnnouncesTotal.WithLabelValues("remote")); got != 2 {
		t.Errorf("remote announces = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.UnannouncesTotal.WithLabelValues("remote")); got != 1 {
		t.Errorf("remote unannounces = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ActivePaths); got != 2 {
		t.Errorf("active paths = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RouteLookupsTotal.WithLabelValues(RouteMiss)); got != 2 {
		t.Errorf("misses = %v, want 2", got)
	}
}

func TestRoutingMetrics_SubsystemsCoexist(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRoutingMetricsWithRegistry(reg, "local")
	NewRoutingMetricsWithRegistry(reg, "origins")

	defer func() {
		if recover() == nil {
			t.Error("expected duplicate subsystem registration to panic")
		}
	}()
	NewRoutingMetricsWithRegistry(reg, "local")
}

func TestBusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBusMetricsWithRegistry(reg, "origins_bus")

	m.SubscriberAdded()
	m.SubscriberAdded()
	m.SubscriberRemoved()
	m.RecordEvent("active")
	m.RecordEvent("ended")

	metric := &dto.Metric{}
	if err := m.Subscribers.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if got := metric.Gauge.GetValue(); got != 1 {
		t.Errorf("subscribers = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues("ended")); got != 1 {
		t.Errorf("ended events = %v, want 1", got)
	}
}

func TestSessionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSessionMetricsWithRegistry(reg)

	m.SessionStarted("local")
	m.SessionStarted("local")
	m.SessionEnded("local", nil)
	m.SessionStarted("remote")
	m.SessionEnded("remote", errors.New("stream reset"))

	if got := testutil.ToFloat64(m.ActiveSessions.WithLabelValues("local")); got != 1 {
		t.Errorf("active local = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ActiveSessions.WithLabelValues("remote")); got != 0 {
		t.Errorf("active remote = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.SessionsTotal.WithLabelValues("remote", StatusFailure)); got != 1 {
		t.Errorf("remote failures = %v, want 1", got)
	}
}

func TestClusterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClusterMetricsWithRegistry(reg)

	m.SetPeers(3)
	m.RecordOperation(OpPublish, nil)
	m.RecordOperation(OpPublish, errors.New("boom"))
	m.RecordOperation(OpWithdraw, nil)

	if got := testutil.ToFloat64(m.Peers); got != 3 {
		t.Errorf("peers = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues(OpPublish, StatusFailure)); got != 1 {
		t.Errorf("publish failures = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.OperationsTotal); got != 3 {
		t.Errorf("series = %d, want 3", got)
	}
}

func TestMetadataMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetadataMetricsWithRegistry(reg)

	m.RecordOperation(OpPutEphemeral, 0.002, true)
	m.RecordOperation(OpList, 0.010, false)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues(OpPutEphemeral, StatusSuccess)); got != 1 {
		t.Errorf("put_ephemeral successes = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.LatencyHistogram); got != 2 {
		t.Errorf("histogram series = %d, want 2", got)
	}
}
