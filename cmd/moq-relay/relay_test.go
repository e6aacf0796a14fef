package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moqlab/relay/internal/announce"
	"github.com/moqlab/relay/internal/config"
	"github.com/moqlab/relay/internal/logging"
	"github.com/moqlab/relay/internal/metadata"
	"github.com/moqlab/relay/internal/origin"
	"github.com/moqlab/relay/internal/server"
)

func testConfig(nodeID string) *config.Config {
	cfg := config.Default()
	cfg.ClusterID = "c1"
	cfg.Relay.NodeID = nodeID
	cfg.Observability.HealthAddr = "127.0.0.1:0"
	cfg.Observability.MetricsAddr = "127.0.0.1:0"
	return cfg
}

type runningRelay struct {
	*Relay
	cancel context.CancelFunc
	errCh  chan error
}

func startRelay(t *testing.T, opts RelayOptions) *runningRelay {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	r, err := NewRelay(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rr := &runningRelay{Relay: r, cancel: cancel, errCh: make(chan error, 1)}
	go func() { rr.errCh <- r.Start(ctx) }()

	select {
	case <-r.Up():
	case err := <-rr.errCh:
		t.Fatalf("relay exited before listening: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not start")
	}
	return rr
}

func (rr *runningRelay) stop(t *testing.T) {
	t.Helper()
	rr.cancel()
	select {
	case err := <-rr.errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rr.Shutdown(ctx))
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRelayStandalone(t *testing.T) {
	rr := startRelay(t, RelayOptions{Config: testConfig("relay-a")})
	base := "http://" + rr.HealthAddr()

	require.Eventually(t, func() bool {
		return get(t, base+"/readyz").StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, http.StatusOK, get(t, base+"/healthz").StatusCode)

	// A publisher announces on the node; the routes endpoint shows it.
	pub := announce.NewProducer()
	go rr.Node().Publish(context.Background(), origin.NewSessionID(), pub.Subscribe(announce.All()))
	pub.Announce("/room/42")
	require.Eventually(t, func() bool {
		_, ok := rr.Node().Route("/room/42")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	var doc struct {
		Tables map[string][]struct {
			Path  string `json:"path"`
			Route string `json:"route"`
		} `json:"tables"`
	}
	resp := get(t, base+server.RoutesPattern)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Len(t, doc.Tables["origins"], 1)
	assert.Equal(t, "/room/42", doc.Tables["origins"][0].Path)
	assert.Equal(t, "local", doc.Tables["origins"][0].Route)

	pub.Close()
	rr.stop(t)
}

func TestRelayClusterWithStore(t *testing.T) {
	store := metadata.NewMockStore()

	cfgA := testConfig("relay-a")
	cfgA.Cluster.Enabled = true
	a := startRelay(t, RelayOptions{Config: cfgA, Store: store})

	cfgB := testConfig("relay-b")
	cfgB.Cluster.Enabled = true
	b := startRelay(t, RelayOptions{Config: cfgB, Store: store})

	pub := announce.NewProducer()
	go a.Node().Publish(context.Background(), origin.NewSessionID(), pub.Subscribe(announce.All()))
	pub.Announce("/show")

	require.Eventually(t, func() bool {
		route, err := b.Node().Resolve(context.Background(), "/show")
		return err == nil && !route.Local() && route.Node.NodeID == "relay-a"
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return get(t, "http://"+b.HealthAddr()+"/readyz").StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	pub.Close()
	// Both nodes stop before either Shutdown closes the shared store.
	b.cancel()
	require.NoError(t, <-b.errCh)
	a.cancel()
	require.NoError(t, <-a.errCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Shutdown(ctx))
	require.NoError(t, a.Shutdown(ctx))
}

func TestRelayStartTwice(t *testing.T) {
	rr := startRelay(t, RelayOptions{Config: testConfig("relay-a")})
	assert.Error(t, rr.Start(context.Background()))
	rr.stop(t)
}

func TestNewRelayRequiresConfig(t *testing.T) {
	_, err := NewRelay(RelayOptions{})
	assert.Error(t, err)
}
