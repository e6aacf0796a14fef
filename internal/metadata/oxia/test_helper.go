//go:build integration

package oxia

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/oxia-db/oxia/oxiad/dataserver"
)

// ExternalAddressEnv names an Oxia server to use instead of an embedded one.
const ExternalAddressEnv = "OXIA_SERVICE_ADDRESS"

// minSessionTimeout is the shortest session timeout Oxia accepts.
const minSessionTimeout = 5 * time.Second

// TestServer is an Oxia server for tests: either an embedded standalone
// server or a wrapper around an external one.
type TestServer struct {
	standalone *dataserver.Standalone
	addr       string
}

// Addr returns the service address of the test server.
func (s *TestServer) Addr() string {
	return s.addr
}

// Close shuts down an embedded server. It does nothing for external ones.
func (s *TestServer) Close() error {
	if s.standalone == nil {
		return nil
	}
	return s.standalone.Close()
}

// StartTestServer starts an embedded Oxia standalone server, or uses the
// one named by OXIA_SERVICE_ADDRESS. The server is closed via t.Cleanup.
func StartTestServer(t *testing.T) *TestServer {
	t.Helper()

	if addr := os.Getenv(ExternalAddressEnv); addr != "" {
		t.Logf("Using external Oxia server at %s", addr)
		return &TestServer{addr: addr}
	}

	standalone, err := dataserver.NewStandalone(dataserver.NewTestConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("failed to start Oxia standalone server: %v", err)
	}

	server := &TestServer{
		standalone: standalone,
		addr:       standalone.ServiceAddr(),
	}
	t.Cleanup(func() {
		server.Close()
	})

	t.Logf("Started embedded Oxia server at %s", server.addr)
	return server
}

// NewTestStore connects a Store to server with a short session timeout.
// The store is closed via t.Cleanup.
func NewTestStore(t *testing.T, server *TestServer) *Store {
	t.Helper()

	cfg := DefaultConfig(server.Addr(), "default")
	cfg.RequestTimeout = 10 * time.Second
	cfg.SessionTimeout = minSessionTimeout

	store, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

var _ io.Closer = (*TestServer)(nil)
