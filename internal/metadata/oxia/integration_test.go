//go:build integration

package oxia

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moqlab/relay/internal/metadata"
	"github.com/moqlab/relay/internal/metadata/keys"
)

func TestIntegrationGetPut(t *testing.T) {
	store := NewTestStore(t, StartTestServer(t))
	ctx := context.Background()

	key := keys.ClusterKeyPath("it")
	version, err := store.Put(ctx, key, []byte("v1"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if version < 1 {
		t.Errorf("expected version >= 1, got %d", version)
	}

	result, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !result.Exists || string(result.Value) != "v1" || result.Version != version {
		t.Errorf("unexpected result: %+v", result)
	}

	missing, err := store.Get(ctx, keys.HealthCheckKey)
	if err != nil {
		t.Fatalf("Get of missing key failed: %v", err)
	}
	if missing.Exists {
		t.Error("health key should not exist")
	}
}

func TestIntegrationCAS(t *testing.T) {
	store := NewTestStore(t, StartTestServer(t))
	ctx := context.Background()
	key := keys.ClusterKeyPath("cas")

	v1, err := store.Put(ctx, key, []byte("1"), metadata.WithExpectedVersion(0))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := store.Put(ctx, key, []byte("x"), metadata.WithExpectedVersion(0)); !errors.Is(err, metadata.ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	if _, err := store.Put(ctx, key, []byte("2"), metadata.WithExpectedVersion(v1)); err != nil {
		t.Fatalf("CAS update failed: %v", err)
	}
	if err := store.Delete(ctx, key, metadata.WithDeleteExpectedVersion(v1)); !errors.Is(err, metadata.ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch on delete, got %v", err)
	}
	if err := store.Delete(ctx, "/moq/v1/never-written"); err != nil {
		t.Fatalf("Delete of missing key failed: %v", err)
	}
}

func TestIntegrationListOrigins(t *testing.T) {
	store := NewTestStore(t, StartTestServer(t))
	ctx := context.Background()

	paths := []string{"/room/1", "/room/2", "/lobby"}
	for _, p := range paths {
		if _, err := store.PutEphemeral(ctx, keys.OriginKeyPath("c1", "n1", p), nil); err != nil {
			t.Fatalf("PutEphemeral(%s) failed: %v", p, err)
		}
	}
	store.PutEphemeral(ctx, keys.OriginKeyPath("c1", "n2", "/other"), nil)

	kvs, err := store.List(ctx, keys.NodeOriginsPrefix("c1", "n1"), "", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(kvs) != len(paths) {
		t.Fatalf("expected %d origin keys, got %d", len(paths), len(kvs))
	}
	for _, kv := range kvs {
		_, node, _, err := keys.ParseOriginKey(kv.Key)
		if err != nil {
			t.Fatalf("ParseOriginKey(%s) failed: %v", kv.Key, err)
		}
		if node != "n1" {
			t.Errorf("listed key from node %s", node)
		}
	}
}

func TestIntegrationEphemeralDeletedOnSessionClose(t *testing.T) {
	server := StartTestServer(t)
	ctx := context.Background()

	owner := NewTestStore(t, server)
	key := keys.NodeKeyPath("c1", "crashy")
	if _, err := owner.PutEphemeral(ctx, key, []byte("{}"), metadata.WithEphemeralExpectNotExists()); err != nil {
		t.Fatalf("PutEphemeral failed: %v", err)
	}

	observer := NewTestStore(t, server)
	owner.Close()

	deadline := time.Now().Add(minSessionTimeout + 5*time.Second)
	for time.Now().Before(deadline) {
		result, err := observer.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !result.Exists {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatal("ephemeral key should be deleted after the owning session closes")
}

func TestIntegrationNotifications(t *testing.T) {
	store := NewTestStore(t, StartTestServer(t))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := store.Notifications(ctx)
	if err != nil {
		t.Fatalf("failed to get notifications: %v", err)
	}
	defer stream.Close()

	key := keys.OriginKeyPath("c1", "n1", "/room/42")
	go func() {
		time.Sleep(100 * time.Millisecond)
		store.PutEphemeral(context.Background(), key, nil)
		store.Delete(context.Background(), key)
	}()

	created, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("failed to receive notification: %v", err)
	}
	if created.Key != key || created.Deleted {
		t.Errorf("unexpected notification: %+v", created)
	}

	deleted, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("failed to receive notification: %v", err)
	}
	if deleted.Key != key || !deleted.Deleted {
		t.Errorf("expected delete of %s, got %+v", key, deleted)
	}
}
