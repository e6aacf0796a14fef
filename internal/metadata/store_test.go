package metadata

import (
	"context"
	"errors"
	"testing"
	"time"
)

func nextNotification(t *testing.T, s NotificationStream) Notification {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	return n
}

func TestMockStoreGetPut(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	result, err := store.Get(ctx, "/moq/v1/missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if result.Exists {
		t.Error("missing key should not exist")
	}

	ver, err := store.Put(ctx, "/moq/v1/a", []byte("value"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if ver <= 0 {
		t.Errorf("expected positive version, got %d", ver)
	}

	result, err = store.Get(ctx, "/moq/v1/a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !result.Exists || string(result.Value) != "value" || result.Version != ver {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestMockStoreCAS(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	v1, _ := store.Put(ctx, "/k", []byte("1"))

	if _, err := store.Put(ctx, "/k", []byte("2"), WithExpectedVersion(v1+100)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	v2, err := store.Put(ctx, "/k", []byte("2"), WithExpectedVersion(v1))
	if err != nil {
		t.Fatalf("CAS put failed: %v", err)
	}
	if v2 <= v1 {
		t.Errorf("version should increase: %d -> %d", v1, v2)
	}

	// Version 0 means "must not exist".
	if _, err := store.Put(ctx, "/new", []byte("x"), WithExpectedVersion(0)); err != nil {
		t.Fatalf("create with version 0 failed: %v", err)
	}

	if err := store.Delete(ctx, "/k", WithDeleteExpectedVersion(v1)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch on delete, got %v", err)
	}
	if err := store.Delete(ctx, "/k", WithDeleteExpectedVersion(v2)); err != nil {
		t.Fatalf("conditional delete failed: %v", err)
	}
}

func TestMockStoreDeleteIsIdempotent(t *testing.T) {
	store := NewMockStore()
	if err := store.Delete(context.Background(), "/missing"); err != nil {
		t.Fatalf("Delete of missing key failed: %v", err)
	}
}

func TestMockStoreList(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	for _, k := range []string{"/n/c", "/n/a", "/n/b", "/o/a"} {
		store.Put(ctx, k, []byte(k))
	}

	kvs, err := store.List(ctx, "/n/", "", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(kvs) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(kvs))
	}
	for i, want := range []string{"/n/a", "/n/b", "/n/c"} {
		if kvs[i].Key != want {
			t.Errorf("kvs[%d] = %s, want %s", i, kvs[i].Key, want)
		}
	}

	kvs, _ = store.List(ctx, "/n/a", "/n/c", 0)
	if len(kvs) != 2 {
		t.Errorf("range query: expected 2 keys, got %d", len(kvs))
	}

	kvs, _ = store.List(ctx, "/n/", "", 1)
	if len(kvs) != 1 || kvs[0].Key != "/n/a" {
		t.Errorf("limit: unexpected result %+v", kvs)
	}
}

func TestMockStoreEphemeral(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	if _, err := store.PutEphemeral(ctx, "/node", []byte("n1"), WithEphemeralExpectNotExists()); err != nil {
		t.Fatalf("PutEphemeral failed: %v", err)
	}
	if _, err := store.PutEphemeral(ctx, "/node", []byte("n2"), WithEphemeralExpectNotExists()); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch for existing key, got %v", err)
	}
	if !store.IsEphemeral("/node") {
		t.Error("expected /node to be ephemeral")
	}

	store.Put(ctx, "/durable", []byte("d"))
	store.ExpireEphemeral()

	if result, _ := store.Get(ctx, "/node"); result.Exists {
		t.Error("ephemeral key should be gone after expiry")
	}
	if result, _ := store.Get(ctx, "/durable"); !result.Exists {
		t.Error("durable key should survive expiry")
	}
}

func TestMockStoreNotificationsFanOut(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	s1, err := store.Notifications(ctx)
	if err != nil {
		t.Fatalf("Notifications failed: %v", err)
	}
	defer s1.Close()
	s2, _ := store.Notifications(ctx)
	defer s2.Close()

	store.Put(ctx, "/a", []byte("1"))
	store.PutEphemeral(ctx, "/e", []byte("2"))
	store.Delete(ctx, "/a")
	store.ExpireEphemeral()

	for _, s := range []NotificationStream{s1, s2} {
		n := nextNotification(t, s)
		if n.Key != "/a" || n.Deleted || string(n.Value) != "1" {
			t.Errorf("unexpected first notification: %+v", n)
		}
		if n := nextNotification(t, s); n.Key != "/e" || n.Deleted {
			t.Errorf("unexpected second notification: %+v", n)
		}
		if n := nextNotification(t, s); n.Key != "/a" || !n.Deleted {
			t.Errorf("expected delete of /a, got %+v", n)
		}
		if n := nextNotification(t, s); n.Key != "/e" || !n.Deleted {
			t.Errorf("expected expiry of /e, got %+v", n)
		}
	}
}

func TestMockStoreNotificationsOnlyAfterSubscribe(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	store.Put(ctx, "/before", []byte("x"))
	s, _ := store.Notifications(ctx)
	defer s.Close()
	store.Put(ctx, "/after", []byte("y"))

	if n := nextNotification(t, s); n.Key != "/after" {
		t.Errorf("expected /after, got %s", n.Key)
	}
}

func TestMockStoreSimulateNotification(t *testing.T) {
	store := NewMockStore()
	s, _ := store.Notifications(context.Background())
	defer s.Close()

	store.SimulateNotification(Notification{Key: "/x", Deleted: true})
	if n := nextNotification(t, s); n.Key != "/x" || !n.Deleted {
		t.Errorf("unexpected notification: %+v", n)
	}
	if store.Len() != 0 {
		t.Error("SimulateNotification should not change data")
	}
}

func TestMockStoreClose(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()
	s, _ := store.Notifications(ctx)

	store.Close()

	if _, err := store.Get(ctx, "/test"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Get after close should return ErrStoreClosed, got %v", err)
	}
	if _, err := store.Put(ctx, "/test", []byte("value")); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Put after close should return ErrStoreClosed, got %v", err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("stream Next after store close should return ErrStoreClosed, got %v", err)
	}
}

func TestNotificationStreamClose(t *testing.T) {
	store := NewMockStore()
	s, _ := store.Notifications(context.Background())
	s.Close()

	store.Put(context.Background(), "/a", []byte("1"))
	if _, err := s.Next(context.Background()); err == nil {
		t.Error("Next after Close should fail")
	}
}

func TestNotificationStreamHonorsContext(t *testing.T) {
	store := NewMockStore()
	s, _ := store.Notifications(context.Background())
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestErrors(t *testing.T) {
	errs := []error{
		ErrKeyNotFound,
		ErrVersionMismatch,
		ErrSessionExpired,
		ErrStoreClosed,
	}

	for i, e1 := range errs {
		if e1 == nil {
			t.Errorf("Error %d should not be nil", i)
		}
		for j, e2 := range errs {
			if i != j && errors.Is(e1, e2) {
				t.Errorf("Errors %d and %d should be distinct", i, j)
			}
		}
	}
}

func TestExtractOptions(t *testing.T) {
	if v := ExtractExpectedVersion(nil); v != nil {
		t.Errorf("expected nil, got %v", *v)
	}
	if v := ExtractExpectedVersion([]PutOption{WithExpectedVersion(7)}); v == nil || *v != 7 {
		t.Errorf("expected 7, got %v", v)
	}
	notExists, v := ExtractEphemeralOptions([]EphemeralOption{WithEphemeralExpectNotExists()})
	if !notExists || v != nil {
		t.Errorf("unexpected ephemeral options: %v %v", notExists, v)
	}
}
