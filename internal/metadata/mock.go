package metadata

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/eapache/queue"
)

// errStreamClosed is returned by a mock notification stream after Close.
var errStreamClosed = errors.New("metadata: notification stream closed")

// MockStore implements MetadataStore in memory for tests.
// It is exported so that tests in other packages can use it.
//
// Every write is delivered to every open notification stream. Ephemeral
// keys are remembered so that ExpireEphemeral can simulate a lost session.
type MockStore struct {
	mu        sync.RWMutex
	data      map[string]KV
	ephemeral map[string]struct{}
	streams   map[*mockNotificationStream]struct{}
	closed    bool
	nextVer   Version
	closeErr  error
	failNext  error
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		data:      make(map[string]KV),
		ephemeral: make(map[string]struct{}),
		streams:   make(map[*mockNotificationStream]struct{}),
		nextVer:   1,
	}
}

// check returns the error the next operation should fail with.
// Must be called with m.mu held for writing.
func (m *MockStore) check() error {
	if m.closed {
		return ErrStoreClosed
	}
	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}
	return nil
}

func (m *MockStore) Get(_ context.Context, key string) (GetResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return GetResult{}, err
	}
	kv, ok := m.data[key]
	if !ok {
		return GetResult{Exists: false}, nil
	}
	return GetResult{Value: kv.Value, Version: kv.Version, Exists: true}, nil
}

func (m *MockStore) Put(_ context.Context, key string, value []byte, opts ...PutOption) (Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return 0, err
	}

	if expected := ExtractExpectedVersion(opts); expected != nil {
		if err := m.matchVersion(key, *expected); err != nil {
			return 0, err
		}
	}

	delete(m.ephemeral, key)
	return m.write(key, value), nil
}

func (m *MockStore) Delete(_ context.Context, key string, opts ...DeleteOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}

	existing, ok := m.data[key]
	if !ok {
		return nil
	}
	if expected := ExtractDeleteExpectedVersion(opts); expected != nil && existing.Version != *expected {
		return ErrVersionMismatch
	}

	m.remove(key)
	return nil
}

func (m *MockStore) List(_ context.Context, startKey, endKey string, limit int) ([]KV, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return nil, err
	}

	var keys []string
	for k := range m.data {
		if endKey == "" {
			if strings.HasPrefix(k, startKey) {
				keys = append(keys, k)
			}
		} else if k >= startKey && k < endKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	result := make([]KV, len(keys))
	for i, k := range keys {
		result[i] = m.data[k]
	}
	return result, nil
}

func (m *MockStore) PutEphemeral(_ context.Context, key string, value []byte, opts ...EphemeralOption) (Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return 0, err
	}

	expectNotExists, expected := ExtractEphemeralOptions(opts)
	if expectNotExists {
		if _, ok := m.data[key]; ok {
			return 0, ErrVersionMismatch
		}
	}
	if expected != nil {
		if err := m.matchVersion(key, *expected); err != nil {
			return 0, err
		}
	}

	m.ephemeral[key] = struct{}{}
	return m.write(key, value), nil
}

func (m *MockStore) Notifications(_ context.Context) (NotificationStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return nil, err
	}
	s := &mockNotificationStream{
		store: m,
		buf:   queue.New(),
		wake:  make(chan struct{}, 1),
	}
	m.streams[s] = struct{}{}
	return s, nil
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for s := range m.streams {
		s.end()
	}
	m.streams = make(map[*mockNotificationStream]struct{})
	return m.closeErr
}

// ExpireEphemeral deletes every ephemeral key, as if the store session
// that created them had expired, and notifies open streams.
func (m *MockStore) ExpireEphemeral() {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.ephemeral))
	for k := range m.ephemeral {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.remove(k)
	}
}

// IsEphemeral reports whether key currently exists as an ephemeral key.
func (m *MockStore) IsEphemeral(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ephemeral[key]
	return ok
}

// FailNext makes the next operation return err.
func (m *MockStore) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// SimulateNotification delivers n to every open stream without changing
// any stored data.
func (m *MockStore) SimulateNotification(n Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.publish(n)
	}
}

// Len returns the number of stored keys.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// The helpers below must be called with m.mu held for writing.

func (m *MockStore) matchVersion(key string, expected Version) error {
	existing, ok := m.data[key]
	if !ok && expected != 0 {
		return ErrVersionMismatch
	}
	if ok && existing.Version != expected {
		return ErrVersionMismatch
	}
	return nil
}

func (m *MockStore) write(key string, value []byte) Version {
	ver := m.nextVer
	m.nextVer++
	m.data[key] = KV{Key: key, Value: value, Version: ver}
	m.publish(Notification{Key: key, Value: value, Version: ver})
	return ver
}

func (m *MockStore) remove(key string) {
	delete(m.data, key)
	delete(m.ephemeral, key)
	m.publish(Notification{Key: key, Deleted: true})
}

func (m *MockStore) publish(n Notification) {
	for s := range m.streams {
		s.push(n)
	}
}

type mockNotificationStream struct {
	store *MockStore

	mu     sync.Mutex
	buf    *queue.Queue
	ended  bool
	closed bool
	wake   chan struct{}
}

func (s *mockNotificationStream) push(n Notification) {
	s.mu.Lock()
	if !s.closed {
		s.buf.Add(n)
	}
	s.mu.Unlock()
	s.signal()
}

func (s *mockNotificationStream) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.signal()
}

func (s *mockNotificationStream) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *mockNotificationStream) Next(ctx context.Context) (Notification, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return Notification{}, errStreamClosed
		}
		if s.buf.Length() > 0 {
			n := s.buf.Remove().(Notification)
			s.mu.Unlock()
			return n, nil
		}
		if s.ended {
			s.mu.Unlock()
			return Notification{}, ErrStoreClosed
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Notification{}, ctx.Err()
		case <-s.wake:
		}
	}
}

func (s *mockNotificationStream) Close() error {
	s.store.mu.Lock()
	delete(s.store.streams, s)
	s.store.mu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
	return nil
}

var _ MetadataStore = (*MockStore)(nil)
