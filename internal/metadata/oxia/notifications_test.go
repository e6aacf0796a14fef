package oxia

import (
	"context"
	"errors"
	"testing"
	"time"

	oxiaclient "github.com/oxia-db/oxia/oxia"

	"github.com/moqlab/relay/internal/metadata"
)

// mockNotifications implements oxiaclient.Notifications for testing.
type mockNotifications struct {
	ch       chan *oxiaclient.Notification
	closed   bool
	closeErr error
}

func newMockNotifications() *mockNotifications {
	return &mockNotifications{
		ch: make(chan *oxiaclient.Notification, 10),
	}
}

func (m *mockNotifications) Ch() <-chan *oxiaclient.Notification {
	return m.ch
}

func (m *mockNotifications) Close() error {
	m.closed = true
	return m.closeErr
}

func TestConvertNotification(t *testing.T) {
	tests := []struct {
		name     string
		input    *oxiaclient.Notification
		expected metadata.Notification
	}{
		{
			name: "key created",
			input: &oxiaclient.Notification{
				Type:      oxiaclient.KeyCreated,
				Key:       "/moq/v1/cluster/c1/nodes/n1",
				VersionId: 0,
			},
			expected: metadata.Notification{
				Key:     "/moq/v1/cluster/c1/nodes/n1",
				Version: 1,
			},
		},
		{
			name: "key modified",
			input: &oxiaclient.Notification{
				Type:      oxiaclient.KeyModified,
				Key:       "/moq/v1/cluster/c1/nodes/n1",
				VersionId: 41,
			},
			expected: metadata.Notification{
				Key:     "/moq/v1/cluster/c1/nodes/n1",
				Version: 42,
			},
		},
		{
			name: "key deleted",
			input: &oxiaclient.Notification{
				Type:      oxiaclient.KeyDeleted,
				Key:       "/moq/v1/cluster/c1/origins/n1/%2Fa",
				VersionId: -1,
			},
			expected: metadata.Notification{
				Key:     "/moq/v1/cluster/c1/origins/n1/%2Fa",
				Version: metadata.NoVersion,
				Deleted: true,
			},
		},
		{
			name: "key range deleted",
			input: &oxiaclient.Notification{
				Type:        oxiaclient.KeyRangeRangeDeleted,
				Key:         "/moq/v1/cluster/c1/origins/n1/",
				VersionId:   -1,
				KeyRangeEnd: "/moq/v1/cluster/c1/origins/n1//",
			},
			expected: metadata.Notification{
				Key:     "/moq/v1/cluster/c1/origins/n1/",
				Version: metadata.NoVersion,
				Deleted: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := convertNotification(tt.input)
			if result.Key != tt.expected.Key {
				t.Errorf("key mismatch: got %q, want %q", result.Key, tt.expected.Key)
			}
			if result.Version != tt.expected.Version {
				t.Errorf("version mismatch: got %d, want %d", result.Version, tt.expected.Version)
			}
			if result.Deleted != tt.expected.Deleted {
				t.Errorf("deleted mismatch: got %v, want %v", result.Deleted, tt.expected.Deleted)
			}
		})
	}
}

func TestNotificationStreamNextInOrder(t *testing.T) {
	mock := newMockNotifications()
	ctx := context.Background()
	stream := &notificationStream{notifications: mock, ctx: ctx}
	defer stream.Close()

	for i := 0; i < 5; i++ {
		mock.ch <- &oxiaclient.Notification{
			Type:      oxiaclient.KeyModified,
			Key:       "/moq/v1/test",
			VersionId: int64(i),
		}
	}

	for i := 0; i < 5; i++ {
		n, err := stream.Next(ctx)
		if err != nil {
			t.Fatalf("Next %d failed: %v", i, err)
		}
		if n.Version != metadata.Version(i+1) {
			t.Errorf("notification %d: got version %d, want %d", i, n.Version, i+1)
		}
	}
}

func TestNotificationStreamNextContextCancelled(t *testing.T) {
	stream := &notificationStream{notifications: newMockNotifications(), ctx: context.Background()}
	defer stream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := stream.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNotificationStreamNextStreamContextCancelled(t *testing.T) {
	streamCtx, cancel := context.WithCancel(context.Background())
	stream := &notificationStream{notifications: newMockNotifications(), ctx: streamCtx}
	defer stream.Close()

	cancel()
	if _, err := stream.Next(context.Background()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNotificationStreamNextChannelClosed(t *testing.T) {
	mock := newMockNotifications()
	stream := &notificationStream{notifications: mock, ctx: context.Background()}

	close(mock.ch)
	if _, err := stream.Next(context.Background()); !errors.Is(err, metadata.ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}

func TestNotificationStreamNextTimeout(t *testing.T) {
	stream := &notificationStream{notifications: newMockNotifications(), ctx: context.Background()}
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := stream.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestNotificationStreamClose(t *testing.T) {
	mock := newMockNotifications()
	stream := &notificationStream{notifications: mock, ctx: context.Background()}

	if err := stream.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if !mock.closed {
		t.Error("underlying notifications should be closed")
	}

	mock.closeErr = errors.New("close failed")
	if err := stream.Close(); err == nil || err.Error() != "close failed" {
		t.Errorf("expected close error, got %v", err)
	}
}
