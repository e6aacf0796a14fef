package oxia

import (
	"context"

	oxiaclient "github.com/oxia-db/oxia/oxia"

	"github.com/moqlab/relay/internal/metadata"
)

// notificationStream implements metadata.NotificationStream for Oxia.
type notificationStream struct {
	notifications oxiaclient.Notifications
	ctx           context.Context
}

// Next blocks until the next notification is available or the context is cancelled.
func (s *notificationStream) Next(ctx context.Context) (metadata.Notification, error) {
	select {
	case <-ctx.Done():
		return metadata.Notification{}, ctx.Err()
	case <-s.ctx.Done():
		return metadata.Notification{}, s.ctx.Err()
	case n, ok := <-s.notifications.Ch():
		if !ok {
			return metadata.Notification{}, metadata.ErrStoreClosed
		}
		return convertNotification(n), nil
	}
}

// Close releases resources associated with the stream.
func (s *notificationStream) Close() error {
	return s.notifications.Close()
}

// convertNotification converts an Oxia notification. Oxia notifications
// carry no value; watchers that need one must Get the key.
func convertNotification(n *oxiaclient.Notification) metadata.Notification {
	switch n.Type {
	case oxiaclient.KeyDeleted, oxiaclient.KeyRangeRangeDeleted:
		return metadata.Notification{
			Key:     n.Key,
			Version: metadata.NoVersion,
			Deleted: true,
		}
	default:
		return metadata.Notification{
			Key:     n.Key,
			Version: oxiaToMetadataVersion(n.VersionId),
		}
	}
}

var _ metadata.NotificationStream = (*notificationStream)(nil)
