package notify

import "context"

// Repository persists notifications so recipients can review them after the
// realtime copy has come and gone.
type Repository interface {
	Save(ctx context.Context, recipientID string, n *Notification) error
	MarkRead(ctx context.Context, recipientID, notificationID string) error
	// MarkReadByDistribution marks the notification carrying the given
	// distribution id as read, so acknowledging a report also clears its
	// notification.
	MarkReadByDistribution(ctx context.Context, recipientID, distributionID string) error
	ListUnread(ctx context.Context, recipientID string, limit int) ([]*Notification, error)
}
