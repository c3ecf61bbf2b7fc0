package channel

import (
	"context"
	"fmt"

	"github.com/reportwire/reportwire/internal/platform/notify"
	"github.com/reportwire/reportwire/internal/platform/registry"
)

// PushSink delivers in-app notifications: the notification row is persisted
// first, then pushed through the connection registry. Offline recipients are
// handled by the registry's queue, so a disconnected recipient is not a
// failure.
type PushSink struct {
	registry *registry.Registry
	repo     notify.Repository
}

// NewPushSink creates a push sink. repo may be nil, in which case
// notifications are realtime-only.
func NewPushSink(r *registry.Registry, repo notify.Repository) *PushSink {
	return &PushSink{registry: r, repo: repo}
}

func (s *PushSink) Name() string { return NameInApp }

func (s *PushSink) Send(ctx context.Context, d Delivery) error {
	n := d.Notification
	if n == nil {
		n = notify.New(notify.TypeReportReady, d.Subject, d.Body)
	}

	if s.repo != nil {
		if err := s.repo.Save(ctx, d.RecipientID, n); err != nil {
			return fmt.Errorf("persist notification: %w", err)
		}
	}

	s.registry.NotifyRecipient(d.RecipientID, n)
	return nil
}
