// Package channel contains the delivery adapters behind report distribution:
// in-app push, email, SMS and WhatsApp. Each sink is independent so a failure
// on one channel never blocks the others.
package channel

import (
	"context"

	"github.com/reportwire/reportwire/internal/platform/notify"
)

// Channel names as persisted on distribution records.
const (
	NameInApp    = "in_app"
	NameEmail    = "email"
	NameSMS      = "sms"
	NameWhatsApp = "whatsapp"
)

// Delivery carries everything a sink needs to reach one recipient.
type Delivery struct {
	RecipientID  string
	Email        string
	Phone        string
	Subject      string
	Body         string
	Notification *notify.Notification
}

// Sink sends a delivery over one concrete channel. Implementations must be
// safe for concurrent use.
type Sink interface {
	Name() string
	Send(ctx context.Context, d Delivery) error
}
