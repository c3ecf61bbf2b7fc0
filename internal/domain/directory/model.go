// Package directory exposes the read-only views of external collaborators
// the distribution engine needs: recipients (doctors and staff), finalized
// results, and branch assignments. None of these entities are owned here.
package directory

import (
	"time"

	"github.com/google/uuid"
)

// ChannelPrefs are a recipient's per-channel opt-in flags. In-app delivery
// cannot be opted out of.
type ChannelPrefs struct {
	Email    bool `json:"email"`
	SMS      bool `json:"sms"`
	WhatsApp bool `json:"whatsapp"`
}

// Recipient is a doctor or staff member who can receive report
// distributions.
type Recipient struct {
	ID       uuid.UUID    `db:"id" json:"id"`
	Name     string       `db:"name" json:"name"`
	Role     string       `db:"role" json:"role"`
	Email    *string      `db:"email" json:"email,omitempty"`
	Phone    *string      `db:"phone" json:"phone,omitempty"`
	Active   bool         `db:"active" json:"active"`
	Prefs    ChannelPrefs `db:"prefs" json:"prefs"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

// AllowsChannel reports whether the recipient accepts delivery on the named
// channel.
func (r *Recipient) AllowsChannel(name string) bool {
	switch name {
	case "email":
		return r.Prefs.Email
	case "sms":
		return r.Prefs.SMS
	case "whatsapp":
		return r.Prefs.WhatsApp
	default:
		// in_app and unknown channels are never opted out
		return true
	}
}

// Result is the slice of a finalized lab result the coordinator needs for
// recipient resolution and notification content.
type Result struct {
	ID          string     `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	PatientName string     `db:"patient_name" json:"patient_name"`
	BranchID    uuid.UUID  `db:"branch_id" json:"branch_id"`
	ReferrerID  *uuid.UUID `db:"referrer_id" json:"referrer_id,omitempty"`
	ReportType  string     `db:"report_type" json:"report_type"`
	ReportName  string     `db:"report_name" json:"report_name"`
	Urgent      bool       `db:"urgent" json:"urgent"`
	FinalizedAt *time.Time `db:"finalized_at" json:"finalized_at,omitempty"`
}
