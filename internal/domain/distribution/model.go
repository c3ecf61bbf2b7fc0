// Package distribution implements report distribution: recipient resolution,
// per-recipient delivery records, the delivery state machine, and the read
// side used by tracking and summary endpoints.
package distribution

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Delivery statuses, strictly ordered. A record never regresses except to
// StatusFailed.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Acknowledge actions.
const (
	ActionView        = "view"
	ActionDownload    = "download"
	ActionPrint       = "print"
	ActionAcknowledge = "acknowledge"
)

// Priorities.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var (
	ErrNotFound     = errors.New("distribution not found")
	ErrNoRecipients = errors.New("no recipients resolved")
	ErrConflict     = errors.New("conflicting distribution state")
	ErrRateLimited  = errors.New("rate limited")
	ErrInvalidInput = errors.New("invalid input")
)

// statusRank orders the non-failed statuses for monotonicity checks.
var statusRank = map[string]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// ChannelAttempt records that a send was attempted on one channel.
type ChannelAttempt struct {
	Attempted   bool       `db:"attempted" json:"attempted"`
	AttemptedAt *time.Time `db:"attempted_at" json:"attempted_at,omitempty"`
	Succeeded   bool       `db:"succeeded" json:"succeeded"`
}

// Record is one delivery of one result to one recipient. At most one
// non-failed Record exists per (result, recipient) pair.
type Record struct {
	Key            int64     `db:"key" json:"-"`
	ID             string    `db:"id" json:"id"`
	ResultID       string    `db:"result_id" json:"result_id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	BranchID       uuid.UUID `db:"branch_id" json:"branch_id"`
	RecipientID    uuid.UUID `db:"recipient_id" json:"recipient_id"`
	ReportType     string    `db:"report_type" json:"report_type"`
	ReportName     string    `db:"report_name" json:"report_name"`
	Priority       string    `db:"priority" json:"priority"`
	Status         string    `db:"status" json:"status"`
	Version        int       `db:"version" json:"-"`

	Email    ChannelAttempt `json:"email"`
	SMS      ChannelAttempt `json:"sms"`
	WhatsApp ChannelAttempt `json:"whatsapp"`
	Push     ChannelAttempt `json:"push"`

	ViewedAt       *time.Time `db:"viewed_at" json:"viewed_at,omitempty"`
	DownloadedAt   *time.Time `db:"downloaded_at" json:"downloaded_at,omitempty"`
	PrintedAt      *time.Time `db:"printed_at" json:"printed_at,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewDistributionID builds a shareable distribution id of the form
// RD-<yyyymmddhhmmss>-<4 random digits>.
func NewDistributionID(now time.Time) string {
	return fmt.Sprintf("RD-%s-%04d", now.Format("20060102150405"), rand.Intn(10000))
}

// CanAdvance reports whether a record may move from its current status to
// next. Failed is terminal; otherwise transitions are monotonic.
func CanAdvance(current, next string) bool {
	if current == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return true
	}
	cr, ok1 := statusRank[current]
	nr, ok2 := statusRank[next]
	return ok1 && ok2 && nr > cr
}

// ApplyAcknowledge applies an acknowledge action to the record in place and
// reports whether anything changed. Timestamps are first-write-wins; actions
// on an already-read record are accepted and idempotent.
func (r *Record) ApplyAcknowledge(action string, now time.Time) (bool, error) {
	if r.Status == StatusFailed {
		return false, ErrConflict
	}

	changed := false
	stamp := func(t **time.Time) {
		if *t == nil {
			ts := now
			*t = &ts
			changed = true
		}
	}

	switch action {
	case ActionView:
		stamp(&r.ViewedAt)
		if CanAdvance(r.Status, StatusDelivered) {
			r.Status = StatusDelivered
			changed = true
		}
	case ActionDownload:
		stamp(&r.DownloadedAt)
		if CanAdvance(r.Status, StatusRead) {
			r.Status = StatusRead
			changed = true
		}
	case ActionAcknowledge:
		stamp(&r.AcknowledgedAt)
		if CanAdvance(r.Status, StatusRead) {
			r.Status = StatusRead
			changed = true
		}
	case ActionPrint:
		// print stamps only; the status is left alone
		stamp(&r.PrintedAt)
	default:
		return false, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
	}

	if changed {
		r.UpdatedAt = now
	}
	return changed, nil
}

// MarkChannelAttempt records a send attempt on the named channel. The
// attempt marker is set whether or not the provider succeeded.
func (r *Record) MarkChannelAttempt(channel string, succeeded bool, now time.Time) {
	set := func(a *ChannelAttempt) {
		a.Attempted = true
		if a.AttemptedAt == nil {
			ts := now
			a.AttemptedAt = &ts
		}
		if succeeded {
			a.Succeeded = true
		}
	}
	switch channel {
	case "email":
		set(&r.Email)
	case "sms":
		set(&r.SMS)
	case "whatsapp":
		set(&r.WhatsApp)
	case "in_app", "push":
		set(&r.Push)
	}
}

// AttemptedChannels lists channels with a recorded attempt.
func (r *Record) AttemptedChannels() []string {
	var out []string
	if r.Email.Attempted {
		out = append(out, "email")
	}
	if r.SMS.Attempted {
		out = append(out, "sms")
	}
	if r.WhatsApp.Attempted {
		out = append(out, "whatsapp")
	}
	if r.Push.Attempted {
		out = append(out, "in_app")
	}
	return out
}

// AnyChannelSucceeded reports whether at least one attempted channel
// succeeded.
func (r *Record) AnyChannelSucceeded() bool {
	return r.Email.Succeeded || r.SMS.Succeeded || r.WhatsApp.Succeeded || r.Push.Succeeded
}
