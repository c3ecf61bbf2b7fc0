package distribution

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows list and summary queries.
type Filter struct {
	RecipientID *uuid.UUID
	ResultID    string
	Status      string
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// Summary aggregates distribution outcomes.
type Summary struct {
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status"`
	ByReportType map[string]int `json:"by_report_type"`
	DeliveryRate float64        `json:"delivery_rate"`
}

// DailyCount is one day's worth of distributions for the activity view.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Activity is a recipient's recent distribution history.
type Activity struct {
	RecipientID uuid.UUID      `json:"recipient_id"`
	Days        int            `json:"days"`
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
	Daily       []DailyCount   `json:"daily"`
}

// Repository persists distribution records. Update applies a compare-and-set
// keyed on the record's version so concurrent acknowledge calls cannot lose
// writes.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id string) (*Record, error)

	// FindActive returns the non-failed record for (resultID, recipientID),
	// or ErrNotFound.
	FindActive(ctx context.Context, resultID string, recipientID uuid.UUID) (*Record, error)

	// Update writes the record if its stored version still matches
	// rec.Version, then increments rec.Version. Returns ErrConflict when the
	// row changed underneath the caller.
	Update(ctx context.Context, rec *Record) error

	List(ctx context.Context, f Filter) ([]*Record, int, error)

	// PendingForRecipient returns records in pending, sent or delivered
	// state, urgent first, then newest first.
	PendingForRecipient(ctx context.Context, recipientID uuid.UUID) ([]*Record, error)

	// PriorRecipients returns the distinct recipients of any prior
	// distribution for the given patient.
	PriorRecipients(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error)

	ByResult(ctx context.Context, resultID string) ([]*Record, error)
	Summary(ctx context.Context, f Filter) (*Summary, error)
	RecipientActivity(ctx context.Context, recipientID uuid.UUID, days int) (*Activity, error)
}
