package directory

import (
	"context"

	"github.com/google/uuid"
)

// RecipientDirectory resolves recipients and their delivery preferences.
type RecipientDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Recipient, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Recipient, error)

	// BranchSubscribers returns the active recipients assigned to a branch
	// with the receive-all-reports preference enabled.
	BranchSubscribers(ctx context.Context, branchID uuid.UUID) ([]*Recipient, error)

	// ActiveWithReportPreference returns every active recipient who accepts
	// report-ready notifications, for branch-wide distribution.
	ActiveWithReportPreference(ctx context.Context) ([]*Recipient, error)
}

// ResultSource resolves finalized results by id.
type ResultSource interface {
	GetResult(ctx context.Context, resultID string) (*Result, error)
}
