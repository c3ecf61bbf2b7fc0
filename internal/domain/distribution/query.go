package distribution

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// PendingResult is the recipient-facing view of undelivered reports.
type PendingResult struct {
	PendingCount int       `json:"pending_count"`
	Records      []*Record `json:"records"`
}

// Tracking is the per-result delivery view.
type Tracking struct {
	ResultID string         `json:"result_id"`
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	Records  []*Record      `json:"records"`
}

// List returns distribution records matching the filter plus the unpaginated
// total.
func (s *Service) List(ctx context.Context, f Filter) ([]*Record, int, error) {
	return s.repo.List(ctx, f)
}

// Get returns one distribution record by its shareable id.
func (s *Service) Get(ctx context.Context, distributionID string) (*Record, error) {
	return s.repo.GetByID(ctx, distributionID)
}

// PendingForRecipient returns the records still awaiting the recipient's
// attention: pending, sent or delivered, urgent first then newest first.
func (s *Service) PendingForRecipient(ctx context.Context, recipientID uuid.UUID) (*PendingResult, error) {
	records, err := s.repo.PendingForRecipient(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list pending distributions: %w", err)
	}
	return &PendingResult{PendingCount: len(records), Records: records}, nil
}

// Summary aggregates distribution outcomes for the given filter.
func (s *Service) Summary(ctx context.Context, f Filter) (*Summary, error) {
	return s.repo.Summary(ctx, f)
}

// TrackResult returns every distribution of one result with its channel
// attempt markers.
func (s *Service) TrackResult(ctx context.Context, resultID string) (*Tracking, error) {
	records, err := s.repo.ByResult(ctx, resultID)
	if err != nil {
		return nil, fmt.Errorf("track result %s: %w", resultID, err)
	}

	t := &Tracking{
		ResultID: resultID,
		Total:    len(records),
		ByStatus: make(map[string]int),
		Records:  records,
	}
	for _, r := range records {
		t.ByStatus[r.Status]++
	}
	return t, nil
}

// RecipientActivity returns a recipient's status breakdown and daily volume
// over the trailing window.
func (s *Service) RecipientActivity(ctx context.Context, recipientID uuid.UUID, days int) (*Activity, error) {
	return s.repo.RecipientActivity(ctx, recipientID, days)
}
