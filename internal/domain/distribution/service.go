package distribution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reportwire/reportwire/internal/domain/directory"
	"github.com/reportwire/reportwire/internal/platform/channel"
	"github.com/reportwire/reportwire/internal/platform/kv"
	"github.com/reportwire/reportwire/internal/platform/notify"
)

const (
	distributeLockTTL  = 30 * time.Second
	distributeLockWait = 5 * time.Second
	ackRetries         = 3
)

// DistributeInput is a request to distribute one result.
type DistributeInput struct {
	ResultID     string
	RecipientIDs []uuid.UUID
	Priority     string
	Channels     []string
}

// DistributeResult reports the outcome of a distribution call. Records
// includes pre-existing records reused for idempotency.
type DistributeResult struct {
	Records      []*Record `json:"records"`
	Resolved     int       `json:"resolved"`
	Notified     int       `json:"notified"`
	Failed       int       `json:"failed"`
	NoRecipients bool      `json:"no_recipients"`
}

// Config tunes the coordinator.
type Config struct {
	MaxFanout   int           // 0 = unlimited
	Workers     int           // parallel per-recipient deliveries
	SendTimeout time.Duration // per channel send
}

// Service coordinates distribution: recipient resolution, record creation,
// channel dispatch, acknowledgements and the read-side queries.
type Service struct {
	repo          Repository
	recipients    directory.RecipientDirectory
	results       directory.ResultSource
	sinks         map[string]channel.Sink
	notifications notify.Repository
	locker        *kv.Locker
	cfg           Config
	logger        zerolog.Logger

	now func() time.Time
}

func NewService(
	repo Repository,
	recipients directory.RecipientDirectory,
	results directory.ResultSource,
	sinks []channel.Sink,
	notifications notify.Repository,
	locker *kv.Locker,
	cfg Config,
	logger zerolog.Logger,
) *Service {
	byName := make(map[string]channel.Sink, len(sinks))
	for _, s := range sinks {
		byName[s.Name()] = s
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Service{
		repo:          repo,
		recipients:    recipients,
		results:       results,
		sinks:         byName,
		notifications: notifications,
		locker:        locker,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

func validPriority(p string) bool {
	return p == PriorityNormal || p == PriorityHigh || p == PriorityUrgent
}

// Distribute resolves recipients for a result and delivers over the
// requested channels. Calling it again for the same (result, recipient) pair
// reuses the existing non-failed record.
func (s *Service) Distribute(ctx context.Context, in DistributeInput) (*DistributeResult, error) {
	if in.ResultID == "" {
		return nil, fmt.Errorf("%w: result id required", ErrInvalidInput)
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if !validPriority(in.Priority) {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, in.Priority)
	}
	if len(in.Channels) == 0 {
		in.Channels = []string{channel.NameInApp}
	}
	for _, ch := range in.Channels {
		if _, ok := s.sinks[ch]; !ok {
			return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidInput, ch)
		}
	}

	// Serialize concurrent calls for the same result so two callers cannot
	// double-create records.
	token, err := s.locker.Acquire(ctx, "distribute:"+in.ResultID, distributeLockTTL, distributeLockWait)
	if err != nil {
		if errors.Is(err, kv.ErrLockHeld) {
			return nil, fmt.Errorf("%w: distribution for %s already in progress", ErrRateLimited, in.ResultID)
		}
		return nil, fmt.Errorf("acquire distribute lock: %w", err)
	}
	defer s.locker.Release(context.WithoutCancel(ctx), "distribute:"+in.ResultID, token)

	result, err := s.results.GetResult(ctx, in.ResultID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, fmt.Errorf("%w: result %s", ErrNotFound, in.ResultID)
		}
		return nil, fmt.Errorf("look up result %s: %w", in.ResultID, err)
	}

	recipients, err := s.resolveRecipients(ctx, result, in.RecipientIDs)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		s.logger.Warn().Str("result_id", in.ResultID).Msg("distribution resolved no recipients")
		return &DistributeResult{NoRecipients: true}, nil
	}

	return s.deliver(ctx, result, recipients, in.Priority, in.Channels)
}

// DistributeToAll delivers a result to every active recipient who accepts
// report-ready notifications, regardless of branch or referral.
func (s *Service) DistributeToAll(ctx context.Context, resultID, priority string, channels []string) (*DistributeResult, error) {
	recipients, err := s.recipients.ActiveWithReportPreference(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribed recipients: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.ID)
	}
	if len(ids) == 0 {
		s.logger.Warn().Str("result_id", resultID).Msg("no recipients subscribed to report notifications")
		return &DistributeResult{NoRecipients: true}, nil
	}

	return s.Distribute(ctx, DistributeInput{
		ResultID:     resultID,
		RecipientIDs: ids,
		Priority:     priority,
		Channels:     channels,
	})
}

// resolveRecipients returns the active recipients for a result. With no
// explicit ids, the set is the union of the result's referrer, every prior
// recipient of a distribution for the same patient, and the origin branch's
// receive-all subscribers.
func (s *Service) resolveRecipients(ctx context.Context, result *directory.Result, explicit []uuid.UUID) ([]*directory.Recipient, error) {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	if len(explicit) > 0 {
		for _, id := range explicit {
			add(id)
		}
	} else {
		if result.ReferrerID != nil {
			add(*result.ReferrerID)
		}

		prior, err := s.repo.PriorRecipients(ctx, result.PatientID)
		if err != nil {
			return nil, fmt.Errorf("look up prior recipients: %w", err)
		}
		for _, id := range prior {
			add(id)
		}

		subscribers, err := s.recipients.BranchSubscribers(ctx, result.BranchID)
		if err != nil {
			return nil, fmt.Errorf("look up branch subscribers: %w", err)
		}
		for _, r := range subscribers {
			add(r.ID)
		}
	}

	if s.cfg.MaxFanout > 0 && len(ids) > s.cfg.MaxFanout {
		s.logger.Warn().
			Str("result_id", result.ID).
			Int("resolved", len(ids)).
			Int("cap", s.cfg.MaxFanout).
			Msg("recipient fan-out capped")
		ids = ids[:s.cfg.MaxFanout]
	}

	recipients, err := s.recipients.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}

	active := recipients[:0]
	for _, r := range recipients {
		if r.Active {
			active = append(active, r)
		}
	}
	return active, nil
}

type deliveryOutcome struct {
	record *Record
	failed bool
	err    error
}

// deliver creates or reuses one record per recipient and dispatches channel
// sends in parallel, bounded by the worker limit. Failures are isolated per
// recipient and per channel.
func (s *Service) deliver(ctx context.Context, result *directory.Result, recipients []*directory.Recipient, priority string, channels []string) (*DistributeResult, error) {
	out := &DistributeResult{Resolved: len(recipients)}

	sem := make(chan struct{}, s.cfg.Workers)
	outcomes := make([]deliveryOutcome, len(recipients))
	var wg sync.WaitGroup

	for i, rec := range recipients {
		wg.Add(1)
		go func(i int, rec *directory.Recipient) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = s.deliverOne(ctx, result, rec, priority, channels)
		}(i, rec)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.err != nil {
			out.Failed++
			continue
		}
		out.Records = append(out.Records, o.record)
		if o.failed {
			out.Failed++
		} else {
			out.Notified++
		}
	}
	return out, nil
}

func (s *Service) deliverOne(ctx context.Context, result *directory.Result, rec *directory.Recipient, priority string, channels []string) deliveryOutcome {
	// Idempotency: reuse the existing non-failed record untouched.
	existing, err := s.repo.FindActive(ctx, result.ID, rec.ID)
	if err == nil {
		return deliveryOutcome{record: existing}
	}
	if !errors.Is(err, ErrNotFound) {
		s.logger.Error().Err(err).
			Str("result_id", result.ID).
			Str("recipient_id", rec.ID.String()).
			Msg("look up existing distribution")
		return deliveryOutcome{err: err}
	}

	now := s.now()
	record := &Record{
		ID:          NewDistributionID(now),
		ResultID:    result.ID,
		PatientID:   result.PatientID,
		BranchID:    result.BranchID,
		RecipientID: rec.ID,
		ReportType:  result.ReportType,
		ReportName:  result.ReportName,
		Priority:    priority,
		Status:      StatusPending,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.Error().Err(err).
			Str("result_id", result.ID).
			Str("recipient_id", rec.ID.String()).
			Msg("create distribution record")
		return deliveryOutcome{err: err}
	}

	n := notify.ReportReady(result.ID, result.PatientName, result.ReportName, priority == PriorityUrgent || result.Urgent)
	n.Data["distribution_id"] = record.ID

	attempted, succeeded := 0, 0
	for _, ch := range channels {
		if !rec.AllowsChannel(ch) {
			continue // opted out, skip silently
		}
		sink := s.sinks[ch]

		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		err := sink.Send(sendCtx, channel.Delivery{
			RecipientID:  rec.ID.String(),
			Email:        strOrEmpty(rec.Email),
			Phone:        strOrEmpty(rec.Phone),
			Subject:      n.Title,
			Body:         n.Message,
			Notification: n,
		})
		cancel()

		attempted++
		record.MarkChannelAttempt(ch, err == nil, s.now())
		if err != nil {
			s.logger.Warn().Err(err).
				Str("distribution_id", record.ID).
				Str("channel", ch).
				Msg("channel send failed")
		} else {
			succeeded++
		}
	}

	failed := false
	switch {
	case attempted > 0 && succeeded > 0:
		record.Status = StatusSent
	case attempted > 0:
		// every attempted channel failed
		record.Status = StatusFailed
		failed = true
	}

	if err := s.repo.Update(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("distribution_id", record.ID).Msg("update distribution record")
		return deliveryOutcome{err: err}
	}
	return deliveryOutcome{record: record, failed: failed}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Acknowledge applies a recipient action to a record. Concurrent calls on
// the same record are resolved by optimistic retry.
func (s *Service) Acknowledge(ctx context.Context, distributionID, action string) (*Record, error) {
	var lastErr error
	for attempt := 0; attempt < ackRetries; attempt++ {
		record, err := s.repo.GetByID(ctx, distributionID)
		if err != nil {
			return nil, err
		}

		changed, err := record.ApplyAcknowledge(action, s.now())
		if err != nil {
			return nil, err
		}
		if !changed {
			return record, nil
		}

		err = s.repo.Update(ctx, record)
		if err == nil {
			s.clearNotification(ctx, record)
			return record, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// clearNotification marks the persisted in-app notification for a record as
// read. Best effort: a failure here never fails the acknowledgement.
func (s *Service) clearNotification(ctx context.Context, record *Record) {
	if s.notifications == nil {
		return
	}
	err := s.notifications.MarkReadByDistribution(ctx, record.RecipientID.String(), record.ID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("distribution_id", record.ID).
			Msg("mark notification read")
	}
}

// MarkRead handles a realtime mark_read frame: the recipient acknowledges
// their own distribution.
func (s *Service) MarkRead(ctx context.Context, userID, distributionID string) error {
	record, err := s.repo.GetByID(ctx, distributionID)
	if err != nil {
		return err
	}
	if record.RecipientID.String() != userID {
		return fmt.Errorf("%w: distribution %s does not belong to %s", ErrConflict, distributionID, userID)
	}
	_, err = s.Acknowledge(ctx, distributionID, ActionAcknowledge)
	return err
}

// SendReminder re-pushes the in-app notification for a distribution that has
// not been read yet.
func (s *Service) SendReminder(ctx context.Context, distributionID string) error {
	record, err := s.repo.GetByID(ctx, distributionID)
	if err != nil {
		return err
	}
	if record.Status == StatusRead || record.Status == StatusFailed {
		return fmt.Errorf("%w: distribution %s is %s", ErrConflict, distributionID, record.Status)
	}

	sink, ok := s.sinks[channel.NameInApp]
	if !ok {
		return fmt.Errorf("in-app channel not configured")
	}

	result, err := s.results.GetResult(ctx, record.ResultID)
	patientName := ""
	if err == nil {
		patientName = result.PatientName
	}

	n := notify.Reminder(record.ID, record.ResultID, patientName)
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	return sink.Send(sendCtx, channel.Delivery{
		RecipientID:  record.RecipientID.String(),
		Subject:      n.Title,
		Body:         n.Message,
		Notification: n,
	})
}
