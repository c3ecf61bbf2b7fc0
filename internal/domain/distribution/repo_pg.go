package distribution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const recordCols = `key, id, result_id, patient_id, branch_id, recipient_id,
	report_type, report_name, priority, status, version,
	email_attempted, email_attempted_at, email_succeeded,
	sms_attempted, sms_attempted_at, sms_succeeded,
	whatsapp_attempted, whatsapp_attempted_at, whatsapp_succeeded,
	push_attempted, push_attempted_at, push_succeeded,
	viewed_at, downloaded_at, printed_at, acknowledged_at,
	created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.Key, &r.ID, &r.ResultID, &r.PatientID, &r.BranchID, &r.RecipientID,
		&r.ReportType, &r.ReportName, &r.Priority, &r.Status, &r.Version,
		&r.Email.Attempted, &r.Email.AttemptedAt, &r.Email.Succeeded,
		&r.SMS.Attempted, &r.SMS.AttemptedAt, &r.SMS.Succeeded,
		&r.WhatsApp.Attempted, &r.WhatsApp.AttemptedAt, &r.WhatsApp.Succeeded,
		&r.Push.Attempted, &r.Push.AttemptedAt, &r.Push.Succeeded,
		&r.ViewedAt, &r.DownloadedAt, &r.PrintedAt, &r.AcknowledgedAt,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRecords(rows pgx.Rows) ([]*Record, error) {
	defer rows.Close()
	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	rec.Version = 1
	return r.pool.QueryRow(ctx, `
		INSERT INTO report_distributions (id, result_id, patient_id, branch_id, recipient_id,
			report_type, report_name, priority, status, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING key, created_at, updated_at`,
		rec.ID, rec.ResultID, rec.PatientID, rec.BranchID, rec.RecipientID,
		rec.ReportType, rec.ReportName, rec.Priority, rec.Status, rec.Version).
		Scan(&rec.Key, &rec.CreatedAt, &rec.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Record, error) {
	return scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordCols+` FROM report_distributions WHERE id = $1`, id))
}

func (r *repoPG) FindActive(ctx context.Context, resultID string, recipientID uuid.UUID) (*Record, error) {
	return scanRecord(r.pool.QueryRow(ctx, `
		SELECT `+recordCols+` FROM report_distributions
		WHERE result_id = $1 AND recipient_id = $2 AND status <> 'failed'
		ORDER BY created_at DESC LIMIT 1`, resultID, recipientID))
}

func (r *repoPG) Update(ctx context.Context, rec *Record) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE report_distributions SET
			status = $1, version = version + 1,
			email_attempted = $2, email_attempted_at = $3, email_succeeded = $4,
			sms_attempted = $5, sms_attempted_at = $6, sms_succeeded = $7,
			whatsapp_attempted = $8, whatsapp_attempted_at = $9, whatsapp_succeeded = $10,
			push_attempted = $11, push_attempted_at = $12, push_succeeded = $13,
			viewed_at = $14, downloaded_at = $15, printed_at = $16, acknowledged_at = $17,
			updated_at = NOW()
		WHERE key = $18 AND version = $19`,
		rec.Status,
		rec.Email.Attempted, rec.Email.AttemptedAt, rec.Email.Succeeded,
		rec.SMS.Attempted, rec.SMS.AttemptedAt, rec.SMS.Succeeded,
		rec.WhatsApp.Attempted, rec.WhatsApp.AttemptedAt, rec.WhatsApp.Succeeded,
		rec.Push.Attempted, rec.Push.AttemptedAt, rec.Push.Succeeded,
		rec.ViewedAt, rec.DownloadedAt, rec.PrintedAt, rec.AcknowledgedAt,
		rec.Key, rec.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	rec.Version++
	return nil
}

func buildFilter(f Filter, startArg int) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	arg := startArg

	add := func(clause string, value interface{}) {
		clauses = append(clauses, fmt.Sprintf(clause, arg))
		args = append(args, value)
		arg++
	}

	if f.RecipientID != nil {
		add("recipient_id = $%d", *f.RecipientID)
	}
	if f.ResultID != "" {
		add("result_id = $%d", f.ResultID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Record, int, error) {
	where, args := buildFilter(f, 1)

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM report_distributions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM report_distributions%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		recordCols, where, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	records, err := collectRecords(rows)
	return records, total, err
}

func (r *repoPG) PendingForRecipient(ctx context.Context, recipientID uuid.UUID) ([]*Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordCols+` FROM report_distributions
		WHERE recipient_id = $1 AND status IN ('pending', 'sent', 'delivered')
		ORDER BY CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 ELSE 2 END,
			created_at DESC`, recipientID)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (r *repoPG) PriorRecipients(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT recipient_id FROM report_distributions WHERE patient_id = $1`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *repoPG) ByResult(ctx context.Context, resultID string) ([]*Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordCols+` FROM report_distributions
		WHERE result_id = $1 ORDER BY created_at ASC`, resultID)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (r *repoPG) Summary(ctx context.Context, f Filter) (*Summary, error) {
	where, args := buildFilter(f, 1)

	s := &Summary{
		ByStatus:     make(map[string]int),
		ByReportType: make(map[string]int),
	}

	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM report_distributions`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, err
		}
		s.ByStatus[status] = count
		s.Total += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx,
		`SELECT report_type, COUNT(*) FROM report_distributions`+where+` GROUP BY report_type`, args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var rt string
		var count int
		if err := rows.Scan(&rt, &count); err != nil {
			rows.Close()
			return nil, err
		}
		s.ByReportType[rt] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.DeliveryRate = deliveryRate(s.ByStatus, s.Total)
	return s, nil
}

// deliveryRate is the share of records a recipient actually received:
// (read + delivered) / total, as a percentage.
func deliveryRate(byStatus map[string]int, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(byStatus[StatusRead]+byStatus[StatusDelivered]) / float64(total) * 100
}

func (r *repoPG) RecipientActivity(ctx context.Context, recipientID uuid.UUID, days int) (*Activity, error) {
	if days <= 0 {
		days = 30
	}

	a := &Activity{
		RecipientID: recipientID,
		Days:        days,
		ByStatus:    make(map[string]int),
	}

	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM report_distributions
		WHERE recipient_id = $1 AND created_at >= NOW() - make_interval(days => $2)
		GROUP BY status`, recipientID, days)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, err
		}
		a.ByStatus[status] = count
		a.Total += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT to_char(created_at::date, 'YYYY-MM-DD'), COUNT(*)
		FROM report_distributions
		WHERE recipient_id = $1 AND created_at >= NOW() - make_interval(days => $2)
		GROUP BY created_at::date
		ORDER BY created_at::date`, recipientID, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var d DailyCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, err
		}
		a.Daily = append(a.Daily, d)
	}
	return a, rows.Err()
}
