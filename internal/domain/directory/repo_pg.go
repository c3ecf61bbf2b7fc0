package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type recipientRepoPG struct{ pool *pgxpool.Pool }

func NewRecipientRepoPG(pool *pgxpool.Pool) RecipientDirectory {
	return &recipientRepoPG{pool: pool}
}

const recipientCols = `id, name, role, email, phone, active,
	pref_email, pref_sms, pref_whatsapp, created_at`

func scanRecipient(row pgx.Row) (*Recipient, error) {
	var r Recipient
	err := row.Scan(&r.ID, &r.Name, &r.Role, &r.Email, &r.Phone, &r.Active,
		&r.Prefs.Email, &r.Prefs.SMS, &r.Prefs.WhatsApp, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &r, err
}

func (r *recipientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Recipient, error) {
	return scanRecipient(r.pool.QueryRow(ctx,
		`SELECT `+recipientCols+` FROM recipients WHERE id = $1`, id))
}

func (r *recipientRepoPG) collect(rows pgx.Rows) ([]*Recipient, error) {
	defer rows.Close()
	var out []*Recipient
	for rows.Next() {
		var rec Recipient
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Role, &rec.Email, &rec.Phone, &rec.Active,
			&rec.Prefs.Email, &rec.Prefs.SMS, &rec.Prefs.WhatsApp, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (r *recipientRepoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Recipient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+recipientCols+` FROM recipients WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *recipientRepoPG) BranchSubscribers(ctx context.Context, branchID uuid.UUID) ([]*Recipient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recipientCols+`
		FROM recipients
		JOIN recipient_branches rb ON rb.recipient_id = recipients.id
		WHERE rb.branch_id = $1 AND rb.receive_all_reports AND recipients.active`, branchID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *recipientRepoPG) ActiveWithReportPreference(ctx context.Context) ([]*Recipient, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recipientCols+` FROM recipients WHERE active AND notify_report_ready`)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

type resultRepoPG struct{ pool *pgxpool.Pool }

func NewResultRepoPG(pool *pgxpool.Pool) ResultSource {
	return &resultRepoPG{pool: pool}
}

func (r *resultRepoPG) GetResult(ctx context.Context, resultID string) (*Result, error) {
	var res Result
	err := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, patient_name, branch_id, referrer_id,
			report_type, report_name, urgent, finalized_at
		FROM lab_results WHERE id = $1`, resultID).
		Scan(&res.ID, &res.PatientID, &res.PatientName, &res.BranchID, &res.ReferrerID,
			&res.ReportType, &res.ReportName, &res.Urgent, &res.FinalizedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}
