package notify

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Save(ctx context.Context, recipientID string, n *Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, type, title, message, priority,
			data, action_url, reference_id, reference_type, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		n.ID, recipientID, n.Type, n.Title, n.Message, n.Priority,
		data, n.ActionURL, n.ReferenceID, n.ReferenceType, n.CreatedAt)
	return err
}

func (r *repoPG) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read_at = NOW()
		WHERE id = $1 AND recipient_id = $2 AND read_at IS NULL`,
		notificationID, recipientID)
	return err
}

func (r *repoPG) MarkReadByDistribution(ctx context.Context, recipientID, distributionID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read_at = NOW()
		WHERE recipient_id = $1 AND data->>'distribution_id' = $2 AND read_at IS NULL`,
		recipientID, distributionID)
	return err
}

func (r *repoPG) ListUnread(ctx context.Context, recipientID string, limit int) ([]*Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, type, title, message, priority, data, action_url,
			reference_id, reference_type, created_at, read_at
		FROM notifications
		WHERE recipient_id = $1 AND read_at IS NULL
		ORDER BY created_at ASC
		LIMIT $2`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var n Notification
		var data []byte
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &n.Priority, &data,
			&n.ActionURL, &n.ReferenceID, &n.ReferenceType, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &n.Data); err != nil {
				return nil, err
			}
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}
