package db

import (
	"context"

	"order-callback-service/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Append stores a notification; its timestamp is assigned by the database.
func (r *NotificationRepository) Append(ctx context.Context, record model.NotificationRecord) (model.NotificationRecord, error) {
	query := `INSERT INTO notifications (user_id, title, body) VALUES ($1, $2, $3) RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query, record.UserID, record.Title, record.Body).Scan(&record.ID, &record.Timestamp)
	if err != nil {
		return record, errors.Wrap(err, "insert notification")
	}
	return record, nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string) ([]model.NotificationRecord, error) {
	query := `SELECT id, user_id, title, body, created_at FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "select notifications")
	}
	defer rows.Close()

	var records []model.NotificationRecord
	for rows.Next() {
		var record model.NotificationRecord
		if err := rows.Scan(&record.ID, &record.UserID, &record.Title, &record.Body, &record.Timestamp); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
