package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type CallbackLogRepository struct {
	pool *pgxpool.Pool
}

func NewCallbackLogRepository(pool *pgxpool.Pool) *CallbackLogRepository {
	return &CallbackLogRepository{pool: pool}
}

func (r *CallbackLogRepository) Record(ctx context.Context, entry CallbackLogEntity) error {
	query := `INSERT INTO payment_callback_log (user_id, order_id, request_id, trans_id, result_code, outcome)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, entry.UserID, entry.OrderID, entry.RequestID, entry.TransID,
		entry.ResultCode, entry.Outcome)
	return errors.Wrap(err, "insert payment callback log")
}

func (r *CallbackLogRepository) ListByOrder(ctx context.Context, userID, orderID string) ([]CallbackLogEntity, error) {
	query := `SELECT id, user_id, order_id, request_id, trans_id, result_code, outcome, created_at
	          FROM payment_callback_log WHERE user_id = $1 AND order_id = $2 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, userID, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select payment callback log")
	}
	defer rows.Close()

	var entries []CallbackLogEntity
	for rows.Next() {
		var e CallbackLogEntity
		if err := rows.Scan(&e.ID, &e.UserID, &e.OrderID, &e.RequestID, &e.TransID, &e.ResultCode,
			&e.Outcome, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan payment callback log")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
