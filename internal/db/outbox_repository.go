package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const orderEventColumns = `id, user_id, order_id, payload, created_at, updated_at, scheduled_at, published_at, publish_attempts, error`

type OrderEventRepository struct {
	pool *pgxpool.Pool
}

func NewOrderEventRepository(pool *pgxpool.Pool) *OrderEventRepository {
	return &OrderEventRepository{pool: pool}
}

func (r *OrderEventRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// GetUnpublished locks up to limit due events. Rows locked by another
// producer are skipped.
func (r *OrderEventRepository) GetUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]*OrderEventEntity, error) {
	query := `SELECT ` + orderEventColumns + ` FROM order_event
	          WHERE scheduled_at IS NOT NULL AND scheduled_at <= now()
	          ORDER BY scheduled_at
	          LIMIT $1
	          FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select unpublished order events")
	}
	defer rows.Close()

	var entities []*OrderEventEntity
	for rows.Next() {
		entity, err := scanOrderEvent(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

func (r *OrderEventRepository) Update(ctx context.Context, tx pgx.Tx, entity *OrderEventEntity) error {
	query := `UPDATE order_event
	          SET scheduled_at = $2, published_at = $3, publish_attempts = $4, error = $5, updated_at = now()
	          WHERE id = $1`
	_, err := tx.Exec(ctx, query, entity.ID, entity.ScheduledAt, entity.PublishedAt, entity.PublishAttempts, entity.Error)
	return errors.Wrap(err, "update order event")
}

func (r *OrderEventRepository) SelectByOrder(ctx context.Context, userID, orderID string) ([]*OrderEventEntity, error) {
	query := `SELECT ` + orderEventColumns + ` FROM order_event WHERE user_id = $1 AND order_id = $2 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, userID, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select order events")
	}
	defer rows.Close()

	var entities []*OrderEventEntity
	for rows.Next() {
		entity, err := scanOrderEvent(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

func scanOrderEvent(row pgx.Row) (*OrderEventEntity, error) {
	var entity OrderEventEntity
	err := row.Scan(&entity.ID, &entity.UserID, &entity.OrderID, &entity.Payload, &entity.CreatedAt, &entity.UpdatedAt,
		&entity.ScheduledAt, &entity.PublishedAt, &entity.PublishAttempts, &entity.Error)
	if err != nil {
		return nil, errors.Wrap(err, "scan order event")
	}
	return &entity, nil
}
