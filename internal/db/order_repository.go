package db

import (
	"context"

	"order-callback-service/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const orderColumns = `user_id, order_id, amount, status, order_info, order_type, extra_data, COALESCE(trans_id, ''), created_at, updated_at`

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *OrderRepository) Get(ctx context.Context, userID, orderID string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND order_id = $2`
	return scanOrder(r.pool.QueryRow(ctx, query, userID, orderID))
}

func (r *OrderRepository) SelectForUpdate(ctx context.Context, tx pgx.Tx, userID, orderID string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND order_id = $2 FOR UPDATE`
	return scanOrder(tx.QueryRow(ctx, query, userID, orderID))
}

// UpdateStatus moves a pending order to status and records the gateway
// transaction id. It reports false without writing when the order is no longer
// pending, so concurrent callbacks for one order produce a single write.
func (r *OrderRepository) UpdateStatus(ctx context.Context, userID, orderID string, status model.OrderStatus, transID string) (bool, error) {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return false, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	order, err := r.SelectForUpdate(ctx, tx, userID, orderID)
	if err != nil {
		return false, err
	}

	if order.Status != model.OrderPending {
		return false, nil
	}

	query := `UPDATE orders SET status = $3, trans_id = $4, updated_at = now() WHERE user_id = $1 AND order_id = $2`
	if _, err := tx.Exec(ctx, query, userID, orderID, status, transID); err != nil {
		return false, errors.Wrap(err, "update order status")
	}

	if err := tx.Commit(ctx); err != nil {
		return false, errors.Wrap(err, "commit order status")
	}
	return true, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var order model.Order
	err := row.Scan(&order.UserID, &order.OrderID, &order.Amount, &order.Status, &order.OrderInfo,
		&order.OrderType, &order.ExtraData, &order.TransID, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}
	return &order, nil
}
