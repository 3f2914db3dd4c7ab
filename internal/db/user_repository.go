package db

import (
	"context"

	"order-callback-service/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Upsert(ctx context.Context, profile model.UserProfile) error {
	query := `INSERT INTO users (user_id, fcm_token) VALUES ($1, NULLIF($2, ''))
	          ON CONFLICT (user_id) DO UPDATE SET fcm_token = EXCLUDED.fcm_token, updated_at = now()`
	_, err := r.pool.Exec(ctx, query, profile.UserID, profile.FcmToken)
	return errors.Wrap(err, "upsert user")
}

// GetFcmToken returns an empty token when the user is unknown or has not
// registered a device.
func (r *UserRepository) GetFcmToken(ctx context.Context, userID string) (string, error) {
	var token *string
	err := r.pool.QueryRow(ctx, `SELECT fcm_token FROM users WHERE user_id = $1`, userID).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "select fcm token")
	}
	if token == nil {
		return "", nil
	}
	return *token, nil
}
