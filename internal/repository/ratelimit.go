package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RateLimitStore counts messages per chat in one-minute windows.
type RateLimitStore struct {
	db *pgxpool.Pool
}

func NewRateLimitStore(db *pgxpool.Pool) *RateLimitStore {
	return &RateLimitStore{db: db}
}

// CheckAndIncrement counts one more message in the current window and
// returns the window total.
func (s *RateLimitStore) CheckAndIncrement(ctx context.Context, chatID int64) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		INSERT INTO rate_limits (chat_id, window_start, count)
		VALUES ($1, date_trunc('minute', NOW()), 1)
		ON CONFLICT (chat_id, window_start) DO UPDATE SET count = rate_limits.count + 1
		RETURNING count`, chatID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment rate limit: %w", err)
	}
	return count, nil
}

// CleanupOld drops windows older than an hour.
func (s *RateLimitStore) CleanupOld(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM rate_limits WHERE window_start < NOW() - INTERVAL '1 hour'`)
	if err != nil {
		return 0, fmt.Errorf("cleanup rate limits: %w", err)
	}
	return tag.RowsAffected(), nil
}
