package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/set-night/gigs/internal/domain"
	"github.com/shopspring/decimal"
)

const userColumns = `id, telegram_id, is_admin, first_name, username, balance, created_at, updated_at`

type UserStore struct {
	db *pgxpool.Pool
}

func NewUserStore(db *pgxpool.Pool) *UserStore {
	return &UserStore{db: db}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.TelegramID, &u.IsAdmin, &u.FirstName, &u.Username, &u.Balance, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return ok, nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *UserStore) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID))
}

// Create inserts the user; a concurrent insert for the same telegram id
// returns the existing row.
func (s *UserStore) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	created, err := scanUser(s.db.QueryRow(ctx, `
		INSERT INTO users (telegram_id, is_admin, first_name, username)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_id) DO NOTHING
		RETURNING `+userColumns, u.TelegramID, u.IsAdmin, u.FirstName, u.Username))
	if errors.Is(err, domain.ErrUserNotFound) {
		return s.GetByTelegramID(ctx, u.TelegramID)
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (s *UserStore) UpdateInfo(ctx context.Context, id int64, firstName, username string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET first_name = $2, username = $3, updated_at = NOW()
		WHERE id = $1`, id, firstName, username)
	if err != nil {
		return fmt.Errorf("update user info: %w", err)
	}
	return nil
}

func (s *UserStore) Credit(ctx context.Context, id int64, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		balance, err = creditBalance(ctx, tx, id, amount, nil, description)
		return err
	})
	return balance, err
}

// ListTransactions returns the most recent ledger rows for a user, newest first.
func (s *UserStore) ListTransactions(ctx context.Context, userID int64, limit int) ([]domain.Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, payment_id, amount, tx_type, description, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var txType string
		if err := rows.Scan(&t.ID, &t.UserID, &t.PaymentID, &t.Amount, &txType, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.TxType = domain.TxType(txType)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
