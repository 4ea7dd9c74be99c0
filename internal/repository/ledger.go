package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/gigs/internal/domain"
	"github.com/shopspring/decimal"
)

// deductBalance locks the user row, refuses to go negative, and records a
// debit in the transactions ledger.
func deductBalance(ctx context.Context, q DBTX, userID int64, amount decimal.Decimal, paymentID *int64, description string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, domain.ErrUserNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock user: %w", err)
	}

	if balance.Sub(amount).IsNegative() {
		return decimal.Zero, domain.ErrInsufficientBalance
	}

	return moveBalance(ctx, q, userID, amount.Neg(), paymentID, domain.TxTypeDebit, description)
}

func creditBalance(ctx context.Context, q DBTX, userID int64, amount decimal.Decimal, paymentID *int64, description string) (decimal.Decimal, error) {
	return moveBalance(ctx, q, userID, amount, paymentID, domain.TxTypeCredit, description)
}

func moveBalance(ctx context.Context, q DBTX, userID int64, delta decimal.Decimal, paymentID *int64, txType domain.TxType, description string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.QueryRow(ctx, `
		UPDATE users SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING balance`, userID, delta).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, domain.ErrUserNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("update balance: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO transactions (user_id, payment_id, amount, tx_type, description)
		VALUES ($1, $2, $3, $4, $5)`, userID, paymentID, delta, string(txType), description)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create transaction: %w", err)
	}

	return balance, nil
}
