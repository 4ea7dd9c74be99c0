package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/set-night/gigs/internal/domain"
	"github.com/set-night/gigs/internal/service"
	"github.com/shopspring/decimal"
)

const paymentColumns = `id, operation_key, payer_id, recipient_id, task_id, amount, status, created_at, updated_at`

type PaymentStore struct {
	db *pgxpool.Pool
}

func NewPaymentStore(db *pgxpool.Pool) *PaymentStore {
	return &PaymentStore{db: db}
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p      domain.Payment
		status string
	)
	err := row.Scan(&p.ID, &p.OperationKey, &p.PayerID, &p.RecipientID, &p.TaskID, &p.Amount, &status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Status = domain.PaymentStatus(status)
	return &p, nil
}

func listPayments(ctx context.Context, q DBTX, query string, args ...any) ([]domain.Payment, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// InTx runs fn with balance and payment writes in one transaction.
func (s *PaymentStore) InTx(ctx context.Context, fn func(tx service.PaymentTx) error) error {
	return inTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&paymentTx{tx: tx})
	})
}

func (s *PaymentStore) Get(ctx context.Context, id int64) (*domain.Payment, error) {
	return scanPayment(s.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (s *PaymentStore) ListByTask(ctx context.Context, taskID int64) ([]domain.Payment, error) {
	return listPayments(ctx, s.db, `SELECT `+paymentColumns+` FROM payments WHERE task_id = $1 ORDER BY id`, taskID)
}

func (s *PaymentStore) ListPendingBefore(ctx context.Context, before time.Time) ([]domain.Payment, error) {
	return listPayments(ctx, s.db, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at`, string(domain.PaymentStatusPending), before)
}

type paymentTx struct {
	tx pgx.Tx
}

func (t *paymentTx) FindByOperationKey(ctx context.Context, key string) (*domain.Payment, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE operation_key = $1`, key))
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, nil
	}
	return p, err
}

func (t *paymentTx) Find(ctx context.Context, taskID, recipientID int64) ([]domain.Payment, error) {
	return listPayments(ctx, t.tx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE task_id = $1 AND ($2::bigint = 0 OR recipient_id = $2)
		ORDER BY created_at DESC, id DESC
		FOR UPDATE`, taskID, recipientID)
}

func (t *paymentTx) Insert(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	created, err := scanPayment(t.tx.QueryRow(ctx, `
		INSERT INTO payments (operation_key, payer_id, recipient_id, task_id, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+paymentColumns,
		p.OperationKey, p.PayerID, p.RecipientID, p.TaskID, p.Amount, string(p.Status)))
	switch uniqueConstraint(err) {
	case "":
	case "payments_one_open_per_recipient", "payments_operation_key_key":
		return nil, domain.ErrDuplicateHold
	}
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return created, nil
}

func (t *paymentTx) SetStatus(ctx context.Context, id int64, status domain.PaymentStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (t *paymentTx) Deduct(ctx context.Context, userID int64, amount decimal.Decimal, paymentID *int64, description string) (decimal.Decimal, error) {
	return deductBalance(ctx, t.tx, userID, amount, paymentID, description)
}

func (t *paymentTx) Credit(ctx context.Context, userID int64, amount decimal.Decimal, paymentID *int64, description string) (decimal.Decimal, error) {
	return creditBalance(ctx, t.tx, userID, amount, paymentID, description)
}
