package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusHeld      PaymentStatus = "held"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Settleable reports whether release or refund is legal.
func (s PaymentStatus) Settleable() bool {
	return s == PaymentStatusPending || s == PaymentStatusHeld
}

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusRefunded || s == PaymentStatusFailed
}

// Payment is an escrow record: funds already deducted from the payer and
// waiting for release to the recipient or refund to the payer.
type Payment struct {
	ID           int64
	OperationKey string
	PayerID      int64
	RecipientID  int64
	TaskID       int64
	Amount       decimal.Decimal
	Status       PaymentStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type HoldRequest struct {
	// OperationKey makes the hold idempotent; a repeated key returns the
	// existing payment instead of charging again.
	OperationKey string
	PayerID      int64
	RecipientID  int64
	TaskID       int64
	Amount       decimal.Decimal
}
