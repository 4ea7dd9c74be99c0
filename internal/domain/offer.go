package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OfferStatus string

const (
	OfferStatusPending         OfferStatus = "pending"
	OfferStatusAccepted        OfferStatus = "accepted"
	OfferStatusAwaitingPayment OfferStatus = "awaiting_payment"
	OfferStatusPaid            OfferStatus = "paid"
	OfferStatusCancelled       OfferStatus = "cancelled"
)

// Claimed reports whether the offer holds the task: accepted or any later stage.
func (s OfferStatus) Claimed() bool {
	return s == OfferStatusAccepted || s == OfferStatusAwaitingPayment || s == OfferStatusPaid
}

type Offer struct {
	ID        int64
	TaskID    int64
	RunnerID  int64
	Amount    decimal.Decimal
	Comment   string
	Status    OfferStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
