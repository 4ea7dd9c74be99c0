package api

import (
	"time"

	"github.com/set-night/gigs/internal/domain"
	"github.com/shopspring/decimal"
)

type sagaView struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	TaskID        int64     `json:"task_id"`
	RunnerID      int64     `json:"runner_id,omitempty"`
	OfferID       int64     `json:"offer_id,omitempty"`
	ApplicationID int64     `json:"application_id,omitempty"`
	Step          string    `json:"step"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func newSagaView(s domain.Saga) sagaView {
	return sagaView{
		ID:            s.ID.String(),
		Kind:          string(s.Kind),
		TaskID:        s.TaskID,
		RunnerID:      s.RunnerID,
		OfferID:       s.OfferID,
		ApplicationID: s.ApplicationID,
		Step:          s.Step,
		Status:        string(s.Status),
		Attempts:      s.Attempts,
		LastError:     s.LastError,
		UpdatedAt:     s.UpdatedAt,
	}
}

type paymentView struct {
	ID           int64           `json:"id"`
	OperationKey string          `json:"operation_key"`
	PayerID      int64           `json:"payer_id"`
	RecipientID  int64           `json:"recipient_id"`
	TaskID       int64           `json:"task_id"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

func newPaymentView(p domain.Payment) paymentView {
	return paymentView{
		ID:           p.ID,
		OperationKey: p.OperationKey,
		PayerID:      p.PayerID,
		RecipientID:  p.RecipientID,
		TaskID:       p.TaskID,
		Amount:       p.Amount,
		Status:       string(p.Status),
		CreatedAt:    p.CreatedAt,
	}
}
