package domain

import (
	"time"

	"github.com/google/uuid"
)

type SagaKind string

const (
	SagaOfferAccept        SagaKind = "offer.accept"
	SagaApplicationApprove SagaKind = "application.approve"
	SagaPaymentRelease     SagaKind = "payment.release"
	SagaPaymentRefund      SagaKind = "payment.refund"
)

type SagaStatus string

const (
	SagaStatusStarted   SagaStatus = "started"
	SagaStatusCompleted SagaStatus = "completed"
	// SagaStatusReplay marks a saga whose recovery action still has to run.
	SagaStatusReplay    SagaStatus = "replay"
	SagaStatusResolved  SagaStatus = "resolved"
	SagaStatusAbandoned SagaStatus = "abandoned"
)

// Saga is one row of the intent log.
type Saga struct {
	ID            uuid.UUID
	Kind          SagaKind
	TaskID        int64
	RunnerID      int64
	OfferID       int64
	ApplicationID int64
	Step          string
	Status        SagaStatus
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
