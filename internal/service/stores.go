package service

import (
	"context"
	"time"

	"github.com/set-night/gigs/internal/domain"
	"github.com/shopspring/decimal"
)

// TaskStore persists tasks and their assignees.
type TaskStore interface {
	Create(ctx context.Context, t *domain.Task) (*domain.Task, error)
	Get(ctx context.Context, id int64) (*domain.Task, error)
	// Update locks the task row, applies fn and persists the result in one
	// transaction. An error from fn rolls everything back.
	Update(ctx context.Context, id int64, fn func(t *domain.Task) error) (*domain.Task, error)
	// Delete locks the task row, runs guard and deletes the row if guard passes.
	// Delete runs before under the row lock and removes the task only when
	// it returns nil.
	Delete(ctx context.Context, id int64, before func(t *domain.Task) error) error
	ListByPoster(ctx context.Context, posterID int64) ([]domain.Task, error)
}

// OfferStore persists offers on single-assignment tasks.
type OfferStore interface {
	Get(ctx context.Context, id int64) (*domain.Offer, error)
	ListByTask(ctx context.Context, taskID int64) ([]domain.Offer, error)
	ListByRunner(ctx context.Context, runnerID int64) ([]domain.Offer, error)
	// FindByRunnerAndTask returns nil when the runner has not offered.
	FindByRunnerAndTask(ctx context.Context, runnerID, taskID int64) (*domain.Offer, error)
	RunnerHasAccepted(ctx context.Context, runnerID int64) (bool, error)
	// LockTask runs fn in one transaction with every offer of the task locked.
	LockTask(ctx context.Context, taskID int64, fn func(tx OfferTx) error) error
	OfferRecords
}

type OfferTx interface {
	Offers() []domain.Offer
	Create(ctx context.Context, o *domain.Offer) (*domain.Offer, error)
	RunnerHasAccepted(ctx context.Context, runnerID int64) (bool, error)
	SetStatus(ctx context.Context, id int64, status domain.OfferStatus) error
	Delete(ctx context.Context, id int64) error
	DeleteOthers(ctx context.Context, taskID, keepID int64) error
}

// OfferRecords is what the task coordinator may ask of the offer side.
type OfferRecords interface {
	DeleteByTask(ctx context.Context, taskID int64) error
	// SetStatusForTask moves the task's offers whose status is in from to
	// status and returns how many changed.
	SetStatusForTask(ctx context.Context, taskID int64, from []domain.OfferStatus, to domain.OfferStatus) (int, error)
}

// ApplicationStore persists applications to multi-assignment tasks.
type ApplicationStore interface {
	Create(ctx context.Context, a *domain.Application) (*domain.Application, error)
	Get(ctx context.Context, id int64) (*domain.Application, error)
	// FindByApplicantAndTask returns nil when the applicant has not applied.
	FindByApplicantAndTask(ctx context.Context, applicantID, taskID int64) (*domain.Application, error)
	ListByTask(ctx context.Context, taskID int64) ([]domain.Application, error)
	ListByApplicant(ctx context.Context, applicantID int64) ([]domain.Application, error)
	// Transition moves the application to status if its current status is in
	// from, atomically. It returns ErrNotPending when the status did not match.
	Transition(ctx context.Context, id int64, from []domain.ApplicationStatus, to domain.ApplicationStatus) (*domain.Application, error)
	// DeletePending deletes the application only while it is pending.
	DeletePending(ctx context.Context, id int64) error
	ApplicationRecords
}

// ApplicationRecords is what the task coordinator may ask of the application side.
type ApplicationRecords interface {
	DeleteByTask(ctx context.Context, taskID int64) error
	SetStatusForTask(ctx context.Context, taskID int64, from []domain.ApplicationStatus, to domain.ApplicationStatus) (int, error)
	SetStatusForApplicant(ctx context.Context, taskID, applicantID int64, from []domain.ApplicationStatus, to domain.ApplicationStatus) (int, error)
}

// PaymentStore persists escrow payments. Balance movements happen through
// the same transaction so a hold and its deduction commit together.
type PaymentStore interface {
	InTx(ctx context.Context, fn func(tx PaymentTx) error) error
	Get(ctx context.Context, id int64) (*domain.Payment, error)
	ListByTask(ctx context.Context, taskID int64) ([]domain.Payment, error)
	ListPendingBefore(ctx context.Context, before time.Time) ([]domain.Payment, error)
}

type PaymentTx interface {
	// FindByOperationKey returns nil when no payment carries key.
	FindByOperationKey(ctx context.Context, key string) (*domain.Payment, error)
	// Find locks and returns the task's payments to recipient, newest first.
	// recipientID 0 matches every recipient.
	Find(ctx context.Context, taskID, recipientID int64) ([]domain.Payment, error)
	Insert(ctx context.Context, p *domain.Payment) (*domain.Payment, error)
	SetStatus(ctx context.Context, id int64, status domain.PaymentStatus) error
	Ledger
}

// Ledger moves user balances. Deduct rejects with ErrInsufficientBalance
// rather than letting a balance go negative.
type Ledger interface {
	Deduct(ctx context.Context, userID int64, amount decimal.Decimal, paymentID *int64, description string) (decimal.Decimal, error)
	Credit(ctx context.Context, userID int64, amount decimal.Decimal, paymentID *int64, description string) (decimal.Decimal, error)
}

// UserDirectory answers existence probes.
type UserDirectory interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

type UserStore interface {
	UserDirectory
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	UpdateInfo(ctx context.Context, id int64, firstName, username string) error
	// Credit adds amount to the balance and records a ledger row in one transaction.
	Credit(ctx context.Context, id int64, amount decimal.Decimal, description string) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]domain.Transaction, error)
}

type SagaStore interface {
	Insert(ctx context.Context, s *domain.Saga) error
	Update(ctx context.Context, s *domain.Saga) error
	Delete(ctx context.Context, s *domain.Saga) error
	// ListOpen returns sagas in replay plus started sagas not touched since staleBefore.
	ListOpen(ctx context.Context, staleBefore time.Time, limit int) ([]domain.Saga, error)
}

// Notifier delivers a short message about a task to a user.
type Notifier interface {
	Notify(ctx context.Context, userID, taskID int64, title string) error
}

// PaymentGateway is the escrow engine as seen by the other components.
type PaymentGateway interface {
	Hold(ctx context.Context, req domain.HoldRequest) (*domain.Payment, error)
	Release(ctx context.Context, taskID, recipientID int64) (*domain.Payment, error)
	Refund(ctx context.Context, taskID, recipientID int64) (*domain.Payment, error)
}

// ParticipantVerifier is the participants/status check run before funds are held.
type ParticipantVerifier interface {
	VerifyParticipantsAndStatus(ctx context.Context, taskID, payerID, recipientID int64) (bool, error)
	IsAssigned(ctx context.Context, taskID, userID int64) (bool, error)
}
