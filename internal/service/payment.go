package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/gigs/internal/config"
	"github.com/set-night/gigs/internal/domain"
)

// EscrowObserver receives every committed escrow movement.
type EscrowObserver func(ctx context.Context, event string, p domain.Payment)

// PaymentService is the escrow engine. Funds are deducted from the payer on
// hold and credited to the recipient on release or back to the payer on refund.
type PaymentService struct {
	payments PaymentStore
	verifier ParticipantVerifier
	calls    caller
	observer EscrowObserver
	now      func() time.Time
}

func NewPaymentService(payments PaymentStore, verifier ParticipantVerifier, timeout time.Duration) *PaymentService {
	return &PaymentService{
		payments: payments,
		verifier: verifier,
		calls:    newCaller(timeout),
		now:      time.Now,
	}
}

func (s *PaymentService) SetObserver(fn EscrowObserver) {
	s.observer = fn
}

// Hold deducts the amount from the payer and records a pending payment.
// Repeating a request with the same operation key returns the first payment
// without charging again. A recent pending hold for the same task, payer,
// recipient and amount is adopted as well, so a caller that lost the reply
// of a committed hold can retry under a new key.
func (s *PaymentService) Hold(ctx context.Context, req domain.HoldRequest) (*domain.Payment, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if req.PayerID <= 0 || req.RecipientID <= 0 || req.TaskID <= 0 {
		return nil, domain.Validation("payer, recipient and task are required")
	}
	if req.PayerID == req.RecipientID {
		return nil, domain.ErrSamePayer
	}
	if req.OperationKey == "" {
		req.OperationKey = uuid.NewString()
	}

	var allowed bool
	out := s.calls.do(ctx, "task.verify_participants", critical, func(ctx context.Context) error {
		var err error
		allowed, err = s.verifier.VerifyParticipantsAndStatus(ctx, req.TaskID, req.PayerID, req.RecipientID)
		return err
	})
	if err := out.Err(); err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrParticipants
	}

	var (
		payment  *domain.Payment
		replayed bool
	)
	err := s.payments.InTx(ctx, func(tx PaymentTx) error {
		existing, err := tx.FindByOperationKey(ctx, req.OperationKey)
		if err != nil {
			return fmt.Errorf("find by operation key: %w", err)
		}
		if existing != nil {
			payment = existing
			replayed = true
			return nil
		}

		current, err := tx.Find(ctx, req.TaskID, req.RecipientID)
		if err != nil {
			return fmt.Errorf("find payments: %w", err)
		}
		for i := range current {
			p := &current[i]
			if p.Status.IsTerminal() {
				continue
			}
			if s.adoptable(p, req) {
				payment = p
				replayed = true
				return nil
			}
			return domain.ErrDuplicateHold
		}

		payment, err = tx.Insert(ctx, &domain.Payment{
			OperationKey: req.OperationKey,
			PayerID:      req.PayerID,
			RecipientID:  req.RecipientID,
			TaskID:       req.TaskID,
			Amount:       req.Amount,
			Status:       domain.PaymentStatusPending,
		})
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		desc := fmt.Sprintf("Escrow hold for task #%d", req.TaskID)
		if _, err := tx.Deduct(ctx, req.PayerID, req.Amount, &payment.ID, desc); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		slog.Info("escrow hold replayed",
			"payment_id", payment.ID,
			"operation_key", req.OperationKey,
			"original_key", payment.OperationKey,
		)
		return payment, nil
	}

	slog.Info("escrow hold",
		"payment_id", payment.ID,
		"task_id", payment.TaskID,
		"payer_id", payment.PayerID,
		"recipient_id", payment.RecipientID,
		"amount", payment.Amount.String(),
	)
	s.notify(ctx, "hold", *payment)
	return payment, nil
}

// Release credits the recipient with the task's open payment to them.
func (s *PaymentService) Release(ctx context.Context, taskID, recipientID int64) (*domain.Payment, error) {
	return s.settle(ctx, taskID, recipientID, domain.PaymentStatusCompleted)
}

// Refund returns the task's open payment to the payer. recipientID 0 refunds
// the only open payment of the task.
func (s *PaymentService) Refund(ctx context.Context, taskID, recipientID int64) (*domain.Payment, error) {
	return s.settle(ctx, taskID, recipientID, domain.PaymentStatusRefunded)
}

func (s *PaymentService) settle(ctx context.Context, taskID, recipientID int64, to domain.PaymentStatus) (*domain.Payment, error) {
	var settled domain.Payment
	err := s.payments.InTx(ctx, func(tx PaymentTx) error {
		found, err := tx.Find(ctx, taskID, recipientID)
		if err != nil {
			return fmt.Errorf("find payments: %w", err)
		}
		if len(found) == 0 {
			return domain.ErrPaymentNotFound
		}

		var open []domain.Payment
		for _, p := range found {
			if !p.Status.Settleable() {
				continue
			}
			open = append(open, p)
		}
		switch {
		case len(open) == 0:
			return domain.ErrPaymentSettled
		case len(open) > 1:
			return domain.ErrAmbiguousPayment
		}

		p := open[0]
		beneficiary, desc := p.RecipientID, fmt.Sprintf("Payment for task #%d", p.TaskID)
		if to == domain.PaymentStatusRefunded {
			beneficiary, desc = p.PayerID, fmt.Sprintf("Refund for task #%d", p.TaskID)
		}
		if _, err := tx.Credit(ctx, beneficiary, p.Amount, &p.ID, desc); err != nil {
			return fmt.Errorf("credit user %d: %w", beneficiary, err)
		}
		if err := tx.SetStatus(ctx, p.ID, to); err != nil {
			return fmt.Errorf("set payment status: %w", err)
		}
		p.Status = to
		settled = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := "release"
	if to == domain.PaymentStatusRefunded {
		event = "refund"
	}
	slog.Info("escrow "+event,
		"payment_id", settled.ID,
		"task_id", settled.TaskID,
		"recipient_id", settled.RecipientID,
		"amount", settled.Amount.String(),
	)
	s.notify(ctx, event, settled)
	return &settled, nil
}

// adoptable reports whether an open payment is the unacknowledged result of
// an earlier hold for the same request. Holds old enough for the orphan
// sweep are never adopted.
func (s *PaymentService) adoptable(p *domain.Payment, req domain.HoldRequest) bool {
	return p.Status == domain.PaymentStatusPending &&
		p.PayerID == req.PayerID &&
		p.Amount.Equal(req.Amount) &&
		s.now().Sub(p.CreatedAt) < config.HoldAdoptWindow
}

// MarkHeld moves pending payments of the assignment to held.
func (s *PaymentService) MarkHeld(ctx context.Context, taskID, recipientID int64) error {
	return s.payments.InTx(ctx, func(tx PaymentTx) error {
		found, err := tx.Find(ctx, taskID, recipientID)
		if err != nil {
			return fmt.Errorf("find payments: %w", err)
		}
		if len(found) == 0 {
			return domain.ErrPaymentNotFound
		}
		for _, p := range found {
			if p.Status != domain.PaymentStatusPending {
				continue
			}
			if err := tx.SetStatus(ctx, p.ID, domain.PaymentStatusHeld); err != nil {
				return fmt.Errorf("set payment status: %w", err)
			}
		}
		return nil
	})
}

// SweepOrphanHolds settles pending holds older than age. Holds whose
// assignment never committed are refunded. The rest are marked held, which
// records that the assignment was confirmed and keeps them out of later sweeps.
func (s *PaymentService) SweepOrphanHolds(ctx context.Context, age time.Duration) (int, error) {
	pending, err := s.payments.ListPendingBefore(ctx, s.now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("list pending payments: %w", err)
	}

	refunded := 0
	for _, p := range pending {
		var assigned bool
		out := s.calls.do(ctx, "task.is_assigned", critical, func(ctx context.Context) error {
			var err error
			assigned, err = s.verifier.IsAssigned(ctx, p.TaskID, p.RecipientID)
			return err
		})
		if out.Failed() {
			slog.Warn("skip orphan hold", "payment_id", p.ID, "task_id", p.TaskID, "error", out.Cause())
			continue
		}

		if assigned {
			if err := s.MarkHeld(ctx, p.TaskID, p.RecipientID); err != nil {
				slog.Error("failed to mark hold", "payment_id", p.ID, "error", err)
			}
			continue
		}
		if _, err := s.Refund(ctx, p.TaskID, p.RecipientID); err != nil {
			slog.Error("failed to refund orphan hold", "payment_id", p.ID, "task_id", p.TaskID, "error", err)
			continue
		}
		refunded++
	}
	return refunded, nil
}

func (s *PaymentService) Get(ctx context.Context, id int64) (*domain.Payment, error) {
	return s.payments.Get(ctx, id)
}

func (s *PaymentService) ListByTask(ctx context.Context, taskID int64) ([]domain.Payment, error) {
	return s.payments.ListByTask(ctx, taskID)
}

func (s *PaymentService) notify(ctx context.Context, event string, p domain.Payment) {
	if s.observer != nil {
		s.observer(ctx, event, p)
	}
}
