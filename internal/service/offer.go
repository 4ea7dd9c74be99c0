package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/set-night/gigs/internal/domain"
	"github.com/shopspring/decimal"
)

// TaskAssigner is the coordinator as seen by the offer protocol.
type TaskAssigner interface {
	Get(ctx context.Context, id int64) (*domain.Task, error)
	AssignRunner(ctx context.Context, req AssignRequest) (*domain.Task, error)
}

type SubmitOfferRequest struct {
	TaskID   int64
	RunnerID int64
	Amount   decimal.Decimal
	Comment  string
}

// OfferService lets runners bid on single tasks and lets the poster accept
// exactly one bid.
type OfferService struct {
	offers   OfferStore
	tasks    TaskAssigner
	users    UserDirectory
	notifier Notifier
	sagas    *SagaLog
	calls    caller
}

func NewOfferService(offers OfferStore, tasks TaskAssigner, users UserDirectory, notifier Notifier, sagas *SagaLog, timeout time.Duration) *OfferService {
	s := &OfferService{
		offers:   offers,
		tasks:    tasks,
		users:    users,
		notifier: notifier,
		sagas:    sagas,
		calls:    newCaller(timeout),
	}
	sagas.Handle(domain.SagaOfferAccept, s.replayAccept)
	return s
}

func (s *OfferService) Submit(ctx context.Context, req SubmitOfferRequest) (*domain.Offer, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if req.TaskID <= 0 || req.RunnerID <= 0 {
		return nil, domain.Validation("task and runner are required")
	}

	exists, err := s.calls.probe(ctx, "users.exists", softProbe, func(ctx context.Context) (bool, error) {
		return s.users.Exists(ctx, req.RunnerID)
	})
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrUserNotFound
	}

	t, err := s.task(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	if t.Kind != domain.TaskKindSingle {
		return nil, domain.ErrWrongKind
	}
	if t.Status != domain.TaskStatusOpen {
		return nil, domain.ErrTaskNotOpen
	}
	if t.PosterID == req.RunnerID {
		return nil, domain.ErrPosterIsRunner
	}

	existing, err := s.offers.FindByRunnerAndTask(ctx, req.RunnerID, req.TaskID)
	if err != nil {
		return nil, fmt.Errorf("find offer: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrAlreadyOffered
	}

	var offer *domain.Offer
	err = s.offers.LockTask(ctx, req.TaskID, func(tx OfferTx) error {
		for _, o := range tx.Offers() {
			if o.Status.Claimed() {
				return domain.ErrAlreadyAccepted
			}
		}
		busy, err := tx.RunnerHasAccepted(ctx, req.RunnerID)
		if err != nil {
			return fmt.Errorf("check runner offers: %w", err)
		}
		if busy {
			return domain.ErrRunnerBusy
		}
		offer, err = tx.Create(ctx, &domain.Offer{
			TaskID:   req.TaskID,
			RunnerID: req.RunnerID,
			Amount:   req.Amount,
			Comment:  req.Comment,
			Status:   domain.OfferStatusPending,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("offer submitted", "offer_id", offer.ID, "task_id", offer.TaskID, "runner_id", offer.RunnerID)
	s.notify(ctx, t.PosterID, t.ID, fmt.Sprintf("New offer of %s on \"%s\"", offer.Amount.StringFixed(2), t.Title))
	return offer, nil
}

// Accept makes offerID the only offer of the task and hands the runner to
// the coordinator, which holds the amount and starts the task.
func (s *OfferService) Accept(ctx context.Context, taskID, offerID, posterID int64) (*domain.Offer, error) {
	t, err := s.task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.PosterID != posterID {
		return nil, domain.ErrNotPoster
	}
	if t.Kind != domain.TaskKindSingle {
		return nil, domain.ErrWrongKind
	}
	if t.Status != domain.TaskStatusOpen {
		if t.RunnerID() != 0 {
			return nil, domain.ErrAlreadyAccepted
		}
		return nil, domain.ErrTaskNotOpen
	}

	sg, err := s.sagas.Begin(ctx, domain.Saga{Kind: domain.SagaOfferAccept, TaskID: taskID, OfferID: offerID})
	if err != nil {
		return nil, err
	}

	var accepted domain.Offer
	err = s.offers.LockTask(ctx, taskID, func(tx OfferTx) error {
		var target *domain.Offer
		offers := tx.Offers()
		for i := range offers {
			if offers[i].Status.Claimed() {
				return domain.ErrAlreadyAccepted
			}
			if offers[i].ID == offerID {
				target = &offers[i]
			}
		}
		if target == nil {
			return domain.ErrOfferNotFound
		}
		if target.Status != domain.OfferStatusPending {
			return domain.ErrNotPending
		}

		busy, err := tx.RunnerHasAccepted(ctx, target.RunnerID)
		if err != nil {
			return fmt.Errorf("check runner offers: %w", err)
		}
		if busy {
			return domain.ErrRunnerBusy
		}

		if err := tx.SetStatus(ctx, target.ID, domain.OfferStatusAccepted); err != nil {
			return err
		}
		if err := tx.DeleteOthers(ctx, taskID, target.ID); err != nil {
			return fmt.Errorf("delete rival offers: %w", err)
		}
		accepted = *target
		accepted.Status = domain.OfferStatusAccepted
		return nil
	})
	if err != nil {
		s.sagas.Discard(ctx, sg)
		return nil, err
	}

	sg.RunnerID = accepted.RunnerID
	s.sagas.Advance(ctx, sg, "task.assign")
	out := s.calls.do(ctx, "task.assign", critical, func(ctx context.Context) error {
		_, err := s.tasks.AssignRunner(ctx, AssignRequest{
			TaskID:       taskID,
			PosterID:     posterID,
			RunnerID:     accepted.RunnerID,
			Amount:       accepted.Amount,
			OperationKey: sg.ID.String(),
		})
		return err
	})
	if err := out.Err(); err != nil {
		s.sagas.Fail(ctx, sg, out.Cause())
		return nil, err
	}

	s.sagas.Complete(ctx, sg)
	slog.Info("offer accepted", "offer_id", accepted.ID, "task_id", taskID, "runner_id", accepted.RunnerID)
	return &accepted, nil
}

// Cancel withdraws the runner's offer while it is still pending.
func (s *OfferService) Cancel(ctx context.Context, runnerID, taskID int64) error {
	return s.offers.LockTask(ctx, taskID, func(tx OfferTx) error {
		for _, o := range tx.Offers() {
			if o.RunnerID != runnerID {
				continue
			}
			if o.Status != domain.OfferStatusPending {
				return domain.ErrNotPending
			}
			return tx.Delete(ctx, o.ID)
		}
		return domain.ErrOfferNotFound
	})
}

func (s *OfferService) ListByTask(ctx context.Context, taskID int64) ([]domain.Offer, error) {
	return s.offers.ListByTask(ctx, taskID)
}

func (s *OfferService) ListByRunner(ctx context.Context, runnerID int64) ([]domain.Offer, error) {
	return s.offers.ListByRunner(ctx, runnerID)
}

// replayAccept reverts an accepted offer whose assignment never landed.
// Rival offers deleted during the accept are not restored.
func (s *OfferService) replayAccept(ctx context.Context, sg *domain.Saga) error {
	t, err := s.tasks.Get(ctx, sg.TaskID)
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		return nil
	case err != nil:
		return err
	}
	if sg.RunnerID != 0 && t.RunnerID() == sg.RunnerID && t.Status != domain.TaskStatusOpen {
		return nil
	}

	return s.offers.LockTask(ctx, sg.TaskID, func(tx OfferTx) error {
		for _, o := range tx.Offers() {
			if o.ID == sg.OfferID && o.Status == domain.OfferStatusAccepted {
				slog.Info("reverting accepted offer", "offer_id", o.ID, "task_id", o.TaskID)
				return tx.SetStatus(ctx, o.ID, domain.OfferStatusPending)
			}
		}
		return nil
	})
}

func (s *OfferService) task(ctx context.Context, id int64) (*domain.Task, error) {
	var t *domain.Task
	out := s.calls.do(ctx, "task.get", critical, func(ctx context.Context) error {
		var err error
		t, err = s.tasks.Get(ctx, id)
		return err
	})
	if err := out.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *OfferService) notify(ctx context.Context, userID, taskID int64, title string) {
	if s.notifier == nil {
		return
	}
	s.calls.do(ctx, "notify", bestEffort, func(ctx context.Context) error {
		return s.notifier.Notify(ctx, userID, taskID, title)
	})
}
