package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/set-night/gigs/internal/config"
	"github.com/set-night/gigs/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// AssignRequest asks the coordinator to put a runner on a single task.
type AssignRequest struct {
	TaskID   int64
	PosterID int64
	RunnerID int64
	Amount   decimal.Decimal
	// OperationKey is passed to the escrow hold so a retried assignment
	// charges the poster once.
	OperationKey string
}

// TaskService owns the task state machine.
type TaskService struct {
	tasks    TaskStore
	users    UserDirectory
	payments PaymentGateway
	offers   OfferRecords
	apps     ApplicationRecords
	notifier Notifier
	sagas    *SagaLog
	calls    caller
	now      func() time.Time
}

func NewTaskService(
	tasks TaskStore,
	users UserDirectory,
	payments PaymentGateway,
	offers OfferRecords,
	apps ApplicationRecords,
	notifier Notifier,
	sagas *SagaLog,
	timeout time.Duration,
) *TaskService {
	s := &TaskService{
		tasks:    tasks,
		users:    users,
		payments: payments,
		offers:   offers,
		apps:     apps,
		notifier: notifier,
		sagas:    sagas,
		calls:    newCaller(timeout),
		now:      time.Now,
	}
	sagas.Handle(domain.SagaPaymentRelease, s.replayRelease)
	sagas.Handle(domain.SagaPaymentRefund, s.replayRefund)
	return s
}

func (s *TaskService) CreateTask(ctx context.Context, req domain.CreateTaskRequest) (*domain.Task, error) {
	if err := validateTask(&req, s.now()); err != nil {
		return nil, err
	}

	exists, err := s.calls.probe(ctx, "users.exists", hardProbe, func(ctx context.Context) (bool, error) {
		return s.users.Exists(ctx, req.PosterID)
	})
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrUserNotFound
	}

	t := &domain.Task{
		PosterID: req.PosterID,
		Kind:     req.Kind,
		Status:   domain.TaskStatusOpen,
	}
	ops, err := opsFor(req.Kind)
	if err != nil {
		return nil, err
	}
	ops.applyUpdate(t, &req)

	created, err := s.tasks.Create(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	slog.Info("task created", "task_id", created.ID, "poster_id", created.PosterID, "kind", created.Kind)
	return created, nil
}

func (s *TaskService) Get(ctx context.Context, id int64) (*domain.Task, error) {
	return s.tasks.Get(ctx, id)
}

func (s *TaskService) ListByPoster(ctx context.Context, posterID int64) ([]domain.Task, error) {
	return s.tasks.ListByPoster(ctx, posterID)
}

// UpdateTask edits a task that nobody is working on yet.
func (s *TaskService) UpdateTask(ctx context.Context, taskID, requesterID int64, req domain.CreateTaskRequest) (*domain.Task, error) {
	return s.tasks.Update(ctx, taskID, func(t *domain.Task) error {
		if t.PosterID != requesterID {
			return domain.ErrNotPoster
		}
		if t.Status != domain.TaskStatusOpen {
			return domain.Conflictf("task cannot be edited while %s", t.Status)
		}

		req.Kind = t.Kind
		req.PosterID = t.PosterID
		if err := validateTask(&req, s.now()); err != nil {
			return err
		}
		if len(t.Assignees) > 0 {
			if !req.Amount.Equal(t.Amount) {
				return domain.Conflict("pay cannot change once runners are assigned")
			}
			if t.Kind == domain.TaskKindMulti && req.RequiredPeople < len(t.Assignees) {
				return domain.Validationf("event already has %d runners", len(t.Assignees))
			}
		}

		ops, err := opsFor(t.Kind)
		if err != nil {
			return err
		}
		ops.applyUpdate(t, &req)
		return nil
	})
}

// UpdateStatus moves a task along the state machine on behalf of actorID.
func (s *TaskService) UpdateStatus(ctx context.Context, taskID int64, next domain.TaskStatus, actorID int64) (*domain.Task, error) {
	if !next.Valid() {
		return nil, domain.Validationf("unknown status %q", next)
	}

	var sagas []*domain.Saga
	updated, err := s.tasks.Update(ctx, taskID, func(t *domain.Task) error {
		if t.Status.IsTerminal() {
			return domain.ErrTaskTerminal
		}
		if !t.Status.CanTransitionTo(next) {
			return domain.ErrIllegalTransition
		}
		ops, err := opsFor(t.Kind)
		if err != nil {
			return err
		}

		switch next {
		case domain.TaskStatusInProgress:
			err = ops.authorizeStart(t, actorID)
		case domain.TaskStatusDone:
			err = ops.authorizeDone(t, actorID)
		case domain.TaskStatusCompleted, domain.TaskStatusCancelled:
			if t.PosterID != actorID {
				err = domain.ErrNotPoster
			}
		}
		if err != nil {
			return err
		}

		// Settlement intent is logged before the status commits. A saga
		// whose task never reached the status resolves as a no-op.
		sagas = sagas[:0]
		kind := domain.SagaPaymentRelease
		if next == domain.TaskStatusCancelled {
			kind = domain.SagaPaymentRefund
		}
		if next == domain.TaskStatusCompleted || next == domain.TaskStatusCancelled {
			for _, runnerID := range t.Assignees {
				sg, err := s.sagas.Begin(ctx, domain.Saga{Kind: kind, TaskID: t.ID, RunnerID: runnerID})
				if err != nil {
					return err
				}
				sagas = append(sagas, sg)
			}
		}

		t.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("task status changed", "task_id", updated.ID, "status", updated.Status, "actor_id", actorID)

	ops, _ := opsFor(updated.Kind)
	switch next {
	case domain.TaskStatusDone:
		s.bestEffort(ctx, "records.awaiting_payment", updated.ID, func(ctx context.Context) error {
			return ops.onDone(ctx, s, updated)
		})
		s.notify(ctx, updated.PosterID, updated, "Runner marked the task as done")
	case domain.TaskStatusCompleted:
		s.settleAll(ctx, updated, sagas, s.release)
	case domain.TaskStatusCancelled:
		s.bestEffort(ctx, "records.cancel", updated.ID, func(ctx context.Context) error {
			return ops.onCancel(ctx, s, updated)
		})
		s.settleAll(ctx, updated, sagas, s.refund)
	case domain.TaskStatusInProgress:
		for _, runnerID := range updated.Assignees {
			s.notify(ctx, runnerID, updated, "Event has started")
		}
	}
	return updated, nil
}

// settleAll runs one settlement per assignee. A failed settlement never
// blocks the others.
func (s *TaskService) settleAll(ctx context.Context, t *domain.Task, sagas []*domain.Saga, settle func(ctx context.Context, t *domain.Task, sg *domain.Saga)) {
	var g errgroup.Group
	g.SetLimit(config.ReleaseConcurrency)
	for _, sg := range sagas {
		g.Go(func() error {
			settle(ctx, t, sg)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *TaskService) release(ctx context.Context, t *domain.Task, sg *domain.Saga) {
	s.sagas.Advance(ctx, sg, "payment.release")
	out := s.calls.do(ctx, "payment.release", critical, func(ctx context.Context) error {
		_, err := s.payments.Release(ctx, t.ID, sg.RunnerID)
		return err
	})
	if out.Failed() {
		slog.Error("release failed", "task_id", t.ID, "runner_id", sg.RunnerID, "error", out.Cause())
		s.sagas.Fail(ctx, sg, out.Cause())
		return
	}

	s.markPaid(ctx, t, sg.RunnerID)
	s.sagas.Complete(ctx, sg)
	s.notify(ctx, sg.RunnerID, t, "Payment released")
}

func (s *TaskService) refund(ctx context.Context, t *domain.Task, sg *domain.Saga) {
	s.sagas.Advance(ctx, sg, "payment.refund")
	out := s.calls.do(ctx, "payment.refund", critical, func(ctx context.Context) error {
		_, err := s.payments.Refund(ctx, t.ID, sg.RunnerID)
		return err
	})
	if out.Failed() {
		slog.Error("refund failed", "task_id", t.ID, "runner_id", sg.RunnerID, "error", out.Cause())
		s.sagas.Fail(ctx, sg, out.Cause())
		return
	}
	s.sagas.Complete(ctx, sg)
	s.notify(ctx, sg.RunnerID, t, "Task was cancelled")
}

func (s *TaskService) markPaid(ctx context.Context, t *domain.Task, runnerID int64) {
	ops, err := opsFor(t.Kind)
	if err != nil {
		return
	}
	s.bestEffort(ctx, "records.paid", t.ID, func(ctx context.Context) error {
		return ops.onPaid(ctx, s, t, runnerID)
	})
}

// AssignRunner holds the agreed amount and puts the runner on an open
// single task. A failed hold leaves the task untouched.
func (s *TaskService) AssignRunner(ctx context.Context, req AssignRequest) (*domain.Task, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	replayed := false
	updated, err := s.tasks.Update(ctx, req.TaskID, func(t *domain.Task) error {
		if t.Kind != domain.TaskKindSingle {
			return domain.ErrWrongKind
		}
		if t.PosterID != req.PosterID {
			return domain.ErrNotPoster
		}
		if req.RunnerID == t.PosterID {
			return domain.ErrPosterIsRunner
		}
		if t.Status == domain.TaskStatusInProgress && t.RunnerID() == req.RunnerID && t.Amount.Equal(req.Amount) {
			replayed = true
			return nil
		}
		if t.Status != domain.TaskStatusOpen {
			return domain.ErrTaskNotOpen
		}
		if t.RunnerID() != 0 {
			return domain.ErrAlreadyAssigned
		}

		out := s.calls.do(ctx, "payment.hold", critical, func(ctx context.Context) error {
			_, err := s.payments.Hold(ctx, domain.HoldRequest{
				OperationKey: req.OperationKey,
				PayerID:      t.PosterID,
				RecipientID:  req.RunnerID,
				TaskID:       t.ID,
				Amount:       req.Amount,
			})
			return err
		})
		if err := out.Err(); err != nil {
			return err
		}

		t.Status = domain.TaskStatusInProgress
		t.Assignees = []int64{req.RunnerID}
		t.Amount = req.Amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		return updated, nil
	}

	slog.Info("runner assigned", "task_id", updated.ID, "runner_id", req.RunnerID, "amount", req.Amount.String())
	s.notify(ctx, req.RunnerID, updated, "Your offer was accepted")
	return updated, nil
}

// UpdateRoster changes the assignees of a task under its row lock. fn may
// not change the status.
func (s *TaskService) UpdateRoster(ctx context.Context, taskID int64, fn func(t *domain.Task) error) (*domain.Task, error) {
	return s.tasks.Update(ctx, taskID, func(t *domain.Task) error {
		status := t.Status
		if err := fn(t); err != nil {
			return err
		}
		if t.Status != status {
			return domain.ErrIllegalTransition
		}
		if len(t.Assignees) > t.Capacity() {
			return domain.ErrFullyStaffed
		}
		return nil
	})
}

// DeleteTask removes a task nobody has been assigned to, together with its
// offers or applications. The guard and the purge both run under the task
// row lock, so an assignment racing the delete either lands first and
// blocks it or finds no records left to claim.
func (s *TaskService) DeleteTask(ctx context.Context, taskID, requesterID int64) error {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	ops, err := opsFor(t.Kind)
	if err != nil {
		return err
	}
	guard := func(t *domain.Task) error {
		if t.PosterID != requesterID {
			return domain.ErrNotPoster
		}
		return ops.checkDeletable(t)
	}
	if err := guard(t); err != nil {
		return err
	}

	err = s.tasks.Delete(ctx, taskID, func(locked *domain.Task) error {
		if err := guard(locked); err != nil {
			return err
		}
		out := s.calls.do(ctx, "records.purge", critical, func(ctx context.Context) error {
			return ops.purge(ctx, s, taskID)
		})
		return out.Err()
	})
	if err != nil {
		return err
	}
	slog.Info("task deleted", "task_id", taskID, "poster_id", requesterID)
	return nil
}

func (s *TaskService) replayRelease(ctx context.Context, sg *domain.Saga) error {
	t, err := s.tasks.Get(ctx, sg.TaskID)
	if errors.Is(err, domain.ErrTaskNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if t.Status != domain.TaskStatusCompleted {
		return nil
	}

	_, err = s.payments.Release(ctx, t.ID, sg.RunnerID)
	switch {
	case err == nil:
		s.markPaid(ctx, t, sg.RunnerID)
		s.notify(ctx, sg.RunnerID, t, "Payment released")
		return nil
	case errors.Is(err, domain.ErrPaymentSettled), errors.Is(err, domain.ErrPaymentNotFound):
		slog.Warn("release has nothing to settle", "task_id", t.ID, "runner_id", sg.RunnerID, "error", err)
		return nil
	}
	return err
}

// replayRefund returns funds whenever the runner is no longer on a live task.
func (s *TaskService) replayRefund(ctx context.Context, sg *domain.Saga) error {
	t, err := s.tasks.Get(ctx, sg.TaskID)
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
	case err != nil:
		return err
	case t.Status != domain.TaskStatusCancelled && t.HasAssignee(sg.RunnerID):
		return nil
	}

	_, err = s.payments.Refund(ctx, sg.TaskID, sg.RunnerID)
	if errors.Is(err, domain.ErrPaymentSettled) || errors.Is(err, domain.ErrPaymentNotFound) {
		return nil
	}
	return err
}

func (s *TaskService) bestEffort(ctx context.Context, op string, taskID int64, fn func(ctx context.Context) error) {
	out := s.calls.do(ctx, op, bestEffort, fn)
	if out.Failed() {
		slog.Warn("best effort step failed", "op", op, "task_id", taskID, "error", out.Cause())
	}
}

func (s *TaskService) notify(ctx context.Context, userID int64, t *domain.Task, title string) {
	if s.notifier == nil {
		return
	}
	s.calls.do(ctx, "notify", bestEffort, func(ctx context.Context) error {
		return s.notifier.Notify(ctx, userID, t.ID, title)
	})
}

// ParticipantCheck answers the escrow engine's questions about tasks.
type ParticipantCheck struct {
	tasks TaskStore
}

func NewParticipantCheck(tasks TaskStore) *ParticipantCheck {
	return &ParticipantCheck{tasks: tasks}
}

// VerifyParticipantsAndStatus allows a hold when the payer posted the task,
// the recipient is someone else and the task is still live.
func (c *ParticipantCheck) VerifyParticipantsAndStatus(ctx context.Context, taskID, payerID, recipientID int64) (bool, error) {
	t, err := c.tasks.Get(ctx, taskID)
	if errors.Is(err, domain.ErrTaskNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if t.PosterID != payerID || payerID == recipientID {
		return false, nil
	}
	return t.Status == domain.TaskStatusOpen || t.Status == domain.TaskStatusInProgress, nil
}

func (c *ParticipantCheck) IsAssigned(ctx context.Context, taskID, userID int64) (bool, error) {
	t, err := c.tasks.Get(ctx, taskID)
	if errors.Is(err, domain.ErrTaskNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return t.HasAssignee(userID), nil
}
