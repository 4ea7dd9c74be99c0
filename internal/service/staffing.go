package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/gigs/internal/domain"
)

// RosterUpdater is the coordinator as seen by the staffing allocator.
type RosterUpdater interface {
	Get(ctx context.Context, id int64) (*domain.Task, error)
	UpdateRoster(ctx context.Context, taskID int64, fn func(t *domain.Task) error) (*domain.Task, error)
}

type ApplyRequest struct {
	TaskID      int64
	ApplicantID int64
	Comment     string
}

// StaffingService fills multi tasks with up to RequiredPeople runners, each
// paid the task's fixed amount.
type StaffingService struct {
	apps     ApplicationStore
	tasks    RosterUpdater
	users    UserDirectory
	payments PaymentGateway
	notifier Notifier
	sagas    *SagaLog
	calls    caller
}

func NewStaffingService(
	apps ApplicationStore,
	tasks RosterUpdater,
	users UserDirectory,
	payments PaymentGateway,
	notifier Notifier,
	sagas *SagaLog,
	timeout time.Duration,
) *StaffingService {
	s := &StaffingService{
		apps:     apps,
		tasks:    tasks,
		users:    users,
		payments: payments,
		notifier: notifier,
		sagas:    sagas,
		calls:    newCaller(timeout),
	}
	sagas.Handle(domain.SagaApplicationApprove, s.replayApprove)
	return s
}

func (s *StaffingService) Apply(ctx context.Context, req ApplyRequest) (*domain.Application, error) {
	if req.TaskID <= 0 || req.ApplicantID <= 0 {
		return nil, domain.Validation("task and applicant are required")
	}

	exists, err := s.calls.probe(ctx, "users.exists", softProbe, func(ctx context.Context) (bool, error) {
		return s.users.Exists(ctx, req.ApplicantID)
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
	if t.Kind != domain.TaskKindMulti {
		return nil, domain.ErrWrongKind
	}
	if t.Status != domain.TaskStatusOpen && t.Status != domain.TaskStatusInProgress {
		return nil, domain.ErrTaskNotOpen
	}
	if t.PosterID == req.ApplicantID {
		return nil, domain.ErrPosterIsRunner
	}

	existing, err := s.apps.FindByApplicantAndTask(ctx, req.ApplicantID, req.TaskID)
	if err != nil {
		return nil, fmt.Errorf("find application: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrAlreadyApplied
	}
	if t.IsFull() {
		return nil, domain.ErrFullyStaffed
	}
	if err := s.checkSchedule(ctx, req.ApplicantID, t); err != nil {
		return nil, err
	}

	app, err := s.apps.Create(ctx, &domain.Application{
		TaskID:      req.TaskID,
		ApplicantID: req.ApplicantID,
		Comment:     req.Comment,
		Status:      domain.ApplicationStatusPending,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("application submitted", "application_id", app.ID, "task_id", app.TaskID, "applicant_id", app.ApplicantID)
	s.notify(ctx, t.PosterID, t.ID, fmt.Sprintf("New application for \"%s\"", t.Title))
	return app, nil
}

// checkSchedule rejects an application overlapping another event the
// applicant is staffing. Lookups that fail are skipped.
func (s *StaffingService) checkSchedule(ctx context.Context, applicantID int64, t *domain.Task) error {
	if t.Event == nil {
		return nil
	}
	mine, err := s.apps.ListByApplicant(ctx, applicantID)
	if err != nil {
		slog.Warn("schedule check skipped", "applicant_id", applicantID, "error", err)
		return nil
	}
	for _, a := range mine {
		if a.Status != domain.ApplicationStatusApproved {
			continue
		}
		var other *domain.Task
		out := s.calls.do(ctx, "task.get", bestEffort, func(ctx context.Context) error {
			var err error
			other, err = s.tasks.Get(ctx, a.TaskID)
			return err
		})
		if out.Failed() || other.Event == nil || other.Status.IsTerminal() {
			continue
		}
		if !t.Event.StartDate.After(other.Event.EndDate) && !other.Event.StartDate.After(t.Event.EndDate) {
			return domain.Conflictf("overlaps with event #%d you are staffing", other.ID)
		}
	}
	return nil
}

// CancelApplication deletes the applicant's application while it is pending.
func (s *StaffingService) CancelApplication(ctx context.Context, applicantID, applicationID int64) error {
	app, err := s.apps.Get(ctx, applicationID)
	if err != nil {
		return err
	}
	if app.ApplicantID != applicantID {
		return domain.ErrApplicationNotFound
	}
	return s.apps.DeletePending(ctx, applicationID)
}

// Approve puts the applicant on the roster, holding their pay, and then
// marks the application approved.
func (s *StaffingService) Approve(ctx context.Context, posterID, applicationID int64) (*domain.Application, error) {
	app, err := s.apps.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != domain.ApplicationStatusPending {
		return nil, domain.ErrNotPending
	}

	sg, err := s.sagas.Begin(ctx, domain.Saga{
		Kind:          domain.SagaApplicationApprove,
		TaskID:        app.TaskID,
		RunnerID:      app.ApplicantID,
		ApplicationID: app.ID,
	})
	if err != nil {
		return nil, err
	}

	s.sagas.Advance(ctx, sg, "roster.add")
	if _, err := s.AddRunner(ctx, app.TaskID, app.ApplicantID, posterID); err != nil {
		s.sagas.Discard(ctx, sg)
		return nil, err
	}

	s.sagas.Advance(ctx, sg, "application.approve")
	approved, err := s.apps.Transition(ctx, app.ID,
		[]domain.ApplicationStatus{domain.ApplicationStatusPending},
		domain.ApplicationStatusApproved)
	if err != nil {
		s.sagas.Fail(ctx, sg, err)
		return nil, err
	}

	s.sagas.Complete(ctx, sg)
	return approved, nil
}

// AddRunner holds the fixed pay and adds the runner to the event roster.
// A failed hold leaves the roster untouched.
func (s *StaffingService) AddRunner(ctx context.Context, taskID, runnerID, posterID int64) (*domain.Task, error) {
	if err := s.probeParticipants(ctx, posterID, runnerID); err != nil {
		return nil, err
	}

	t, err := s.tasks.UpdateRoster(ctx, taskID, func(t *domain.Task) error {
		if err := checkRosterChange(t, runnerID, posterID); err != nil {
			return err
		}
		if t.HasAssignee(runnerID) {
			return domain.ErrAlreadyAssigned
		}
		if t.IsFull() {
			return domain.ErrFullyStaffed
		}

		out := s.calls.do(ctx, "payment.hold", critical, func(ctx context.Context) error {
			_, err := s.payments.Hold(ctx, domain.HoldRequest{
				OperationKey: uuid.NewString(),
				PayerID:      posterID,
				RecipientID:  runnerID,
				TaskID:       t.ID,
				Amount:       t.Amount,
			})
			return err
		})
		if err := out.Err(); err != nil {
			return err
		}

		t.Assignees = append(t.Assignees, runnerID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("runner added", "task_id", taskID, "runner_id", runnerID, "assignees", len(t.Assignees))
	s.notify(ctx, runnerID, taskID, fmt.Sprintf("You were added to \"%s\"", t.Title))
	return t, nil
}

// RemoveRunner takes the runner off the roster and refunds their pay to the poster.
func (s *StaffingService) RemoveRunner(ctx context.Context, taskID, runnerID, posterID int64) (*domain.Task, error) {
	if err := s.probeParticipants(ctx, posterID, runnerID); err != nil {
		return nil, err
	}

	var sg *domain.Saga
	t, err := s.tasks.UpdateRoster(ctx, taskID, func(t *domain.Task) error {
		if err := checkRosterChange(t, runnerID, posterID); err != nil {
			return err
		}
		if !t.HasAssignee(runnerID) {
			return domain.ErrNotAssigned
		}
		var err error
		sg, err = s.sagas.Begin(ctx, domain.Saga{Kind: domain.SagaPaymentRefund, TaskID: t.ID, RunnerID: runnerID})
		if err != nil {
			return err
		}
		t.RemoveAssignee(runnerID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("runner removed", "task_id", taskID, "runner_id", runnerID)
	s.sagas.Advance(ctx, sg, "payment.refund")
	out := s.calls.do(ctx, "payment.refund", critical, func(ctx context.Context) error {
		_, err := s.payments.Refund(ctx, taskID, runnerID)
		return err
	})
	if out.Failed() {
		slog.Error("refund failed", "task_id", taskID, "runner_id", runnerID, "error", out.Cause())
		s.sagas.Fail(ctx, sg, out.Cause())
	} else {
		s.sagas.Complete(ctx, sg)
	}

	out = s.calls.do(ctx, "applications.withdraw", bestEffort, func(ctx context.Context) error {
		_, err := s.apps.SetStatusForApplicant(ctx, taskID, runnerID,
			[]domain.ApplicationStatus{domain.ApplicationStatusPending, domain.ApplicationStatusApproved},
			domain.ApplicationStatusWithdrawn)
		return err
	})
	if out.Failed() {
		slog.Warn("application not withdrawn", "task_id", taskID, "runner_id", runnerID, "error", out.Cause())
	}
	s.notify(ctx, runnerID, taskID, fmt.Sprintf("You were removed from \"%s\"", t.Title))
	return t, nil
}

func (s *StaffingService) RemainingSeats(ctx context.Context, taskID int64) (int, error) {
	t, err := s.task(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if t.Kind != domain.TaskKindMulti {
		return 0, domain.ErrWrongKind
	}
	return t.RemainingSeats(), nil
}

func (s *StaffingService) ListApplications(ctx context.Context, taskID int64) ([]domain.Application, error) {
	return s.apps.ListByTask(ctx, taskID)
}

func (s *StaffingService) ListByApplicant(ctx context.Context, applicantID int64) ([]domain.Application, error) {
	return s.apps.ListByApplicant(ctx, applicantID)
}

// replayApprove finishes an approval whose roster change landed, or undoes
// the roster change when the application is gone.
func (s *StaffingService) replayApprove(ctx context.Context, sg *domain.Saga) error {
	t, err := s.tasks.Get(ctx, sg.TaskID)
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		return nil
	case err != nil:
		return err
	}
	if !t.HasAssignee(sg.RunnerID) {
		return nil
	}

	app, err := s.apps.Get(ctx, sg.ApplicationID)
	if err != nil && !errors.Is(err, domain.ErrApplicationNotFound) {
		return err
	}
	if app != nil && app.Status == domain.ApplicationStatusPending {
		_, err := s.apps.Transition(ctx, app.ID,
			[]domain.ApplicationStatus{domain.ApplicationStatusPending},
			domain.ApplicationStatusApproved)
		return err
	}
	if app != nil && app.Status != domain.ApplicationStatusWithdrawn {
		return nil
	}

	slog.Info("removing runner without application", "task_id", sg.TaskID, "runner_id", sg.RunnerID)
	_, err = s.tasks.UpdateRoster(ctx, sg.TaskID, func(t *domain.Task) error {
		t.RemoveAssignee(sg.RunnerID)
		return nil
	})
	if err != nil {
		return err
	}
	_, err = s.payments.Refund(ctx, sg.TaskID, sg.RunnerID)
	if errors.Is(err, domain.ErrPaymentSettled) || errors.Is(err, domain.ErrPaymentNotFound) {
		return nil
	}
	return err
}

func (s *StaffingService) probeParticipants(ctx context.Context, posterID, runnerID int64) error {
	for _, id := range []int64{posterID, runnerID} {
		exists, err := s.calls.probe(ctx, "users.exists", hardProbe, func(ctx context.Context) (bool, error) {
			return s.users.Exists(ctx, id)
		})
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrUserNotFound
		}
	}
	return nil
}

func checkRosterChange(t *domain.Task, runnerID, posterID int64) error {
	if t.Kind != domain.TaskKindMulti {
		return domain.ErrWrongKind
	}
	if t.PosterID != posterID {
		return domain.ErrNotPoster
	}
	if t.Status != domain.TaskStatusOpen && t.Status != domain.TaskStatusInProgress {
		return domain.ErrTaskNotOpen
	}
	if runnerID == posterID {
		return domain.ErrPosterIsRunner
	}
	return nil
}

func (s *StaffingService) task(ctx context.Context, id int64) (*domain.Task, error) {
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

func (s *StaffingService) notify(ctx context.Context, userID, taskID int64, title string) {
	if s.notifier == nil {
		return
	}
	s.calls.do(ctx, "notify", bestEffort, func(ctx context.Context) error {
		return s.notifier.Notify(ctx, userID, taskID, title)
	})
}
