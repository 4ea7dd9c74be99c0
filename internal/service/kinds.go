package service

import (
	"context"

	"github.com/set-night/gigs/internal/domain"
)

// kindOps holds the behaviour that differs between task kinds.
type kindOps struct {
	checkDeletable func(t *domain.Task) error
	authorizeStart func(t *domain.Task, actorID int64) error
	authorizeDone  func(t *domain.Task, actorID int64) error
	applyUpdate    func(t *domain.Task, req *domain.CreateTaskRequest)

	purge    func(ctx context.Context, s *TaskService, taskID int64) error
	onDone   func(ctx context.Context, s *TaskService, t *domain.Task) error
	onPaid   func(ctx context.Context, s *TaskService, t *domain.Task, runnerID int64) error
	onCancel func(ctx context.Context, s *TaskService, t *domain.Task) error
}

var kinds = map[domain.TaskKind]kindOps{
	domain.TaskKindSingle: {
		checkDeletable: deletableWhileOpen,
		authorizeStart: func(*domain.Task, int64) error {
			return domain.Conflict("task starts when an offer is accepted")
		},
		authorizeDone: func(t *domain.Task, actorID int64) error {
			if t.RunnerID() == 0 || t.RunnerID() != actorID {
				return domain.ErrNotAssignee
			}
			return nil
		},
		applyUpdate: applyCommonUpdate,
		purge: func(ctx context.Context, s *TaskService, taskID int64) error {
			return s.offers.DeleteByTask(ctx, taskID)
		},
		onDone: func(ctx context.Context, s *TaskService, t *domain.Task) error {
			_, err := s.offers.SetStatusForTask(ctx, t.ID,
				[]domain.OfferStatus{domain.OfferStatusAccepted},
				domain.OfferStatusAwaitingPayment)
			return err
		},
		onPaid: func(ctx context.Context, s *TaskService, t *domain.Task, _ int64) error {
			_, err := s.offers.SetStatusForTask(ctx, t.ID,
				[]domain.OfferStatus{domain.OfferStatusAccepted, domain.OfferStatusAwaitingPayment},
				domain.OfferStatusPaid)
			return err
		},
		onCancel: func(ctx context.Context, s *TaskService, t *domain.Task) error {
			_, err := s.offers.SetStatusForTask(ctx, t.ID,
				[]domain.OfferStatus{domain.OfferStatusPending},
				domain.OfferStatusCancelled)
			return err
		},
	},
	domain.TaskKindMulti: {
		checkDeletable: deletableWhileOpen,
		authorizeStart: func(t *domain.Task, actorID int64) error {
			if t.PosterID != actorID {
				return domain.ErrNotPoster
			}
			if len(t.Assignees) == 0 {
				return domain.Conflict("event has no assigned runners")
			}
			return nil
		},
		authorizeDone: func(t *domain.Task, actorID int64) error {
			if !t.HasAssignee(actorID) {
				return domain.ErrNotAssignee
			}
			return nil
		},
		applyUpdate: func(t *domain.Task, req *domain.CreateTaskRequest) {
			applyCommonUpdate(t, req)
			t.Event = &domain.EventDetails{
				RequiredPeople: req.RequiredPeople,
				Location:       req.Location,
				StartDate:      req.StartDate,
				EndDate:        req.EndDate,
				NumberOfDays:   req.NumberOfDays,
			}
		},
		purge: func(ctx context.Context, s *TaskService, taskID int64) error {
			return s.apps.DeleteByTask(ctx, taskID)
		},
		onDone: func(ctx context.Context, s *TaskService, t *domain.Task) error {
			_, err := s.apps.SetStatusForTask(ctx, t.ID,
				[]domain.ApplicationStatus{domain.ApplicationStatusApproved},
				domain.ApplicationStatusAwaitingPayment)
			return err
		},
		onPaid: func(ctx context.Context, s *TaskService, t *domain.Task, runnerID int64) error {
			_, err := s.apps.SetStatusForApplicant(ctx, t.ID, runnerID,
				[]domain.ApplicationStatus{domain.ApplicationStatusApproved, domain.ApplicationStatusAwaitingPayment},
				domain.ApplicationStatusPaid)
			return err
		},
		onCancel: func(ctx context.Context, s *TaskService, t *domain.Task) error {
			_, err := s.apps.SetStatusForTask(ctx, t.ID,
				[]domain.ApplicationStatus{domain.ApplicationStatusPending, domain.ApplicationStatusApproved},
				domain.ApplicationStatusWithdrawn)
			return err
		},
	},
}

func opsFor(kind domain.TaskKind) (kindOps, error) {
	ops, ok := kinds[kind]
	if !ok {
		return kindOps{}, domain.Validationf("unknown task kind %q", kind)
	}
	return ops, nil
}

func deletableWhileOpen(t *domain.Task) error {
	if t.Status != domain.TaskStatusOpen {
		return domain.ErrTaskNotOpen
	}
	if len(t.Assignees) > 0 {
		return domain.ErrTaskAssigned
	}
	return nil
}

func applyCommonUpdate(t *domain.Task, req *domain.CreateTaskRequest) {
	t.Title = req.Title
	t.Description = req.Description
	t.Category = req.Category
	t.Latitude = req.Latitude
	t.Longitude = req.Longitude
	t.Deadline = req.Deadline
	t.Amount = req.Amount
}
