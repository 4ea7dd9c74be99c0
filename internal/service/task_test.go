package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/set-night/gigs/internal/domain"
)

// acceptedTask returns a single task in progress with runnerA at amount.
func acceptedTask(t *testing.T, e *testEnv, amount string) *domain.Task {
	t.Helper()
	task := e.singleTask(t, "100")
	offer := submit(t, e, task.ID, runnerA, amount)
	if _, err := e.offerSvc.Accept(context.Background(), task.ID, offer.ID, poster); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return e.task(t, task.ID)
}

func TestSingleTaskDoneThenCompletedPaysRunner(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	task := acceptedTask(t, e, "90")

	if _, err := e.tasksSvc.UpdateStatus(ctx, task.ID, domain.TaskStatusDone, runnerA); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	offer, _ := e.offers.FindByRunnerAndTask(ctx, runnerA, task.ID)
	if offer.Status != domain.OfferStatusAwaitingPayment {
		t.Errorf("offer status = %s, want awaiting_payment", offer.Status)
	}

	done, err := e.tasksSvc.UpdateStatus(ctx, task.ID, domain.TaskStatusCompleted, poster)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.TaskStatusCompleted {
		t.Errorf("task status = %s, want completed", done.Status)
	}
	if got := e.payments(t, task.ID)[0].Status; got != domain.PaymentStatusCompleted {
		t.Errorf("payment status = %s, want completed", got)
	}
	assertBalance(t, e, runnerA, "90")
	assertBalance(t, e, poster, "910")

	offer, _ = e.offers.FindByRunnerAndTask(ctx, runnerA, task.ID)
	if offer.Status != domain.OfferStatusPaid {
		t.Errorf("offer status = %s, want paid", offer.Status)
	}
}

func TestUpdateStatusAuthorization(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	task := acceptedTask(t, e, "90")

	tests := []struct {
		name  string
		next  domain.TaskStatus
		actor int64
		want  error
	}{
		{"poster marks done", domain.TaskStatusDone, poster, domain.ErrNotAssignee},
		{"stranger marks done", domain.TaskStatusDone, runnerB, domain.ErrNotAssignee},
		{"skip to completed", domain.TaskStatusCompleted, poster, domain.ErrIllegalTransition},
		{"cancel in progress", domain.TaskStatusCancelled, runnerB, domain.ErrIllegalTransition},
		{"back to open", domain.TaskStatusOpen, poster, domain.ErrIllegalTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.tasksSvc.UpdateStatus(ctx, task.ID, tt.next, tt.actor)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			assertKind(t, err, domain.KindConflict)
		})
	}

	if _, err := e.tasksSvc.UpdateStatus(ctx, task.ID, domain.TaskStatusDone, runnerA); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	if _, err := e.tasksSvc.UpdateStatus(ctx, task.ID, domain.TaskStatusCompleted, runnerA); !errors.Is(err, domain.ErrNotPoster) {
		t.Fatalf("runner completes err = %v, want ErrNotPoster", err)
	}
}

func TestSingleTaskStartsOnlyThroughAcceptance(t *testing.T) {
	e := newTestEnv(t)
	task := e.singleTask(t, "100")

	_, err := e.tasksSvc.UpdateStatus(context.Background(), task.ID, domain.TaskStatusInProgress, poster)
	assertKind(t, err, domain.KindConflict)
}

func TestCancelOpenTask(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	task := e.singleTask(t, "100")
	submit(t, e, task.ID, runnerA, "90")

	if _, err := e.tasksSvc.UpdateStatus(ctx, task.ID, domain.TaskStatusCancelled, runnerA); !errors.Is(err, domain.ErrNotPoster) {
		t.Fatalf("runner cancels err = %v, want ErrNotPoster", err)
	}
	cancelled, err := e.tasksSvc.UpdateStatus(ctx, task.ID, domain.TaskStatusCancelled, poster)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.TaskStatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	offer, _ := e.offers.FindByRunnerAndTask(ctx, runnerA, task.ID)
	if offer.Status != domain.OfferStatusCancelled {
		t.Errorf("offer status = %s, want cancelled", offer.Status)
	}
}

func TestTerminalTaskRejectsStatusChanges(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	task := e.singleTask(t, "100")
	if _, err := e.tasksSvc.UpdateStatus(ctx, task.ID, domain.TaskStatusCancelled, poster); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	for _, next := range []domain.TaskStatus{domain.TaskStatusCancelled, domain.TaskStatusCompleted} {
		if _, err := e.tasksSvc.UpdateStatus(ctx, task.ID, next, poster); !errors.Is(err, domain.ErrTaskTerminal) {
			t.Errorf("UpdateStatus(%s) err = %v, want ErrTaskTerminal", next, err)
		}
	}
}

func TestCompletionReleasesEveryRunnerDespiteFailures(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	event := e.multiTask(t, "50", 3)
	for _, runner := range []int64{runnerA, runnerB, runnerC} {
		if _, err := e.staffing.AddRunner(ctx, event.ID, runner, poster); err != nil {
			t.Fatalf("AddRunner(%d): %v", runner, err)
		}
	}
	if _, err := e.tasksSvc.UpdateStatus(ctx, event.ID, domain.TaskStatusInProgress, poster); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.tasksSvc.UpdateStatus(ctx, event.ID, domain.TaskStatusDone, runnerB); err != nil {
		t.Fatalf("done: %v", err)
	}

	// The first release and its immediate retry both fail for runnerB.
	e.gateway.failReleases(runnerB, 2)
	completed, err := e.tasksSvc.UpdateStatus(ctx, event.ID, domain.TaskStatusCompleted, poster)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != domain.TaskStatusCompleted {
		t.Errorf("status = %s, want completed", completed.Status)
	}
	assertBalance(t, e, runnerA, "50")
	assertBalance(t, e, runnerB, "0")
	assertBalance(t, e, runnerC, "50")

	open := e.sagaRows.withStatus(domain.SagaStatusReplay)
	if len(open) != 1 || open[0].RunnerID != runnerB || open[0].Kind != domain.SagaPaymentRelease {
		t.Fatalf("replay sagas = %+v, want one release for runner %d", open, runnerB)
	}

	resolved, err := e.sagas.Replay(ctx)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if resolved != 1 {
		t.Errorf("resolved = %d, want 1", resolved)
	}
	assertBalance(t, e, runnerB, "50")
	assertBalance(t, e, poster, "850")
}

func TestDeleteTask(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	task := e.singleTask(t, "100")
	submit(t, e, task.ID, runnerA, "90")
	if err := e.tasksSvc.DeleteTask(ctx, task.ID, runnerA); !errors.Is(err, domain.ErrNotPoster) {
		t.Fatalf("delete by runner err = %v, want ErrNotPoster", err)
	}
	if err := e.tasksSvc.DeleteTask(ctx, task.ID, poster); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := e.tasks.Get(ctx, task.ID); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("task still present: %v", err)
	}
	if offers, _ := e.offers.ListByTask(ctx, task.ID); len(offers) != 0 {
		t.Errorf("offers not purged: %d left", len(offers))
	}

	assigned := acceptedTask(t, e, "90")
	if err := e.tasksSvc.DeleteTask(ctx, assigned.ID, poster); !errors.Is(err, domain.ErrTaskNotOpen) {
		t.Errorf("delete assigned task err = %v, want ErrTaskNotOpen", err)
	}

	event := e.multiTask(t, "10", 2)
	if _, err := e.staffing.AddRunner(ctx, event.ID, runnerB, poster); err != nil {
		t.Fatalf("AddRunner: %v", err)
	}
	if err := e.tasksSvc.DeleteTask(ctx, event.ID, poster); !errors.Is(err, domain.ErrTaskAssigned) {
		t.Errorf("delete staffed event err = %v, want ErrTaskAssigned", err)
	}
}

func TestDeleteTaskAbortsWhenPurgeFails(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	task := e.singleTask(t, "100")
	e.offers.recordsErr = errConnRefused

	err := e.tasksSvc.DeleteTask(ctx, task.ID, poster)
	assertKind(t, err, domain.KindRemoteUnavailable)
	if _, err := e.tasks.Get(ctx, task.ID); err != nil {
		t.Errorf("task was deleted despite failed purge: %v", err)
	}
}

func TestDeleteTaskRechecksUnderLockBeforePurging(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	task := e.singleTask(t, "100")
	offer := submit(t, e, task.ID, runnerA, "90")
	before := e.task(t, task.ID)

	// The offer is accepted after the delete read the task.
	if _, err := e.offerSvc.Accept(ctx, task.ID, offer.ID, poster); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	stale := &staleTasks{fakeTasks: e.tasks, snapshot: before}
	svc := NewTaskService(stale, e.users, e.gateway, e.offers, e.apps, e.notifier,
		NewSagaLog(newFakeSagas(), 3, time.Minute), time.Second)

	if err := svc.DeleteTask(ctx, task.ID, poster); !errors.Is(err, domain.ErrTaskNotOpen) {
		t.Fatalf("DeleteTask err = %v, want ErrTaskNotOpen", err)
	}
	o, err := e.offers.Get(ctx, offer.ID)
	if err != nil {
		t.Fatalf("accepted offer was purged: %v", err)
	}
	if o.Status != domain.OfferStatusAccepted {
		t.Errorf("offer status = %s, want accepted", o.Status)
	}
	if got := e.task(t, task.ID); got.Status != domain.TaskStatusInProgress {
		t.Errorf("task status = %s, want in_progress", got.Status)
	}
}

func TestDoneStillSucceedsWhenRecordsAreDown(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	task := acceptedTask(t, e, "90")
	e.offers.recordsErr = errConnRefused
	e.notifier.err = errConnRefused

	done, err := e.tasksSvc.UpdateStatus(ctx, task.ID, domain.TaskStatusDone, runnerA)
	if err != nil {
		t.Fatalf("mark done: %v", err)
	}
	if done.Status != domain.TaskStatusDone {
		t.Errorf("status = %s, want done", done.Status)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	start := time.Now().Add(72 * time.Hour)

	tests := []struct {
		name string
		req  domain.CreateTaskRequest
	}{
		{"missing title", domain.CreateTaskRequest{PosterID: poster, Kind: domain.TaskKindSingle, Amount: dec("5")}},
		{"unknown kind", domain.CreateTaskRequest{PosterID: poster, Kind: "bulk", Title: "x", Amount: dec("5")}},
		{"zero amount", domain.CreateTaskRequest{PosterID: poster, Kind: domain.TaskKindSingle, Title: "x"}},
		{"outside service area", domain.CreateTaskRequest{PosterID: poster, Kind: domain.TaskKindSingle, Title: "x", Amount: dec("5"), Latitude: 48.85, Longitude: 2.35}},
		{"deadline passed", domain.CreateTaskRequest{PosterID: poster, Kind: domain.TaskKindSingle, Title: "x", Amount: dec("5"), Deadline: &past}},
		{"no people", domain.CreateTaskRequest{PosterID: poster, Kind: domain.TaskKindMulti, Title: "x", Amount: dec("5"), Location: "Giza", StartDate: start, EndDate: start, NumberOfDays: 1}},
		{"no location", domain.CreateTaskRequest{PosterID: poster, Kind: domain.TaskKindMulti, Title: "x", Amount: dec("5"), RequiredPeople: 2, StartDate: start, EndDate: start, NumberOfDays: 1}},
		{"ends before start", domain.CreateTaskRequest{PosterID: poster, Kind: domain.TaskKindMulti, Title: "x", Amount: dec("5"), RequiredPeople: 2, Location: "Giza", StartDate: start, EndDate: start.Add(-time.Hour), NumberOfDays: 1}},
		{"zero days", domain.CreateTaskRequest{PosterID: poster, Kind: domain.TaskKindMulti, Title: "x", Amount: dec("5"), RequiredPeople: 2, Location: "Giza", StartDate: start, EndDate: start}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.tasksSvc.CreateTask(ctx, tt.req)
			assertKind(t, err, domain.KindValidation)
		})
	}
}

func TestCreateTaskPosterProbeFailsClosed(t *testing.T) {
	e := newTestEnv(t)
	e.users.existsErr = errConnRefused

	_, err := e.tasksSvc.CreateTask(context.Background(), domain.CreateTaskRequest{
		PosterID: poster, Kind: domain.TaskKindSingle, Title: "Walk the dog", Amount: dec("20"),
	})
	assertKind(t, err, domain.KindRemoteUnavailable)

	e.users.existsErr = nil
	_, err = e.tasksSvc.CreateTask(context.Background(), domain.CreateTaskRequest{
		PosterID: 55, Kind: domain.TaskKindSingle, Title: "Walk the dog", Amount: dec("20"),
	})
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("unknown poster err = %v, want ErrUserNotFound", err)
	}
}

func TestCreateTaskStripsMarkup(t *testing.T) {
	e := newTestEnv(t)
	task, err := e.tasksSvc.CreateTask(context.Background(), domain.CreateTaskRequest{
		PosterID:    poster,
		Kind:        domain.TaskKindSingle,
		Title:       "  Deliver documents ",
		Description: "<p>Two <b>signed</b> copies</p><script>alert(1)</script><p>to   Zamalek</p>",
		Amount:      dec("45"),
		Latitude:    30.06,
		Longitude:   31.22,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Title != "Deliver documents" {
		t.Errorf("title = %q", task.Title)
	}
	if task.Description != "Two signed copiesto Zamalek" {
		t.Errorf("description = %q", task.Description)
	}
	if task.Status != domain.TaskStatusOpen {
		t.Errorf("status = %s, want open", task.Status)
	}
}

func TestUpdateTask(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	task := e.singleTask(t, "100")

	edit := domain.CreateTaskRequest{Title: "Pick up groceries and bread", Amount: dec("120")}
	if _, err := e.tasksSvc.UpdateTask(ctx, task.ID, runnerA, edit); !errors.Is(err, domain.ErrNotPoster) {
		t.Fatalf("edit by runner err = %v, want ErrNotPoster", err)
	}
	updated, err := e.tasksSvc.UpdateTask(ctx, task.ID, poster, edit)
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if updated.Title != edit.Title || !updated.Amount.Equal(dec("120")) || updated.Kind != domain.TaskKindSingle {
		t.Errorf("updated = %+v", updated)
	}

	started := acceptedTask(t, e, "90")
	_, err = e.tasksSvc.UpdateTask(ctx, started.ID, poster, edit)
	assertKind(t, err, domain.KindConflict)
}
