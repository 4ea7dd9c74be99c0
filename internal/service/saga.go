package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/gigs/internal/config"
	"github.com/set-night/gigs/internal/domain"
)

// ReplayFunc brings the stores back in line for one saga. A nil error
// resolves the saga; an error leaves it for the next replay.
type ReplayFunc func(ctx context.Context, s *domain.Saga) error

// SagaLog records the intent of every multi-component operation before its
// first remote step, so a failure after a local commit can be repaired later.
type SagaLog struct {
	store       SagaStore
	maxAttempts int
	staleAfter  time.Duration

	mu        sync.RWMutex
	handlers  map[domain.SagaKind]ReplayFunc
	onAbandon func(ctx context.Context, s domain.Saga)

	now func() time.Time
}

func NewSagaLog(store SagaStore, maxAttempts int, staleAfter time.Duration) *SagaLog {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &SagaLog{
		store:       store,
		maxAttempts: maxAttempts,
		staleAfter:  staleAfter,
		handlers:    make(map[domain.SagaKind]ReplayFunc),
		now:         time.Now,
	}
}

func (l *SagaLog) Handle(kind domain.SagaKind, fn ReplayFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[kind] = fn
}

// OnAbandon registers a hook called when a saga runs out of attempts.
func (l *SagaLog) OnAbandon(fn func(ctx context.Context, s domain.Saga)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onAbandon = fn
}

func (l *SagaLog) Begin(ctx context.Context, s domain.Saga) (*domain.Saga, error) {
	now := l.now()
	s.ID = uuid.New()
	s.Status = domain.SagaStatusStarted
	s.Step = "begin"
	s.CreatedAt = now
	s.UpdatedAt = now
	if err := l.store.Insert(ctx, &s); err != nil {
		return nil, fmt.Errorf("begin saga %s: %w", s.Kind, err)
	}
	return &s, nil
}

// Advance records the step about to run. Failures are logged only; a saga
// with a stale step still gets replayed.
func (l *SagaLog) Advance(ctx context.Context, s *domain.Saga, step string) {
	s.Step = step
	s.UpdatedAt = l.now()
	if err := l.store.Update(ctx, s); err != nil {
		slog.Error("failed to advance saga", "saga_id", s.ID, "step", step, "error", err)
	}
}

func (l *SagaLog) Complete(ctx context.Context, s *domain.Saga) {
	l.finish(ctx, s, domain.SagaStatusCompleted)
}

// Discard drops a saga whose local phase failed before anything remote ran.
func (l *SagaLog) Discard(ctx context.Context, s *domain.Saga) {
	if err := l.store.Delete(ctx, s); err != nil {
		slog.Error("failed to discard saga", "saga_id", s.ID, "kind", s.Kind, "error", err)
	}
}

// Fail marks the saga for replay and makes one recovery attempt right away.
func (l *SagaLog) Fail(ctx context.Context, s *domain.Saga, cause error) {
	s.Status = domain.SagaStatusReplay
	s.LastError = cause.Error()
	s.UpdatedAt = l.now()
	if err := l.store.Update(ctx, s); err != nil {
		slog.Error("failed to mark saga for replay", "saga_id", s.ID, "kind", s.Kind, "error", err)
	}
	slog.Warn("saga step failed",
		"saga_id", s.ID,
		"kind", s.Kind,
		"step", s.Step,
		"task_id", s.TaskID,
		"runner_id", s.RunnerID,
		"error", cause,
	)
	l.replayOne(ctx, s)
}

// Replay runs every open saga once and returns how many were resolved.
func (l *SagaLog) Replay(ctx context.Context) (int, error) {
	open, err := l.Open(ctx)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for i := range open {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		if l.replayOne(ctx, &open[i]) {
			resolved++
		}
	}
	return resolved, nil
}

// Open lists sagas still waiting for recovery, including started sagas
// that stopped moving.
func (l *SagaLog) Open(ctx context.Context) ([]domain.Saga, error) {
	sagas, err := l.store.ListOpen(ctx, l.now().Add(-l.staleAfter), config.SagaReplayBatch)
	if err != nil {
		return nil, fmt.Errorf("list open sagas: %w", err)
	}
	return sagas, nil
}

func (l *SagaLog) replayOne(ctx context.Context, s *domain.Saga) bool {
	l.mu.RLock()
	fn, ok := l.handlers[s.Kind]
	onAbandon := l.onAbandon
	l.mu.RUnlock()
	if !ok {
		slog.Error("no replay handler for saga", "saga_id", s.ID, "kind", s.Kind)
		return false
	}

	s.Attempts++
	err := fn(ctx, s)
	if err == nil {
		slog.Info("saga resolved", "saga_id", s.ID, "kind", s.Kind, "task_id", s.TaskID, "attempts", s.Attempts)
		l.finish(ctx, s, domain.SagaStatusResolved)
		return true
	}

	s.LastError = err.Error()
	if s.Attempts >= l.maxAttempts {
		slog.Error("saga abandoned", "saga_id", s.ID, "kind", s.Kind, "task_id", s.TaskID, "attempts", s.Attempts, "error", err)
		l.finish(ctx, s, domain.SagaStatusAbandoned)
		if onAbandon != nil {
			onAbandon(ctx, *s)
		}
		return false
	}

	s.Status = domain.SagaStatusReplay
	s.UpdatedAt = l.now()
	if uerr := l.store.Update(ctx, s); uerr != nil {
		slog.Error("failed to update saga", "saga_id", s.ID, "error", uerr)
	}
	return false
}

func (l *SagaLog) finish(ctx context.Context, s *domain.Saga, status domain.SagaStatus) {
	s.Status = status
	s.UpdatedAt = l.now()
	if err := l.store.Update(ctx, s); err != nil {
		slog.Error("failed to finish saga", "saga_id", s.ID, "status", status, "error", err)
	}
}
