package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/set-night/gigs/internal/domain"
)

const sagaColumns = `id, kind, task_id, runner_id, offer_id, application_id, step, status, attempts, last_error, created_at, updated_at`

type SagaStore struct {
	db *pgxpool.Pool
}

func NewSagaStore(db *pgxpool.Pool) *SagaStore {
	return &SagaStore{db: db}
}

func (s *SagaStore) Insert(ctx context.Context, sg *domain.Saga) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sagas (`+sagaColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sg.ID, string(sg.Kind), sg.TaskID, sg.RunnerID, sg.OfferID, sg.ApplicationID,
		sg.Step, string(sg.Status), sg.Attempts, sg.LastError, sg.CreatedAt, sg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert saga: %w", err)
	}
	return nil
}

func (s *SagaStore) Update(ctx context.Context, sg *domain.Saga) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sagas SET runner_id = $2, step = $3, status = $4, attempts = $5,
			last_error = $6, updated_at = $7
		WHERE id = $1`,
		sg.ID, sg.RunnerID, sg.Step, string(sg.Status), sg.Attempts, sg.LastError, sg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update saga: %w", err)
	}
	return nil
}

func (s *SagaStore) Delete(ctx context.Context, sg *domain.Saga) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM sagas WHERE id = $1`, sg.ID); err != nil {
		return fmt.Errorf("delete saga: %w", err)
	}
	return nil
}

func (s *SagaStore) ListOpen(ctx context.Context, staleBefore time.Time, limit int) ([]domain.Saga, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+sagaColumns+` FROM sagas
		WHERE status = $1 OR (status = $2 AND updated_at < $3)
		ORDER BY updated_at
		LIMIT $4`,
		string(domain.SagaStatusReplay), string(domain.SagaStatusStarted), staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list sagas: %w", err)
	}
	defer rows.Close()

	var sagas []domain.Saga
	for rows.Next() {
		var (
			sg           domain.Saga
			kind, status string
		)
		if err := rows.Scan(&sg.ID, &kind, &sg.TaskID, &sg.RunnerID, &sg.OfferID, &sg.ApplicationID,
			&sg.Step, &status, &sg.Attempts, &sg.LastError, &sg.CreatedAt, &sg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan saga: %w", err)
		}
		sg.Kind = domain.SagaKind(kind)
		sg.Status = domain.SagaStatus(status)
		sagas = append(sagas, sg)
	}
	return sagas, rows.Err()
}
