package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/set-night/gigs/internal/domain"
)

const applicationColumns = `id, task_id, applicant_id, comment, status, created_at, updated_at`

type ApplicationStore struct {
	db *pgxpool.Pool
}

func NewApplicationStore(db *pgxpool.Pool) *ApplicationStore {
	return &ApplicationStore{db: db}
}

func scanApplication(row pgx.Row) (*domain.Application, error) {
	var (
		a      domain.Application
		status string
	)
	err := row.Scan(&a.ID, &a.TaskID, &a.ApplicantID, &a.Comment, &status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrApplicationNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Status = domain.ApplicationStatus(status)
	return &a, nil
}

func (s *ApplicationStore) list(ctx context.Context, query string, args ...any) ([]domain.Application, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}

func (s *ApplicationStore) Create(ctx context.Context, a *domain.Application) (*domain.Application, error) {
	created, err := scanApplication(s.db.QueryRow(ctx, `
		INSERT INTO applications (task_id, applicant_id, comment, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+applicationColumns, a.TaskID, a.ApplicantID, a.Comment, string(a.Status)))
	if uniqueConstraint(err) == "applications_task_applicant_key" {
		return nil, domain.ErrAlreadyApplied
	}
	if err != nil {
		return nil, fmt.Errorf("insert application: %w", err)
	}
	return created, nil
}

func (s *ApplicationStore) Get(ctx context.Context, id int64) (*domain.Application, error) {
	return scanApplication(s.db.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
}

func (s *ApplicationStore) FindByApplicantAndTask(ctx context.Context, applicantID, taskID int64) (*domain.Application, error) {
	a, err := scanApplication(s.db.QueryRow(ctx, `
		SELECT `+applicationColumns+` FROM applications
		WHERE applicant_id = $1 AND task_id = $2`, applicantID, taskID))
	if errors.Is(err, domain.ErrApplicationNotFound) {
		return nil, nil
	}
	return a, err
}

func (s *ApplicationStore) ListByTask(ctx context.Context, taskID int64) ([]domain.Application, error) {
	return s.list(ctx, `SELECT `+applicationColumns+` FROM applications WHERE task_id = $1 ORDER BY id`, taskID)
}

func (s *ApplicationStore) ListByApplicant(ctx context.Context, applicantID int64) ([]domain.Application, error) {
	return s.list(ctx, `SELECT `+applicationColumns+` FROM applications WHERE applicant_id = $1 ORDER BY created_at DESC`, applicantID)
}

// exists tells a missing application apart from one in the wrong status.
func (s *ApplicationStore) exists(ctx context.Context, id int64) error {
	var ok bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, id).Scan(&ok); err != nil {
		return fmt.Errorf("check application: %w", err)
	}
	if !ok {
		return domain.ErrApplicationNotFound
	}
	return domain.ErrNotPending
}

func (s *ApplicationStore) Transition(ctx context.Context, id int64, from []domain.ApplicationStatus, to domain.ApplicationStatus) (*domain.Application, error) {
	a, err := scanApplication(s.db.QueryRow(ctx, `
		UPDATE applications SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+applicationColumns, id, statusStrings(from), string(to)))
	if errors.Is(err, domain.ErrApplicationNotFound) {
		return nil, s.exists(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("update application: %w", err)
	}
	return a, nil
}

func (s *ApplicationStore) DeletePending(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM applications WHERE id = $1 AND status = $2`,
		id, string(domain.ApplicationStatusPending))
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.exists(ctx, id)
	}
	return nil
}

func (s *ApplicationStore) DeleteByTask(ctx context.Context, taskID int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM applications WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("delete applications: %w", err)
	}
	return nil
}

func (s *ApplicationStore) SetStatusForTask(ctx context.Context, taskID int64, from []domain.ApplicationStatus, to domain.ApplicationStatus) (int, error) {
	return s.SetStatusForApplicant(ctx, taskID, 0, from, to)
}

// SetStatusForApplicant with applicantID 0 matches every applicant.
func (s *ApplicationStore) SetStatusForApplicant(ctx context.Context, taskID, applicantID int64, from []domain.ApplicationStatus, to domain.ApplicationStatus) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE applications SET status = $4, updated_at = NOW()
		WHERE task_id = $1 AND ($2::bigint = 0 OR applicant_id = $2) AND status = ANY($3)`,
		taskID, applicantID, statusStrings(from), string(to))
	if err != nil {
		return 0, fmt.Errorf("update application statuses: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
