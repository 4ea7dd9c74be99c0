package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/set-night/gigs/internal/domain"
)

const taskColumns = `t.id, t.poster_id, t.kind, t.status, t.title, t.description, t.category,
	t.latitude, t.longitude, t.deadline, t.amount,
	t.required_people, t.location, t.start_date, t.end_date, t.number_of_days,
	t.created_at, t.updated_at,
	ARRAY(SELECT a.user_id FROM task_assignees a WHERE a.task_id = t.id ORDER BY a.id)`

type TaskStore struct {
	db *pgxpool.Pool
}

func NewTaskStore(db *pgxpool.Pool) *TaskStore {
	return &TaskStore{db: db}
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		t              domain.Task
		kind, status   string
		deadline       pgtype.Timestamptz
		requiredPeople *int32
		location       *string
		start, end     pgtype.Date
		numberOfDays   *int32
	)
	err := row.Scan(&t.ID, &t.PosterID, &kind, &status, &t.Title, &t.Description, &t.Category,
		&t.Latitude, &t.Longitude, &deadline, &t.Amount,
		&requiredPeople, &location, &start, &end, &numberOfDays,
		&t.CreatedAt, &t.UpdatedAt, &t.Assignees)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}

	t.Kind = domain.TaskKind(kind)
	t.Status = domain.TaskStatus(status)
	t.Deadline = pgTimestamptzToTimePtr(deadline)
	if t.Kind == domain.TaskKindMulti {
		t.Event = &domain.EventDetails{
			RequiredPeople: int32PtrToInt(requiredPeople),
			Location:       derefString(location),
			StartDate:      pgDateToTime(start),
			EndDate:        pgDateToTime(end),
			NumberOfDays:   int32PtrToInt(numberOfDays),
		}
	}
	return &t, nil
}

// eventArgs returns the nullable event columns of t.
func eventArgs(t *domain.Task) (requiredPeople *int32, location *string, start, end pgtype.Date, days *int32) {
	if t.Event == nil {
		return nil, nil, pgtype.Date{}, pgtype.Date{}, nil
	}
	ev := t.Event
	return intToInt32Ptr(ev.RequiredPeople), stringPtr(ev.Location),
		timeToPgDate(ev.StartDate), timeToPgDate(ev.EndDate), intToInt32Ptr(ev.NumberOfDays)
}

func (s *TaskStore) Create(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	var created *domain.Task
	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		requiredPeople, location, start, end, days := eventArgs(t)

		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO tasks (poster_id, kind, status, title, description, category,
				latitude, longitude, deadline, amount,
				required_people, location, start_date, end_date, number_of_days)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING id`,
			t.PosterID, string(t.Kind), string(t.Status), t.Title, t.Description, t.Category,
			t.Latitude, t.Longitude, timePtrToPgTimestamptz(t.Deadline), t.Amount,
			requiredPeople, location, start, end, days).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}

		if err := syncAssignees(ctx, tx, id, t.Assignees); err != nil {
			return err
		}

		created, err = getTask(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func getTask(ctx context.Context, q DBTX, id int64, forUpdate bool) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF t`
	}
	return scanTask(q.QueryRow(ctx, query, id))
}

func (s *TaskStore) Get(ctx context.Context, id int64) (*domain.Task, error) {
	return getTask(ctx, s.db, id, false)
}

func (s *TaskStore) Update(ctx context.Context, id int64, fn func(t *domain.Task) error) (*domain.Task, error) {
	var updated *domain.Task
	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		t, err := getTask(ctx, tx, id, true)
		if err != nil {
			return err
		}

		if err := fn(t); err != nil {
			return err
		}

		requiredPeople, location, start, end, days := eventArgs(t)
		_, err = tx.Exec(ctx, `
			UPDATE tasks SET status = $2, title = $3, description = $4, category = $5,
				latitude = $6, longitude = $7, deadline = $8, amount = $9,
				required_people = $10, location = $11, start_date = $12, end_date = $13,
				number_of_days = $14, updated_at = NOW()
			WHERE id = $1`,
			id, string(t.Status), t.Title, t.Description, t.Category,
			t.Latitude, t.Longitude, timePtrToPgTimestamptz(t.Deadline), t.Amount,
			requiredPeople, location, start, end, days)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}

		if err := syncAssignees(ctx, tx, id, t.Assignees); err != nil {
			return err
		}

		updated, err = getTask(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// syncAssignees makes task_assignees match assignees, keeping the order of
// runners already present.
func syncAssignees(ctx context.Context, tx pgx.Tx, taskID int64, assignees []int64) error {
	if assignees == nil {
		assignees = []int64{}
	}
	_, err := tx.Exec(ctx, `
		DELETE FROM task_assignees
		WHERE task_id = $1 AND NOT (user_id = ANY($2))`, taskID, assignees)
	if err != nil {
		return fmt.Errorf("remove assignees: %w", err)
	}

	for _, userID := range assignees {
		_, err := tx.Exec(ctx, `
			INSERT INTO task_assignees (task_id, user_id) VALUES ($1, $2)
			ON CONFLICT (task_id, user_id) DO NOTHING`, taskID, userID)
		if err != nil {
			return fmt.Errorf("add assignee: %w", err)
		}
	}
	return nil
}

func (s *TaskStore) Delete(ctx context.Context, id int64, before func(t *domain.Task) error) error {
	return inTx(ctx, s.db, func(tx pgx.Tx) error {
		t, err := getTask(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := before(t); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
}

func (s *TaskStore) ListByPoster(ctx context.Context, posterID int64) ([]domain.Task, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks t
		WHERE t.poster_id = $1
		ORDER BY t.created_at DESC`, posterID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
