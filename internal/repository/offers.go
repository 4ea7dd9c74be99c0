package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/set-night/gigs/internal/domain"
	"github.com/set-night/gigs/internal/service"
)

const offerColumns = `id, task_id, runner_id, amount, comment, status, created_at, updated_at`

// offerConstraints maps unique constraints of the offers table to rejections.
var offerConstraints = map[string]error{
	"offers_task_runner_key":         domain.ErrAlreadyOffered,
	"offers_one_claimed_per_task":    domain.ErrAlreadyAccepted,
	"offers_one_accepted_per_runner": domain.ErrRunnerBusy,
}

func offerError(err error, action string) error {
	if rejection, ok := offerConstraints[uniqueConstraint(err)]; ok {
		return rejection
	}
	return fmt.Errorf("%s: %w", action, err)
}

type OfferStore struct {
	db *pgxpool.Pool
}

func NewOfferStore(db *pgxpool.Pool) *OfferStore {
	return &OfferStore{db: db}
}

func scanOffer(row pgx.Row) (*domain.Offer, error) {
	var (
		o      domain.Offer
		status string
	)
	err := row.Scan(&o.ID, &o.TaskID, &o.RunnerID, &o.Amount, &o.Comment, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = domain.OfferStatus(status)
	return &o, nil
}

func listOffers(ctx context.Context, q DBTX, query string, args ...any) ([]domain.Offer, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var offers []domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}

func (s *OfferStore) Get(ctx context.Context, id int64) (*domain.Offer, error) {
	return scanOffer(s.db.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
}

func (s *OfferStore) ListByTask(ctx context.Context, taskID int64) ([]domain.Offer, error) {
	return listOffers(ctx, s.db, `SELECT `+offerColumns+` FROM offers WHERE task_id = $1 ORDER BY id`, taskID)
}

func (s *OfferStore) ListByRunner(ctx context.Context, runnerID int64) ([]domain.Offer, error) {
	return listOffers(ctx, s.db, `SELECT `+offerColumns+` FROM offers WHERE runner_id = $1 ORDER BY created_at DESC`, runnerID)
}

func (s *OfferStore) FindByRunnerAndTask(ctx context.Context, runnerID, taskID int64) (*domain.Offer, error) {
	o, err := scanOffer(s.db.QueryRow(ctx, `
		SELECT `+offerColumns+` FROM offers
		WHERE runner_id = $1 AND task_id = $2`, runnerID, taskID))
	if errors.Is(err, domain.ErrOfferNotFound) {
		return nil, nil
	}
	return o, err
}

func runnerHasAccepted(ctx context.Context, q DBTX, runnerID int64) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM offers WHERE runner_id = $1 AND status = $2)`,
		runnerID, string(domain.OfferStatusAccepted)).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check accepted offers: %w", err)
	}
	return ok, nil
}

func (s *OfferStore) RunnerHasAccepted(ctx context.Context, runnerID int64) (bool, error) {
	return runnerHasAccepted(ctx, s.db, runnerID)
}

// LockTask serializes offer decisions on one task by locking the task row
// and every offer on it.
func (s *OfferStore) LockTask(ctx context.Context, taskID int64, fn func(tx service.OfferTx) error) error {
	return inTx(ctx, s.db, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM tasks WHERE id = $1 FOR UPDATE`, taskID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("lock task: %w", err)
		}

		offers, err := listOffers(ctx, tx, `
			SELECT `+offerColumns+` FROM offers
			WHERE task_id = $1 ORDER BY id FOR UPDATE`, taskID)
		if err != nil {
			return err
		}

		return fn(&offerTx{tx: tx, offers: offers})
	})
}

func (s *OfferStore) DeleteByTask(ctx context.Context, taskID int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM offers WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("delete offers: %w", err)
	}
	return nil
}

func (s *OfferStore) SetStatusForTask(ctx context.Context, taskID int64, from []domain.OfferStatus, to domain.OfferStatus) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE offers SET status = $3, updated_at = NOW()
		WHERE task_id = $1 AND status = ANY($2)`, taskID, statusStrings(from), string(to))
	if err != nil {
		return 0, offerError(err, "update offer statuses")
	}
	return int(tag.RowsAffected()), nil
}

type offerTx struct {
	tx     pgx.Tx
	offers []domain.Offer
}

func (t *offerTx) Offers() []domain.Offer {
	return t.offers
}

func (t *offerTx) Create(ctx context.Context, o *domain.Offer) (*domain.Offer, error) {
	created, err := scanOffer(t.tx.QueryRow(ctx, `
		INSERT INTO offers (task_id, runner_id, amount, comment, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+offerColumns, o.TaskID, o.RunnerID, o.Amount, o.Comment, string(o.Status)))
	if err != nil {
		return nil, offerError(err, "insert offer")
	}
	return created, nil
}

func (t *offerTx) RunnerHasAccepted(ctx context.Context, runnerID int64) (bool, error) {
	return runnerHasAccepted(ctx, t.tx, runnerID)
}

func (t *offerTx) SetStatus(ctx context.Context, id int64, status domain.OfferStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE offers SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return offerError(err, "update offer")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOfferNotFound
	}
	return nil
}

func (t *offerTx) Delete(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM offers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete offer: %w", err)
	}
	return nil
}

func (t *offerTx) DeleteOthers(ctx context.Context, taskID, keepID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM offers WHERE task_id = $1 AND id <> $2`, taskID, keepID)
	if err != nil {
		return fmt.Errorf("delete rival offers: %w", err)
	}
	return nil
}
