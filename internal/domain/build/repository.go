package build

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thesara-space/forge/internal/infrastructure/database"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
)

// Repository persists build records. Status changes are conditional on the
// current status so that two writers cannot both advance the same build.
type Repository struct {
	db  *database.DB
	now func() time.Time
}

// NewRepository creates a repository on db.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

const buildColumns = `id, app_id, status, mode, stage, detail, created_at, updated_at`

// Create inserts a new record.
func (r *Repository) Create(ctx context.Context, rec *types.BuildRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO builds (`+buildColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AppID, string(rec.Status), string(rec.Mode), rec.Stage, rec.Detail,
		database.Millis(rec.CreatedAt), database.Millis(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert build %s: %w", rec.ID, err)
	}
	return nil
}

// Get loads one record.
func (r *Repository) Get(ctx context.Context, id string) (*types.BuildRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)
	rec, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "build %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load build %s: %w", id, err)
	}
	return rec, nil
}

// Transition moves a build from one status to the next, recording stage and
// detail. It fails with Conflict when the stored status is no longer from.
func (r *Repository) Transition(ctx context.Context, id string, from, to types.BuildStatus, stage, detail string) (*types.BuildRecord, error) {
	if err := r.transition(ctx, r.db, id, from, to, stage, detail); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// TransitionTx is Transition inside tx.
func (r *Repository) TransitionTx(ctx context.Context, tx *sql.Tx, id string, from, to types.BuildStatus, stage, detail string) error {
	return r.transition(ctx, tx, id, from, to, stage, detail)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *Repository) transition(ctx context.Context, ex execer, id string, from, to types.BuildStatus, stage, detail string) error {
	if !CanTransition(from, to) {
		return apperr.E(apperr.Conflict, "build %s cannot move from %s to %s", id, from, to)
	}
	res, err := ex.ExecContext(ctx,
		`UPDATE builds SET status = ?, stage = ?, detail = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), stage, detail, database.Millis(r.now()), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update build %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update build %s: %w", id, err)
	}
	if n == 0 {
		return apperr.E(apperr.Conflict, "build %s is no longer %s", id, from)
	}
	return nil
}

// ListByApp returns an app's builds, newest first.
func (r *Repository) ListByApp(ctx context.Context, appID string) ([]*types.BuildRecord, error) {
	return r.list(ctx, `SELECT `+buildColumns+` FROM builds WHERE app_id = ? ORDER BY created_at DESC, id DESC`, appID)
}

// ListActive returns every build that has not reached a terminal status.
func (r *Repository) ListActive(ctx context.Context) ([]*types.BuildRecord, error) {
	return r.list(ctx, `SELECT `+buildColumns+` FROM builds WHERE status NOT IN ('published', 'failed') ORDER BY id`)
}

// FailInterrupted marks builds left non-terminal by a previous process as
// failed. It returns how many were changed.
func (r *Repository) FailInterrupted(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE builds SET status = 'failed', detail = 'interrupted by restart', updated_at = ?
		 WHERE status NOT IN ('published', 'failed')`,
		database.Millis(r.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail interrupted builds: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]*types.BuildRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	var out []*types.BuildRecord
	for rows.Next() {
		rec, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBuild(s scanner) (*types.BuildRecord, error) {
	var (
		rec                  types.BuildRecord
		status, mode         string
		createdAt, updatedAt int64
	)
	if err := s.Scan(&rec.ID, &rec.AppID, &status, &mode, &rec.Stage, &rec.Detail, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Status = types.BuildStatus(status)
	rec.Mode = types.BuildMode(mode)
	rec.CreatedAt = database.FromMillis(createdAt)
	rec.UpdatedAt = database.FromMillis(updatedAt)
	return &rec, nil
}
