package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/shift-backfill/internal/types"
)

const runColumns = `id::text, shift_id::text, status, chosen_worker_id::text, deadline_at, created_at, updated_at`

func scanRun(row pgx.Row) (*types.BackfillRun, error) {
	var run types.BackfillRun
	var status string
	if err := row.Scan(&run.ID, &run.ShiftID, &status, &run.ChosenWorkerID, &run.DeadlineAt, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Status = types.RunStatus(status)
	return &run, nil
}

func collectRuns(rows pgx.Rows) ([]types.BackfillRun, error) {
	defer rows.Close()
	var runs []types.BackfillRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// CreateRun inserts run. The partial unique index on running runs turns a
// second running run for the same shift into types.ErrActiveRunExists.
func (db *DB) CreateRun(ctx context.Context, run types.BackfillRun) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO backfill_runs (id, shift_id, status, chosen_worker_id, deadline_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.ShiftID, string(run.Status), run.ChosenWorkerID, run.DeadlineAt, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.ErrActiveRunExists
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FindActiveRun returns the running run for a shift, or nil.
func (db *DB) FindActiveRun(ctx context.Context, shiftID string) (*types.BackfillRun, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM backfill_runs
		 WHERE shift_id = $1 AND status = 'running'
		 ORDER BY created_at DESC LIMIT 1`,
		shiftID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID
func (db *DB) GetRun(ctx context.Context, id string) (*types.BackfillRun, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM backfill_runs WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// TransitionRun moves a run from one status to another only if it is still
// in from. chosenWorkerID, when set, is written in the same statement.
func (db *DB) TransitionRun(ctx context.Context, id string, from, to types.RunStatus, chosenWorkerID *string) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE backfill_runs
		 SET status = $3, chosen_worker_id = COALESCE($4, chosen_worker_id), updated_at = NOW()
		 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), chosenWorkerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetRunChosenWorker records the worker being contacted.
func (db *DB) SetRunChosenWorker(ctx context.Context, runID, workerID string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE backfill_runs SET chosen_worker_id = $2, updated_at = NOW() WHERE id = $1`,
		runID, workerID,
	)
	if err != nil {
		return fmt.Errorf("failed to set chosen worker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &types.NotFoundError{Entity: "backfill run", ID: runID}
	}
	return nil
}

// ListExpiredRuns returns running runs whose deadline has passed, oldest deadline first.
func (db *DB) ListExpiredRuns(ctx context.Context, now time.Time, limit int) ([]types.BackfillRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM backfill_runs
		 WHERE status = 'running' AND deadline_at <= $1
		 ORDER BY deadline_at LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired runs: %w", err)
	}
	return collectRuns(rows)
}

// ListRuns retrieves recent runs, optionally filtered by status.
func (db *DB) ListRuns(ctx context.Context, status types.RunStatus, limit int) ([]types.BackfillRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM backfill_runs`
	args := []any{}
	argNum := 1
	if status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argNum)
		args = append(args, string(status))
		argNum++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argNum)
	args = append(args, limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return collectRuns(rows)
}
