package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/shift-backfill/internal/types"
)

const attemptColumns = `id::text, run_id::text, worker_id::text, channel, status, provider_message_id,
	raw_response, responded_at, created_at`

func scanAttempt(row pgx.Row) (*types.BackfillAttempt, error) {
	var a types.BackfillAttempt
	var channel, status string
	var raw []byte
	if err := row.Scan(&a.ID, &a.RunID, &a.WorkerID, &channel, &status, &a.ProviderMessageID,
		&raw, &a.RespondedAt, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Channel = types.Channel(channel)
	a.Status = types.AttemptStatus(status)
	if len(raw) > 0 {
		a.RawResponse = json.RawMessage(raw)
	}
	return &a, nil
}

// CreateAttempt inserts a new attempt.
func (db *DB) CreateAttempt(ctx context.Context, a types.BackfillAttempt) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO backfill_attempts (id, run_id, worker_id, channel, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.RunID, a.WorkerID, string(a.Channel), string(a.Status), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

// MarkAttemptSent moves a pending attempt to sent and stores the provider id.
func (db *DB) MarkAttemptSent(ctx context.Context, id, providerID string) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE backfill_attempts SET status = 'sent', provider_message_id = $2
		 WHERE id = $1 AND status = 'pending'`,
		id, providerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark attempt sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkAttemptFailed moves a pending attempt to failed.
func (db *DB) MarkAttemptFailed(ctx context.Context, id string) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE backfill_attempts SET status = 'failed' WHERE id = $1 AND status = 'pending'`, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark attempt failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordAttemptResponse stores a decision on an attempt that is still pending
// or sent. It reports false when the attempt is missing or already decided.
func (db *DB) RecordAttemptResponse(ctx context.Context, id string, status types.AttemptStatus, respondedAt time.Time, raw json.RawMessage) (bool, error) {
	payload, err := jsonOrNull(raw)
	if err != nil {
		return false, fmt.Errorf("failed to marshal raw response: %w", err)
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE backfill_attempts
		 SET status = $2, responded_at = $3, raw_response = $4
		 WHERE id = $1 AND status IN ('pending', 'sent')`,
		id, string(status), respondedAt, payload,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record response: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetAttempt retrieves an attempt by ID
func (db *DB) GetAttempt(ctx context.Context, id string) (*types.BackfillAttempt, error) {
	a, err := scanAttempt(db.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM backfill_attempts WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return a, nil
}

// ListAttempts returns a run's attempts oldest first.
func (db *DB) ListAttempts(ctx context.Context, runID string) ([]types.BackfillAttempt, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM backfill_attempts WHERE run_id = $1 ORDER BY created_at`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []types.BackfillAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// FindOpenAttemptForPhone returns the newest pending or sent attempt of the
// worker with this phone number, or nil.
func (db *DB) FindOpenAttemptForPhone(ctx context.Context, phone string) (*types.BackfillAttempt, error) {
	a, err := scanAttempt(db.pool.QueryRow(ctx,
		`SELECT a.id::text, a.run_id::text, a.worker_id::text, a.channel, a.status, a.provider_message_id,
		        a.raw_response, a.responded_at, a.created_at
		 FROM backfill_attempts a
		 JOIN workers w ON w.id = a.worker_id
		 WHERE w.phone = $1 AND a.status IN ('pending', 'sent')
		 ORDER BY a.created_at DESC LIMIT 1`,
		phone,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find open attempt: %w", err)
	}
	return a, nil
}
