package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/shift-backfill/internal/types"
)

// GetShiftWithClient loads a shift joined with its client. It returns nil
// when the shift is missing and a record with a nil Client when the client is.
func (db *DB) GetShiftWithClient(ctx context.Context, shiftID string) (*types.ShiftRecord, error) {
	var rec types.ShiftRecord
	var clientID, firstName, lastInitial, language *string
	var lat, lng *float64

	err := db.pool.QueryRow(ctx,
		`SELECT s.id::text, s.client_id::text, s.worker_id::text, s.status, s.start_time, s.end_time,
		        s.required_skills,
		        c.id::text, c.first_name, c.last_initial, c.primary_language, c.latitude, c.longitude
		 FROM shifts s
		 LEFT JOIN clients c ON c.id = s.client_id
		 WHERE s.id = $1`,
		shiftID,
	).Scan(&rec.ID, &rec.ClientID, &rec.WorkerID, &rec.Status, &rec.StartTime, &rec.EndTime,
		&rec.RequiredSkills,
		&clientID, &firstName, &lastInitial, &language, &lat, &lng)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}

	if clientID != nil {
		client := types.ClientRecord{ID: *clientID}
		if firstName != nil {
			client.FirstName = *firstName
		}
		if lastInitial != nil {
			client.LastInitial = *lastInitial
		}
		if language != nil {
			client.PrimaryLanguage = *language
		}
		if lat != nil && lng != nil {
			client.Latitude, client.Longitude = *lat, *lng
		}
		rec.Client = &client
	}
	return &rec, nil
}

// AssignShift gives the shift to workerID and marks it filled.
func (db *DB) AssignShift(ctx context.Context, shiftID, workerID string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE shifts SET worker_id = $2, status = 'filled' WHERE id = $1`,
		shiftID, workerID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign shift: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &types.NotFoundError{Entity: "shift", ID: shiftID}
	}
	return nil
}

// CancelShift marks the shift cancelled, remembers who dropped it and clears
// the assignment. It reports false when the shift does not exist.
func (db *DB) CancelShift(ctx context.Context, shiftID string, at time.Time) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE shifts
		 SET status = 'cancelled', cancelled_at = $2,
		     cancelled_worker_id = COALESCE(worker_id, cancelled_worker_id), worker_id = NULL
		 WHERE id = $1`,
		shiftID, at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel shift: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FetchCandidates runs rpc_fetch_candidates. An empty result is not an error.
func (db *DB) FetchCandidates(ctx context.Context, shiftID string, radiusMiles float64) ([]types.CandidateRow, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT worker_id::text, name, phone, distance_miles, skill_overlap, has_mandatory_skills,
		        reliability_score, last_minute_accept_rate, language_match
		 FROM rpc_fetch_candidates($1, $2)`,
		shiftID, radiusMiles,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidates: %w", err)
	}
	defer rows.Close()

	candidates := []types.CandidateRow{}
	for rows.Next() {
		var c types.CandidateRow
		if err := rows.Scan(&c.WorkerID, &c.Name, &c.Phone, &c.DistanceMiles, &c.SkillOverlap,
			&c.HasMandatorySkills, &c.ReliabilityScore, &c.LastMinuteAcceptRate, &c.LanguageMatch); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		if c.SkillOverlap == nil {
			c.SkillOverlap = []string{}
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
