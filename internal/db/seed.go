package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/shift-backfill/internal/demo"
)

// SeedDemo upserts the demo client, caregivers and shift in one transaction.
func (db *DB) SeedDemo(ctx context.Context, data demo.Dataset) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		c := data.Client
		if _, err := tx.Exec(ctx,
			`INSERT INTO clients (id, first_name, last_initial, primary_language, latitude, longitude)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET first_name = $2, last_initial = $3, primary_language = $4,
			     latitude = $5, longitude = $6`,
			c.ID, c.FirstName, c.LastInitial, textOrNull(c.PrimaryLanguage), c.Latitude, c.Longitude,
		); err != nil {
			return fmt.Errorf("failed to seed client: %w", err)
		}

		for _, w := range data.Workers {
			if _, err := tx.Exec(ctx,
				`INSERT INTO workers (id, name, phone, skills, languages, latitude, longitude,
				                      reliability_score, last_minute_accept_rate, active)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				 ON CONFLICT (id) DO UPDATE SET name = $2, phone = $3, skills = $4, languages = $5,
				     latitude = $6, longitude = $7, reliability_score = $8, last_minute_accept_rate = $9, active = $10`,
				w.ID, w.Name, w.Phone, w.Skills, w.Languages, w.Latitude, w.Longitude,
				w.ReliabilityScore, w.LastMinuteAcceptRate, w.Active,
			); err != nil {
				return fmt.Errorf("failed to seed worker %s: %w", w.Name, err)
			}
		}

		s := data.Shift
		if _, err := tx.Exec(ctx,
			`INSERT INTO shifts (id, client_id, worker_id, status, start_time, end_time, required_skills)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO UPDATE SET client_id = $2, worker_id = $3, status = $4, start_time = $5,
			     end_time = $6, required_skills = $7, cancelled_at = NULL, cancelled_worker_id = NULL`,
			s.ID, s.ClientID, s.WorkerID, s.Status, s.StartTime, s.EndTime, s.RequiredSkills,
		); err != nil {
			return fmt.Errorf("failed to seed shift: %w", err)
		}
		return nil
	})
}
