package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/shift-backfill/internal/types"
)

// InsertAudit appends an entry to system_audit.
func (db *DB) InsertAudit(ctx context.Context, e types.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	input, err := jsonOrNull(e.RedactedInput)
	if err != nil {
		return fmt.Errorf("failed to marshal audit input: %w", err)
	}
	output, err := jsonOrNull(e.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal audit output: %w", err)
	}
	var meta []byte
	if len(e.Metadata) > 0 {
		if meta, err = jsonOrNull(e.Metadata); err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO system_audit (id, actor, action, entity_type, entity_id, input_redacted, output, rationale, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Actor, e.Action, e.EntityType, textOrNull(e.EntityID), input, output, textOrNull(e.Rationale), meta, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry %s: %w", e.Action, err)
	}
	return nil
}
