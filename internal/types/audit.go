package types

import "time"

// AuditEntry is an append-only record of a decision taken by the engine.
type AuditEntry struct {
	ID            string         `json:"id,omitempty"`
	Actor         string         `json:"actor"`
	Action        string         `json:"action"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id,omitempty"`
	RedactedInput any            `json:"input_redacted,omitempty"`
	Output        any            `json:"output,omitempty"`
	Rationale     string         `json:"rationale,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Audit entity types.
const (
	EntityShift   = "shift"
	EntityRun     = "backfill_run"
	EntityAttempt = "backfill_attempt"
	EntitySMS     = "twilio_sms"
	EntityCall    = "vapi_call"
)
