package types

import (
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state of a backfill run.
type RunStatus string

// Run statuses. Filled and escalated are terminal.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusFilled    RunStatus = "filled"
	RunStatusEscalated RunStatus = "escalated"
)

// IsTerminal reports whether no further transition may leave this status.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusFilled || s == RunStatusEscalated
}

// BackfillRun is one backfill workflow instance tied to a single shift cancellation.
type BackfillRun struct {
	ID             string    `json:"id"`
	ShiftID        string    `json:"shift_id"`
	Status         RunStatus `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	DeadlineAt     time.Time `json:"deadline_at"`
	ChosenWorkerID *string   `json:"chosen_worker_id,omitempty"`
}

// Channel is the outreach medium of an attempt.
type Channel string

// Outreach channels.
const (
	ChannelSMS   Channel = "sms"
	ChannelVoice Channel = "voice"
)

// AttemptStatus is the state of one outreach attempt.
type AttemptStatus string

// Attempt statuses. Pending and sent are open; the rest are terminal.
const (
	AttemptPending  AttemptStatus = "pending"
	AttemptSent     AttemptStatus = "sent"
	AttemptFailed   AttemptStatus = "failed"
	AttemptAccepted AttemptStatus = "accepted"
	AttemptDeclined AttemptStatus = "declined"
	AttemptNoAnswer AttemptStatus = "no_answer"
)

// IsTerminal reports whether the attempt can no longer change.
func (s AttemptStatus) IsTerminal() bool {
	return s != AttemptPending && s != AttemptSent
}

// BackfillAttempt is one outreach contact to one worker within a run.
type BackfillAttempt struct {
	ID                string          `json:"id"`
	RunID             string          `json:"run_id"`
	WorkerID          string          `json:"worker_id"`
	Channel           Channel         `json:"channel"`
	Status            AttemptStatus   `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	RespondedAt       *time.Time      `json:"responded_at,omitempty"`
	ProviderMessageID *string         `json:"provider_message_id,omitempty"`
	RawResponse       json.RawMessage `json:"raw_response,omitempty"`
}

// Decision is a worker's answer to an outreach attempt.
type Decision string

// Decisions accepted by the response processor.
const (
	DecisionAccepted Decision = "accepted"
	DecisionDeclined Decision = "declined"
	DecisionNoAnswer Decision = "no_answer"
)

// AttemptStatus returns the attempt status recorded for this decision.
func (d Decision) AttemptStatus() AttemptStatus {
	switch d {
	case DecisionAccepted:
		return AttemptAccepted
	case DecisionDeclined:
		return AttemptDeclined
	default:
		return AttemptNoAnswer
	}
}

// Valid reports whether d is one of the known decisions.
func (d Decision) Valid() bool {
	return d == DecisionAccepted || d == DecisionDeclined || d == DecisionNoAnswer
}
