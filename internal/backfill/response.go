package backfill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/logging"
	"github.com/jonathan/shift-backfill/internal/types"
)

// ResponseResult reports what applying a response did.
type ResponseResult struct {
	RunID    string         `json:"run_id"`
	ShiftID  string         `json:"shift_id"`
	WorkerID string         `json:"worker_id"`
	Decision types.Decision `json:"decision"`
	// Replayed is set when the attempt had already been decided.
	Replayed bool `json:"replayed"`
	// Late is set when an acceptance arrived after the run left running.
	Late bool `json:"late"`
}

// ResponseProcessor applies worker decisions to attempts and runs.
type ResponseProcessor struct {
	attempts   AttemptStore
	runs       RunStore
	shifts     ShiftStore
	controller *Controller
	audit      audit.Recorder
	log        logging.Logger
	now        func() time.Time
}

// NewResponseProcessor creates a ResponseProcessor.
func NewResponseProcessor(store Store, controller *Controller, rec audit.Recorder, log logging.Logger) *ResponseProcessor {
	if rec == nil {
		rec = audit.Nop{}
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &ResponseProcessor{
		attempts:   store,
		runs:       store,
		shifts:     store,
		controller: controller,
		audit:      rec,
		log:        log,
		now:        time.Now,
	}
}

// Apply records decision on the attempt. An acceptance assigns the shift and
// fills the run. Applying a decision to an already decided attempt is a no-op
// reported with Replayed set.
func (p *ResponseProcessor) Apply(ctx context.Context, attemptID string, decision types.Decision, raw json.RawMessage) (ResponseResult, error) {
	if !decision.Valid() {
		return ResponseResult{}, fmt.Errorf("unknown decision %q", decision)
	}

	attempt, err := p.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return ResponseResult{}, fmt.Errorf("failed to load attempt: %w", err)
	}
	if attempt == nil {
		return ResponseResult{}, &types.NotFoundError{Entity: "backfill attempt", ID: attemptID}
	}
	run, err := p.runs.GetRun(ctx, attempt.RunID)
	if err != nil {
		return ResponseResult{}, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return ResponseResult{}, &types.NotFoundError{Entity: "backfill run", ID: attempt.RunID}
	}

	result := ResponseResult{
		RunID:    run.ID,
		ShiftID:  run.ShiftID,
		WorkerID: attempt.WorkerID,
		Decision: decision,
	}
	log := p.log.With(
		logging.String("run_id", run.ID),
		logging.String("attempt_id", attemptID),
		logging.String("decision", string(decision)),
	)

	if raw == nil {
		raw = json.RawMessage(`{}`)
	}
	recorded := false
	if !attempt.Status.IsTerminal() {
		recorded, err = p.attempts.RecordAttemptResponse(ctx, attemptID, decision.AttemptStatus(), p.now().UTC(), raw)
		if err != nil {
			return ResponseResult{}, fmt.Errorf("failed to record response: %w", err)
		}
	}
	if !recorded {
		result.Replayed = true
		current, err := p.attempts.GetAttempt(ctx, attemptID)
		if err == nil && current != nil {
			result.Decision = decisionOf(current.Status, decision)
		}
		if current != nil && current.Status == types.AttemptAccepted {
			repaired, err := p.completeAssignment(ctx, run, attemptID, attempt.WorkerID)
			if err != nil {
				return ResponseResult{}, err
			}
			if repaired {
				log.Info("shift assignment completed on redelivery", logging.String("worker_id", attempt.WorkerID))
				return result, nil
			}
		}
		p.audit.Record(ctx, types.AuditEntry{
			Action:     audit.ActionResponseReplayed,
			EntityType: types.EntityAttempt,
			EntityID:   attemptID,
			Output:     map[string]any{"run_id": run.ID, "decision": result.Decision, "requested": decision},
			Rationale:  "Response for an already decided attempt ignored.",
		})
		log.Info("response replay ignored")
		return result, nil
	}

	if decision != types.DecisionAccepted {
		p.audit.Record(ctx, types.AuditEntry{
			Action:     audit.ActionResponsePrefix + string(decision),
			EntityType: types.EntityAttempt,
			EntityID:   attemptID,
			Output:     map[string]any{"run_id": run.ID, "worker_id": attempt.WorkerID},
			Rationale:  fmt.Sprintf("Caregiver response: %s.", decision),
		})
		log.Info("response recorded; run keeps running")
		return result, nil
	}

	// Filled wins first so an escalated run never gets its shift reassigned.
	err = p.controller.MarkFilled(ctx, run.ID, attempt.WorkerID)
	var invalid *types.InvalidTransitionError
	switch {
	case errors.As(err, &invalid):
		result.Late = true
		p.audit.Record(ctx, types.AuditEntry{
			Action:     audit.ActionLateAcceptance,
			EntityType: types.EntityAttempt,
			EntityID:   attemptID,
			Output:     map[string]any{"run_id": run.ID, "run_status": invalid.From, "worker_id": attempt.WorkerID},
			Rationale:  "Acceptance arrived after the run was finalized; shift not reassigned.",
		})
		log.Warn("late acceptance ignored", logging.String("run_status", string(invalid.From)))
		return result, nil
	case err != nil:
		return ResponseResult{}, err
	}

	// A failed assignment leaves the run filled; redelivering the response completes it.
	if err := p.assign(ctx, run, attemptID, attempt.WorkerID, "Caregiver accepted; shift assigned."); err != nil {
		return ResponseResult{}, err
	}
	log.Info("shift filled", logging.String("worker_id", attempt.WorkerID))
	return result, nil
}

func (p *ResponseProcessor) assign(ctx context.Context, run *types.BackfillRun, attemptID, workerID, rationale string) error {
	if err := p.shifts.AssignShift(ctx, run.ShiftID, workerID); err != nil {
		return fmt.Errorf("failed to assign shift: %w", err)
	}
	p.audit.Record(ctx, types.AuditEntry{
		Action:     audit.ActionResponsePrefix + string(types.DecisionAccepted),
		EntityType: types.EntityAttempt,
		EntityID:   attemptID,
		Output:     map[string]any{"run_id": run.ID, "worker_id": workerID, "shift_id": run.ShiftID},
		Rationale:  rationale,
	})
	return nil
}

// completeAssignment finishes an acceptance whose run was filled but whose
// shift assignment failed. It only acts while the run is filled for workerID,
// the shift has no worker and no newer run is backfilling it.
func (p *ResponseProcessor) completeAssignment(ctx context.Context, run *types.BackfillRun, attemptID, workerID string) (bool, error) {
	if run.Status != types.RunStatusFilled || run.ChosenWorkerID == nil || *run.ChosenWorkerID != workerID {
		return false, nil
	}
	shift, err := p.shifts.GetShiftWithClient(ctx, run.ShiftID)
	if err != nil {
		return false, fmt.Errorf("failed to load shift: %w", err)
	}
	if shift == nil {
		return false, &types.NotFoundError{Entity: "shift", ID: run.ShiftID}
	}
	if shift.WorkerID != nil {
		return false, nil
	}
	active, err := p.runs.FindActiveRun(ctx, run.ShiftID)
	if err != nil {
		return false, fmt.Errorf("failed to check active run: %w", err)
	}
	if active != nil {
		return false, nil
	}
	if err := p.assign(ctx, run, attemptID, workerID, "Caregiver accepted; assignment completed on redelivery."); err != nil {
		return false, err
	}
	return true, nil
}

func decisionOf(status types.AttemptStatus, fallback types.Decision) types.Decision {
	switch status {
	case types.AttemptAccepted:
		return types.DecisionAccepted
	case types.AttemptDeclined:
		return types.DecisionDeclined
	case types.AttemptNoAnswer:
		return types.DecisionNoAnswer
	default:
		return fallback
	}
}
