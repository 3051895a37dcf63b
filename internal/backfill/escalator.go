package backfill

import (
	"context"
	"fmt"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/comms"
	"github.com/jonathan/shift-backfill/internal/logging"
	"github.com/jonathan/shift-backfill/internal/prompts"
	"github.com/jonathan/shift-backfill/internal/types"
)

// Escalator hands a run over to a human once automation gives up.
type Escalator struct {
	runs         RunStore
	controller   *Controller
	sms          comms.SMSSender
	managerPhone string
	audit        audit.Recorder
	log          logging.Logger
}

// NewEscalator creates an Escalator. The manager is only notified when both
// sms and managerPhone are set.
func NewEscalator(runs RunStore, controller *Controller, sms comms.SMSSender, managerPhone string, rec audit.Recorder, log logging.Logger) *Escalator {
	if rec == nil {
		rec = audit.Nop{}
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Escalator{
		runs:         runs,
		controller:   controller,
		sms:          sms,
		managerPhone: managerPhone,
		audit:        rec,
		log:          log,
	}
}

// Escalate moves the run to escalated and notifies the manager. It reports
// whether this call performed the transition; a run that is already terminal
// is left alone and only audited.
func (e *Escalator) Escalate(ctx context.Context, runID, reason string) (bool, error) {
	run, err := e.runs.GetRun(ctx, runID)
	if err != nil {
		return false, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return false, &types.NotFoundError{Entity: "backfill run", ID: runID}
	}

	escalated, err := e.controller.MarkEscalated(ctx, runID, reason)
	if err != nil {
		return false, err
	}

	notified := false
	var notifyErr error
	if escalated && e.sms != nil && e.managerPhone != "" {
		notifyErr = e.notify(ctx, run.ShiftID, reason)
		notified = notifyErr == nil
		if notifyErr != nil {
			e.log.Warn("manager notification failed", logging.String("run_id", runID), logging.Error(notifyErr))
		}
	}

	output := map[string]any{
		"escalated":       escalated,
		"notifiedManager": notified,
	}
	if notifyErr != nil {
		output["notifyError"] = notifyErr.Error()
	}
	if !escalated {
		output["skipped"] = "run already finalized"
	}
	e.audit.Record(ctx, types.AuditEntry{
		Action:        audit.ActionEscalate,
		EntityType:    types.EntityRun,
		EntityID:      runID,
		RedactedInput: map[string]any{"shift_id": run.ShiftID},
		Output:        output,
		Rationale:     reason,
	})
	return escalated, nil
}

func (e *Escalator) notify(ctx context.Context, shiftID, reason string) error {
	body, err := prompts.Render(prompts.MessagesFile, prompts.KeyEscalationSMS, map[string]string{
		"ShiftID": shiftID,
		"Reason":  reason,
	})
	if err != nil {
		return fmt.Errorf("failed to render escalation text: %w", err)
	}
	if _, err := e.sms.SendSMS(ctx, comms.SMS{ToE164: e.managerPhone, Body: body}); err != nil {
		return &types.TransportError{Op: "escalation sms", Err: err}
	}
	return nil
}
