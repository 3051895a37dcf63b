package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/types"
)

// ShiftCanceller marks a shift cancelled. It reports false when the shift is unknown.
type ShiftCanceller interface {
	CancelShift(ctx context.Context, shiftID string, at time.Time) (bool, error)
}

// TriggerEmitter publishes the signal that starts a backfill run.
type TriggerEmitter interface {
	EmitShiftCancelled(ctx context.Context, sig types.ShiftCancelled) error
}

// Canceller records a shift cancellation and triggers its backfill.
type Canceller struct {
	shifts ShiftCanceller
	emit   TriggerEmitter
	audit  audit.Recorder
	now    func() time.Time
}

// NewCanceller creates a Canceller.
func NewCanceller(shifts ShiftCanceller, emit TriggerEmitter, rec audit.Recorder) *Canceller {
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Canceller{shifts: shifts, emit: emit, audit: rec, now: time.Now}
}

// Cancel clears the shift's worker, audits the cancellation and emits the
// trigger. Cancelling an already cancelled shift emits again; the run
// controller dedupes.
func (c *Canceller) Cancel(ctx context.Context, shiftID, cancelledBy string) error {
	sig := types.ShiftCancelled{ShiftID: shiftID, CancelledBy: cancelledBy}
	if err := sig.Validate(); err != nil {
		return err
	}

	at := c.now().UTC()
	ok, err := c.shifts.CancelShift(ctx, shiftID, at)
	if err != nil {
		return fmt.Errorf("failed to cancel shift: %w", err)
	}
	if !ok {
		return &types.NotFoundError{Entity: "shift", ID: shiftID}
	}

	c.audit.Record(ctx, types.AuditEntry{
		Actor:      actorOrDefault(cancelledBy),
		Action:     audit.ActionShiftCancelled,
		EntityType: types.EntityShift,
		EntityID:   shiftID,
		Output:     map[string]any{"status": types.ShiftStatusCancelled, "cancelled_at": at},
		Rationale:  "Shift cancelled; backfill requested.",
	})

	if err := c.emit.EmitShiftCancelled(ctx, sig); err != nil {
		return fmt.Errorf("failed to emit shift cancelled: %w", err)
	}
	return nil
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return audit.DefaultActor
	}
	return actor
}
