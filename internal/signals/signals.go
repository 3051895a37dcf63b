// Package signals delivers the trigger and response signals to the backfill
// orchestrator. Delivery is at least once: handlers must tolerate duplicates.
package signals

import (
	"context"

	"github.com/jonathan/shift-backfill/internal/backfill"
	"github.com/jonathan/shift-backfill/internal/types"
)

// Topics carried on the bus.
const (
	TopicShiftCancelled = "shift_cancelled"
	TopicResponse       = "backfill_response"
)

// Emitter publishes signals.
type Emitter interface {
	EmitShiftCancelled(ctx context.Context, sig types.ShiftCancelled) error
	EmitResponse(ctx context.Context, sig types.BackfillResponse) error
}

// Handler consumes signals. *backfill.Orchestrator implements it.
type Handler interface {
	HandleShiftCancelled(ctx context.Context, sig types.ShiftCancelled) (*types.BackfillRun, error)
	HandleResponse(ctx context.Context, sig types.BackfillResponse) (backfill.ResponseResult, error)
}

// Inline hands signals straight to a Handler in the caller's goroutine. It is
// used when no Redis is configured.
type Inline struct {
	Handler Handler
}

// EmitShiftCancelled runs the pipeline synchronously. Pipeline failures after
// the run exists are audited by the handler and not returned.
func (i Inline) EmitShiftCancelled(ctx context.Context, sig types.ShiftCancelled) error {
	run, err := i.Handler.HandleShiftCancelled(ctx, sig)
	if err != nil && run == nil {
		return err
	}
	return nil
}

// EmitResponse applies the response synchronously.
func (i Inline) EmitResponse(ctx context.Context, sig types.BackfillResponse) error {
	_, err := i.Handler.HandleResponse(ctx, sig)
	return err
}
