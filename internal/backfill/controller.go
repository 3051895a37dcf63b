package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/logging"
	"github.com/jonathan/shift-backfill/internal/metrics"
	"github.com/jonathan/shift-backfill/internal/types"
)

// DefaultDeadline is how long a run waits for an acceptance before escalating.
const DefaultDeadline = 15 * time.Minute

// Controller owns run status transitions. Every transition is a
// compare-and-set on the persisted status, so concurrent callers racing on one
// run see exactly one winner.
type Controller struct {
	runs     RunStore
	audit    audit.Recorder
	log      logging.Logger
	metrics  *metrics.Metrics
	deadline time.Duration
	now      func() time.Time
}

// NewController creates a Controller. A non-positive deadline uses DefaultDeadline.
func NewController(runs RunStore, deadline time.Duration, rec audit.Recorder, log logging.Logger, m *metrics.Metrics) *Controller {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	if rec == nil {
		rec = audit.Nop{}
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Controller{runs: runs, audit: rec, log: log, metrics: m, deadline: deadline, now: time.Now}
}

// Deadline returns the configured run deadline.
func (c *Controller) Deadline() time.Duration {
	return c.deadline
}

// StartRun returns the shift's running run if there is one, otherwise creates it.
// created is false when an existing run was reused.
func (c *Controller) StartRun(ctx context.Context, shiftID string) (run *types.BackfillRun, created bool, err error) {
	existing, err := c.runs.FindActiveRun(ctx, shiftID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up active run: %w", err)
	}
	if existing != nil {
		c.metrics.RunDeduped()
		c.log.Info("reusing active run", logging.String("shift_id", shiftID), logging.String("run_id", existing.ID))
		return existing, false, nil
	}

	now := c.now().UTC()
	fresh := types.BackfillRun{
		ID:         uuid.NewString(),
		ShiftID:    shiftID,
		Status:     types.RunStatusRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
		DeadlineAt: now.Add(c.deadline),
	}
	if err := c.runs.CreateRun(ctx, fresh); err != nil {
		if !errors.Is(err, types.ErrActiveRunExists) {
			return nil, false, fmt.Errorf("failed to create run: %w", err)
		}
		// Lost the insert race to a concurrent delivery of the same signal.
		existing, err = c.runs.FindActiveRun(ctx, shiftID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to look up active run: %w", err)
		}
		if existing == nil {
			return nil, false, fmt.Errorf("active run for shift %s vanished after insert conflict", shiftID)
		}
		c.metrics.RunDeduped()
		return existing, false, nil
	}

	c.metrics.RunStarted()
	c.audit.Record(ctx, types.AuditEntry{
		Action:        audit.ActionRunCreated,
		EntityType:    types.EntityRun,
		EntityID:      fresh.ID,
		RedactedInput: map[string]any{"shift_id": shiftID},
		Output:        map[string]any{"deadline_at": fresh.DeadlineAt},
		Rationale:     "Shift cancelled; created backfill run.",
	})
	c.log.Info("backfill run created",
		logging.String("shift_id", shiftID),
		logging.String("run_id", fresh.ID),
		logging.Time("deadline_at", fresh.DeadlineAt),
	)
	return &fresh, true, nil
}

// MarkFilled moves a running run to filled. It returns *types.InvalidTransitionError
// when the run is no longer running.
func (c *Controller) MarkFilled(ctx context.Context, runID, workerID string) error {
	ok, err := c.runs.TransitionRun(ctx, runID, types.RunStatusRunning, types.RunStatusFilled, &workerID)
	if err != nil {
		return fmt.Errorf("failed to mark run filled: %w", err)
	}
	if !ok {
		current, err := c.runs.GetRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to load run: %w", err)
		}
		if current == nil {
			return &types.NotFoundError{Entity: "backfill run", ID: runID}
		}
		return &types.InvalidTransitionError{RunID: runID, From: current.Status, To: types.RunStatusFilled}
	}

	c.metrics.RunFinalized(string(types.RunStatusFilled))
	c.audit.Record(ctx, types.AuditEntry{
		Action:     audit.ActionRunFilled,
		EntityType: types.EntityRun,
		EntityID:   runID,
		Output:     map[string]any{"worker_id": workerID},
		Rationale:  "Caregiver accepted; run filled.",
	})
	return nil
}

// MarkEscalated moves a running run to escalated. It reports false without
// error when the run was already terminal.
func (c *Controller) MarkEscalated(ctx context.Context, runID, reason string) (bool, error) {
	ok, err := c.runs.TransitionRun(ctx, runID, types.RunStatusRunning, types.RunStatusEscalated, nil)
	if err != nil {
		return false, fmt.Errorf("failed to mark run escalated: %w", err)
	}
	if !ok {
		current, err := c.runs.GetRun(ctx, runID)
		if err != nil {
			return false, fmt.Errorf("failed to load run: %w", err)
		}
		if current == nil {
			return false, &types.NotFoundError{Entity: "backfill run", ID: runID}
		}
		return false, nil
	}
	c.metrics.RunFinalized(string(types.RunStatusEscalated))
	c.log.Info("backfill run escalated", logging.String("run_id", runID), logging.String("reason", reason))
	return true, nil
}

// IsDeadlineExpired reports whether now is at or past the run's deadline.
func (c *Controller) IsDeadlineExpired(run types.BackfillRun) bool {
	return !c.now().Before(run.DeadlineAt)
}
