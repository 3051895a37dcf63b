package backfill

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/demo"
	"github.com/jonathan/shift-backfill/internal/memstore"
	"github.com/jonathan/shift-backfill/internal/types"
)

// flakyAssignStore fails the next failures calls to AssignShift.
type flakyAssignStore struct {
	*memstore.Store
	failures int
}

func (s *flakyAssignStore) AssignShift(ctx context.Context, shiftID, workerID string) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset")
	}
	return s.Store.AssignShift(ctx, shiftID, workerID)
}

func TestApply_AcceptAssignsShift(t *testing.T) {
	h := newHarness(t, 0)
	run := h.cancelDemoShift(t)
	attempt := h.onlyAttempt(t, run.ID)

	raw := json.RawMessage(`{"Body":"YES"}`)
	res, err := h.orch.responses.Apply(context.Background(), attempt.ID, types.DecisionAccepted, raw)
	require.NoError(t, err)
	assert.Equal(t, ResponseResult{
		RunID:    run.ID,
		ShiftID:  demo.ShiftID,
		WorkerID: demo.CharlieID,
		Decision: types.DecisionAccepted,
	}, res)

	got := h.run(t, run.ID)
	assert.Equal(t, types.RunStatusFilled, got.Status)
	require.NotNil(t, got.ChosenWorkerID)
	assert.Equal(t, demo.CharlieID, *got.ChosenWorkerID)

	shift, ok := h.store.Shift(demo.ShiftID)
	require.True(t, ok)
	require.NotNil(t, shift.WorkerID)
	assert.Equal(t, demo.CharlieID, *shift.WorkerID)
	assert.Equal(t, types.ShiftStatusFilled, shift.Status)

	updated, err := h.store.GetAttempt(context.Background(), attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AttemptAccepted, updated.Status)
	assert.NotNil(t, updated.RespondedAt)
	assert.JSONEq(t, string(raw), string(updated.RawResponse))

	assert.Equal(t, 1, h.capture.Count(audit.ActionRunFilled))
	assert.Equal(t, 1, h.capture.Count("backfill.response.accepted"))
}

func TestApply_ReplayIsIdempotent(t *testing.T) {
	h := newHarness(t, 0)
	run := h.cancelDemoShift(t)
	attempt := h.onlyAttempt(t, run.ID)
	ctx := context.Background()

	first, err := h.orch.responses.Apply(ctx, attempt.ID, types.DecisionAccepted, nil)
	require.NoError(t, err)
	second, err := h.orch.responses.Apply(ctx, attempt.ID, types.DecisionAccepted, nil)
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, first.WorkerID, second.WorkerID)
	assert.Equal(t, types.DecisionAccepted, second.Decision)
	assert.Equal(t, 1, h.capture.Count(audit.ActionRunFilled))
	assert.Equal(t, 1, h.capture.Count(audit.ActionResponseReplayed))
}

func TestApply_ReplayKeepsOriginalDecision(t *testing.T) {
	h := newHarness(t, 0)
	run := h.cancelDemoShift(t)
	attempt := h.onlyAttempt(t, run.ID)
	ctx := context.Background()

	_, err := h.orch.responses.Apply(ctx, attempt.ID, types.DecisionDeclined, nil)
	require.NoError(t, err)
	res, err := h.orch.responses.Apply(ctx, attempt.ID, types.DecisionAccepted, nil)
	require.NoError(t, err)

	assert.True(t, res.Replayed)
	assert.Equal(t, types.DecisionDeclined, res.Decision)
	assert.Equal(t, types.RunStatusRunning, h.run(t, run.ID).Status)
}

func TestApply_DeclineKeepsRunRunning(t *testing.T) {
	for _, d := range []types.Decision{types.DecisionDeclined, types.DecisionNoAnswer} {
		t.Run(string(d), func(t *testing.T) {
			h := newHarness(t, 0)
			run := h.cancelDemoShift(t)
			attempt := h.onlyAttempt(t, run.ID)

			res, err := h.orch.responses.Apply(context.Background(), attempt.ID, d, nil)
			require.NoError(t, err)
			assert.Equal(t, d, res.Decision)
			assert.Equal(t, types.RunStatusRunning, h.run(t, run.ID).Status)
			assert.Equal(t, 1, h.capture.Count(audit.ActionResponsePrefix+string(d)))

			shift, _ := h.store.Shift(demo.ShiftID)
			assert.Nil(t, shift.WorkerID)
		})
	}
}

func TestApply_LateAcceptanceDoesNotOverrideEscalation(t *testing.T) {
	h := newHarness(t, 0)
	run := h.cancelDemoShift(t)
	attempt := h.onlyAttempt(t, run.ID)
	ctx := context.Background()

	escalated, err := h.orch.Escalate(ctx, run.ID, "manual")
	require.NoError(t, err)
	require.True(t, escalated)

	res, err := h.orch.responses.Apply(ctx, attempt.ID, types.DecisionAccepted, nil)
	require.NoError(t, err)
	assert.True(t, res.Late)
	assert.False(t, res.Replayed)

	assert.Equal(t, types.RunStatusEscalated, h.run(t, run.ID).Status)
	shift, _ := h.store.Shift(demo.ShiftID)
	assert.Nil(t, shift.WorkerID)
	assert.Equal(t, types.ShiftStatusCancelled, shift.Status)

	updated, err := h.store.GetAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AttemptAccepted, updated.Status)
	assert.Equal(t, 1, h.capture.Count(audit.ActionLateAcceptance))
	assert.Equal(t, 0, h.capture.Count(audit.ActionRunFilled))
}

func TestApply_ConcurrentAcceptsFillOnce(t *testing.T) {
	h := newHarness(t, 0)
	run := h.cancelDemoShift(t)
	attempt := h.onlyAttempt(t, run.ID)

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.orch.responses.Apply(context.Background(), attempt.ID, types.DecisionAccepted, nil)
			if !assert.NoError(t, err) {
				return
			}
			if !res.Replayed {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, h.capture.Count(audit.ActionRunFilled))
	assert.Equal(t, 9, h.capture.Count(audit.ActionResponseReplayed))
}

func TestApply_NotFound(t *testing.T) {
	h := newHarness(t, 0)
	_, err := h.orch.responses.Apply(context.Background(), "missing", types.DecisionAccepted, nil)
	var nf *types.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
}

func TestApply_RedeliveryCompletesFailedAssignment(t *testing.T) {
	h := newHarness(t, 0)
	run := h.cancelDemoShift(t)
	attempt := h.onlyAttempt(t, run.ID)
	ctx := context.Background()

	store := &flakyAssignStore{Store: h.store, failures: 1}
	processor := NewResponseProcessor(store, h.controller, h.capture, nil)

	_, err := processor.Apply(ctx, attempt.ID, types.DecisionAccepted, nil)
	require.Error(t, err)
	assert.Equal(t, types.RunStatusFilled, h.run(t, run.ID).Status)
	shift, ok := h.store.Shift(demo.ShiftID)
	require.True(t, ok)
	assert.Nil(t, shift.WorkerID)

	res, err := processor.Apply(ctx, attempt.ID, types.DecisionAccepted, nil)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, types.DecisionAccepted, res.Decision)

	shift, ok = h.store.Shift(demo.ShiftID)
	require.True(t, ok)
	require.NotNil(t, shift.WorkerID)
	assert.Equal(t, demo.CharlieID, *shift.WorkerID)
	assert.Equal(t, types.ShiftStatusFilled, shift.Status)
	assert.Equal(t, 1, h.capture.Count("backfill.response.accepted"))

	// Once assigned, further redeliveries are plain replays.
	_, err = processor.Apply(ctx, attempt.ID, types.DecisionAccepted, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, h.capture.Count("backfill.response.accepted"))
	assert.Equal(t, 1, h.capture.Count(audit.ActionResponseReplayed))
	assert.Equal(t, 1, h.capture.Count(audit.ActionRunFilled))
}

func TestApply_RedeliveryLeavesReassignedShiftAlone(t *testing.T) {
	h := newHarness(t, 0)
	run := h.cancelDemoShift(t)
	attempt := h.onlyAttempt(t, run.ID)
	ctx := context.Background()

	store := &flakyAssignStore{Store: h.store, failures: 1}
	processor := NewResponseProcessor(store, h.controller, h.capture, nil)

	_, err := processor.Apply(ctx, attempt.ID, types.DecisionAccepted, nil)
	require.Error(t, err)
	require.NoError(t, h.store.AssignShift(ctx, demo.ShiftID, demo.BobID))

	res, err := processor.Apply(ctx, attempt.ID, types.DecisionAccepted, nil)
	require.NoError(t, err)
	assert.True(t, res.Replayed)

	shift, ok := h.store.Shift(demo.ShiftID)
	require.True(t, ok)
	require.NotNil(t, shift.WorkerID)
	assert.Equal(t, demo.BobID, *shift.WorkerID)
	assert.Equal(t, 0, h.capture.Count("backfill.response.accepted"))
}
