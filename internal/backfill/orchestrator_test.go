package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/demo"
	"github.com/jonathan/shift-backfill/internal/outreach"
	"github.com/jonathan/shift-backfill/internal/ranking"
	"github.com/jonathan/shift-backfill/internal/types"
)

const charliePhone = "+15555550103"

func TestHandleShiftCancelled_ContactsBestQualifiedCandidate(t *testing.T) {
	h := newHarness(t, 0)
	run := h.cancelDemoShift(t)

	got := h.run(t, run.ID)
	assert.Equal(t, types.RunStatusRunning, got.Status)
	require.NotNil(t, got.ChosenWorkerID)
	assert.Equal(t, demo.CharlieID, *got.ChosenWorkerID)

	attempt := h.onlyAttempt(t, run.ID)
	assert.Equal(t, demo.CharlieID, attempt.WorkerID)
	assert.Equal(t, types.AttemptSent, attempt.Status)
	assert.Equal(t, types.ChannelSMS, attempt.Channel)

	texts := h.sms.sentTo(charliePhone)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0].Body, "Mr S.")
	assert.NotContains(t, texts[0].Body, demo.ClientID)

	assert.Equal(t, []string{
		audit.ActionRunCreated,
		audit.ActionRankDeterministic,
		audit.ActionOutreachSent,
	}, h.capture.Actions())
	assert.Equal(t, 1, h.orch.Pending())
}

func TestHandleShiftCancelled_DuplicateSignalIsDeduped(t *testing.T) {
	h := newHarness(t, 0)
	first := h.cancelDemoShift(t)

	second, err := h.orch.HandleShiftCancelled(context.Background(), types.ShiftCancelled{ShiftID: demo.ShiftID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	h.onlyAttempt(t, first.ID)
	assert.Len(t, h.sms.sentTo(charliePhone), 1)
	assert.Equal(t, 1, h.capture.Count(audit.ActionRunCreated))
}

func TestHandleShiftCancelled_NoCandidatesEscalates(t *testing.T) {
	h := newHarness(t, 0)
	h.store.SetCandidates(demo.ShiftID, []types.CandidateRow{})
	run := h.cancelDemoShift(t)

	assert.Equal(t, types.RunStatusEscalated, h.run(t, run.ID).Status)
	manager := h.sms.sentTo(managerPhone)
	require.Len(t, manager, 1)
	assert.Contains(t, manager[0].Body, demo.ShiftID)
	assert.Contains(t, manager[0].Body, noCandidatesReason)
	assert.Equal(t, 0, h.orch.Pending())

	attempts, err := h.store.ListAttempts(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestHandleShiftCancelled_MissingShiftAuditsFailure(t *testing.T) {
	h := newHarness(t, 0)
	run, err := h.orch.HandleShiftCancelled(context.Background(), types.ShiftCancelled{ShiftID: "missing"})

	var nf *types.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "shift", nf.Entity)
	require.NotNil(t, run)
	assert.Equal(t, types.RunStatusRunning, h.run(t, run.ID).Status)
	assert.Equal(t, 1, h.capture.Count(audit.ActionPipelineFailed))
}

func TestHandleShiftCancelled_OutreachFailureLeavesRunForDeadline(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	gateway := &fakeSMS{err: errors.New("twilio 503")}
	orch := NewOrchestrator(Deps{
		Store:      h.store,
		Controller: h.controller,
		Ranker:     ranking.NewEngine(nil, h.capture, nil, nil),
		Dispatcher: outreach.NewDispatcher(h.store, outreach.SMSChannel(gateway), h.capture, nil, nil),
		Escalator:  h.escalator,
		Audit:      h.capture,
	})
	t.Cleanup(orch.Close)

	ctx := context.Background()
	ok, err := h.store.CancelShift(ctx, demo.ShiftID, h.now)
	require.NoError(t, err)
	require.True(t, ok)

	run, err := orch.HandleShiftCancelled(ctx, types.ShiftCancelled{ShiftID: demo.ShiftID})
	var te *types.TransportError
	require.ErrorAs(t, err, &te)
	require.NotNil(t, run)

	attempt := h.onlyAttempt(t, run.ID)
	assert.Equal(t, types.AttemptFailed, attempt.Status)
	assert.Equal(t, 1, h.capture.Count(audit.ActionOutreachFailed))
	assert.Equal(t, 1, h.capture.Count(audit.ActionPipelineFailed))

	require.Eventually(t, func() bool {
		return h.run(t, run.ID).Status == types.RunStatusEscalated
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(h.sms.sentTo(managerPhone)) == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.sms.sentTo(managerPhone), 1)
	assert.Empty(t, gateway.Sent())
}

func TestHandleShiftCancelled_InvalidSignal(t *testing.T) {
	h := newHarness(t, 0)
	_, err := h.orch.HandleShiftCancelled(context.Background(), types.ShiftCancelled{})
	assert.Error(t, err)
	assert.Empty(t, h.capture.Entries())
}

func TestHandleShiftCancelled_DeadlineTimerEscalates(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	run := h.cancelDemoShift(t)

	require.Eventually(t, func() bool {
		return h.run(t, run.ID).Status == types.RunStatusEscalated
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(h.sms.sentTo(managerPhone)) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, h.sms.sentTo(managerPhone)[0].Body, "No acceptance within")
	assert.Equal(t, 0, h.orch.Pending())
}

func TestHandleResponse_AcceptDisarmsTimer(t *testing.T) {
	h := newHarness(t, 0)
	run := h.cancelDemoShift(t)
	attempt := h.onlyAttempt(t, run.ID)

	res, err := h.orch.HandleResponse(context.Background(), types.BackfillResponse{
		AttemptID: attempt.ID,
		Decision:  types.DecisionAccepted,
	})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, 0, h.orch.Pending())
	assert.Equal(t, types.RunStatusFilled, h.run(t, run.ID).Status)
}

func TestHandleResponse_InvalidDecision(t *testing.T) {
	h := newHarness(t, 0)
	_, err := h.orch.HandleResponse(context.Background(), types.BackfillResponse{
		AttemptID: "a-1",
		Decision:  "maybe",
	})
	assert.Error(t, err)
}

func TestOrchestrator_CloseStopsTimers(t *testing.T) {
	h := newHarness(t, 30*time.Millisecond)
	run := h.cancelDemoShift(t)
	h.orch.Close()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, types.RunStatusRunning, h.run(t, run.ID).Status)
	assert.Equal(t, 0, h.orch.Pending())
}
