package backfill

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/comms"
	"github.com/jonathan/shift-backfill/internal/demo"
	"github.com/jonathan/shift-backfill/internal/memstore"
	"github.com/jonathan/shift-backfill/internal/outreach"
	"github.com/jonathan/shift-backfill/internal/ranking"
	"github.com/jonathan/shift-backfill/internal/types"
)

const managerPhone = "+15555550199"

type fakeSMS struct {
	mu   sync.Mutex
	sent []comms.SMS
	err  error
}

func (f *fakeSMS) SendSMS(_ context.Context, msg comms.SMS) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "SM-" + msg.ToE164, nil
}

func (f *fakeSMS) Sent() []comms.SMS {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]comms.SMS(nil), f.sent...)
}

// sentTo returns the texts delivered to phone.
func (f *fakeSMS) sentTo(phone string) []comms.SMS {
	var out []comms.SMS
	for _, m := range f.Sent() {
		if m.ToE164 == phone {
			out = append(out, m)
		}
	}
	return out
}

type harness struct {
	store      *memstore.Store
	capture    *audit.Capture
	sms        *fakeSMS
	controller *Controller
	escalator  *Escalator
	orch       *Orchestrator
	now        time.Time
}

func newHarness(t *testing.T, deadline time.Duration) *harness {
	t.Helper()
	h := &harness{
		store:   memstore.New(),
		capture: &audit.Capture{},
		sms:     &fakeSMS{},
		now:     time.Now().UTC(),
	}
	h.store.Seed(demo.Data(h.now))

	h.controller = NewController(h.store, deadline, h.capture, nil, nil)
	h.escalator = NewEscalator(h.store, h.controller, h.sms, managerPhone, h.capture, nil)
	h.orch = NewOrchestrator(Deps{
		Store:      h.store,
		Controller: h.controller,
		Ranker:     ranking.NewEngine(nil, h.capture, nil, nil),
		Dispatcher: outreach.NewDispatcher(h.store, outreach.SMSChannel(h.sms), h.capture, nil, nil),
		Escalator:  h.escalator,
		Audit:      h.capture,
	})
	t.Cleanup(h.orch.Close)
	return h
}

// cancelDemoShift cancels the seeded shift and runs the pipeline for it.
func (h *harness) cancelDemoShift(t *testing.T) *types.BackfillRun {
	t.Helper()
	ctx := context.Background()
	ok, err := h.store.CancelShift(ctx, demo.ShiftID, h.now)
	require.NoError(t, err)
	require.True(t, ok)

	run, err := h.orch.HandleShiftCancelled(ctx, types.ShiftCancelled{ShiftID: demo.ShiftID})
	require.NoError(t, err)
	require.NotNil(t, run)
	return run
}

func (h *harness) onlyAttempt(t *testing.T, runID string) types.BackfillAttempt {
	t.Helper()
	attempts, err := h.store.ListAttempts(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	return attempts[0]
}

func (h *harness) run(t *testing.T, id string) types.BackfillRun {
	t.Helper()
	run, err := h.store.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, run)
	return *run
}
