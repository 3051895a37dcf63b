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
	"github.com/jonathan/shift-backfill/internal/memstore"
	"github.com/jonathan/shift-backfill/internal/types"
)

func TestEscalate_NotifiesManager(t *testing.T) {
	store := memstore.New()
	capture := &audit.Capture{}
	sms := &fakeSMS{}
	c := NewController(store, time.Minute, capture, nil, nil)
	e := NewEscalator(store, c, sms, managerPhone, capture, nil)
	ctx := context.Background()
	run, _, err := c.StartRun(ctx, "shift-9")
	require.NoError(t, err)

	ok, err := e.Escalate(ctx, run.ID, "No acceptance within 15 minutes.")
	require.NoError(t, err)
	assert.True(t, ok)

	sent := sms.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, managerPhone, sent[0].ToE164)
	assert.Equal(t, "Vali Backfill Escalation: No acceptance for shift shift-9 within deadline. Reason: No acceptance within 15 minutes.", sent[0].Body)

	entries := capture.Entries()
	last := entries[len(entries)-1]
	assert.Equal(t, audit.ActionEscalate, last.Action)
	assert.Equal(t, true, last.Output.(map[string]any)["notifiedManager"])
}

func TestEscalate_NotificationFailureDoesNotBlock(t *testing.T) {
	store := memstore.New()
	capture := &audit.Capture{}
	sms := &fakeSMS{err: errors.New("gateway down")}
	c := NewController(store, time.Minute, capture, nil, nil)
	e := NewEscalator(store, c, sms, managerPhone, capture, nil)
	ctx := context.Background()
	run, _, err := c.StartRun(ctx, "shift-9")
	require.NoError(t, err)

	ok, err := e.Escalate(ctx, run.ID, "reason")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusEscalated, got.Status)

	entries := capture.Entries()
	out := entries[len(entries)-1].Output.(map[string]any)
	assert.Equal(t, false, out["notifiedManager"])
	assert.Contains(t, out["notifyError"], "gateway down")
}

func TestEscalate_WithoutManagerPhone(t *testing.T) {
	store := memstore.New()
	sms := &fakeSMS{}
	c := NewController(store, time.Minute, nil, nil, nil)
	e := NewEscalator(store, c, sms, "", nil, nil)
	ctx := context.Background()
	run, _, err := c.StartRun(ctx, "shift-9")
	require.NoError(t, err)

	ok, err := e.Escalate(ctx, run.ID, "reason")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, sms.Sent())
}

func TestEscalate_AlreadyFilledRunUntouched(t *testing.T) {
	store := memstore.New()
	capture := &audit.Capture{}
	sms := &fakeSMS{}
	c := NewController(store, time.Minute, capture, nil, nil)
	e := NewEscalator(store, c, sms, managerPhone, capture, nil)
	ctx := context.Background()
	run, _, err := c.StartRun(ctx, "shift-9")
	require.NoError(t, err)
	require.NoError(t, c.MarkFilled(ctx, run.ID, demo.CharlieID))

	ok, err := e.Escalate(ctx, run.ID, "reason")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, sms.Sent())

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusFilled, got.Status)
	assert.Equal(t, 1, capture.Count(audit.ActionEscalate))
}

func TestEscalate_MissingRun(t *testing.T) {
	store := memstore.New()
	c := NewController(store, time.Minute, nil, nil, nil)
	e := NewEscalator(store, c, nil, "", nil, nil)

	_, err := e.Escalate(context.Background(), "missing", "reason")
	var nf *types.NotFoundError
	assert.ErrorAs(t, err, &nf)
}
