package backfill

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/memstore"
	"github.com/jonathan/shift-backfill/internal/types"
)

func TestStartRun_CreatesWithDeadline(t *testing.T) {
	store := memstore.New()
	capture := &audit.Capture{}
	c := NewController(store, 0, capture, nil, nil)
	fixed := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	run, created, err := c.StartRun(context.Background(), "shift-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, types.RunStatusRunning, run.Status)
	assert.Equal(t, fixed.Add(DefaultDeadline), run.DeadlineAt)
	assert.Equal(t, 1, capture.Count(audit.ActionRunCreated))
}

func TestStartRun_ReusesActiveRun(t *testing.T) {
	store := memstore.New()
	capture := &audit.Capture{}
	c := NewController(store, time.Minute, capture, nil, nil)
	ctx := context.Background()

	first, created, err := c.StartRun(ctx, "shift-1")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := c.StartRun(ctx, "shift-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, capture.Count(audit.ActionRunCreated))
}

func TestStartRun_ConcurrentSignalsCreateOneRun(t *testing.T) {
	store := memstore.New()
	c := NewController(store, time.Minute, nil, nil, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ids := map[string]bool{}
	createdCount := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, created, err := c.StartRun(context.Background(), "shift-1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[run.ID] = true
			if created {
				createdCount++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, createdCount)
}

func TestMarkFilled_OnlyFromRunning(t *testing.T) {
	store := memstore.New()
	c := NewController(store, time.Minute, nil, nil, nil)
	ctx := context.Background()
	run, _, err := c.StartRun(ctx, "shift-1")
	require.NoError(t, err)

	escalated, err := c.MarkEscalated(ctx, run.ID, "test")
	require.NoError(t, err)
	require.True(t, escalated)

	err = c.MarkFilled(ctx, run.ID, "w-1")
	var invalid *types.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, types.RunStatusEscalated, invalid.From)
	assert.Equal(t, types.RunStatusFilled, invalid.To)

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusEscalated, got.Status)
	assert.Nil(t, got.ChosenWorkerID)
}

func TestMarkFilled_SetsChosenWorker(t *testing.T) {
	store := memstore.New()
	capture := &audit.Capture{}
	c := NewController(store, time.Minute, capture, nil, nil)
	ctx := context.Background()
	run, _, err := c.StartRun(ctx, "shift-1")
	require.NoError(t, err)

	require.NoError(t, c.MarkFilled(ctx, run.ID, "w-1"))
	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusFilled, got.Status)
	require.NotNil(t, got.ChosenWorkerID)
	assert.Equal(t, "w-1", *got.ChosenWorkerID)
	assert.Equal(t, 1, capture.Count(audit.ActionRunFilled))
}

func TestMarkFilled_MissingRun(t *testing.T) {
	c := NewController(memstore.New(), time.Minute, nil, nil, nil)
	err := c.MarkFilled(context.Background(), "nope", "w-1")
	var nf *types.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestMarkEscalated_TerminalIsNoop(t *testing.T) {
	store := memstore.New()
	c := NewController(store, time.Minute, nil, nil, nil)
	ctx := context.Background()
	run, _, err := c.StartRun(ctx, "shift-1")
	require.NoError(t, err)
	require.NoError(t, c.MarkFilled(ctx, run.ID, "w-1"))

	escalated, err := c.MarkEscalated(ctx, run.ID, "late")
	require.NoError(t, err)
	assert.False(t, escalated)

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusFilled, got.Status)
}

func TestIsDeadlineExpired(t *testing.T) {
	c := NewController(memstore.New(), time.Minute, nil, nil, nil)
	deadline := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	run := types.BackfillRun{DeadlineAt: deadline}

	c.now = func() time.Time { return deadline.Add(-time.Second) }
	assert.False(t, c.IsDeadlineExpired(run))
	c.now = func() time.Time { return deadline }
	assert.True(t, c.IsDeadlineExpired(run))
	c.now = func() time.Time { return deadline.Add(time.Second) }
	assert.True(t, c.IsDeadlineExpired(run))
}

func TestTimeoutReason(t *testing.T) {
	assert.Equal(t, "No acceptance within 15 minutes.", TimeoutReason(15*time.Minute))
	assert.Equal(t, "No acceptance within 1 minute.", TimeoutReason(time.Minute))
	assert.Equal(t, "No acceptance within 1m30s.", TimeoutReason(90*time.Second))
}
