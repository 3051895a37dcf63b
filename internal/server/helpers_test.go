package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/backfill"
	"github.com/jonathan/shift-backfill/internal/comms"
	"github.com/jonathan/shift-backfill/internal/demo"
	"github.com/jonathan/shift-backfill/internal/memstore"
	"github.com/jonathan/shift-backfill/internal/metrics"
	"github.com/jonathan/shift-backfill/internal/outreach"
	"github.com/jonathan/shift-backfill/internal/ranking"
	"github.com/jonathan/shift-backfill/internal/server/ratelimit"
	"github.com/jonathan/shift-backfill/internal/signals"
	"github.com/jonathan/shift-backfill/internal/types"
)

const (
	charliePhone = "+15555550103"
	vapiSecret   = "vapi-secret"
)

// recordingEmitter remembers every signal and forwards it to next.
type recordingEmitter struct {
	mu        sync.Mutex
	next      signals.Emitter
	cancels   []types.ShiftCancelled
	responses []types.BackfillResponse
}

func (e *recordingEmitter) EmitShiftCancelled(ctx context.Context, sig types.ShiftCancelled) error {
	e.mu.Lock()
	e.cancels = append(e.cancels, sig)
	e.mu.Unlock()
	return e.next.EmitShiftCancelled(ctx, sig)
}

func (e *recordingEmitter) EmitResponse(ctx context.Context, sig types.BackfillResponse) error {
	e.mu.Lock()
	e.responses = append(e.responses, sig)
	e.mu.Unlock()
	return e.next.EmitResponse(ctx, sig)
}

func (e *recordingEmitter) Responses() []types.BackfillResponse {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.BackfillResponse(nil), e.responses...)
}

type testServer struct {
	*Server
	store   *memstore.Store
	capture *audit.Capture
	emitter *recordingEmitter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memstore.New()
	store.Seed(demo.Data(time.Now().UTC()))
	capture := &audit.Capture{}
	m := metrics.New(prometheus.NewRegistry())

	controller := backfill.NewController(store, time.Hour, capture, nil, m)
	orch := backfill.NewOrchestrator(backfill.Deps{
		Store:      store,
		Controller: controller,
		Ranker:     ranking.NewEngine(nil, capture, nil, m),
		Dispatcher: outreach.NewDispatcher(store, outreach.SMSChannel(comms.NewSimulatedSMS(nil)), capture, nil, m),
		Escalator:  backfill.NewEscalator(store, controller, nil, "", capture, nil),
		Audit:      capture,
	})
	t.Cleanup(orch.Close)

	emitter := &recordingEmitter{next: signals.Inline{Handler: orch}}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "backfill_test_total"}))

	s := New(Config{Port: 0, VapiWebhookSecret: vapiSecret}, Deps{
		Store:     store,
		Emitter:   emitter,
		Canceller: backfill.NewCanceller(store, emitter, capture),
		Audit:     capture,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return &testServer{Server: s, store: store, capture: capture, emitter: emitter}
}

func (ts *testServer) do(t *testing.T, method, path, contentType, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

// cancelDemoShift cancels the seeded shift over HTTP and returns its run.
func (ts *testServer) cancelDemoShift(t *testing.T) types.BackfillRun {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/shifts/"+demo.ShiftID+"/cancel", "application/json", `{"cancelled_by":"ops"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	runs, err := ts.store.ListRuns(context.Background(), types.RunStatusRunning, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return runs[0]
}

func (ts *testServer) onlyAttempt(t *testing.T, runID string) types.BackfillAttempt {
	t.Helper()
	attempts, err := ts.store.ListAttempts(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	return attempts[0]
}

func (ts *testServer) runStatus(t *testing.T, runID string) types.RunStatus {
	t.Helper()
	run, err := ts.store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.NotNil(t, run)
	return run.Status
}

func rateLimitConfig(perMinute int) ratelimit.Config {
	return ratelimit.Config{
		Enabled:       true,
		DefaultLimit:  perMinute,
		DefaultWindow: time.Minute,
		Rules:         ratelimit.DefaultRules(perMinute),
	}
}

func httptestDo(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}
