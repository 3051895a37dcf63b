package backfill

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/logging"
	"github.com/jonathan/shift-backfill/internal/types"
)

const (
	// DefaultRadiusMiles bounds the candidate search.
	DefaultRadiusMiles = 10.0

	noCandidatesReason = "No eligible candidates found."
	timerTimeout       = 30 * time.Second
)

// Orchestrator wires the pipeline together: a shift-cancelled signal starts
// (or reuses) a run, the vacancy is analyzed, candidates are fetched and
// ranked, the top candidate is contacted and a deadline timer is armed.
type Orchestrator struct {
	controller *Controller
	analyzer   *Analyzer
	candidates CandidateSource
	ranker     Ranker
	dispatcher Dispatcher
	responses  *ResponseProcessor
	escalator  *Escalator
	runs       RunStore
	audit      audit.Recorder
	log        logging.Logger
	radius     float64

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store      Store
	Controller *Controller
	Ranker     Ranker
	Dispatcher Dispatcher
	Escalator  *Escalator
	Audit      audit.Recorder
	Log        logging.Logger
	// RadiusMiles defaults to DefaultRadiusMiles.
	RadiusMiles float64
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(d Deps) *Orchestrator {
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.Log == nil {
		d.Log = logging.NewNop()
	}
	if d.RadiusMiles <= 0 {
		d.RadiusMiles = DefaultRadiusMiles
	}
	return &Orchestrator{
		controller: d.Controller,
		analyzer:   NewAnalyzer(d.Store),
		candidates: d.Store,
		ranker:     d.Ranker,
		dispatcher: d.Dispatcher,
		responses:  NewResponseProcessor(d.Store, d.Controller, d.Audit, d.Log),
		escalator:  d.Escalator,
		runs:       d.Store,
		audit:      d.Audit,
		log:        d.Log,
		radius:     d.RadiusMiles,
		timers:     make(map[string]*time.Timer),
	}
}

// HandleShiftCancelled processes a trigger signal. Redelivered signals for a
// shift with a running run return that run without repeating outreach.
func (o *Orchestrator) HandleShiftCancelled(ctx context.Context, sig types.ShiftCancelled) (*types.BackfillRun, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	run, created, err := o.controller.StartRun(ctx, sig.ShiftID)
	if err != nil {
		return nil, err
	}
	if !created {
		return run, nil
	}

	o.arm(*run)
	if err := o.execute(ctx, *run); err != nil {
		o.log.Error("backfill pipeline failed",
			logging.String("run_id", run.ID),
			logging.String("shift_id", run.ShiftID),
			logging.Error(err),
		)
		o.audit.Record(ctx, types.AuditEntry{
			Action:     audit.ActionPipelineFailed,
			EntityType: types.EntityRun,
			EntityID:   run.ID,
			Output:     map[string]any{"error": err.Error()},
			Rationale:  "Pipeline step failed; run left for deadline escalation.",
		})
		return run, err
	}
	return run, nil
}

// HandleResponse applies a response signal.
func (o *Orchestrator) HandleResponse(ctx context.Context, sig types.BackfillResponse) (ResponseResult, error) {
	if err := sig.Validate(); err != nil {
		return ResponseResult{}, err
	}
	res, err := o.responses.Apply(ctx, sig.AttemptID, sig.Decision, sig.Raw)
	if err != nil {
		return res, err
	}
	if res.Decision == types.DecisionAccepted && !res.Late {
		o.disarm(res.RunID)
	}
	return res, nil
}

// Escalate escalates a run on demand, for operators and the deadline paths.
func (o *Orchestrator) Escalate(ctx context.Context, runID, reason string) (bool, error) {
	ok, err := o.escalator.Escalate(ctx, runID, reason)
	if ok {
		o.disarm(runID)
	}
	return ok, err
}

func (o *Orchestrator) execute(ctx context.Context, run types.BackfillRun) error {
	vacancy, err := o.analyzer.Analyze(ctx, run.ShiftID)
	if err != nil {
		return err
	}

	candidates, err := o.candidates.FetchCandidates(ctx, run.ShiftID, o.radius)
	if err != nil {
		return fmt.Errorf("failed to fetch candidates: %w", err)
	}
	o.log.Info("candidates fetched",
		logging.String("run_id", run.ID),
		logging.Int("count", len(candidates)),
	)

	ranking := o.ranker.Rank(ctx, vacancy, candidates)
	if ranking.ChosenID == "" {
		_, err := o.Escalate(ctx, run.ID, noCandidatesReason)
		return err
	}

	// A response or the deadline may have finalized the run while ranking.
	current, err := o.runs.GetRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to reload run: %w", err)
	}
	if current == nil || current.Status.IsTerminal() {
		o.log.Info("run finalized before outreach", logging.String("run_id", run.ID))
		return nil
	}

	res, err := o.dispatcher.Dispatch(ctx, run.ID, vacancy, candidates, ranking.Ranked)
	if err != nil {
		return err
	}
	if res != nil {
		o.log.Info("outreach sent",
			logging.String("run_id", run.ID),
			logging.String("attempt_id", res.AttemptID),
			logging.String("channel", string(res.Channel)),
		)
	}
	return nil
}

// arm schedules an in-process escalation at the run deadline. The sweeper
// covers runs whose timers were lost to a restart.
func (o *Orchestrator) arm(run types.BackfillRun) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	delay := time.Until(run.DeadlineAt)
	if delay < 0 {
		delay = 0
	}
	runID := run.ID
	o.timers[runID] = time.AfterFunc(delay, func() {
		o.mu.Lock()
		delete(o.timers, runID)
		o.mu.Unlock()
		o.onDeadline(runID)
	})
}

func (o *Orchestrator) disarm(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.timers[runID]; ok {
		t.Stop()
		delete(o.timers, runID)
	}
}

func (o *Orchestrator) onDeadline(runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), timerTimeout)
	defer cancel()

	run, err := o.runs.GetRun(ctx, runID)
	if err != nil {
		o.log.Error("deadline check failed", logging.String("run_id", runID), logging.Error(err))
		return
	}
	if run == nil || run.Status != types.RunStatusRunning || !o.controller.IsDeadlineExpired(*run) {
		return
	}
	if _, err := o.escalator.Escalate(ctx, runID, TimeoutReason(o.controller.Deadline())); err != nil {
		o.log.Error("deadline escalation failed", logging.String("run_id", runID), logging.Error(err))
	}
}

// Pending reports how many deadline timers are armed.
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.timers)
}

// Close stops all deadline timers. Runs still open are left to the sweeper.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
}

// TimeoutReason is the escalation reason for a run that hit its deadline.
func TimeoutReason(deadline time.Duration) string {
	if deadline > 0 && deadline%time.Minute == 0 {
		minutes := int(deadline / time.Minute)
		if minutes == 1 {
			return "No acceptance within 1 minute."
		}
		return fmt.Sprintf("No acceptance within %d minutes.", minutes)
	}
	return fmt.Sprintf("No acceptance within %s.", deadline)
}
