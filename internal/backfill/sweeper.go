package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonathan/shift-backfill/internal/logging"
)

const (
	// DefaultSweepInterval is how often expired runs are collected.
	DefaultSweepInterval = 30 * time.Second
	defaultSweepBatch    = 100
)

// Sweeper escalates running runs whose persisted deadline has passed. It is
// the durable half of the deadline timer and survives process restarts.
type Sweeper struct {
	runs       RunStore
	controller *Controller
	escalate   func(ctx context.Context, runID, reason string) (bool, error)
	interval   time.Duration
	batch      int
	log        logging.Logger
	now        func() time.Time
}

// NewSweeper creates a Sweeper that escalates through o.
func NewSweeper(runs RunStore, controller *Controller, o *Orchestrator, interval time.Duration, log logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Sweeper{
		runs:       runs,
		controller: controller,
		escalate:   o.Escalate,
		interval:   interval,
		batch:      defaultSweepBatch,
		log:        log,
		now:        time.Now,
	}
}

// SweepOnce escalates every expired running run and returns how many it
// escalated. Failures on single runs are logged and skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	expired, err := s.runs.ListExpiredRuns(ctx, s.now().UTC(), s.batch)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired runs: %w", err)
	}

	reason := TimeoutReason(s.controller.Deadline())
	escalated := 0
	for _, run := range expired {
		if ctx.Err() != nil {
			return escalated, ctx.Err()
		}
		ok, err := s.escalate(ctx, run.ID, reason)
		if err != nil {
			s.log.Warn("sweeper escalation failed", logging.String("run_id", run.ID), logging.Error(err))
			continue
		}
		if ok {
			escalated++
		}
	}
	if escalated > 0 {
		s.log.Info("expired runs escalated", logging.Int("count", escalated))
	}
	return escalated, nil
}

// Start runs SweepOnce on a cron schedule until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	logger := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
	)
	schedule := "@every " + s.interval.String()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("sweep failed", logging.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule sweeper %q: %w", schedule, err)
	}

	s.log.Info("deadline sweeper started", logging.Duration("interval", s.interval))
	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	s.log.Info("deadline sweeper stopped")
	return nil
}

// cronLogger routes cron's key/value logging into the structured logger.
type cronLogger struct {
	log logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logging.Error(err))...)
}

func kvFields(kv []any) []logging.Field {
	fields := make([]logging.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logging.Any(key, kv[i+1]))
	}
	return fields
}
