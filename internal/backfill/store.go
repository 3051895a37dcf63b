// Package backfill runs the shift backfill workflow: it owns the run state
// machine, drives the analyze, fetch, rank and dispatch pipeline, applies
// worker responses and escalates runs that reach their deadline.
package backfill

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/outreach"
	"github.com/jonathan/shift-backfill/internal/types"
)

// RunStore persists backfill runs. Missing records are returned as nil, nil.
type RunStore interface {
	CreateRun(ctx context.Context, run types.BackfillRun) error
	FindActiveRun(ctx context.Context, shiftID string) (*types.BackfillRun, error)
	GetRun(ctx context.Context, id string) (*types.BackfillRun, error)
	TransitionRun(ctx context.Context, id string, from, to types.RunStatus, chosenWorkerID *string) (bool, error)
	ListExpiredRuns(ctx context.Context, now time.Time, limit int) ([]types.BackfillRun, error)
}

// ShiftStore reads and assigns shifts.
type ShiftStore interface {
	GetShiftWithClient(ctx context.Context, shiftID string) (*types.ShiftRecord, error)
	AssignShift(ctx context.Context, shiftID, workerID string) error
}

// AttemptStore reads attempts and records responses.
type AttemptStore interface {
	GetAttempt(ctx context.Context, id string) (*types.BackfillAttempt, error)
	RecordAttemptResponse(ctx context.Context, id string, status types.AttemptStatus, respondedAt time.Time, raw json.RawMessage) (bool, error)
}

// CandidateSource returns eligible workers for a shift. An empty result is not an error.
type CandidateSource interface {
	FetchCandidates(ctx context.Context, shiftID string, radiusMiles float64) ([]types.CandidateRow, error)
}

// Ranker orders candidates and picks one.
type Ranker interface {
	Rank(ctx context.Context, vacancy types.Vacancy, candidates []types.CandidateRow) types.RankingResult
}

// Dispatcher contacts the top-ranked candidate.
type Dispatcher interface {
	Dispatch(ctx context.Context, runID string, vacancy types.Vacancy, candidates []types.CandidateRow, ranked []types.RankedCandidate) (*outreach.Result, error)
}

// Store is everything the engine persists. Both the Postgres and in-memory
// stores satisfy it.
type Store interface {
	RunStore
	ShiftStore
	AttemptStore
	CandidateSource
	outreach.Store
	audit.Store
}
