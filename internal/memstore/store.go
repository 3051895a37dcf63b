// Package memstore is an in-memory implementation of the backfill persistence
// contracts. It backs the demo server and unit tests; compare-and-set updates
// behave the same way as the Postgres store.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/jonathan/shift-backfill/internal/types"
)

// Store holds every record in maps guarded by one mutex.
type Store struct {
	mu       sync.Mutex
	runs     map[string]types.BackfillRun
	attempts map[string]types.BackfillAttempt
	shifts   map[string]shift
	clients  map[string]types.ClientRecord
	workers  map[string]types.WorkerRecord
	audit    []types.AuditEntry

	// Candidates overrides FetchCandidates for a shift when set.
	candidates map[string][]types.CandidateRow
	// FailAudit makes InsertAudit fail, for exercising best-effort paths.
	FailAudit error
}

type shift struct {
	ID             string
	ClientID       string
	WorkerID       *string
	Status         string
	StartTime      time.Time
	EndTime        time.Time
	RequiredSkills []string
	CancelledAt    *time.Time

	CancelledWorkerID *string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		runs:       make(map[string]types.BackfillRun),
		attempts:   make(map[string]types.BackfillAttempt),
		shifts:     make(map[string]shift),
		clients:    make(map[string]types.ClientRecord),
		workers:    make(map[string]types.WorkerRecord),
		candidates: make(map[string][]types.CandidateRow),
	}
}

// CreateRun inserts run. It fails with types.ErrActiveRunExists when the
// shift already has a running run.
func (s *Store) CreateRun(_ context.Context, run types.BackfillRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.Status == types.RunStatusRunning {
		for _, r := range s.runs {
			if r.ShiftID == run.ShiftID && r.Status == types.RunStatusRunning {
				return types.ErrActiveRunExists
			}
		}
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// FindActiveRun returns the newest running run for shiftID, or nil.
func (s *Store) FindActiveRun(_ context.Context, shiftID string) (*types.BackfillRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *types.BackfillRun
	for _, r := range s.runs {
		if r.ShiftID != shiftID || r.Status != types.RunStatusRunning {
			continue
		}
		if found == nil || r.CreatedAt.After(found.CreatedAt) {
			c := cloneRun(r)
			found = &c
		}
	}
	return found, nil
}

// GetRun returns the run or nil when missing.
func (s *Store) GetRun(_ context.Context, id string) (*types.BackfillRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	c := cloneRun(r)
	return &c, nil
}

// TransitionRun moves a run from one status to another if it is still in from.
func (s *Store) TransitionRun(_ context.Context, id string, from, to types.RunStatus, chosenWorkerID *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	if chosenWorkerID != nil {
		w := *chosenWorkerID
		r.ChosenWorkerID = &w
	}
	s.runs[id] = r
	return true, nil
}

// SetRunChosenWorker records the worker being contacted.
func (s *Store) SetRunChosenWorker(_ context.Context, runID, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return &types.NotFoundError{Entity: "backfill run", ID: runID}
	}
	r.ChosenWorkerID = &workerID
	r.UpdatedAt = time.Now().UTC()
	s.runs[runID] = r
	return nil
}

// ListExpiredRuns returns running runs whose deadline is at or before now, oldest deadline first.
func (s *Store) ListExpiredRuns(_ context.Context, now time.Time, limit int) ([]types.BackfillRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.BackfillRun
	for _, r := range s.runs {
		if r.Status == types.RunStatusRunning && !r.DeadlineAt.After(now) {
			out = append(out, cloneRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeadlineAt.Before(out[j].DeadlineAt) })
	return truncate(out, limit), nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *Store) ListRuns(_ context.Context, status types.RunStatus, limit int) ([]types.BackfillRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.BackfillRun, 0, len(s.runs))
	for _, r := range s.runs {
		if status == "" || r.Status == status {
			out = append(out, cloneRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

// InsertAudit appends an entry.
func (s *Store) InsertAudit(_ context.Context, entry types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAudit != nil {
		return s.FailAudit
	}
	s.audit = append(s.audit, entry)
	return nil
}

// AuditEntries returns a copy of the audit log in insertion order.
func (s *Store) AuditEntries() []types.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.AuditEntry(nil), s.audit...)
}

func cloneRun(r types.BackfillRun) types.BackfillRun {
	if r.ChosenWorkerID != nil {
		w := *r.ChosenWorkerID
		r.ChosenWorkerID = &w
	}
	return r
}

func cloneAttempt(a types.BackfillAttempt) types.BackfillAttempt {
	if a.RespondedAt != nil {
		t := *a.RespondedAt
		a.RespondedAt = &t
	}
	if a.ProviderMessageID != nil {
		p := *a.ProviderMessageID
		a.ProviderMessageID = &p
	}
	if a.RawResponse != nil {
		a.RawResponse = append(json.RawMessage(nil), a.RawResponse...)
	}
	return a
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
