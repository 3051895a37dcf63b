package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/jonathan/shift-backfill/internal/types"
)

// CreateAttempt inserts a new attempt.
func (s *Store) CreateAttempt(_ context.Context, a types.BackfillAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[a.RunID]; !ok {
		return &types.NotFoundError{Entity: "backfill run", ID: a.RunID}
	}
	s.attempts[a.ID] = cloneAttempt(a)
	return nil
}

// MarkAttemptSent moves a pending attempt to sent.
func (s *Store) MarkAttemptSent(_ context.Context, id, providerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[id]
	if !ok || a.Status != types.AttemptPending {
		return false, nil
	}
	a.Status = types.AttemptSent
	a.ProviderMessageID = &providerID
	s.attempts[id] = a
	return true, nil
}

// MarkAttemptFailed moves a pending attempt to failed.
func (s *Store) MarkAttemptFailed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[id]
	if !ok || a.Status != types.AttemptPending {
		return false, nil
	}
	a.Status = types.AttemptFailed
	s.attempts[id] = a
	return true, nil
}

// RecordAttemptResponse stores a decision on an open (pending or sent) attempt.
// It reports false when the attempt is missing or already terminal.
func (s *Store) RecordAttemptResponse(_ context.Context, id string, status types.AttemptStatus, respondedAt time.Time, raw json.RawMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[id]
	if !ok || a.Status.IsTerminal() {
		return false, nil
	}
	a.Status = status
	a.RespondedAt = &respondedAt
	a.RawResponse = append(json.RawMessage(nil), raw...)
	s.attempts[id] = a
	return true, nil
}

// GetAttempt returns the attempt or nil when missing.
func (s *Store) GetAttempt(_ context.Context, id string) (*types.BackfillAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[id]
	if !ok {
		return nil, nil
	}
	c := cloneAttempt(a)
	return &c, nil
}

// ListAttempts returns a run's attempts oldest first.
func (s *Store) ListAttempts(_ context.Context, runID string) ([]types.BackfillAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.BackfillAttempt
	for _, a := range s.attempts {
		if a.RunID == runID {
			out = append(out, cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// FindOpenAttemptForPhone returns the newest pending or sent attempt for the
// worker with the given phone number, or nil.
func (s *Store) FindOpenAttemptForPhone(_ context.Context, phone string) (*types.BackfillAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	workerID := ""
	for _, w := range s.workers {
		if w.Phone == phone {
			workerID = w.ID
			break
		}
	}
	if workerID == "" {
		return nil, nil
	}

	var found *types.BackfillAttempt
	for _, a := range s.attempts {
		if a.WorkerID != workerID || a.Status.IsTerminal() {
			continue
		}
		if found == nil || a.CreatedAt.After(found.CreatedAt) {
			c := cloneAttempt(a)
			found = &c
		}
	}
	return found, nil
}
