package memstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/shift-backfill/internal/types"
)

const earthRadiusMiles = 3958.8

// PutClient adds or replaces a client.
func (s *Store) PutClient(c types.ClientRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = c
}

// PutWorker adds or replaces a worker.
func (s *Store) PutWorker(w types.WorkerRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.ID] = w
}

// PutShift adds or replaces a shift. rec.Client is ignored; use PutClient.
func (s *Store) PutShift(rec types.ShiftRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shifts[rec.ID] = shift{
		ID:             rec.ID,
		ClientID:       rec.ClientID,
		WorkerID:       rec.WorkerID,
		Status:         rec.Status,
		StartTime:      rec.StartTime,
		EndTime:        rec.EndTime,
		RequiredSkills: append([]string(nil), rec.RequiredSkills...),
	}
}

// SetCandidates pins the candidate rows returned for shiftID.
func (s *Store) SetCandidates(shiftID string, rows []types.CandidateRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[shiftID] = append([]types.CandidateRow(nil), rows...)
}

// GetShiftWithClient returns the shift joined with its client, or nil when the
// shift is missing. Client is nil when the client row is missing.
func (s *Store) GetShiftWithClient(_ context.Context, shiftID string) (*types.ShiftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shifts[shiftID]
	if !ok {
		return nil, nil
	}
	rec := sh.record()
	if c, ok := s.clients[sh.ClientID]; ok {
		rec.Client = &c
	}
	return &rec, nil
}

// AssignShift gives the shift to workerID and marks it filled.
func (s *Store) AssignShift(_ context.Context, shiftID, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shifts[shiftID]
	if !ok {
		return &types.NotFoundError{Entity: "shift", ID: shiftID}
	}
	sh.WorkerID = &workerID
	sh.Status = types.ShiftStatusFilled
	s.shifts[shiftID] = sh
	return nil
}

// CancelShift marks the shift cancelled and clears its worker. It reports
// false when the shift does not exist.
func (s *Store) CancelShift(_ context.Context, shiftID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shifts[shiftID]
	if !ok {
		return false, nil
	}
	sh.Status = types.ShiftStatusCancelled
	sh.CancelledAt = &at
	if sh.WorkerID != nil {
		sh.CancelledWorkerID = sh.WorkerID
	}
	sh.WorkerID = nil
	s.shifts[shiftID] = sh
	return true, nil
}

// FetchCandidates returns active workers within radiusMiles of the shift's
// client who are not booked on an overlapping shift, nearest first. The worker
// who dropped the shift is excluded.
func (s *Store) FetchCandidates(_ context.Context, shiftID string, radiusMiles float64) ([]types.CandidateRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rows, ok := s.candidates[shiftID]; ok {
		return append([]types.CandidateRow(nil), rows...), nil
	}

	sh, ok := s.shifts[shiftID]
	if !ok {
		return nil, &types.NotFoundError{Entity: "shift", ID: shiftID}
	}
	client, ok := s.clients[sh.ClientID]
	if !ok {
		return nil, &types.NotFoundError{Entity: "client", ID: sh.ClientID}
	}

	var rows []types.CandidateRow
	for _, w := range s.workers {
		if !w.Active || s.bookedDuring(w.ID, sh) {
			continue
		}
		if sh.CancelledWorkerID != nil && *sh.CancelledWorkerID == w.ID {
			continue
		}
		dist := haversineMiles(client.Latitude, client.Longitude, w.Latitude, w.Longitude)
		if dist > radiusMiles {
			continue
		}
		overlap := skillOverlap(sh.RequiredSkills, w.Skills)
		language := client.PrimaryLanguage
		if language == "" {
			language = "en"
		}
		rows = append(rows, types.CandidateRow{
			WorkerID:             w.ID,
			Name:                 w.Name,
			Phone:                w.Phone,
			DistanceMiles:        math.Round(dist*100) / 100,
			SkillOverlap:         overlap,
			HasMandatorySkills:   len(overlap) == len(sh.RequiredSkills),
			ReliabilityScore:     w.ReliabilityScore,
			LastMinuteAcceptRate: w.LastMinuteAcceptRate,
			LanguageMatch:        containsFold(w.Languages, language),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DistanceMiles != rows[j].DistanceMiles {
			return rows[i].DistanceMiles < rows[j].DistanceMiles
		}
		return rows[i].WorkerID < rows[j].WorkerID
	})
	return rows, nil
}

// Shift returns the stored shift, for assertions.
func (s *Store) Shift(id string) (types.ShiftRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shifts[id]
	return sh.record(), ok
}

func (s *Store) bookedDuring(workerID string, target shift) bool {
	for _, other := range s.shifts {
		if other.ID == target.ID || other.Status == types.ShiftStatusCancelled {
			continue
		}
		if other.WorkerID == nil || *other.WorkerID != workerID {
			continue
		}
		if other.StartTime.Before(target.EndTime) && target.StartTime.Before(other.EndTime) {
			return true
		}
	}
	return false
}

func (sh shift) record() types.ShiftRecord {
	rec := types.ShiftRecord{
		ID:             sh.ID,
		ClientID:       sh.ClientID,
		Status:         sh.Status,
		StartTime:      sh.StartTime,
		EndTime:        sh.EndTime,
		RequiredSkills: append([]string(nil), sh.RequiredSkills...),
	}
	if sh.WorkerID != nil {
		w := *sh.WorkerID
		rec.WorkerID = &w
	}
	return rec
}

func skillOverlap(required, have []string) []string {
	out := []string{}
	for _, r := range required {
		if containsFold(have, r) {
			out = append(out, r)
		}
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}

func haversineMiles(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(a))
}
