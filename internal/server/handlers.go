package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/jonathan/shift-backfill/internal/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// CancelShiftRequest is the optional body of POST /shifts/{id}/cancel.
type CancelShiftRequest struct {
	CancelledBy string `json:"cancelled_by,omitempty"`
}

// ResponseRequest is the body of POST /attempts/{id}/response.
type ResponseRequest struct {
	Decision types.Decision  `json:"decision"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// decodeBody decodes an optional JSON body into dst. An empty body is not an error.
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &ErrValidation{Field: "body", Message: err.Error()}
}

// handleCancelShift marks a shift cancelled and triggers its backfill.
func (s *Server) handleCancelShift(w http.ResponseWriter, r *http.Request) {
	shiftID := r.PathValue("id")

	var req CancelShiftRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.canceller.Cancel(r.Context(), shiftID, req.CancelledBy); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, map[string]string{
		"shift_id": shiftID,
		"status":   types.ShiftStatusCancelled,
	})
}

// handleAttemptResponse submits a decision for an attempt, as a manager would
// from a console.
func (s *Server) handleAttemptResponse(w http.ResponseWriter, r *http.Request) {
	var req ResponseRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sig := types.BackfillResponse{
		AttemptID: r.PathValue("id"),
		Decision:  req.Decision,
		Raw:       req.Raw,
	}
	if err := sig.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.emitter.EmitResponse(r.Context(), sig); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, map[string]string{
		"attempt_id": sig.AttemptID,
		"decision":   string(sig.Decision),
	})
}

// handleGetRun returns one run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if run == nil {
		s.fail(w, r, &types.NotFoundError{Entity: "backfill run", ID: id})
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// handleListAttempts returns a run's outreach attempts, oldest first.
func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if run == nil {
		s.fail(w, r, &types.NotFoundError{Entity: "backfill run", ID: id})
		return
	}
	attempts, err := s.store.ListAttempts(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if attempts == nil {
		attempts = []types.BackfillAttempt{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"run_id":   id,
		"attempts": attempts,
		"count":    len(attempts),
	})
}

// handleListRuns lists runs newest first, optionally filtered by ?status=.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	status := types.RunStatus(r.URL.Query().Get("status"))
	switch status {
	case "", types.RunStatusRunning, types.RunStatusFilled, types.RunStatusEscalated:
	default:
		s.fail(w, r, &ErrValidation{Field: "status", Message: "must be running, filled or escalated"})
		return
	}

	limit := defaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			s.fail(w, r, &ErrValidation{Field: "limit", Message: "must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := s.store.ListRuns(r.Context(), status, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []types.BackfillRun{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}
