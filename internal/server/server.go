// Package server provides the HTTP API for the backfill engine: shift
// cancellation, manual responses, provider webhooks and read endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/backfill"
	"github.com/jonathan/shift-backfill/internal/logging"
	"github.com/jonathan/shift-backfill/internal/server/middleware"
	"github.com/jonathan/shift-backfill/internal/server/ratelimit"
	"github.com/jonathan/shift-backfill/internal/signals"
	"github.com/jonathan/shift-backfill/internal/types"
)

const (
	shutdownTimeout = 30 * time.Second
	pruneInterval   = 10 * time.Minute
	maxBodyBytes    = 1 << 20
)

// Store is the read side the API needs.
type Store interface {
	GetRun(ctx context.Context, id string) (*types.BackfillRun, error)
	ListRuns(ctx context.Context, status types.RunStatus, limit int) ([]types.BackfillRun, error)
	ListAttempts(ctx context.Context, runID string) ([]types.BackfillAttempt, error)
	FindOpenAttemptForPhone(ctx context.Context, phone string) (*types.BackfillAttempt, error)
}

// Config holds server configuration.
type Config struct {
	Port              int
	VapiWebhookSecret string
	RateLimit         ratelimit.Config
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Store     Store
	Emitter   signals.Emitter
	Canceller *backfill.Canceller
	Audit     audit.Recorder
	Log       logging.Logger
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Ping reports datastore health when set.
	Ping func(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	store      Store
	emitter    signals.Emitter
	canceller  *backfill.Canceller
	audit      audit.Recorder
	log        logging.Logger
	limiter    *ratelimit.Limiter
	ping       func(ctx context.Context) error
}

// New creates a new server instance
func New(cfg Config, d Deps) *Server {
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.Log == nil {
		d.Log = logging.NewNop()
	}
	s := &Server{
		store:     d.Store,
		emitter:   d.Emitter,
		canceller: d.Canceller,
		audit:     d.Audit,
		log:       d.Log,
		ping:      d.Ping,
	}
	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.NewLimiter(cfg.RateLimit)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	mux.HandleFunc("POST /shifts/{id}/cancel", s.handleCancelShift)
	mux.HandleFunc("POST /attempts/{id}/response", s.handleAttemptResponse)

	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /runs/{id}/attempts", s.handleListAttempts)

	mux.HandleFunc("POST /webhooks/twilio/sms", s.handleTwilioSMS)
	mux.Handle("POST /webhooks/vapi", middleware.SharedSecret(cfg.VapiWebhookSecret)(http.HandlerFunc(s.handleVapiWebhook)))

	s.handler = middleware.Chain(mux,
		middleware.Logging(s.log),
		middleware.Recover(s.log),
		middleware.RateLimit(s.limiter),
	)
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", logging.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var prune <-chan time.Time
	if s.limiter != nil {
		t := time.NewTicker(pruneInterval)
		defer t.Stop()
		prune = t.C
	}

	for {
		select {
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-prune:
			if n := s.limiter.Prune(); n > 0 {
				s.log.Debug("pruned rate limit buckets", logging.Int("count", n))
			}
		case <-ctx.Done():
			s.log.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		}
	}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("failed to encode JSON response", logging.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// fail maps err to a status and writes it. Server-side failures are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context(), s.log).Error("request failed", logging.Error(err))
	}
	s.errorResponse(w, status, err.Error())
}
