// Package api provides the read-only HTTP API over the restock ledger
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/footley/eos-bot/db/ingestion"
	"github.com/footley/eos-bot/pkg/platform"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

const (
	defaultRunLimit = 20
	maxRunLimit     = 500
)

// Server is the HTTP API server
type Server struct {
	httpServer *http.Server
	ledger     ingestion.Ledger
	config     *Config
	logger     zerolog.Logger
	startTime  time.Time
}

// Config holds server configuration
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	AuthUser     string
	AuthPassword string
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		CORSOrigins:  []string{"*"},
	}
}

// NewServer creates a new API server. ledger may be nil, in which case the
// ledger endpoints answer 503.
func NewServer(ledger ingestion.Ledger, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		ledger:    ledger,
		config:    config,
		logger:    log.With().Str("component", "api").Logger(),
		startTime: time.Now(),
	}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(platform.BasicAuth(s.config.AuthUser, s.config.AuthPassword))
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}/purchases", s.handleListPurchases)
	})

	return r
}

// StartWithGracefulShutdown serves until ctx is cancelled, then drains
// in-flight requests
func (s *Server) StartWithGracefulShutdown(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Int("port", s.config.Port).Str("version", Version).Msg("Starting ledger API server")
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "no ledger configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.ledger.Ping(ctx); err != nil {
		s.jsonError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// =============================================================================
// LEDGER ENDPOINTS
// =============================================================================

// RunResponse is one run in the run list
type RunResponse struct {
	ID         string `json:"id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Companies  int    `json:"companies"`
	Stores     int    `json:"stores"`
	Purchases  int    `json:"purchases"`
	Skipped    int    `json:"skipped"`
	Requests   int    `json:"requests"`
	Spend      string `json:"spend"`
	DryRun     bool   `json:"dry_run"`
}

// PurchaseResponse is one purchase of a run. Normalized is null for
// offers without a quality dimension.
type PurchaseResponse struct {
	ID          string   `json:"id"`
	Company     string   `json:"company"`
	StoreID     string   `json:"store_id"`
	Product     string   `json:"product"`
	Channel     string   `json:"channel"`
	Quality     float64  `json:"quality"`
	Normalized  *float64 `json:"normalized"`
	UnitPrice   string   `json:"unit_price"`
	Quantity    int      `json:"quantity"`
	Cost        string   `json:"cost"`
	PurchasedAt string   `json:"purchased_at"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "no ledger configured")
		return
	}

	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.jsonError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}

	runs, err := s.ledger.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list runs")
		s.jsonError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	resp := make([]RunResponse, len(runs))
	for i, run := range runs {
		resp[i] = RunResponse{
			ID:         run.ID.String(),
			StartedAt:  run.StartedAt.Format(time.RFC3339),
			FinishedAt: run.FinishedAt.Format(time.RFC3339),
			Companies:  run.Companies,
			Stores:     run.Stores,
			Purchases:  run.Purchases,
			Skipped:    run.Skipped,
			Requests:   run.Requests,
			Spend:      run.Spend.StringFixed(2),
			DryRun:     run.DryRun,
		}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "no ledger configured")
		return
	}

	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	purchases, err := s.ledger.ListPurchases(r.Context(), runID)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", runID.String()).Msg("failed to list purchases")
		s.jsonError(w, http.StatusInternalServerError, "failed to list purchases")
		return
	}

	resp := make([]PurchaseResponse, len(purchases))
	for i, p := range purchases {
		resp[i] = PurchaseResponse{
			ID:          p.ID.String(),
			Company:     p.CompanyName,
			StoreID:     p.StoreID,
			Product:     p.Product,
			Channel:     p.Channel,
			Quality:     p.Quality,
			Normalized:  finite(p.Normalized),
			UnitPrice:   p.UnitPrice.StringFixed(2),
			Quantity:    p.Quantity,
			Cost:        p.Cost.StringFixed(2),
			PurchasedAt: p.PurchasedAt.Format(time.RFC3339),
		}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func finite(f float64) *float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return &f
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}
