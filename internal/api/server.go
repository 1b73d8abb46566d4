// Package api provides the local HTTP server for powerlens.
// It serves stored runs, on-demand analysis and feedback history as JSON.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/powerlens/powerlens/internal/analysis"
	"github.com/powerlens/powerlens/internal/domain"
	"github.com/powerlens/powerlens/internal/health"
	"github.com/powerlens/powerlens/internal/infra/sqlite"
	"github.com/powerlens/powerlens/internal/observability"
)

// Server is the powerlens HTTP API server.
type Server struct {
	db      *sqlite.DB
	version string

	thresholds      analysis.Thresholds
	efficiencyRatio float64
	metricsEnabled  bool
	health          *health.Checker
}

// NewServer creates a new API server.
func NewServer(db *sqlite.DB, version string) *Server {
	return &Server{
		db:              db,
		version:         version,
		thresholds:      analysis.DefaultThresholds(),
		efficiencyRatio: analysis.DefaultEfficiencyRatio,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetAnalysis overrides the classification thresholds and efficiency ratio.
func (s *Server) SetAnalysis(th analysis.Thresholds, efficiencyRatio float64) {
	s.thresholds = th
	if efficiencyRatio > 0 {
		s.efficiencyRatio = efficiencyRatio
	}
}

// SetHealth makes /health report the checker's latest results.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.Middleware)
	r.Use(middleware.Timeout(time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
		})

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/summary", s.handleRunSummary)
		r.Get("/baselines", s.handleListBaselines)

		r.Post("/analyze", s.handleAnalyze)
		r.Post("/attribution", s.handleAttribution)

		r.Get("/feedback", s.handleListFeedback)
		r.Get("/feedback/{id}", s.handleGetFeedback)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		if err := s.db.Ping(); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	statuses := s.health.Statuses()
	status, code := "ok", http.StatusOK
	for _, st := range statuses {
		if st.Healthy {
			continue
		}
		if !st.Optional {
			status, code = "unhealthy", http.StatusServiceUnavailable
			break
		}
		status = "degraded"
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": statuses})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps sentinel errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRunNotFound),
		errors.Is(err, domain.ErrBaselineNotFound),
		errors.Is(err, domain.ErrFeedbackNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNoSamples),
		errors.Is(err, domain.ErrInvalidComponent),
		errors.Is(err, domain.ErrNoSystemDelta),
		errors.Is(err, domain.ErrProcessNotFound):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// corsMiddleware adds CORS headers for local dashboards.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
