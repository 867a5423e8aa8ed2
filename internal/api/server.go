// Package api exposes the engine over HTTP: sync triggers, indicator and
// match queries, and the feed catalog, all scoped to an organization.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vantran-sec/threatsync/internal/config"
	"github.com/vantran-sec/threatsync/internal/intel"
	"github.com/vantran-sec/threatsync/internal/orchestrator"
)

// orgHeader carries the tenant on every API call. The engine runs behind the
// platform gateway, which injects it after authentication.
const orgHeader = "X-Organization-ID"

// Server wires the engine's subsystems to HTTP routes.
type Server struct {
	cfg       *config.Config
	repo      intel.Repository
	orch      *orchestrator.Orchestrator
	correlate orchestrator.Correlator
	logger    *zap.Logger
	version   string
}

// NewServer builds the API server.
func NewServer(cfg *config.Config, repo intel.Repository, orch *orchestrator.Orchestrator, correlate orchestrator.Correlator, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		repo:      repo,
		orch:      orch,
		correlate: correlate,
		logger:    logger,
		version:   version,
	}
}

// Router assembles the chi router with the full route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireOrganization)

		r.Post("/sync", s.handleSync)
		r.Post("/correlate", s.handleCorrelate)

		r.Get("/feeds", s.handleListFeeds)
		r.Get("/runs", s.handleListRuns)

		r.Route("/indicators", func(r chi.Router) {
			r.Get("/", s.handleListIndicators)
			r.Get("/{id}", s.handleGetIndicator)
		})

		r.Route("/matches", func(r chi.Router) {
			r.Get("/", s.handleListMatches)
			r.Post("/{id}/status", s.handleSetMatchStatus)
		})
	})

	return r
}

// requireOrganization rejects requests without a tenant header.
func (s *Server) requireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(orgHeader) == "" {
			writeError(w, http.StatusBadRequest, "missing "+orgHeader+" header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func orgID(r *http.Request) string {
	return r.Header.Get(orgHeader)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeRepoError maps repository sentinels to 404 and everything else to 500.
func (s *Server) writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, intel.ErrFeedNotFound),
		errors.Is(err, intel.ErrRunNotFound),
		errors.Is(err, intel.ErrIndicatorNotFound),
		errors.Is(err, intel.ErrMatchNotFound),
		errors.Is(err, intel.ErrTechniqueNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// ============================================================================
// Health
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": s.version})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Features.Enabled {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "disabled"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ============================================================================
// Sync and correlation
// ============================================================================

// syncRequest narrows a sync. The include flags default to true: a bare
// POST /sync runs the full cycle.
type syncRequest struct {
	Source             string `json:"source,omitempty"`
	IncludeMitre       *bool  `json:"include_mitre,omitempty"`
	IncludeCorrelation *bool  `json:"include_correlation,omitempty"`
}

func excluded(flag *bool) bool {
	return flag != nil && !*flag
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := s.orch.SyncAll(r.Context(), orgID(r), orchestrator.Options{
		Source:          req.Source,
		SkipMitre:       excluded(req.IncludeMitre),
		SkipCorrelation: excluded(req.IncludeCorrelation),
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrFeaturesDisabled) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCorrelate(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Features.IOCCorrelationEnabled || s.correlate == nil {
		writeError(w, http.StatusConflict, "IOC correlation is disabled")
		return
	}
	summary, err := s.correlate.Run(r.Context(), orgID(r))
	if err != nil {
		s.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ============================================================================
// Feeds and runs
// ============================================================================

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.repo.ListFeeds(r.Context(), orgID(r))
	if err != nil {
		s.writeRepoError(w, err)
		return
	}
	// Sealed envelopes stay server-side.
	for _, feed := range feeds {
		feed.APIKey = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"feeds": feeds, "count": len(feeds)})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.repo.ListRecentFeedRuns(r.Context(), orgID(r), 20)
	if err != nil {
		s.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// ============================================================================
// Indicators
// ============================================================================

func (s *Server) handleListIndicators(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := intel.IndicatorFilters{
		Type:           intel.IndicatorType(query.Get("type")),
		Severity:       intel.ParseSeverity(query.Get("severity")),
		Search:         query.Get("search"),
		IncludeExpired: query.Get("include_expired") == "true",
	}

	indicators, err := s.repo.ListIndicators(r.Context(), orgID(r), filters)
	if err != nil {
		s.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indicators": indicators, "count": len(indicators)})
}

func (s *Server) handleGetIndicator(w http.ResponseWriter, r *http.Request) {
	indicator, err := s.repo.GetIndicator(r.Context(), orgID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, indicator)
}

// ============================================================================
// Matches
// ============================================================================

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.repo.ListIndicatorMatches(r.Context(), orgID(r))
	if err != nil {
		s.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches, "count": len(matches)})
}

type matchStatusRequest struct {
	Status string `json:"status"`
}

var validMatchStatuses = map[intel.MatchStatus]bool{
	intel.MatchStatusActive:        true,
	intel.MatchStatusResolved:      true,
	intel.MatchStatusFalsePositive: true,
}

func (s *Server) handleSetMatchStatus(w http.ResponseWriter, r *http.Request) {
	var req matchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := intel.MatchStatus(req.Status)
	if !validMatchStatuses[status] {
		writeError(w, http.StatusBadRequest, "invalid match status")
		return
	}

	match, err := s.repo.SetMatchStatus(r.Context(), orgID(r), chi.URLParam(r, "id"), status)
	if err != nil {
		s.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}
