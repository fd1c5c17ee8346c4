// Package api exposes the orchestrator over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pario-ai/quotaguard/pkg/budget"
	"github.com/pario-ai/quotaguard/pkg/logging"
	"github.com/pario-ai/quotaguard/pkg/metrics"
	"github.com/pario-ai/quotaguard/pkg/models"
	"github.com/pario-ai/quotaguard/pkg/orchestrator"
)

// AuditQuerier lists admin actions.
type AuditQuerier interface {
	Query(ctx context.Context, opts models.AdminQueryOpts) ([]models.AdminAction, error)
}

// reserved query parameters that steer the request instead of being sent to
// the provider.
const (
	paramCategory = "category"
	paramPriority = "priority"
	paramCost     = "cost"
)

// Server is the quotaguard HTTP API.
type Server struct {
	orch   *orchestrator.Orchestrator
	audit  AuditQuerier
	log    *zap.Logger
	router chi.Router
}

// New creates a Server. audit may be nil, in which case the admin actions
// endpoint answers 404.
func New(o *orchestrator.Orchestrator, audit AuditQuerier, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{orch: o, audit: audit, log: logger}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/data", s.handleData)
		r.Get("/usage", s.handleUsage)
		r.Get("/ledger", s.handleLedger)
		r.Delete("/cache", s.handleClearCache)
		r.Get("/cache/stats", s.handleCacheStats)
		r.Route("/admin", func(r chi.Router) {
			r.Put("/limit", s.handleSetLimit)
			r.Put("/override", s.handleSetOverride)
			r.Get("/actions", s.handleActions)
		})
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("quotaguard listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.orch.GetUsageStats(r.Context())
	status := "ok"
	if stats.Degraded {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	priority := models.PriorityMedium
	if v := q.Get(paramPriority); v != "" {
		p, err := models.ParsePriority(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		priority = p
	}
	category := q.Get(paramCategory)
	if err := s.orch.ValidateCategory(category); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	cost := 0
	if v := q.Get(paramCost); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSONError(w, http.StatusBadRequest, "cost must be a positive integer")
			return
		}
		cost = n
	}

	params := make(map[string]string, len(q))
	for k := range q {
		switch k {
		case paramCategory, paramPriority, paramCost:
			continue
		}
		params[k] = q.Get(k)
	}
	if len(params) == 0 {
		writeJSONError(w, http.StatusBadRequest, "no provider parameters")
		return
	}

	res := s.orch.Fetch(r.Context(), models.FetchRequest{
		Params:   params,
		Category: category,
		Priority: priority,
		Cost:     cost,
	})
	if !res.OK {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	cacheHeader := "miss"
	if res.Cached {
		cacheHeader = "hit"
	}
	w.Header().Set("X-Quota-Cache", cacheHeader)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.GetUsageStats(r.Context()))
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "n")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.orch.Ledger(r.Context(), n)
	if err != nil {
		logging.FromContext(r.Context()).Error("read ledger", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ClearCache(r.Context()); err != nil {
		logging.FromContext(r.Context()).Error("clear cache", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orch.CacheStats(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("cache stats", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to read cache stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type limitRequest struct {
	Limit   int    `json:"limit"`
	ActorID string `json:"actor_id"`
}

func (s *Server) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID == "" {
		writeJSONError(w, http.StatusBadRequest, "actor_id is required")
		return
	}
	stats, err := s.orch.UpdateAdminLimit(r.Context(), req.Limit, req.ActorID)
	if err != nil {
		var verr *budget.ValidationError
		if errors.As(err, &verr) {
			writeJSONError(w, http.StatusBadRequest, verr.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to update limit")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type overrideRequest struct {
	Enabled *bool  `json:"enabled"`
	ActorID string `json:"actor_id"`
}

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID == "" {
		writeJSONError(w, http.StatusBadRequest, "actor_id is required")
		return
	}
	writeJSON(w, http.StatusOK, s.orch.ToggleAdminOverride(r.Context(), *req.Enabled, req.ActorID))
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSONError(w, http.StatusNotFound, "audit log disabled")
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := models.AdminQueryOpts{
		Action:  models.AdminActionType(r.URL.Query().Get("action")),
		ActorID: r.URL.Query().Get("actor_id"),
		Limit:   limit,
	}
	actions, err := s.audit.Query(r.Context(), opts)
	if err != nil {
		logging.FromContext(r.Context()).Error("query admin actions", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to query admin actions")
		return
	}
	if actions == nil {
		actions = []models.AdminAction{}
	}
	writeJSON(w, http.StatusOK, actions)
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes an error response in a consistent JSON format.
func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	})
}
