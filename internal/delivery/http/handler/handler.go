package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/user/forum-crawler/internal/delivery/http/request"
	"github.com/user/forum-crawler/internal/delivery/http/response"
	"github.com/user/forum-crawler/internal/entity"
	"github.com/user/forum-crawler/internal/usecase"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
	healthTimeout    = 2 * time.Second
)

// CrawlStarter launches a crawl in the background.
type CrawlStarter interface {
	Start(ctx context.Context, req usecase.RunRequest) error
}

// RunLister returns recent execution log entries.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]entity.ExecutionLog, error)
}

// Pinger is a dependency whose health is reported by /api/health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CrawlDefaults fill the fields a crawl request leaves empty.
type CrawlDefaults struct {
	SectionIDs []string
	MaxPages   int
	Delay      time.Duration
	Timeout    time.Duration
}

type Handler struct {
	// base outlives individual requests so that accepted runs are not
	// cancelled when the response is written.
	base     context.Context
	starter  CrawlStarter
	runs     RunLister
	checks   map[string]Pinger
	defaults CrawlDefaults
	logger   *zap.Logger
}

func NewHandler(base context.Context, starter CrawlStarter, runs RunLister, checks map[string]Pinger, defaults CrawlDefaults, logger *zap.Logger) *Handler {
	return &Handler{
		base:     base,
		starter:  starter,
		runs:     runs,
		checks:   checks,
		defaults: defaults,
		logger:   logger.Named("http"),
	}
}

func (h *Handler) HandleStartCrawl(w http.ResponseWriter, r *http.Request) {
	var req request.CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.MaxPages < 0 {
		h.writeJSONError(w, "max_pages must not be negative", http.StatusBadRequest)
		return
	}
	for _, fid := range req.SectionIDs {
		if _, err := strconv.Atoi(fid); err != nil {
			h.writeJSONError(w, "Invalid fid: "+fid, http.StatusBadRequest)
			return
		}
	}

	run := usecase.RunRequest{
		CrawlOptions: usecase.CrawlOptions{
			SectionIDs: req.SectionIDs,
			MaxPages:   req.MaxPages,
			Delay:      h.defaults.Delay,
			Overwrite:  req.Overwrite,
		},
		Type:    entity.ExecutionManual,
		Command: "POST /api/crawl",
		Timeout: h.defaults.Timeout,
	}
	if len(run.SectionIDs) == 0 {
		run.SectionIDs = h.defaults.SectionIDs
	}
	if run.MaxPages == 0 {
		run.MaxPages = h.defaults.MaxPages
	}

	if err := h.starter.Start(h.base, run); err != nil {
		if errors.Is(err, usecase.ErrRunInProgress) {
			h.writeJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("failed to start crawl", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, response.CrawlAcceptedResponse{
		Status:     "accepted",
		Message:    "Crawl started",
		SectionIDs: run.SectionIDs,
		MaxPages:   run.MaxPages,
		Overwrite:  run.Overwrite,
	})
}

func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunsLimit)
	}

	logs, err := h.runs.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", zap.Error(err))
		h.writeJSONError(w, "Could not retrieve runs", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewRunsResponse(logs))
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := response.HealthResponse{}
	healthy := true
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			status[name] = "unhealthy"
			healthy = false
			h.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
			continue
		}
		status[name] = "healthy"
	}

	if !healthy {
		h.writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
