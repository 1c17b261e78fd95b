// Package api exposes the admin surface of the engine: job status,
// run history, manual triggers, and re-enabling. It never mutates
// tracker schedule state itself; triggers go through the dispatcher.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/officina-hr/jobengine/internal/domain"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// TrackerStore is the read/enable surface over job trackers.
type TrackerStore interface {
	FindAllEnabled(ctx context.Context) ([]domain.JobTracker, error)
	FindByName(ctx context.Context, jobName string) (domain.JobTracker, error)
	FindOverdue(ctx context.Context, now time.Time) ([]domain.JobTracker, error)
	SetEnabled(ctx context.Context, jobName string, enabled bool) (bool, error)
	ListRuns(ctx context.Context, jobName string, limit, offset int) ([]domain.RunRecord, error)
}

// Runner executes a job by name for manual triggers.
type Runner interface {
	Run(ctx context.Context, jobName string) domain.Result
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	store  TrackerStore
	runner Runner
	logger *zap.Logger
	db     HealthChecker
	now    func() time.Time
}

func NewHandler(store TrackerStore, runner Runner, logger *zap.Logger) *Handler {
	return &Handler{
		store:  store,
		runner: runner,
		logger: logger,
		now:    time.Now,
	}
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

// WithClock overrides the time source. Used by tests.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/jobs" && r.Method == http.MethodGet:
		h.listJobs(w, r)

	case path == "/jobs/overdue" && r.Method == http.MethodGet:
		h.listOverdue(w, r)

	case strings.HasSuffix(path, "/trigger") && r.Method == http.MethodPost:
		h.triggerJob(w, r)

	case strings.HasSuffix(path, "/enable") && r.Method == http.MethodPut:
		h.enableJob(w, r)

	case strings.HasSuffix(path, "/runs") && r.Method == http.MethodGet:
		h.listRuns(w, r)

	case strings.HasPrefix(path, "/jobs/") && r.Method == http.MethodGet:
		h.getJob(w, r)

	default:
		h.writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	h.writeJSON(w, statusCode, resp)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	trackers, err := h.store.FindAllEnabled(r.Context())
	if err != nil {
		h.logger.Error("list jobs failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	h.writeJSON(w, http.StatusOK, h.trackerList(trackers))
}

func (h *Handler) listOverdue(w http.ResponseWriter, r *http.Request) {
	overdue, err := h.store.FindOverdue(r.Context(), h.now().UTC())
	if err != nil {
		h.logger.Error("list overdue jobs failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list overdue jobs")
		return
	}
	h.writeJSON(w, http.StatusOK, h.trackerList(overdue))
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	jobName, ok := pathSegment(r.URL.Path, 2)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}

	tracker, err := h.store.FindByName(r.Context(), jobName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("get job failed", zap.String("job", jobName), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	h.writeJSON(w, http.StatusOK, h.trackerResponse(tracker))
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	jobName, ok := pathSegment(r.URL.Path, 3)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := h.store.ListRuns(r.Context(), jobName, limit, offset)
	if err != nil {
		h.logger.Error("list runs failed", zap.String("job", jobName), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	resp := ListRunsResponse{Runs: make([]RunResponse, len(runs))}
	for i, run := range runs {
		resp.Runs[i] = RunResponse{
			ID:               run.ID.String(),
			JobName:          run.JobName,
			StartedAt:        formatTime(run.StartedAt),
			FinishedAt:       formatTime(run.FinishedAt),
			Outcome:          string(run.Outcome),
			Detail:           run.Detail,
			RecordsProcessed: run.RecordsProcessed,
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) triggerJob(w http.ResponseWriter, r *http.Request) {
	alias, ok := pathSegment(r.URL.Path, 3)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}

	jobName, ok := jobNameFromAlias(alias)
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown job")
		return
	}

	h.logger.Info("manual trigger requested", zap.String("job", jobName))
	result := h.runner.Run(r.Context(), jobName)

	switch result.Outcome {
	case domain.RunOutcomeSuccess:
		h.writeJSON(w, http.StatusOK, TriggerResponse{
			Status:  "success",
			Message: result.Detail,
		})
	case domain.RunOutcomeSkipped:
		h.writeJSON(w, http.StatusConflict, TriggerResponse{
			Status:  "skipped",
			Message: result.Detail,
		})
	default:
		h.writeJSON(w, http.StatusInternalServerError, TriggerResponse{
			Status:  "error",
			Message: result.Err,
		})
	}
}

func (h *Handler) enableJob(w http.ResponseWriter, r *http.Request) {
	jobName, ok := pathSegment(r.URL.Path, 3)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}

	h.logger.Info("enabling job", zap.String("job", jobName))
	updated, err := h.store.SetEnabled(r.Context(), jobName, true)
	if err != nil {
		h.logger.Error("enable job failed", zap.String("job", jobName), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to enable job")
		return
	}
	if !updated {
		h.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	h.writeJSON(w, http.StatusOK, TriggerResponse{
		Status:  "success",
		Message: "job enabled",
	})
}

func (h *Handler) trackerList(trackers []domain.JobTracker) ListJobsResponse {
	resp := ListJobsResponse{Jobs: make([]TrackerResponse, len(trackers))}
	for i, t := range trackers {
		resp.Jobs[i] = h.trackerResponse(t)
	}
	return resp
}

func (h *Handler) trackerResponse(t domain.JobTracker) TrackerResponse {
	return TrackerResponse{
		JobName:           t.JobName,
		JobType:           string(t.JobType),
		LastSuccessfulRun: formatTimePtr(t.LastSuccessfulRun),
		NextScheduledRun:  formatTime(t.NextScheduledRun),
		Enabled:           t.Enabled,
		Overdue:           t.Overdue(h.now().UTC()),
	}
}

// pathSegment extracts segment i from paths like /jobs/{name}/runs,
// requiring exactly i+1 segments rooted at /jobs.
func pathSegment(path string, count int) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != count || parts[0] != "jobs" {
		return "", false
	}
	return parts[1], true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("json encode failed", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}
