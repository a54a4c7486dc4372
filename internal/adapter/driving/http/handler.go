// Package httphandler serves the local JSON API used to trigger syncs and
// manage incident folders from scripts or a browser.
package httphandler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/jiradl/internal/application"
	"github.com/ericfisherdev/jiradl/internal/domain/model"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 500
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	scheduler *application.Scheduler
	cleanup   *application.CleanupService
	runs      driven.RunStore
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. The
// scheduler must be started for sync triggers to be served.
func NewHandler(
	scheduler *application.Scheduler,
	cleanup *application.CleanupService,
	runs driven.RunStore,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		scheduler: scheduler,
		cleanup:   cleanup,
		runs:      runs,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("POST /api/v1/sync", h.Sync)
	mux.HandleFunc("GET /api/v1/sync/last", h.LastSync)
	mux.HandleFunc("GET /api/v1/incidents", h.ListIncidents)
	mux.HandleFunc("POST /api/v1/incidents/refresh", h.RefreshIncidents)
	mux.HandleFunc("POST /api/v1/incidents/{key}/mark", h.MarkIncident)
	mux.HandleFunc("DELETE /api/v1/incidents/{key}/mark", h.UnmarkIncident)
	mux.HandleFunc("DELETE /api/v1/incidents/{key}", h.DeleteIncident)
	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.GetRun)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = crossOriginMiddleware(logger, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns the service status and the time of the last pass.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	if last := h.scheduler.Last(); last != nil {
		resp.LastRun = last.RunID
		resp.LastSync = formatTime(last.FinishedAt)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Sync runs a pass and returns its report. Query parameters: dry_run=true
// and any number of issue=<key or URL>.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var opts application.SyncOptions
	if v := q.Get("dry_run"); v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "dry_run must be a boolean")
			return
		}
		opts.DryRun = dry
	}
	for _, raw := range q["issue"] {
		key, ok := model.ParseIssueKey(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid issue key: "+raw)
			return
		}
		opts.IssueKeys = append(opts.IssueKeys, key)
	}

	report, err := h.scheduler.Trigger(r.Context(), opts)
	if report == nil {
		h.logger.Error("sync trigger failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "sync unavailable")
		return
	}

	writeJSON(w, syncStatus(report), toSyncReportResponse(report))
}

// LastSync returns the report of the most recent pass.
func (h *Handler) LastSync(w http.ResponseWriter, _ *http.Request) {
	last := h.scheduler.Last()
	if last == nil {
		writeError(w, http.StatusNotFound, "no sync has run yet")
		return
	}
	writeJSON(w, http.StatusOK, toSyncReportResponse(last))
}

// syncStatus maps a pass-fatal failure to an HTTP status. Per-file failures
// still produce 200.
func syncStatus(report *model.SyncReport) int {
	if report.Fatal == nil {
		return http.StatusOK
	}
	switch report.Fatal.Kind {
	case model.FailureAuth, model.FailureKeyMissing, model.FailureDecrypt:
		return http.StatusUnauthorized
	case model.FailureCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// ListIncidents returns every local incident with its lifecycle state.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.cleanup.ListIncidents(r.Context())
	if err != nil {
		h.logger.Error("failed to list incidents", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]IncidentResponse, 0, len(incidents))
	for _, inc := range incidents {
		resp = append(resp, toIncidentResponse(inc))
	}

	writeJSON(w, http.StatusOK, resp)
}

// RefreshIncidents re-reads incident statuses from the tracker.
func (h *Handler) RefreshIncidents(w http.ResponseWriter, r *http.Request) {
	n, err := h.cleanup.RefreshStatuses(r.Context())
	if err != nil {
		h.logger.Error("failed to refresh incidents", "error", err)
		if application.Classify(err).IsPassFatal() {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "status refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{Refreshed: n})
}

// MarkIncident flags an incident for deletion.
func (h *Handler) MarkIncident(w http.ResponseWriter, r *http.Request) {
	h.setMarked(w, r, true)
}

// UnmarkIncident clears the deletion flag.
func (h *Handler) UnmarkIncident(w http.ResponseWriter, r *http.Request) {
	h.setMarked(w, r, false)
}

func (h *Handler) setMarked(w http.ResponseWriter, r *http.Request, marked bool) {
	mark := h.cleanup.Unmark
	if marked {
		mark = h.cleanup.Mark
	}

	key, err := mark(r.Context(), r.PathValue("key"))
	if err != nil {
		h.writeCleanupError(w, "failed to update incident mark", err)
		return
	}
	writeJSON(w, http.StatusOK, MarkResponse{Key: key, Marked: marked})
}

// DeleteIncident removes an incident folder and its record.
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	if _, err := h.cleanup.DeleteIncident(r.Context(), r.PathValue("key")); err != nil {
		h.writeCleanupError(w, "failed to delete incident", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeCleanupError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, application.ErrInvalidIssueKey) {
		writeError(w, http.StatusBadRequest, "invalid issue key")
		return
	}
	h.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// ListRuns returns recent sync runs, newest first. Query parameter limit
// defaults to 20.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunResponse(run))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetRun returns a single run with its per-file outcomes.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, files, err := h.runs.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Error("failed to get run", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	resp := RunDetailResponse{
		RunResponse: toRunResponse(*run),
		Files:       make([]RunFileResponse, 0, len(files)),
	}
	for _, f := range files {
		resp.Files = append(resp.Files, toRunFileResponse(f))
	}

	writeJSON(w, http.StatusOK, resp)
}
