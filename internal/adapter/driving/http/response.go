package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Time     string `json:"time"`
	LastRun  string `json:"last_run,omitempty"`
	LastSync string `json:"last_sync,omitempty"`
}

// SyncErrorResponse is a classified failure.
type SyncErrorResponse struct {
	Kind    string `json:"kind"`
	Issue   string `json:"issue,omitempty"`
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
}

// IssueResponse is one issue of a sync report.
type IssueResponse struct {
	Key          string             `json:"key"`
	Summary      string             `json:"summary"`
	Status       string             `json:"status"`
	NeedsCleanup bool               `json:"needs_cleanup"`
	Attachments  int                `json:"attachments"`
	Error        *SyncErrorResponse `json:"error,omitempty"`
}

// FileResponse is the outcome for one attachment.
type FileResponse struct {
	Issue        string             `json:"issue"`
	AttachmentID string             `json:"attachment_id"`
	Filename     string             `json:"filename"`
	Path         string             `json:"path"`
	Outcome      string             `json:"outcome"`
	Label        string             `json:"label"`
	Bytes        int64              `json:"bytes"`
	Error        *SyncErrorResponse `json:"error,omitempty"`
}

// PendingResponse is an attachment a dry run would download.
type PendingResponse struct {
	Issue    string `json:"issue"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
}

// SyncReportResponse is the JSON representation of a sync pass.
type SyncReportResponse struct {
	RunID      string             `json:"run_id"`
	StartedAt  string             `json:"started_at"`
	FinishedAt string             `json:"finished_at"`
	DryRun     bool               `json:"dry_run"`
	Downloaded int                `json:"downloaded"`
	Present    int                `json:"present"`
	Failed     int                `json:"failed"`
	Bytes      int64              `json:"bytes"`
	Issues     []IssueResponse    `json:"issues"`
	Files      []FileResponse     `json:"files"`
	Pending    []PendingResponse  `json:"pending"`
	Fatal      *SyncErrorResponse `json:"fatal,omitempty"`
}

// IncidentResponse is the JSON representation of a local incident.
type IncidentResponse struct {
	Key               string `json:"key"`
	Summary           string `json:"summary"`
	Status            string `json:"status"`
	NeedsCleanup      bool   `json:"needs_cleanup"`
	MarkedForDeletion bool   `json:"marked_for_deletion"`
	OnDisk            bool   `json:"on_disk"`
	FolderSize        int64  `json:"folder_size"`
	FolderSizeHuman   string `json:"folder_size_human"`
	LastChecked       string `json:"last_checked,omitempty"`
}

// MarkResponse confirms a mark or unmark.
type MarkResponse struct {
	Key    string `json:"key"`
	Marked bool   `json:"marked"`
}

// RefreshResponse reports a status refresh.
type RefreshResponse struct {
	Refreshed int `json:"refreshed"`
}

// RunResponse is the JSON representation of a recorded sync run.
type RunResponse struct {
	ID         string `json:"id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	DryRun     bool   `json:"dry_run"`
	Issues     int    `json:"issues"`
	Downloaded int    `json:"downloaded"`
	Present    int    `json:"present"`
	Failed     int    `json:"failed"`
	Bytes      int64  `json:"bytes"`
	FatalError string `json:"fatal_error,omitempty"`
}

// RunFileResponse is one file row of a recorded run.
type RunFileResponse struct {
	Issue        string `json:"issue"`
	AttachmentID string `json:"attachment_id"`
	Filename     string `json:"filename"`
	Path         string `json:"path"`
	Outcome      string `json:"outcome"`
	Bytes        int64  `json:"bytes"`
	FailureKind  string `json:"failure_kind,omitempty"`
	Message      string `json:"message,omitempty"`
}

// RunDetailResponse is a run with its files.
type RunDetailResponse struct {
	RunResponse
	Files []RunFileResponse `json:"files"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toSyncErrorResponse(se *model.SyncError) *SyncErrorResponse {
	if se == nil {
		return nil
	}
	return &SyncErrorResponse{
		Kind:    string(se.Kind),
		Issue:   se.IssueKey,
		File:    se.Filename,
		Message: se.Message(),
	}
}

// toSyncReportResponse converts a domain SyncReport to its JSON representation.
func toSyncReportResponse(r *model.SyncReport) SyncReportResponse {
	resp := SyncReportResponse{
		RunID:      r.RunID,
		StartedAt:  formatTime(r.StartedAt),
		FinishedAt: formatTime(r.FinishedAt),
		DryRun:     r.DryRun,
		Downloaded: r.Downloaded(),
		Present:    r.Present(),
		Failed:     r.Failed(),
		Bytes:      r.Bytes(),
		Issues:     make([]IssueResponse, 0, len(r.Issues)),
		Files:      make([]FileResponse, 0, len(r.Results)),
		Pending:    make([]PendingResponse, 0, len(r.Pending)),
		Fatal:      toSyncErrorResponse(r.Fatal),
	}

	for _, ip := range r.Issues {
		resp.Issues = append(resp.Issues, IssueResponse{
			Key:          ip.Key,
			Summary:      ip.Summary,
			Status:       string(ip.Status),
			NeedsCleanup: ip.NeedsCleanup,
			Attachments:  ip.Attachments,
			Error:        toSyncErrorResponse(ip.Error),
		})
	}
	for _, res := range r.Results {
		resp.Files = append(resp.Files, FileResponse{
			Issue:        res.Entry.IssueKey,
			AttachmentID: res.Entry.Attachment.ID,
			Filename:     res.Entry.Attachment.Filename,
			Path:         res.Path,
			Outcome:      string(res.Outcome),
			Label:        res.Label(),
			Bytes:        res.Bytes,
			Error:        toSyncErrorResponse(res.Failure),
		})
	}
	for _, e := range r.Pending {
		resp.Pending = append(resp.Pending, PendingResponse{
			Issue:    e.IssueKey,
			Filename: e.Attachment.Filename,
			Path:     e.Path,
			Size:     e.Attachment.Size,
		})
	}

	return resp
}

// toIncidentResponse converts a domain Incident to its JSON representation.
func toIncidentResponse(inc model.Incident) IncidentResponse {
	return IncidentResponse{
		Key:               inc.Key,
		Summary:           inc.Summary,
		Status:            string(inc.Status),
		NeedsCleanup:      inc.NeedsCleanup(),
		MarkedForDeletion: inc.MarkedForDeletion,
		OnDisk:            inc.OnDisk,
		FolderSize:        inc.FolderSize,
		FolderSizeHuman:   humanize.Bytes(uint64(max(inc.FolderSize, 0))),
		LastChecked:       formatTime(inc.LastChecked),
	}
}

// toRunResponse converts a domain SyncRun to its JSON representation.
func toRunResponse(run model.SyncRun) RunResponse {
	return RunResponse{
		ID:         run.ID,
		StartedAt:  formatTime(run.StartedAt),
		FinishedAt: formatTime(run.FinishedAt),
		DryRun:     run.DryRun,
		Issues:     run.Issues,
		Downloaded: run.Downloaded,
		Present:    run.Present,
		Failed:     run.Failed,
		Bytes:      run.Bytes,
		FatalError: run.FatalError,
	}
}

func toRunFileResponse(f model.SyncRunFile) RunFileResponse {
	return RunFileResponse{
		Issue:        f.IssueKey,
		AttachmentID: f.AttachmentID,
		Filename:     f.Filename,
		Path:         f.Path,
		Outcome:      string(f.Outcome),
		Bytes:        f.Bytes,
		FailureKind:  string(f.FailureKind),
		Message:      f.Message,
	}
}
