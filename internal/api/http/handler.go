package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/veranemoloko/download-panel/internal/domain"
	errpkg "github.com/veranemoloko/download-panel/internal/errors"
)

// StateReader exposes the store's read side and the view toggle.
type StateReader interface {
	Snapshot() domain.Snapshot
	Job(id string) (domain.Job, bool)
	SetListView(ctx context.Context, view domain.ListView) error
}

// FileLoader loads file listings for history entries.
type FileLoader interface {
	LoadFileListing(ctx context.Context, jobID string) ([]domain.FileDescriptor, error)
}

// Commander issues user commands.
type Commander interface {
	CreateJob(ctx context.Context, req domain.CreateJobRequest) (domain.Job, error)
	CancelJob(ctx context.Context, jobID string) error
	BusyIDs() []string
	GetSettings(ctx context.Context) (domain.AppSettings, error)
	UpdateSettings(ctx context.Context, settings domain.AppSettings) (domain.AppSettings, error)
	Providers(ctx context.Context) (domain.ProvidersResponse, error)
}

type jobsView struct {
	Jobs       []domain.Job `json:"jobs"`
	Cancelling []string     `json:"cancelling"`
}

type stateView struct {
	domain.Snapshot
	Cancelling []string `json:"cancelling"`
}

type logsView struct {
	JobID string   `json:"job_id"`
	Logs  []string `json:"logs"`
}

type listViewRequest struct {
	View domain.ListView `json:"view"`
}

// PanelHandler serves read-only projections of the store and forwards
// commands to the gateway.
type PanelHandler struct {
	state    StateReader
	files    FileLoader
	commands Commander
	logger   *slog.Logger
}

// NewPanelHandler creates a PanelHandler.
func NewPanelHandler(state StateReader, files FileLoader, commands Commander, logger *slog.Logger) *PanelHandler {
	return &PanelHandler{
		state:    state,
		files:    files,
		commands: commands,
		logger:   logger,
	}
}

// ListJobs handles GET /jobs. Optional filters: status (comma separated) and q.
func (h *PanelHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := domain.JobFilter{Query: r.URL.Query().Get("q")}

	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.JobStatus(strings.TrimSpace(s))
			if !status.IsKnown() {
				writeError(w, http.StatusBadRequest, "unknown status "+string(status))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	snap := h.state.Snapshot()
	writeJSON(w, http.StatusOK, jobsView{
		Jobs:       domain.FilterJobs(snap.Jobs, filter),
		Cancelling: h.commands.BusyIDs(),
	})
}

// GetJob handles GET /jobs/{jobID}.
func (h *PanelHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.state.Job(chi.URLParam(r, "jobID"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, domain.JobResponse{Job: job})
}

// GetJobLogs handles GET /jobs/{jobID}/logs.
func (h *PanelHandler) GetJobLogs(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, ok := h.state.Job(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	logs := job.Logs
	if logs == nil {
		logs = []string{}
	}
	writeJSON(w, http.StatusOK, logsView{JobID: jobID, Logs: logs})
}

// CreateJob handles POST /jobs.
func (h *PanelHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.commands.CreateJob(r.Context(), req)
	if err != nil {
		h.fail(w, "failed to create job", err)
		return
	}

	writeJSON(w, http.StatusCreated, domain.JobResponse{Job: job})
}

// CancelJob handles DELETE /jobs/{jobID}.
func (h *PanelHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.commands.CancelJob(r.Context(), jobID); err != nil {
		h.fail(w, "failed to cancel job", err, "job_id", jobID)
		return
	}
	writeJSON(w, http.StatusAccepted, domain.CancelResponse{Accepted: true})
}

// ListHistory handles GET /history.
func (h *PanelHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.HistoryResponse{History: h.state.Snapshot().History})
}

// ListFiles handles GET /history/{jobID}/files.
func (h *PanelHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	files, err := h.files.LoadFileListing(r.Context(), jobID)
	if err != nil {
		h.fail(w, "failed to load file listing", err, "job_id", jobID)
		return
	}
	writeJSON(w, http.StatusOK, domain.FilesResponse{Files: files})
}

// GetState handles GET /state: the full snapshot in one document.
func (h *PanelHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateView{
		Snapshot:   h.state.Snapshot(),
		Cancelling: h.commands.BusyIDs(),
	})
}

// SetListView handles PUT /view.
func (h *PanelHandler) SetListView(w http.ResponseWriter, r *http.Request) {
	var req listViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.state.SetListView(r.Context(), req.View); err != nil {
		h.fail(w, "failed to set list view", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// GetSettings handles GET /settings.
func (h *PanelHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.commands.GetSettings(r.Context())
	if err != nil {
		h.fail(w, "failed to get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings handles PUT /settings.
func (h *PanelHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.AppSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stored, err := h.commands.UpdateSettings(r.Context(), settings)
	if err != nil {
		h.fail(w, "failed to update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// ListProviders handles GET /providers.
func (h *PanelHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.commands.Providers(r.Context())
	if err != nil {
		h.fail(w, "failed to list providers", err)
		return
	}
	writeJSON(w, http.StatusOK, providers)
}

func (h *PanelHandler) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	status, message := statusFor(err)
	args := append([]any{"status", status, "error", err}, attrs...)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, args...)
	} else {
		h.logger.Warn(msg, args...)
	}
	writeError(w, status, message)
}

// statusFor maps core errors onto HTTP statuses and client-facing messages.
func statusFor(err error) (int, string) {
	var te *errpkg.TransportError
	switch {
	case errors.Is(err, errpkg.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errpkg.ErrJobNotFound), errors.Is(err, errpkg.ErrNotInHistory):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, errpkg.ErrJobNotCancellable), errors.Is(err, errpkg.ErrCancelInFlight):
		return http.StatusConflict, err.Error()
	case errors.Is(err, errpkg.ErrStoreClosed):
		return http.StatusServiceUnavailable, "panel is shutting down"
	case errors.As(err, &te):
		if te.StatusCode == http.StatusNotFound {
			return http.StatusNotFound, te.Error()
		}
		return http.StatusBadGateway, te.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
