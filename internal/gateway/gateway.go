// Package gateway issues user commands against the backend and folds the
// confirmed results back into the store.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/veranemoloko/download-panel/internal/domain"
	errpkg "github.com/veranemoloko/download-panel/internal/errors"
	"github.com/veranemoloko/download-panel/internal/metrics"
	"github.com/veranemoloko/download-panel/internal/store"
	"github.com/veranemoloko/download-panel/internal/validation"
)

// Backend is the command side of the backend.
type Backend interface {
	CreateJob(ctx context.Context, req domain.CreateJobRequest) (domain.Job, error)
	CancelJob(ctx context.Context, jobID string) error
	GetSettings(ctx context.Context) (domain.AppSettings, error)
	UpdateSettings(ctx context.Context, settings domain.AppSettings) (domain.AppSettings, error)
	Providers(ctx context.Context) (domain.ProvidersResponse, error)
}

// Refresher re-reads queue and history after a cancel.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// Gateway serialises cancel requests per job through a busy-set. The busy-set
// is UI state, not job state, so it lives here rather than in the store.
type Gateway struct {
	backend   Backend
	store     *store.Store
	refresher Refresher
	logger    *slog.Logger

	mu   sync.Mutex
	busy map[string]struct{}
}

// New creates a Gateway.
func New(backend Backend, st *store.Store, refresher Refresher, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		backend:   backend,
		store:     st,
		refresher: refresher,
		logger:    logger.With("component", "gateway"),
		busy:      make(map[string]struct{}),
	}
}

// CreateJob validates req, submits it and upserts the job the backend
// created. Nothing is written to the store unless the backend confirms.
func (g *Gateway) CreateJob(ctx context.Context, req domain.CreateJobRequest) (domain.Job, error) {
	req.URL = strings.TrimSpace(req.URL)
	req.Store = strings.TrimSpace(req.Store)
	req.PathTemplate = strings.TrimSpace(req.PathTemplate)
	req.Provider = strings.TrimSpace(req.Provider)
	if req.Provider == "" {
		req.Provider = domain.DefaultProvider
	}
	if req.Quality != nil && strings.TrimSpace(*req.Quality) == "" {
		req.Quality = nil
	}

	if err := validation.ValidateCreateJob(req); err != nil {
		metrics.Commands.WithLabelValues("create", "invalid").Inc()
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}

	job, err := g.backend.CreateJob(ctx, req)
	if err != nil {
		metrics.Commands.WithLabelValues("create", "error").Inc()
		g.logger.Error("failed to create job", "store", req.Store, "url", req.URL, "error", err)
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}

	result, err := g.store.UpsertJob(ctx, job)
	if err != nil {
		metrics.Commands.WithLabelValues("create", "error").Inc()
		return job, fmt.Errorf("create job %s: %w", job.ID, err)
	}

	metrics.Commands.WithLabelValues("create", "ok").Inc()
	g.logger.Info("job created",
		"job_id", job.ID,
		"store", job.Store,
		"status", job.Status,
		"outcome", result.Outcome,
	)
	return job, nil
}

// CancelJob requests cancellation of a pending or running job. Unknown,
// terminal and already-cancelling jobs are refused without contacting the
// backend. A nil error means the backend accepted the request; the final
// status arrives later through the live channel or a refresh.
func (g *Gateway) CancelJob(ctx context.Context, jobID string) error {
	job, ok := g.store.Job(jobID)
	if !ok {
		metrics.Commands.WithLabelValues("cancel", "invalid").Inc()
		return fmt.Errorf("cancel job %s: %w", jobID, errpkg.ErrJobNotFound)
	}
	if !job.Status.IsCancellable() {
		metrics.Commands.WithLabelValues("cancel", "invalid").Inc()
		return fmt.Errorf("cancel job %s: %w: status is %s", jobID, errpkg.ErrJobNotCancellable, job.Status)
	}

	if !g.acquire(jobID) {
		metrics.Commands.WithLabelValues("cancel", "busy").Inc()
		return fmt.Errorf("cancel job %s: %w", jobID, errpkg.ErrCancelInFlight)
	}
	defer g.release(jobID)

	if err := g.backend.CancelJob(ctx, jobID); err != nil {
		metrics.Commands.WithLabelValues("cancel", "error").Inc()
		g.logger.Error("failed to cancel job", "job_id", jobID, "error", err)
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}

	metrics.Commands.WithLabelValues("cancel", "ok").Inc()
	g.logger.Info("job cancel accepted", "job_id", jobID, "previous_status", job.Status)

	if err := g.refresher.RefreshAll(ctx); err != nil {
		g.logger.Warn("refresh after cancel failed", "job_id", jobID, "error", err)
	}
	return nil
}

// IsCancelling reports whether a cancel for jobID is in flight.
func (g *Gateway) IsCancelling(jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.busy[jobID]
	return ok
}

// BusyIDs returns the ids with a cancel in flight, sorted.
func (g *Gateway) BusyIDs() []string {
	g.mu.Lock()
	ids := make([]string, 0, len(g.busy))
	for id := range g.busy {
		ids = append(ids, id)
	}
	g.mu.Unlock()

	slices.Sort(ids)
	return ids
}

func (g *Gateway) acquire(jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.busy[jobID]; ok {
		return false
	}
	g.busy[jobID] = struct{}{}
	return true
}

func (g *Gateway) release(jobID string) {
	g.mu.Lock()
	delete(g.busy, jobID)
	g.mu.Unlock()
}

// GetSettings returns the backend settings.
func (g *Gateway) GetSettings(ctx context.Context) (domain.AppSettings, error) {
	settings, err := g.backend.GetSettings(ctx)
	if err != nil {
		return domain.AppSettings{}, fmt.Errorf("get settings: %w", err)
	}
	return settings, nil
}

// UpdateSettings validates and saves settings. Invalid proxy or download
// settings never reach the backend.
func (g *Gateway) UpdateSettings(ctx context.Context, settings domain.AppSettings) (domain.AppSettings, error) {
	settings.Proxy.Host = strings.TrimSpace(settings.Proxy.Host)

	if err := validation.ValidateSettings(settings); err != nil {
		metrics.Commands.WithLabelValues("settings", "invalid").Inc()
		return domain.AppSettings{}, fmt.Errorf("update settings: %w", err)
	}

	stored, err := g.backend.UpdateSettings(ctx, settings)
	if err != nil {
		metrics.Commands.WithLabelValues("settings", "error").Inc()
		return domain.AppSettings{}, fmt.Errorf("update settings: %w", err)
	}

	metrics.Commands.WithLabelValues("settings", "ok").Inc()
	g.logger.Info("settings updated", "proxy_enabled", stored.Proxy.Enabled, "download_mode", stored.Download.Mode)
	return stored, nil
}

// Providers lists the metadata sources and stores the backend supports.
func (g *Gateway) Providers(ctx context.Context) (domain.ProvidersResponse, error) {
	providers, err := g.backend.Providers(ctx)
	if err != nil {
		return domain.ProvidersResponse{}, fmt.Errorf("list providers: %w", err)
	}
	return providers, nil
}
