// Package fetcher pulls full collections from the backend and hands them to
// the store. A refresh either replaces a collection completely or leaves it
// untouched.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veranemoloko/download-panel/internal/domain"
	errpkg "github.com/veranemoloko/download-panel/internal/errors"
	"github.com/veranemoloko/download-panel/internal/metrics"
	"github.com/veranemoloko/download-panel/internal/store"
)

const (
	collectionQueue   = "queue"
	collectionHistory = "history"
	collectionFiles   = "files"
)

// Source is the read side of the backend.
type Source interface {
	ListJobs(ctx context.Context) ([]domain.Job, error)
	ListHistory(ctx context.Context) ([]domain.HistoryEntry, error)
	JobFiles(ctx context.Context, jobID string) ([]domain.FileDescriptor, error)
}

// Fetcher refreshes store collections from a Source.
type Fetcher struct {
	source Source
	store  *store.Store
	logger *slog.Logger
}

// New creates a Fetcher writing into st.
func New(source Source, st *store.Store, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		source: source,
		store:  st,
		logger: logger.With("component", "fetcher"),
	}
}

// RefreshQueue replaces the job collection with the backend's current one.
// Concurrent calls are allowed; whichever response arrives last wins.
func (f *Fetcher) RefreshQueue(ctx context.Context) error {
	start := time.Now()
	jobs, err := f.source.ListJobs(ctx)
	metrics.RefreshDuration.WithLabelValues(collectionQueue).Observe(time.Since(start).Seconds())
	if err != nil {
		return f.failed(collectionQueue, err)
	}

	if err := f.store.ReplaceJobs(ctx, jobs); err != nil {
		return f.failed(collectionQueue, err)
	}

	metrics.Refreshes.WithLabelValues(collectionQueue, "ok").Inc()
	f.logger.Debug("queue refreshed", "jobs_count", len(jobs))
	return nil
}

// RefreshHistory replaces the history collection with the backend's current one.
func (f *Fetcher) RefreshHistory(ctx context.Context) error {
	start := time.Now()
	entries, err := f.source.ListHistory(ctx)
	metrics.RefreshDuration.WithLabelValues(collectionHistory).Observe(time.Since(start).Seconds())
	if err != nil {
		return f.failed(collectionHistory, err)
	}

	if err := f.store.ReplaceHistory(ctx, entries); err != nil {
		return f.failed(collectionHistory, err)
	}

	metrics.Refreshes.WithLabelValues(collectionHistory, "ok").Inc()
	f.logger.Debug("history refreshed", "entries_count", len(entries))
	return nil
}

// RefreshAll refreshes queue and history concurrently. A failure of one does
// not abort the other; all failures are returned joined.
func (f *Fetcher) RefreshAll(ctx context.Context) error {
	var (
		g                    errgroup.Group
		queueErr, historyErr error
	)

	g.Go(func() error {
		queueErr = f.RefreshQueue(ctx)
		return nil
	})
	g.Go(func() error {
		historyErr = f.RefreshHistory(ctx)
		return nil
	})
	_ = g.Wait()

	return errors.Join(queueErr, historyErr)
}

// LoadFileListing returns the output files of a history entry, fetching and
// caching them on first use. Ids outside history are refused without a
// network call.
func (f *Fetcher) LoadFileListing(ctx context.Context, jobID string) ([]domain.FileDescriptor, error) {
	if files, ok := f.store.FileListing(jobID); ok {
		return files, nil
	}
	if !f.store.InHistory(jobID) {
		return nil, fmt.Errorf("load file listing %s: %w", jobID, errpkg.ErrNotInHistory)
	}

	start := time.Now()
	files, err := f.source.JobFiles(ctx, jobID)
	metrics.RefreshDuration.WithLabelValues(collectionFiles).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Refreshes.WithLabelValues(collectionFiles, "error").Inc()
		return nil, fmt.Errorf("load file listing %s: %w", jobID, err)
	}

	attached, err := f.store.SetFileListing(ctx, jobID, files)
	if err != nil {
		metrics.Refreshes.WithLabelValues(collectionFiles, "error").Inc()
		return nil, fmt.Errorf("load file listing %s: %w", jobID, err)
	}
	if !attached {
		f.logger.Debug("history entry vanished before listing arrived", "job_id", jobID)
	}

	metrics.Refreshes.WithLabelValues(collectionFiles, "ok").Inc()
	return files, nil
}

func (f *Fetcher) failed(collection string, err error) error {
	metrics.Refreshes.WithLabelValues(collection, "error").Inc()
	return fmt.Errorf("refresh %s: %w", collection, err)
}
