// Package store holds the panel's authoritative view of jobs, history and
// file listings. Every mutation is a message applied by a single goroutine,
// so writers never race each other and readers always see a complete
// snapshot.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/veranemoloko/download-panel/internal/domain"
	errpkg "github.com/veranemoloko/download-panel/internal/errors"
	"github.com/veranemoloko/download-panel/internal/metrics"
)

// Outcome describes what UpsertJob did with an incoming snapshot.
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeStale:
		return "stale"
	default:
		return "unknown"
	}
}

// UpsertResult reports the effect of a single UpsertJob call. A stale result
// is a successful no-op.
type UpsertResult struct {
	Outcome        Outcome
	PreviousStatus domain.JobStatus
	BecameTerminal bool
	Anomalies      []string
}

// Applied reports whether the store now holds the incoming record.
func (r UpsertResult) Applied() bool {
	return r.Outcome != OutcomeStale
}

type op struct {
	apply func(*state) bool
	done  chan struct{}
}

// Store is the reconciliation engine. Create it with New and release it
// with Close.
type Store struct {
	ops     chan op
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	snap   atomic.Pointer[domain.Snapshot]
	state  *state
	logger *slog.Logger
}

// New creates a store seeded with initial and starts its event loop.
func New(initial domain.Snapshot, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		ops:     make(chan op),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		state:   newState(initial),
		logger:  logger.With("component", "store"),
	}
	s.publish()

	go s.eventLoop()

	return s
}

func (s *Store) eventLoop() {
	defer close(s.stopped)

	for {
		select {
		case o := <-s.ops:
			if o.apply(s.state) {
				s.publish()
			}
			close(o.done)
		case <-s.quit:
			return
		}
	}
}

func (s *Store) publish() {
	snap := s.state.snapshot()
	s.snap.Store(&snap)
}

// exec hands apply to the event loop and waits until it has run.
func (s *Store) exec(ctx context.Context, apply func(*state) bool) error {
	o := op{apply: apply, done: make(chan struct{})}

	select {
	case s.ops <- o:
	case <-s.quit:
		return errpkg.ErrStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	<-o.done
	return nil
}

// Close stops the event loop. Mutations issued afterwards fail with
// ErrStoreClosed; reads keep returning the last snapshot.
func (s *Store) Close() {
	s.once.Do(func() {
		close(s.quit)
	})
	<-s.stopped
}

// ReplaceJobs overwrites the job collection with a freshly fetched one.
func (s *Store) ReplaceJobs(ctx context.Context, jobs []domain.Job) error {
	var (
		dropped int
		flagged map[string][]string
	)
	err := s.exec(ctx, func(st *state) bool {
		dropped, flagged = st.replaceJobs(jobs)
		return true
	})
	if err != nil {
		return fmt.Errorf("replace jobs: %w", err)
	}

	for id, notes := range flagged {
		s.flag(id, notes)
	}
	s.logger.Debug("jobs replaced", "jobs_count", len(jobs)-dropped, "duplicates_dropped", dropped)
	return nil
}

// UpsertJob merges one job snapshot. The incoming record replaces the stored
// one only when its updated_at is not older; otherwise the call is a stale
// no-op and reports OutcomeStale.
func (s *Store) UpsertJob(ctx context.Context, job domain.Job) (UpsertResult, error) {
	if job.ID == "" {
		return UpsertResult{}, fmt.Errorf("upsert job: %w: empty job id", errpkg.ErrValidation)
	}

	var result UpsertResult
	err := s.exec(ctx, func(st *state) bool {
		result = st.upsertJob(job)
		return result.Applied()
	})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert job %s: %w", job.ID, err)
	}

	switch {
	case !result.Applied():
		metrics.UpsertsStale.Inc()
		s.logger.Debug("stale job snapshot dropped", "job_id", job.ID, "updated_at", job.UpdatedAt.Time)
	default:
		metrics.UpsertsApplied.Inc()
		if len(result.Anomalies) > 0 {
			s.flag(job.ID, result.Anomalies)
		}
	}

	return result, nil
}

// ReplaceHistory overwrites the history collection and evicts cached file
// listings whose entry is no longer present.
func (s *Store) ReplaceHistory(ctx context.Context, entries []domain.HistoryEntry) error {
	var evicted int
	err := s.exec(ctx, func(st *state) bool {
		evicted = st.replaceHistory(entries)
		return true
	})
	if err != nil {
		return fmt.Errorf("replace history: %w", err)
	}

	s.logger.Debug("history replaced", "entries_count", len(entries), "listings_evicted", evicted)
	return nil
}

// SetFileListing caches files for a history entry. It reports false and
// stores nothing when jobID is not currently in history.
func (s *Store) SetFileListing(ctx context.Context, jobID string, files []domain.FileDescriptor) (bool, error) {
	var attached bool
	err := s.exec(ctx, func(st *state) bool {
		attached = st.setFileListing(jobID, files)
		return attached
	})
	if err != nil {
		return false, fmt.Errorf("set file listing %s: %w", jobID, err)
	}
	return attached, nil
}

// SetListView switches between the queue and history views.
func (s *Store) SetListView(ctx context.Context, view domain.ListView) error {
	if !view.IsValid() {
		return fmt.Errorf("set list view: %w: unknown view %q", errpkg.ErrValidation, view)
	}

	err := s.exec(ctx, func(st *state) bool {
		if st.view == view {
			return false
		}
		st.view = view
		return true
	})
	if err != nil {
		return fmt.Errorf("set list view: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() domain.Snapshot {
	return s.snap.Load().Clone()
}

// Job returns the stored record for id.
func (s *Store) Job(id string) (domain.Job, bool) {
	snap := s.snap.Load()
	for _, job := range snap.Jobs {
		if job.ID == id {
			return job.Clone(), true
		}
	}
	return domain.Job{}, false
}

// InHistory reports whether id is present in the history collection.
func (s *Store) InHistory(id string) bool {
	snap := s.snap.Load()
	return slices.ContainsFunc(snap.History, func(e domain.HistoryEntry) bool {
		return e.JobID == id
	})
}

// FileListing returns the cached listing for a history entry.
func (s *Store) FileListing(id string) ([]domain.FileDescriptor, bool) {
	files, ok := s.snap.Load().FileListings[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(files), true
}

func (s *Store) flag(id string, notes []string) {
	metrics.InvariantViolations.Add(float64(len(notes)))
	s.logger.Warn("job record violates invariants", "job_id", id, "violations", notes)
}
