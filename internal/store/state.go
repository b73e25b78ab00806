package store

import (
	"fmt"
	"maps"
	"slices"

	"github.com/veranemoloko/download-panel/internal/domain"
)

// state is owned by the event loop. Nothing outside eventLoop touches it.
type state struct {
	jobs      map[string]domain.Job
	history   []domain.HistoryEntry
	listings  map[string][]domain.FileDescriptor
	view      domain.ListView
	anomalies map[string][]string
}

func newState(initial domain.Snapshot) *state {
	st := &state{
		jobs:      make(map[string]domain.Job, len(initial.Jobs)),
		listings:  make(map[string][]domain.FileDescriptor),
		view:      initial.ListView,
		anomalies: make(map[string][]string),
	}
	if !st.view.IsValid() {
		st.view = domain.ListViewQueue
	}

	st.replaceJobs(initial.Jobs)
	st.replaceHistory(initial.History)
	for id, files := range initial.FileListings {
		st.setFileListing(id, files)
	}

	return st
}

func (st *state) snapshot() domain.Snapshot {
	jobs := make([]domain.Job, 0, len(st.jobs))
	for _, job := range st.jobs {
		jobs = append(jobs, job.Clone())
	}
	domain.SortJobs(jobs)

	history := slices.Clone(st.history)
	if history == nil {
		history = []domain.HistoryEntry{}
	}

	listings := make(map[string][]domain.FileDescriptor, len(st.listings))
	for id, files := range st.listings {
		listings[id] = slices.Clone(files)
	}

	anomalies := make(map[string][]string, len(st.anomalies))
	for id, notes := range st.anomalies {
		anomalies[id] = slices.Clone(notes)
	}

	return domain.Snapshot{
		Jobs:         jobs,
		History:      history,
		FileListings: listings,
		ListView:     st.view,
		Anomalies:    anomalies,
	}
}

// replaceJobs overwrites the collection. When the snapshot carries the same id
// more than once the record with the newest updated_at is kept. It returns the
// number of duplicates dropped and the anomalies that are new since the
// previous collection.
func (st *state) replaceJobs(jobs []domain.Job) (int, map[string][]string) {
	next := make(map[string]domain.Job, len(jobs))
	dropped := 0
	for _, job := range jobs {
		if job.ID == "" {
			dropped++
			continue
		}
		if cur, ok := next[job.ID]; ok {
			dropped++
			if job.UpdatedAt.Before(cur.UpdatedAt.Time) {
				continue
			}
		}
		next[job.ID] = job.Clone()
	}

	anomalies := make(map[string][]string)
	flagged := make(map[string][]string)
	for id, job := range next {
		notes := job.CheckInvariants()
		if len(notes) == 0 {
			continue
		}
		anomalies[id] = notes

		prev, existed := st.jobs[id]
		if existed && prev.UpdatedAt.Equal(job.UpdatedAt.Time) && slices.Equal(st.anomalies[id], notes) {
			continue
		}
		flagged[id] = notes
	}

	st.jobs = next
	st.anomalies = anomalies

	return dropped, flagged
}

func (st *state) upsertJob(job domain.Job) UpsertResult {
	cur, exists := st.jobs[job.ID]
	if exists && job.UpdatedAt.Before(cur.UpdatedAt.Time) {
		return UpsertResult{Outcome: OutcomeStale, PreviousStatus: cur.Status}
	}

	result := UpsertResult{Outcome: OutcomeInserted}
	if exists {
		result.Outcome = OutcomeUpdated
		result.PreviousStatus = cur.Status
	}
	result.BecameTerminal = job.Status.IsTerminal() && (!exists || !cur.Status.IsTerminal())

	notes := job.CheckInvariants()
	if exists && cur.Status.IsKnown() && job.Status.IsKnown() && !domain.CanTransition(cur.Status, job.Status) {
		notes = append(notes, fmt.Sprintf("status regressed from %s to %s", cur.Status, job.Status))
	}
	result.Anomalies = notes

	st.jobs[job.ID] = job.Clone()
	if len(notes) > 0 {
		st.anomalies[job.ID] = slices.Clone(notes)
	} else {
		delete(st.anomalies, job.ID)
	}

	return result
}

// replaceHistory overwrites history and evicts listings for ids that are gone.
// It returns the number of evicted listings.
func (st *state) replaceHistory(entries []domain.HistoryEntry) int {
	history := slices.Clone(entries)
	domain.SortHistory(history)
	st.history = history

	present := make(map[string]struct{}, len(history))
	for _, e := range history {
		present[e.JobID] = struct{}{}
	}

	before := len(st.listings)
	maps.DeleteFunc(st.listings, func(id string, _ []domain.FileDescriptor) bool {
		_, ok := present[id]
		return !ok
	})

	return before - len(st.listings)
}

func (st *state) setFileListing(jobID string, files []domain.FileDescriptor) bool {
	if !slices.ContainsFunc(st.history, func(e domain.HistoryEntry) bool {
		return e.JobID == jobID
	}) {
		return false
	}

	listing := slices.Clone(files)
	if listing == nil {
		listing = []domain.FileDescriptor{}
	}
	st.listings[jobID] = listing
	return true
}
