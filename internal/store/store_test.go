package store

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veranemoloko/download-panel/internal/domain"
	errpkg "github.com/veranemoloko/download-panel/internal/errors"
)

var base = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func at(offset time.Duration) domain.Timestamp {
	return domain.NewTimestamp(base.Add(offset))
}

func job(id string, status domain.JobStatus, updated time.Duration) domain.Job {
	return domain.Job{
		ID:           id,
		Store:        "qobuz",
		SourceURL:    "https://open.example.com/playlist/" + id,
		PathTemplate: "{artist}/{album}",
		Status:       status,
		CreatedAt:    at(0),
		UpdatedAt:    at(updated),
	}
}

func newTestStore(t *testing.T, initial domain.Snapshot) *Store {
	t.Helper()
	s := New(initial, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(s.Close)
	return s
}

func ids(jobs []domain.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}

func TestStore_UpsertScenarios(t *testing.T) {
	tests := []struct {
		name        string
		second      time.Duration
		wantStatus  domain.JobStatus
		wantOutcome Outcome
	}{
		{name: "newer update applied", second: time.Second, wantStatus: domain.JobStatusRunning, wantOutcome: OutcomeUpdated},
		{name: "older update dropped", second: -time.Second, wantStatus: domain.JobStatusPending, wantOutcome: OutcomeStale},
		{name: "equal timestamp replaces", second: 0, wantStatus: domain.JobStatusRunning, wantOutcome: OutcomeUpdated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestStore(t, domain.Snapshot{})

			res, err := s.UpsertJob(ctx, job("a", domain.JobStatusPending, 0))
			require.NoError(t, err)
			assert.Equal(t, OutcomeInserted, res.Outcome)

			res, err = s.UpsertJob(ctx, job("a", domain.JobStatusRunning, tt.second))
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, res.Outcome)

			got, ok := s.Job("a")
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Len(t, s.Snapshot().Jobs, 1)
		})
	}
}

func TestStore_UpsertIsCommutativeByTimestamp(t *testing.T) {
	updates := []domain.Job{
		job("a", domain.JobStatusPending, 1*time.Second),
		job("a", domain.JobStatusRunning, 2*time.Second),
		job("a", domain.JobStatusRunning, 3*time.Second),
		job("a", domain.JobStatusCompleted, 4*time.Second),
	}
	updates[2].Progress = 0.5
	updates[3].Progress = 1

	orders := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{2, 0, 3, 1},
		{1, 3, 0, 2},
		{3, 0, 1, 2},
	}

	for _, order := range orders {
		s := newTestStore(t, domain.Snapshot{})
		for _, i := range order {
			_, err := s.UpsertJob(context.Background(), updates[i])
			require.NoError(t, err)
		}

		got, ok := s.Job("a")
		require.True(t, ok)
		assert.Equal(t, updates[3], got, "order %v", order)
	}
}

func TestStore_StaleUpsertDoesNotPublish(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, domain.Snapshot{})

	_, err := s.UpsertJob(ctx, job("a", domain.JobStatusRunning, time.Minute))
	require.NoError(t, err)
	before := s.snap.Load()

	res, err := s.UpsertJob(ctx, job("a", domain.JobStatusPending, 0))
	require.NoError(t, err)
	assert.False(t, res.Applied())
	assert.Equal(t, domain.JobStatusRunning, res.PreviousStatus)
	assert.Same(t, before, s.snap.Load())
}

func TestStore_UpsertRejectsEmptyID(t *testing.T) {
	s := newTestStore(t, domain.Snapshot{})

	_, err := s.UpsertJob(context.Background(), domain.Job{})
	assert.ErrorIs(t, err, errpkg.ErrValidation)
	assert.Empty(t, s.Snapshot().Jobs)
}

func TestStore_BecameTerminal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, domain.Snapshot{})

	res, err := s.UpsertJob(ctx, job("a", domain.JobStatusRunning, 0))
	require.NoError(t, err)
	assert.False(t, res.BecameTerminal)

	res, err = s.UpsertJob(ctx, job("a", domain.JobStatusCompleted, time.Second))
	require.NoError(t, err)
	assert.True(t, res.BecameTerminal)
	assert.Equal(t, domain.JobStatusRunning, res.PreviousStatus)

	res, err = s.UpsertJob(ctx, job("a", domain.JobStatusCompleted, 2*time.Second))
	require.NoError(t, err)
	assert.False(t, res.BecameTerminal)

	res, err = s.UpsertJob(ctx, job("b", domain.JobStatusFailed, 0))
	require.NoError(t, err)
	assert.True(t, res.BecameTerminal)
}

func TestStore_InvariantViolationAcceptedAndFlagged(t *testing.T) {
	s := newTestStore(t, domain.Snapshot{})

	bad := job("a", domain.JobStatusRunning, 0)
	bad.TotalTracks = 10
	bad.CompletedTracks = 7
	bad.FailedTracks = 4

	res, err := s.UpsertJob(context.Background(), bad)
	require.NoError(t, err)
	assert.True(t, res.Applied())
	assert.NotEmpty(t, res.Anomalies)

	got, ok := s.Job("a")
	require.True(t, ok)
	assert.Equal(t, 7, got.CompletedTracks)
	assert.Contains(t, s.Snapshot().Anomalies, "a")

	fixed := bad
	fixed.FailedTracks = 3
	fixed.UpdatedAt = at(time.Second)
	_, err = s.UpsertJob(context.Background(), fixed)
	require.NoError(t, err)
	assert.NotContains(t, s.Snapshot().Anomalies, "a")
}

func TestStore_StatusRegressionIsFlagged(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, domain.Snapshot{})

	_, err := s.UpsertJob(ctx, job("a", domain.JobStatusCompleted, 0))
	require.NoError(t, err)

	res, err := s.UpsertJob(ctx, job("a", domain.JobStatusRunning, time.Second))
	require.NoError(t, err)
	assert.True(t, res.Applied())
	require.Len(t, res.Anomalies, 1)
	assert.Contains(t, res.Anomalies[0], "regressed")
}

func TestStore_ReplaceJobsExactAndIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, domain.Snapshot{})

	_, err := s.UpsertJob(ctx, job("stale", domain.JobStatusRunning, time.Hour))
	require.NoError(t, err)

	older := job("x", domain.JobStatusPending, 0)
	older.CreatedAt = at(-time.Hour)
	tieB := job("b", domain.JobStatusRunning, 0)
	tieA := job("a", domain.JobStatusRunning, 0)
	snapshot := []domain.Job{older, tieB, tieA}

	for range 2 {
		require.NoError(t, s.ReplaceJobs(ctx, snapshot))
		got := s.Snapshot().Jobs
		assert.Equal(t, []string{"a", "b", "x"}, ids(got))
		assert.Equal(t, tieA, got[0])
	}
}

func TestStore_ReplaceJobsCollapsesDuplicates(t *testing.T) {
	s := newTestStore(t, domain.Snapshot{})

	require.NoError(t, s.ReplaceJobs(context.Background(), []domain.Job{
		job("a", domain.JobStatusRunning, 2*time.Second),
		job("a", domain.JobStatusPending, time.Second),
	}))

	got := s.Snapshot().Jobs
	require.Len(t, got, 1)
	assert.Equal(t, domain.JobStatusRunning, got[0].Status)
}

func TestStore_ReplaceJobsDoesNotAliasInput(t *testing.T) {
	s := newTestStore(t, domain.Snapshot{})

	in := job("a", domain.JobStatusRunning, 0)
	in.Logs = []string{"resolving"}
	snapshot := []domain.Job{in}
	require.NoError(t, s.ReplaceJobs(context.Background(), snapshot))

	snapshot[0].Logs[0] = "mutated"
	got, _ := s.Job("a")
	assert.Equal(t, []string{"resolving"}, got.Logs)
}

func history(jobIDs ...string) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, len(jobIDs))
	for i, id := range jobIDs {
		out[i] = domain.HistoryEntry{
			JobID:     id,
			Playlist:  "playlist " + id,
			Status:    domain.JobStatusCompleted,
			CreatedAt: at(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestStore_ReplaceHistoryPrunesListings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, domain.Snapshot{})

	require.NoError(t, s.ReplaceHistory(ctx, history("h1", "h2")))

	files := []domain.FileDescriptor{{Path: "a/01.flac", Size: 1024}}
	for _, id := range []string{"h1", "h2"} {
		ok, err := s.SetFileListing(ctx, id, files)
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, s.ReplaceHistory(ctx, history("h2", "h3")))

	snap := s.Snapshot()
	assert.NotContains(t, snap.FileListings, "h1")
	assert.Contains(t, snap.FileListings, "h2")
	assert.True(t, s.InHistory("h3"))
	assert.False(t, s.InHistory("h1"))
	assert.Equal(t, "h3", snap.History[0].JobID)
}

func TestStore_SetFileListingRequiresHistoryEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, domain.Snapshot{})

	ok, err := s.SetFileListing(ctx, "missing", []domain.FileDescriptor{{Path: "x"}})
	require.NoError(t, err)
	assert.False(t, ok)
	_, cached := s.FileListing("missing")
	assert.False(t, cached)

	require.NoError(t, s.ReplaceHistory(ctx, history("h1")))
	ok, err = s.SetFileListing(ctx, "h1", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	files, cached := s.FileListing("h1")
	assert.True(t, cached)
	assert.Empty(t, files)
}

func TestStore_SetListView(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, domain.Snapshot{})
	assert.Equal(t, domain.ListViewQueue, s.Snapshot().ListView)

	require.NoError(t, s.SetListView(ctx, domain.ListViewHistory))
	assert.Equal(t, domain.ListViewHistory, s.Snapshot().ListView)

	err := s.SetListView(ctx, domain.ListView("grid"))
	assert.ErrorIs(t, err, errpkg.ErrValidation)
}

func TestStore_InitialStateIsNormalised(t *testing.T) {
	s := newTestStore(t, domain.Snapshot{
		Jobs:    []domain.Job{job("b", domain.JobStatusRunning, 0), job("a", domain.JobStatusPending, 0)},
		History: history("h1"),
		FileListings: map[string][]domain.FileDescriptor{
			"h1":     {{Path: "kept"}},
			"orphan": {{Path: "dropped"}},
		},
	})

	snap := s.Snapshot()
	assert.Equal(t, []string{"a", "b"}, ids(snap.Jobs))
	assert.Contains(t, snap.FileListings, "h1")
	assert.NotContains(t, snap.FileListings, "orphan")
	assert.Equal(t, domain.ListViewQueue, snap.ListView)
}

func TestStore_InstancesAreIsolated(t *testing.T) {
	ctx := context.Background()
	a := newTestStore(t, domain.Snapshot{})
	b := newTestStore(t, domain.Snapshot{})

	_, err := a.UpsertJob(ctx, job("a", domain.JobStatusPending, 0))
	require.NoError(t, err)

	assert.Len(t, a.Snapshot().Jobs, 1)
	assert.Empty(t, b.Snapshot().Jobs)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, domain.Snapshot{})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpsertJob(ctx, job("a", domain.JobStatusRunning, time.Duration(i)*time.Second))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, ok := s.Job("a")
	require.True(t, ok)
	assert.True(t, got.UpdatedAt.Equal(base.Add(49*time.Second)))
}

func TestStore_Close(t *testing.T) {
	ctx := context.Background()
	s := New(domain.Snapshot{}, nil)

	_, err := s.UpsertJob(ctx, job("a", domain.JobStatusPending, 0))
	require.NoError(t, err)

	s.Close()
	s.Close()

	_, err = s.UpsertJob(ctx, job("b", domain.JobStatusPending, 0))
	assert.ErrorIs(t, err, errpkg.ErrStoreClosed)
	assert.ErrorIs(t, s.ReplaceJobs(ctx, nil), errpkg.ErrStoreClosed)

	_, ok := s.Job("a")
	assert.True(t, ok)
}
