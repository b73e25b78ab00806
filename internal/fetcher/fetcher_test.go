package fetcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/download-panel/internal/domain"
	errpkg "github.com/veranemoloko/download-panel/internal/errors"
	"github.com/veranemoloko/download-panel/internal/store"
)

type fakeSource struct {
	listJobs    func(ctx context.Context) ([]domain.Job, error)
	listHistory func(ctx context.Context) ([]domain.HistoryEntry, error)
	jobFiles    func(ctx context.Context, jobID string) ([]domain.FileDescriptor, error)
	filesCalls  atomic.Int32
}

func (f *fakeSource) ListJobs(ctx context.Context) ([]domain.Job, error) {
	return f.listJobs(ctx)
}

func (f *fakeSource) ListHistory(ctx context.Context) ([]domain.HistoryEntry, error) {
	return f.listHistory(ctx)
}

func (f *fakeSource) JobFiles(ctx context.Context, jobID string) ([]domain.FileDescriptor, error) {
	f.filesCalls.Add(1)
	return f.jobFiles(ctx, jobID)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(domain.Snapshot{}, newTestLogger())
	t.Cleanup(st.Close)
	return st
}

func testJob(id string) domain.Job {
	now := domain.NewTimestamp(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	return domain.Job{ID: id, Status: domain.JobStatusRunning, CreatedAt: now, UpdatedAt: now}
}

func TestFetcher_RefreshQueue(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{listJobs: func(ctx context.Context) ([]domain.Job, error) {
		return []domain.Job{testJob("a"), testJob("b")}, nil
	}}
	f := New(src, st, newTestLogger())

	require.NoError(t, f.RefreshQueue(context.Background()))
	assert.Len(t, st.Snapshot().Jobs, 2)
}

func TestFetcher_FailedRefreshLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.ReplaceJobs(ctx, []domain.Job{testJob("a")}))
	require.NoError(t, st.ReplaceHistory(ctx, []domain.HistoryEntry{{JobID: "h1"}}))

	boom := &errpkg.TransportError{Op: "list jobs", StatusCode: 500}
	src := &fakeSource{
		listJobs: func(ctx context.Context) ([]domain.Job, error) { return nil, boom },
		listHistory: func(ctx context.Context) ([]domain.HistoryEntry, error) {
			return nil, errors.New("connection reset")
		},
	}
	f := New(src, st, newTestLogger())

	err := f.RefreshQueue(ctx)
	var te *errpkg.TransportError
	assert.ErrorAs(t, err, &te)
	assert.Error(t, f.RefreshHistory(ctx))

	snap := st.Snapshot()
	assert.Len(t, snap.Jobs, 1)
	assert.Len(t, snap.History, 1)
}

func TestFetcher_LastCompletedRefreshWins(t *testing.T) {
	st := newTestStore(t)

	releaseSlow := make(chan struct{})
	var calls atomic.Int32
	src := &fakeSource{listJobs: func(ctx context.Context) ([]domain.Job, error) {
		if calls.Add(1) == 1 {
			<-releaseSlow
			return []domain.Job{testJob("slow")}, nil
		}
		return []domain.Job{testJob("fast")}, nil
	}}
	f := New(src, st, newTestLogger())

	slowDone := make(chan error, 1)
	go func() { slowDone <- f.RefreshQueue(context.Background()) }()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, f.RefreshQueue(context.Background()))
	close(releaseSlow)
	require.NoError(t, <-slowDone)

	jobs := st.Snapshot().Jobs
	require.Len(t, jobs, 1)
	assert.Equal(t, "slow", jobs[0].ID)
}

func TestFetcher_RefreshAllReportsEachFailure(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{
		listJobs: func(ctx context.Context) ([]domain.Job, error) {
			return []domain.Job{testJob("a")}, nil
		},
		listHistory: func(ctx context.Context) ([]domain.HistoryEntry, error) {
			return nil, errors.New("history down")
		},
	}
	f := New(src, st, newTestLogger())

	err := f.RefreshAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh history")
	assert.Len(t, st.Snapshot().Jobs, 1)
}

func TestFetcher_LoadFileListing(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.ReplaceHistory(ctx, []domain.HistoryEntry{{JobID: "h1"}}))

	src := &fakeSource{jobFiles: func(ctx context.Context, jobID string) ([]domain.FileDescriptor, error) {
		return []domain.FileDescriptor{{Path: jobID + "/01.flac", Size: 10}}, nil
	}}
	f := New(src, st, newTestLogger())

	files, err := f.LoadFileListing(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, files, 1)

	_, err = f.LoadFileListing(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.filesCalls.Load())

	cached, ok := st.FileListing("h1")
	assert.True(t, ok)
	assert.Equal(t, files, cached)
}

func TestFetcher_LoadFileListingOutsideHistory(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{}
	f := New(src, st, newTestLogger())

	_, err := f.LoadFileListing(context.Background(), "unknown")
	assert.ErrorIs(t, err, errpkg.ErrNotInHistory)
	assert.Zero(t, src.filesCalls.Load())
}

func TestFetcher_LoadFileListingFailureCachesNothing(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.ReplaceHistory(ctx, []domain.HistoryEntry{{JobID: "h1"}}))

	src := &fakeSource{jobFiles: func(ctx context.Context, jobID string) ([]domain.FileDescriptor, error) {
		return nil, &errpkg.TransportError{Op: "list job files", StatusCode: 404}
	}}
	f := New(src, st, newTestLogger())

	_, err := f.LoadFileListing(ctx, "h1")
	assert.True(t, errpkg.IsNotFound(err))
	_, ok := st.FileListing("h1")
	assert.False(t, ok)
}
