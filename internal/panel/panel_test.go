package panel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/download-panel/internal/config"
	"github.com/veranemoloko/download-panel/internal/domain"
	"github.com/veranemoloko/download-panel/internal/repository"
	"github.com/veranemoloko/download-panel/internal/subscriber"
)

var t0 = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeBackend struct {
	mu      sync.Mutex
	jobs    []domain.Job
	history []domain.HistoryEntry

	jobsCalls    atomic.Int32
	historyCalls atomic.Int32
}

func (b *fakeBackend) setHistory(entries ...domain.HistoryEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = entries
}

func (b *fakeBackend) ListJobs(ctx context.Context) ([]domain.Job, error) {
	b.jobsCalls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Job(nil), b.jobs...), nil
}

func (b *fakeBackend) ListHistory(ctx context.Context) ([]domain.HistoryEntry, error) {
	b.historyCalls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.HistoryEntry(nil), b.history...), nil
}

func (b *fakeBackend) JobFiles(ctx context.Context, jobID string) ([]domain.FileDescriptor, error) {
	return nil, nil
}

func (b *fakeBackend) CreateJob(ctx context.Context, req domain.CreateJobRequest) (domain.Job, error) {
	return domain.Job{}, nil
}

func (b *fakeBackend) CancelJob(ctx context.Context, jobID string) error { return nil }

func (b *fakeBackend) GetSettings(ctx context.Context) (domain.AppSettings, error) {
	return domain.AppSettings{}, nil
}

func (b *fakeBackend) UpdateSettings(ctx context.Context, s domain.AppSettings) (domain.AppSettings, error) {
	return s, nil
}

func (b *fakeBackend) Providers(ctx context.Context) (domain.ProvidersResponse, error) {
	return domain.ProvidersResponse{}, nil
}

type pipeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *pipeConn) Receive() ([]byte, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-c.closed:
		return nil, net.ErrClosed
	}
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) send(id string, status domain.JobStatus, updated time.Duration) {
	c.frames <- []byte(fmt.Sprintf(
		`{"id":%q,"status":%q,"created_at":%q,"updated_at":%q}`,
		id, status, t0.Format(time.RFC3339), t0.Add(updated).Format(time.RFC3339),
	))
}

// dialer hands out the given connections in order, then blocks.
func dialer(conns ...*pipeConn) subscriber.DialFunc {
	var n atomic.Int32
	return func(ctx context.Context) (subscriber.Conn, error) {
		i := int(n.Add(1)) - 1
		if i >= len(conns) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return conns[i], nil
	}
}

func testConfig() *config.Config {
	return &config.Config{
		QueuePollInterval:   time.Hour,
		HistoryPollInterval: time.Hour,
		ReconnectMin:        time.Millisecond,
		ReconnectMax:        5 * time.Millisecond,
		EventBuffer:         8,
	}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPanel_StartRefreshesAndAppliesLiveEvents(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{jobs: []domain.Job{{
		ID:        "a",
		Status:    domain.JobStatusPending,
		CreatedAt: domain.NewTimestamp(t0),
		UpdatedAt: domain.NewTimestamp(t0),
	}}}
	conn := newPipeConn()

	p := New(ctx, testConfig(), backend, dialer(conn), nil, newTestLogger())
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Dispose(ctx) })

	job, ok := p.Store().Job("a")
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, int32(1), backend.historyCalls.Load())

	conn.send("a", domain.JobStatusRunning, time.Second)
	conn.send("a", domain.JobStatusPending, -time.Second)

	require.Eventually(t, func() bool {
		job, _ := p.Store().Job("a")
		return job.Status == domain.JobStatusRunning
	}, time.Second, 5*time.Millisecond)

	backend.setHistory(domain.HistoryEntry{JobID: "a", Status: domain.JobStatusCompleted, CreatedAt: domain.NewTimestamp(t0)})
	conn.send("a", domain.JobStatusCompleted, 2*time.Second)

	require.Eventually(t, func() bool { return p.Store().InHistory("a") }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, backend.historyCalls.Load(), int32(2))

	job, _ = p.Store().Job("a")
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
}

func TestPanel_ReconnectRefreshesQueue(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	first := newPipeConn()
	close(first.frames)
	second := newPipeConn()

	p := New(ctx, testConfig(), backend, dialer(first, second), nil, newTestLogger())
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Dispose(ctx) })

	require.Eventually(t, func() bool { return backend.jobsCalls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestPanel_WarmStartAndDisposeSaves(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSnapshotStorage(filepath.Join(t.TempDir(), "panel.json"))

	saved := domain.Snapshot{
		Jobs: []domain.Job{{
			ID:        "warm",
			Status:    domain.JobStatusRunning,
			CreatedAt: domain.NewTimestamp(t0),
			UpdatedAt: domain.NewTimestamp(t0),
		}},
		ListView: domain.ListViewHistory,
	}
	require.NoError(t, repo.Save(ctx, saved))

	p := New(ctx, testConfig(), &fakeBackend{}, dialer(), repo, newTestLogger())
	_, ok := p.Store().Job("warm")
	assert.True(t, ok)
	assert.Equal(t, domain.ListViewHistory, p.Store().Snapshot().ListView)

	require.NoError(t, p.Start(ctx))
	assert.Empty(t, p.Store().Snapshot().Jobs)

	require.NoError(t, p.Dispose(ctx))
	require.NoError(t, p.Dispose(ctx))
	assert.Error(t, p.Start(ctx))

	reloaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Jobs)
	assert.Equal(t, domain.ListViewHistory, reloaded.ListView)
}

func TestPanel_StartTwice(t *testing.T) {
	ctx := context.Background()
	p := New(ctx, testConfig(), &fakeBackend{}, dialer(), nil, newTestLogger())
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Dispose(ctx) })

	assert.Error(t, p.Start(ctx))
}
