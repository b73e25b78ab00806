// Package panel wires the store to its producers and owns their lifecycle.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/veranemoloko/download-panel/internal/client"
	"github.com/veranemoloko/download-panel/internal/config"
	"github.com/veranemoloko/download-panel/internal/domain"
	errpkg "github.com/veranemoloko/download-panel/internal/errors"
	"github.com/veranemoloko/download-panel/internal/fetcher"
	"github.com/veranemoloko/download-panel/internal/gateway"
	"github.com/veranemoloko/download-panel/internal/repository"
	"github.com/veranemoloko/download-panel/internal/store"
	"github.com/veranemoloko/download-panel/internal/subscriber"
	"github.com/veranemoloko/download-panel/internal/worker"
)

// Backend is everything the panel needs from the REST side of the backend.
type Backend interface {
	fetcher.Source
	gateway.Backend
}

// LiveDialer adapts the client's websocket dial to the subscriber.
func LiveDialer(c *client.Client) subscriber.DialFunc {
	return func(ctx context.Context) (subscriber.Conn, error) {
		conn, err := c.DialLive(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Panel is one explicitly constructed instance of the synchronisation core.
type Panel struct {
	store      *store.Store
	fetcher    *fetcher.Fetcher
	gateway    *gateway.Gateway
	subscriber *subscriber.Subscriber
	poller     *worker.Poller
	repo       repository.SnapshotRepo
	logger     *slog.Logger

	queueKick   chan struct{}
	historyKick chan struct{}

	mu          sync.Mutex
	started     bool
	disposed    bool
	cancel      context.CancelFunc
	unsubscribe func()
	group       *errgroup.Group
}

// New builds a panel. When repo holds a saved snapshot it becomes the store's
// initial state; a snapshot that cannot be read is logged and ignored.
func New(ctx context.Context, cfg *config.Config, backend Backend, dial subscriber.DialFunc, repo repository.SnapshotRepo, logger *slog.Logger) *Panel {
	if logger == nil {
		logger = slog.Default()
	}

	var initial domain.Snapshot
	if repo != nil {
		snap, err := repo.Load(ctx)
		if err != nil {
			logger.Warn("ignoring unreadable saved state", "error", err)
		} else {
			initial = snap
		}
	}

	p := &Panel{
		store:       store.New(initial, logger),
		repo:        repo,
		logger:      logger.With("component", "panel"),
		queueKick:   make(chan struct{}, 1),
		historyKick: make(chan struct{}, 1),
	}
	p.fetcher = fetcher.New(backend, p.store, logger)
	p.gateway = gateway.New(backend, p.store, p.fetcher, logger)
	p.poller = worker.NewPoller(p.fetcher, cfg.QueuePollInterval, cfg.HistoryPollInterval, logger)
	p.subscriber = subscriber.New(dial, logger,
		subscriber.WithBuffer(cfg.EventBuffer),
		subscriber.WithBackoff(cfg.ReconnectMin, cfg.ReconnectMax),
		subscriber.WithOnReconnect(func() { kick(p.queueKick) }),
	)

	return p
}

// Store returns the panel's store.
func (p *Panel) Store() *store.Store { return p.store }

// Fetcher returns the panel's fetcher.
func (p *Panel) Fetcher() *fetcher.Fetcher { return p.fetcher }

// Gateway returns the panel's command gateway.
func (p *Panel) Gateway() *gateway.Gateway { return p.gateway }

// Start performs an initial refresh, opens the live channel and starts
// polling. A failed initial refresh is logged; polling retries it.
func (p *Panel) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return errpkg.ErrStoreClosed
	}
	if p.started {
		return errors.New("panel already started")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	if err := p.fetcher.RefreshAll(runCtx); err != nil {
		p.logger.Warn("initial refresh failed", "error", err)
	}

	events, unsubscribe, err := p.subscriber.Subscribe(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("start panel: %w", err)
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		p.pump(gctx, events)
		return nil
	})
	g.Go(func() error {
		p.refreshLoop(gctx)
		return nil
	})
	g.Go(func() error {
		return p.poller.Run(gctx)
	})

	p.started = true
	p.cancel = cancel
	p.unsubscribe = unsubscribe
	p.group = g

	p.logger.Info("panel started")
	return nil
}

// Dispose stops every background goroutine, saves the final snapshot and
// closes the store. It is safe to call more than once.
func (p *Panel) Dispose(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return nil
	}
	p.disposed = true

	if p.started {
		p.cancel()
		p.unsubscribe()
		if err := p.group.Wait(); err != nil {
			p.logger.Warn("background task ended with error", "error", err)
		}
	}

	var saveErr error
	if p.repo != nil {
		if err := p.repo.Save(ctx, p.store.Snapshot()); err != nil {
			saveErr = fmt.Errorf("save state: %w", err)
		}
	}

	p.store.Close()
	p.logger.Info("panel disposed")
	return saveErr
}

// pump applies live events to the store in arrival order.
func (p *Panel) pump(ctx context.Context, events <-chan domain.Job) {
	for job := range events {
		result, err := p.store.UpsertJob(ctx, job)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Error("failed to apply live event", "job_id", job.ID, "error", err)
			}
			continue
		}
		if result.BecameTerminal {
			p.logger.Debug("job reached terminal state", "job_id", job.ID, "status", job.Status)
			kick(p.historyKick)
		}
	}
}

func (p *Panel) refreshLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.historyKick:
			if err := p.fetcher.RefreshHistory(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("history refresh after terminal event failed", "error", err)
			}
		case <-p.queueKick:
			if err := p.fetcher.RefreshQueue(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("queue refresh after reconnect failed", "error", err)
			}
		}
	}
}

// kick requests a refresh without blocking. Requests made while one is
// already pending coalesce.
func kick(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
