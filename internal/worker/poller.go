package worker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Refresher is the pair of collection refreshes the poller drives.
type Refresher interface {
	RefreshQueue(ctx context.Context) error
	RefreshHistory(ctx context.Context) error
}

// Poller re-runs the queue and history refreshes on independent intervals.
// It backstops push events that were lost across reconnects.
type Poller struct {
	refresher    Refresher
	queueEvery   time.Duration
	historyEvery time.Duration
	logger       *slog.Logger
}

// NewPoller creates a Poller. Both intervals must be positive.
func NewPoller(refresher Refresher, queueEvery, historyEvery time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		refresher:    refresher,
		queueEvery:   queueEvery,
		historyEvery: historyEvery,
		logger:       logger.With("component", "poller"),
	}
}

// Run blocks until ctx is cancelled. Failed ticks are logged and the loop
// carries on.
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p.loop(ctx, "queue", p.queueEvery, p.refresher.RefreshQueue)
		return nil
	})
	g.Go(func() error {
		p.loop(ctx, "history", p.historyEvery, p.refresher.RefreshHistory)
		return nil
	})

	p.logger.Info("poller started", "queue_interval", p.queueEvery, "history_interval", p.historyEvery)
	err := g.Wait()
	p.logger.Info("poller stopped")
	return err
}

func (p *Poller) loop(ctx context.Context, name string, every time.Duration, refresh func(context.Context) error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := refresh(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("periodic refresh failed", "collection", name, "error", err)
			}
		}
	}
}
