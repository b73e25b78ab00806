// Package subscriber keeps the live progress channel open and turns its frames
// into job snapshots delivered on a bounded channel.
package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/veranemoloko/download-panel/internal/domain"
	errpkg "github.com/veranemoloko/download-panel/internal/errors"
	"github.com/veranemoloko/download-panel/internal/metrics"
)

const (
	defaultBuffer     = 64
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// Conn is one open live channel connection. Close must unblock Receive.
type Conn interface {
	Receive() ([]byte, error)
	Close() error
}

// DialFunc opens a new live channel connection.
type DialFunc func(ctx context.Context) (Conn, error)

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithBuffer sets the capacity of the delivery channel.
func WithBuffer(n int) Option {
	return func(s *Subscriber) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// WithBackoff sets the reconnect backoff bounds.
func WithBackoff(minWait, maxWait time.Duration) Option {
	return func(s *Subscriber) {
		if minWait > 0 && maxWait >= minWait {
			s.minBackoff = minWait
			s.maxBackoff = maxWait
		}
	}
}

// WithOnReconnect registers fn to run after every successful re-dial. It is
// not called for the first connection. fn runs on the reader goroutine and
// must not block.
func WithOnReconnect(fn func()) Option {
	return func(s *Subscriber) {
		s.onReconnect = fn
	}
}

// Subscriber owns at most one live channel at a time.
type Subscriber struct {
	dial        DialFunc
	buffer      int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	onReconnect func()
	logger      *slog.Logger

	mu     sync.Mutex
	active bool
}

// New creates a Subscriber that opens connections with dial.
func New(dial DialFunc, logger *slog.Logger, opts ...Option) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Subscriber{
		dial:       dial,
		buffer:     defaultBuffer,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		logger:     logger.With("component", "subscriber"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe starts delivering job snapshots. The channel is closed after the
// returned unsubscribe func is called or ctx is done; unsubscribe may be
// called more than once. Dial failures are not returned: the subscriber keeps
// retrying with backoff until it connects. Only one subscription may be
// active at a time.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan domain.Job, func(), error) {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil, nil, errpkg.ErrAlreadySubscribed
	}
	s.active = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan domain.Job, s.buffer)
	done := make(chan struct{})
	session := uuid.NewString()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.active = false
			s.mu.Unlock()
		}()
		defer close(out)

		s.run(ctx, out, s.logger.With("session_id", session))
	}()

	unsubscribe := func() {
		cancel()
		<-done
	}
	return out, unsubscribe, nil
}

func (s *Subscriber) run(ctx context.Context, out chan<- domain.Job, logger *slog.Logger) {
	attempt := 0
	connected := false

	for {
		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := retryablehttp.DefaultBackoff(s.minBackoff, s.maxBackoff, attempt, nil)
			attempt++
			logger.Warn("live channel dial failed", "attempt", attempt, "retry_in", wait, "error", err)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		attempt = 0
		if connected {
			metrics.LiveReconnects.Inc()
			logger.Info("live channel reconnected")
			if s.onReconnect != nil {
				s.onReconnect()
			}
		} else {
			logger.Info("live channel connected")
		}
		connected = true

		err = s.read(ctx, conn, out, logger)
		if ctx.Err() != nil {
			logger.Info("live channel closed")
			return
		}

		wait := retryablehttp.DefaultBackoff(s.minBackoff, s.maxBackoff, 0, nil)
		logger.Warn("live channel dropped", "retry_in", wait, "error", err)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// read pumps frames from conn until it fails or ctx is done. The send to out
// blocks while the buffer is full, which holds back the connection.
func (s *Subscriber) read(ctx context.Context, conn Conn, out chan<- domain.Job, logger *slog.Logger) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer func() {
		if stop() {
			_ = conn.Close()
		}
	}()

	for {
		data, err := conn.Receive()
		if err != nil {
			return err
		}

		job, err := decode(data)
		if err != nil {
			metrics.LiveMalformed.Inc()
			logger.Warn("dropping malformed live payload", "bytes", len(data), "error", err)
			continue
		}
		metrics.LiveEvents.Inc()

		select {
		case out <- job:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func decode(data []byte) (domain.Job, error) {
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return domain.Job{}, fmt.Errorf("%w: %w", errpkg.ErrMalformedPayload, err)
	}
	if job.ID == "" {
		return domain.Job{}, fmt.Errorf("%w: missing job id", errpkg.ErrMalformedPayload)
	}
	if !job.Status.IsKnown() {
		return domain.Job{}, fmt.Errorf("%w: unknown status %q", errpkg.ErrMalformedPayload, job.Status)
	}
	return job, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
