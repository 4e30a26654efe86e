package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"signvault/timestamps"
)

const (
	defaultPopTimeout = 5 * time.Second
	defaultItemDelay  = 350 * time.Millisecond
	errorBackoff      = time.Second
)

// Worker drains the refresh queue for the lifetime of the process.
type Worker struct {
	queue      timestamps.Queue
	resolver   *Resolver
	signatures Signatures
	logger     *slog.Logger
	popTimeout time.Duration
	delay      time.Duration
}

// NewWorker creates a queue consumer.
func NewWorker(queue timestamps.Queue, resolver *Resolver, signatures Signatures, logger *slog.Logger) *Worker {
	return &Worker{
		queue:      queue,
		resolver:   resolver,
		signatures: signatures,
		logger:     logger,
		popTimeout: defaultPopTimeout,
		delay:      defaultItemDelay,
	}
}

// SetTiming overrides the pop timeout and the pause after each item.
func (w *Worker) SetTiming(popTimeout, delay time.Duration) {
	w.popTimeout = popTimeout
	w.delay = delay
}

// Run pops ids until ctx is cancelled. An empty queue or a failing pop is
// retried, never fatal.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Starting background refresh worker")
	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("Refresh worker stopped")
			return err
		}

		id, ok, err := w.queue.Pop(ctx, w.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("Refresh queue pop failed", "error", err)
			sleep(ctx, errorBackoff)
			continue
		}
		if !ok || id == "" {
			continue
		}

		w.process(ctx, id)
		sleep(ctx, w.delay)
	}
}

func (w *Worker) process(ctx context.Context, id string) {
	at, ok := w.resolver.Resolve(ctx, id, false)
	if !ok {
		w.logger.Info("Worker could not find signature", "uuid", id)
		return
	}
	w.signatures.Set(ctx, id, at)
	w.logger.Info("Worker refreshed signature", "uuid", id, "signed_at", at.Format(time.RFC3339))
}

// Enqueuer pushes ids onto the refresh queue.
type Enqueuer interface {
	EnqueueRefresh(ctx context.Context, ids []string) int
}

// Sweeper periodically queues every ledger id for refresh.
type Sweeper struct {
	ledger   Ledger
	enqueuer Enqueuer
	logger   *slog.Logger

	mu      sync.RWMutex
	lastRun time.Time
}

// NewSweeper creates a sweeper.
func NewSweeper(l Ledger, enqueuer Enqueuer, logger *slog.Logger) *Sweeper {
	return &Sweeper{ledger: l, enqueuer: enqueuer, logger: logger}
}

// Run sweeps once immediately and then every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep queues every ledger id and returns how many were queued.
func (s *Sweeper) Sweep(ctx context.Context) int {
	ids := s.ledger.IDs(ctx)
	n := 0
	if len(ids) > 0 {
		n = s.enqueuer.EnqueueRefresh(ctx, ids)
	}

	s.mu.Lock()
	s.lastRun = time.Now().UTC()
	s.mu.Unlock()

	s.logger.Info("Automatic refresh queued", "ids", len(ids), "enqueued", n)
	return n
}

// LastRun returns when the last sweep finished, zero if none has.
func (s *Sweeper) LastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
