package timestamps

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Durable is a shared store for signature times that outlives the process.
type Durable interface {
	GetSignature(ctx context.Context, id string) (time.Time, bool, error)
	SetSignature(ctx context.Context, id string, t time.Time) error
}

// Queue is a work queue of document ids waiting for a signature refresh.
type Queue interface {
	Push(ctx context.Context, ids ...string) (int, error)
	// Pop blocks for at most timeout. ok is false when nothing arrived in time.
	Pop(ctx context.Context, timeout time.Duration) (id string, ok bool, err error)
}

// Store is a read-through cache of signature times in front of an optional Durable store.
// It is created at process start and lives as long as the process.
type Store struct {
	durable Durable
	queue   Queue
	logger  *slog.Logger
	mem     map[string]time.Time
	mu      sync.RWMutex
}

// New creates a signature store. durable and queue may be nil.
func New(durable Durable, queue Queue, logger *slog.Logger) *Store {
	return &Store{
		durable: durable,
		queue:   queue,
		logger:  logger,
		mem:     make(map[string]time.Time),
	}
}

// Get returns the known signature time for id.
func (s *Store) Get(ctx context.Context, id string) (time.Time, bool) {
	if id == "" {
		return time.Time{}, false
	}

	s.mu.RLock()
	t, ok := s.mem[id]
	s.mu.RUnlock()
	if ok {
		return t, true
	}

	if s.durable == nil {
		return time.Time{}, false
	}

	t, ok, err := s.durable.GetSignature(ctx, id)
	if err != nil {
		s.logger.Warn("Durable signature read failed", "uuid", id, "error", err)
		return time.Time{}, false
	}
	if !ok {
		return time.Time{}, false
	}

	s.mu.Lock()
	s.mem[id] = t
	s.mu.Unlock()
	return t, true
}

// Set records t as the signature time for id. The in-process value always wins
// for this process, even when the durable write fails.
func (s *Store) Set(ctx context.Context, id string, t time.Time) {
	if id == "" || t.IsZero() {
		return
	}

	s.mu.Lock()
	s.mem[id] = t
	s.mu.Unlock()

	if s.durable == nil {
		return
	}
	if err := s.durable.SetSignature(ctx, id, t); err != nil {
		s.logger.Warn("Durable signature write failed", "uuid", id, "error", err)
	}
}

// EnqueueRefresh pushes ids onto the refresh queue and reports how many were queued.
func (s *Store) EnqueueRefresh(ctx context.Context, ids []string) int {
	if s.queue == nil || len(ids) == 0 {
		return 0
	}
	n, err := s.queue.Push(ctx, ids...)
	if err != nil {
		s.logger.Warn("Refresh enqueue failed", "count", len(ids), "error", err)
		return 0
	}
	s.logger.Info("Refresh enqueued", "count", n)
	return n
}

// Queue returns the configured work queue, or nil.
func (s *Store) Queue() Queue {
	return s.queue
}
