package timestamps

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process FIFO Queue.
type MemoryQueue struct {
	signal chan struct{}
	items  []string
	mu     sync.Mutex
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{signal: make(chan struct{}, 1)}
}

// Push appends ids to the queue. Empty ids are ignored.
func (q *MemoryQueue) Push(_ context.Context, ids ...string) (int, error) {
	q.mu.Lock()
	n := 0
	for _, id := range ids {
		if id == "" {
			continue
		}
		q.items = append(q.items, id)
		n++
	}
	q.mu.Unlock()

	if n > 0 {
		q.notify()
	}
	return n, nil
}

// Pop removes the oldest id, waiting up to timeout for one to arrive.
func (q *MemoryQueue) Pop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			id := q.items[0]
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.notify()
			}
			return id, true, nil
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-timer.C:
			return "", false, nil
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
}

// Len returns the number of queued ids.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *MemoryQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
