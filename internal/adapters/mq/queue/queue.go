// Package queue holds the pending jobs of a batch.
//
// The in-memory implementation is a bounded FIFO over a buffered channel.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/matchbench/internal/domain/model"
	"github.com/okian/matchbench/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
)

// Queue provides non-blocking enqueue and both blocking and non-blocking dequeue.
type Queue interface {
	// Enqueue adds a job to the back of the queue.
	// Returns ErrFull when at capacity and ErrClosed after Close.
	Enqueue(ctx context.Context, j model.Job) error

	// TryDequeue returns the next job without blocking.
	TryDequeue() (model.Job, bool)

	// Dequeue blocks until a job is available. It returns ErrClosed once the
	// queue is closed and drained.
	Dequeue(ctx context.Context) (model.Job, error)

	// Len returns the current number of queued jobs.
	Len() int

	// Cap returns the maximum number of queued jobs.
	Cap() int

	// Close stops accepting jobs. Queued jobs can still be dequeued.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan model.Job
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan model.Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j model.Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}

	select {
	case q.jobs <- j:
		metrics.RecordJobQueued()
		metrics.UpdateQueueSize(len(q.jobs))
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return ctx.Err()
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return fmt.Errorf("%w: capacity %d", ErrFull, q.capacity)
	}
}

// TryDequeue returns the next job if one is queued.
func (q *InMemoryQueue) TryDequeue() (model.Job, bool) {
	select {
	case j, ok := <-q.jobs:
		if !ok {
			return model.Job{}, false
		}
		metrics.UpdateQueueSize(len(q.jobs))
		return j, true
	default:
		return model.Job{}, false
	}
}

// Dequeue blocks for the next job.
func (q *InMemoryQueue) Dequeue(ctx context.Context) (model.Job, error) {
	select {
	case j, ok := <-q.jobs:
		if !ok {
			return model.Job{}, ErrClosed
		}
		metrics.UpdateQueueSize(len(q.jobs))
		return j, nil
	case <-ctx.Done():
		return model.Job{}, ctx.Err()
	}
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len() int {
	return len(q.jobs)
}

// Cap returns the capacity of the queue.
func (q *InMemoryQueue) Cap() int {
	return q.capacity
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
