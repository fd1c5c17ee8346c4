// Package worker runs best-effort side effects off the request path.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSize is the queue capacity used when size <= 0.
const DefaultSize = 256

type job struct {
	name string
	fn   func(ctx context.Context) error
}

// Queue is a bounded FIFO drained by a single goroutine. Failed jobs are
// logged and dropped. Jobs submitted while the queue is full or closed are
// dropped too.
type Queue struct {
	jobs    chan job
	log     *zap.Logger
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
	done    chan struct{}
}

// New starts a queue holding up to size jobs. Each job runs with timeout.
func New(size int, timeout time.Duration, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = DefaultSize
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		jobs:    make(chan job, size),
		log:     logger,
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Go enqueues fn.
func (q *Queue) Go(name string, fn func(ctx context.Context) error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.log.Warn("worker queue closed, dropping job", zap.String("job", name))
		return
	}
	q.pending.Add(1)
	select {
	case q.jobs <- job{name: name, fn: fn}:
	default:
		q.pending.Done()
		q.log.Error("worker queue full, dropping job", zap.String("job", name))
	}
}

// Flush blocks until every job enqueued so far has run.
func (q *Queue) Flush() {
	q.pending.Wait()
}

// Close drains the queue and stops the worker.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for j := range q.jobs {
		q.exec(j)
	}
}

func (q *Queue) exec(j job) {
	defer q.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("worker job panicked", zap.String("job", j.name), zap.Any("panic", r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if err := j.fn(ctx); err != nil {
		q.log.Error("worker job failed", zap.String("job", j.name), zap.Error(err))
	}
}
