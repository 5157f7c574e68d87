// Package async runs queued jobs on a fixed worker pool.
package async

import (
	"context"
	"errors"
	"sync"

	"log/slog"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned by Enqueue after Shutdown has started; callers
// must not report the job as accepted.
var ErrQueueClosed = errors.New("queue is shut down")

// Processor runs one job to a terminal state. *job.Orchestrator satisfies it.
type Processor interface {
	Process(ctx context.Context, id uuid.UUID)
}

type JobQueue struct {
	proc    Processor
	logger  *slog.Logger
	workers int

	ch   chan uuid.UUID
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex // guards closed and the backpressure send
	closed bool

	// The cancel registry has its own lock: workers take it on every job,
	// and must never contend with an Enqueue blocked on a full channel.
	cancelMu sync.Mutex
	cancels  map[uuid.UUID]context.CancelFunc
}

type Option func(*JobQueue)

func WithWorkers(n int) Option {
	return func(q *JobQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *JobQueue) {
		if n > 0 {
			q.ch = make(chan uuid.UUID, n)
		}
	}
}

func NewJobQueue(proc Processor, logger *slog.Logger, opts ...Option) *JobQueue {
	q := &JobQueue{
		proc:    proc,
		logger:  logger,
		workers: 2,
		ch:      make(chan uuid.UUID, 64),
		cancels: make(map[uuid.UUID]context.CancelFunc),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *JobQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for id := range q.ch {
					ctx, cancel := context.WithCancel(context.Background())
					q.register(id, cancel)
					q.proc.Process(ctx, id)
					q.unregister(id)
					cancel()
					q.logger.Info("worker finished job", "worker_id", workerID, "job_id", id)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *JobQueue) register(id uuid.UUID, cancel context.CancelFunc) {
	q.cancelMu.Lock()
	q.cancels[id] = cancel
	q.cancelMu.Unlock()
}

func (q *JobQueue) unregister(id uuid.UUID) {
	q.cancelMu.Lock()
	delete(q.cancels, id)
	q.cancelMu.Unlock()
}

// Enqueue adds a job to the queue, blocking for backpressure when full. The
// blocking send holds q.mu so Shutdown cannot close the channel under it;
// workers drain the channel without ever taking q.mu, so the send always
// makes progress.
func (q *JobQueue) Enqueue(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", id)
		return ErrQueueClosed
	}
	select {
	case q.ch <- id:
		q.logger.Info("queued job", "job_id", id)
	default:
		q.logger.Warn("queue full, applying backpressure", "job_id", id)
		q.ch <- id
	}
	return nil
}

// Cancel stops a running job. It reports false when the job is not currently
// running on a worker (already done or still waiting in the queue).
func (q *JobQueue) Cancel(id uuid.UUID) bool {
	q.cancelMu.Lock()
	cancel, ok := q.cancels[id]
	q.cancelMu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (q *JobQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
