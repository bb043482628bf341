package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/docs-hound/docshound/internal/logger"
	"github.com/docs-hound/docshound/internal/ratelimit"
)

// Config configures a WorkQueue.
type Config struct {
	// Concurrency is the maximum number of tasks running at once.
	Concurrency int
	// Interval is the minimum spacing between two task starts.
	Interval time.Duration
	Logger   *logger.Logger
}

// WorkQueue runs tasks FIFO with a concurrency limit and a minimum interval
// between dispatches. Tasks may add further tasks. The queue is idle when
// nothing is waiting and nothing is running.
type WorkQueue struct {
	mu         sync.Mutex
	tasks      []Task
	pending    int
	started    bool
	stopped    bool
	idle       chan struct{}
	idleClosed bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	sem         *semaphore.Weighted
	limiter     *ratelimit.Limiter
	concurrency int
	logger      *logger.Logger

	dispatched atomic.Int64
	dropped    atomic.Int64
	panics     atomic.Int64
}

// New creates a work queue. Tasks added before Start are buffered.
func New(cfg Config) *WorkQueue {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	idle := make(chan struct{})
	close(idle)

	return &WorkQueue{
		idle:        idle,
		idleClosed:  true,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		sem:         semaphore.NewWeighted(int64(cfg.Concurrency)),
		limiter:     ratelimit.NewLimiter(cfg.Interval),
		concurrency: cfg.Concurrency,
		logger:      logger.OrNop(cfg.Logger).WithComponent("queue"),
	}
}

// Start launches the dispatcher. Cancelling ctx stops dispatching, drops
// tasks that have not started and is visible to running tasks.
func (q *WorkQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return ErrAlreadyStarted
	}
	if q.stopped {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.started = true
	q.mu.Unlock()

	go q.dispatch(ctx)
	return nil
}

// Add schedules a task.
func (q *WorkQueue) Add(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrQueueClosed
	}

	if q.idleClosed {
		q.idle = make(chan struct{})
		q.idleClosed = false
	}
	q.tasks = append(q.tasks, task)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// OnIdle blocks until the queue is idle or ctx is done.
func (q *WorkQueue) OnIdle(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Size returns the number of tasks waiting to start.
func (q *WorkQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Pending returns the number of running tasks.
func (q *WorkQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Close stops dispatching and drops waiting tasks. Running tasks finish.
// It is safe to call more than once.
func (q *WorkQueue) Close() {
	q.stop()
	q.closeOnce.Do(func() { close(q.done) })
}

// Stats returns a snapshot of the queue.
func (q *WorkQueue) Stats() Stats {
	q.mu.Lock()
	size, pending := len(q.tasks), q.pending
	q.mu.Unlock()

	return Stats{
		Size:        size,
		Pending:     pending,
		Dispatched:  q.dispatched.Load(),
		Dropped:     q.dropped.Load(),
		Panics:      q.panics.Load(),
		Concurrency: q.concurrency,
		Interval:    q.limiter.Interval(),
	}
}

// dispatch starts tasks one at a time: a concurrency slot first, then the
// interval, so two starts are never closer than the interval.
func (q *WorkQueue) dispatch(ctx context.Context) {
	defer q.stop()

	for {
		if !q.waitForTask(ctx) {
			return
		}
		if err := q.sem.Acquire(ctx, 1); err != nil {
			return
		}
		if err := q.limiter.Wait(ctx); err != nil {
			q.sem.Release(1)
			return
		}

		q.mu.Lock()
		if q.stopped || len(q.tasks) == 0 {
			stopped := q.stopped
			q.mu.Unlock()
			q.sem.Release(1)
			if stopped {
				return
			}
			continue
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.pending++
		q.mu.Unlock()

		q.dispatched.Add(1)
		go q.run(ctx, task)
	}
}

func (q *WorkQueue) waitForTask(ctx context.Context) bool {
	for {
		q.mu.Lock()
		n, stopped := len(q.tasks), q.stopped
		q.mu.Unlock()

		if stopped {
			return false
		}
		if n > 0 {
			return true
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			return false
		case <-q.done:
			return false
		}
	}
}

func (q *WorkQueue) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.panics.Add(1)
			q.logger.Errorf("Task panicked: %v", r)
		}
		q.sem.Release(1)

		q.mu.Lock()
		q.pending--
		q.checkIdleLocked()
		q.mu.Unlock()
	}()

	task(ctx)
}

// stop marks the queue stopped and drops waiting tasks.
func (q *WorkQueue) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}
	q.stopped = true

	if n := len(q.tasks); n > 0 {
		q.dropped.Add(int64(n))
		q.logger.Warnf("Dropping %d tasks that never started", n)
	}
	q.tasks = nil
	q.checkIdleLocked()
}

func (q *WorkQueue) checkIdleLocked() {
	if len(q.tasks) == 0 && q.pending == 0 && !q.idleClosed {
		close(q.idle)
		q.idleClosed = true
	}
}
