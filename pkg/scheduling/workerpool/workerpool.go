package workerpool

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vnykmshr/threadpool/pkg/common/validation"
	"github.com/vnykmshr/threadpool/pkg/scheduling/taskqueue"
)

// Task represents a unit of work that can be executed by a worker.
// A task runs exactly once, on whichever worker dequeues it.
type Task interface {
	Run()
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc func()

// Run implements the Task interface for TaskFunc.
func (f TaskFunc) Run() {
	f()
}

// Executor accepts tasks for asynchronous execution.
// Both *Pool and *MetricsPool satisfy it.
type Executor interface {
	Execute(task Task) error
}

// Pool is a fixed set of workers draining one shared, unbounded task queue.
//
// Workers are started by New and live until Shutdown. A Pool must be shut
// down exactly once by its owner; Shutdown is the only way workers ever exit
// normally.
type Pool struct {
	name   string
	size   int
	logger *slog.Logger

	queue   *taskqueue.Queue[Task]
	sender  taskqueue.Sender[Task]
	workers []*worker

	onWorkerExit func(workerID int, err error)

	liveWorkers    atomic.Int64
	totalSubmitted atomic.Int64
	totalCompleted atomic.Int64

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a pool and starts exactly workers goroutines before returning.
// workers must be at least 1.
func New(workers int, opts ...Option) (*Pool, error) {
	if err := validation.ValidatePositive("workerpool", "workers", workers); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	queue := taskqueue.New[Task]()
	p := &Pool{
		name:         o.name,
		size:         workers,
		logger:       o.logger.With("pool", o.name),
		queue:        queue,
		sender:       queue.Sender(),
		workers:      make([]*worker, workers),
		onWorkerExit: o.onWorkerExit,
	}

	for id := 0; id < workers; id++ {
		p.workers[id] = p.spawn(id, queue.Receiver())
	}

	p.logger.Debug("worker pool started", "workers", workers)
	return p, nil
}

// MustNew is like New but panics if the worker count is invalid.
func MustNew(workers int, opts ...Option) *Pool {
	p, err := New(workers, opts...)
	if err != nil {
		panic(fmt.Sprintf("workerpool: %v", err))
	}
	return p
}
