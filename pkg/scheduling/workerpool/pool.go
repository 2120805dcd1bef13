package workerpool

import (
	"errors"
	"fmt"
	"io"

	"github.com/vnykmshr/threadpool/pkg/common/validation"
)

var _ io.Closer = (*Pool)(nil)

// Execute enqueues task for execution by the next idle worker and returns
// immediately. It never waits for the task to run and reports no result.
//
// Execute returns ErrPoolClosed once Shutdown has begun; submitting after
// shutdown is a usage error.
func (p *Pool) Execute(task Task) error {
	if err := ValidateTask(task); err != nil {
		return err
	}

	p.totalSubmitted.Add(1)
	if err := p.sender.Send(task); err != nil {
		p.totalSubmitted.Add(-1)
		return fmt.Errorf("%w (pool %q)", ErrPoolClosed, p.name)
	}
	return nil
}

// ValidateTask rejects nil tasks, including a nil TaskFunc or a nil
// pointer wrapped in Task.
func ValidateTask(task Task) error {
	return validation.ValidateNotNil("workerpool", "task", task)
}

// ExecuteFunc is shorthand for Execute(TaskFunc(fn)).
func (p *Pool) ExecuteFunc(fn func()) error {
	return p.Execute(TaskFunc(fn))
}

// Shutdown closes the pool for submission and blocks until every worker has
// exited. Because workers drain the queue before observing closure, every
// task submitted before Shutdown has run by the time it returns.
//
// The returned error joins a *TaskPanicError for each worker that a task
// panic brought down, plus ErrTasksAbandoned if tasks were left queued with
// no live worker to run them. Later calls return the same result.
//
// Shutdown must not be called from inside a task: the calling worker would
// wait for itself.
func (p *Pool) Shutdown() error {
	p.shutdownOnce.Do(func() {
		// Closing before joining is what lets blocked workers observe closure.
		p.sender.Close()

		var errs []error
		for _, w := range p.workers {
			if err := w.join(); err != nil {
				errs = append(errs, err)
			}
		}

		if pending := p.queue.Len(); pending > 0 {
			errs = append(errs, fmt.Errorf("%w: %d pending", ErrTasksAbandoned, pending))
		}

		p.shutdownErr = errors.Join(errs...)
		p.logger.Debug("worker pool shut down",
			"submitted", p.totalSubmitted.Load(),
			"completed", p.totalCompleted.Load(),
			"faults", len(errs))
	})
	return p.shutdownErr
}

// MustShutdown is like Shutdown but panics if any task faulted.
func (p *Pool) MustShutdown() {
	if err := p.Shutdown(); err != nil {
		panic(err)
	}
}

// Close implements io.Closer by calling Shutdown.
func (p *Pool) Close() error {
	return p.Shutdown()
}

// Name returns the pool name used in logs and metrics.
func (p *Pool) Name() string {
	return p.name
}

// Size returns the number of workers the pool was created with.
func (p *Pool) Size() int {
	return p.size
}

// LiveWorkers returns how many worker goroutines are still running.
// It drops below Size only after a task panic or during Shutdown.
func (p *Pool) LiveWorkers() int {
	return int(p.liveWorkers.Load())
}

// QueueSize returns the current number of queued tasks waiting for execution.
func (p *Pool) QueueSize() int {
	return p.queue.Len()
}

// TotalSubmitted returns the total number of tasks accepted by Execute.
func (p *Pool) TotalSubmitted() int64 {
	return p.totalSubmitted.Load()
}

// TotalCompleted returns the total number of tasks that ran to completion.
func (p *Pool) TotalCompleted() int64 {
	return p.totalCompleted.Load()
}
