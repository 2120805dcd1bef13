/*
Package workerpool provides a fixed-size worker pool: a set of goroutines,
started up front, that drain one shared, unbounded FIFO task queue.

A pool decouples submitting work from running it and reuses the same N
goroutines for any number of short jobs.

Basic usage:

	pool, err := workerpool.New(4)
	if err != nil {
		log.Fatal(err)
	}

	for _, job := range jobs {
		job := job
		if err := pool.ExecuteFunc(func() { process(job) }); err != nil {
			log.Printf("submit: %v", err)
		}
	}

	// Blocks until every submitted task has run.
	if err := pool.Shutdown(); err != nil {
		log.Printf("shutdown: %v", err)
	}

Task Interface:

Tasks implement a single method:

	type Task interface {
		Run()
	}

TaskFunc adapts a plain func(). Tasks take no input and return nothing;
tasks that need to report results arrange their own channel or
synchronized structure.

Execution Model:

Execute appends the task to the queue and returns without waiting. Idle
workers block on the queue and take tasks in submission order. Each worker
runs one task at a time to completion. With one worker, tasks run strictly in
submission order. With several workers only dequeue order is FIFO and
completion order is unconstrained.

Shutdown:

Shutdown runs in two phases: it closes the submission side of the queue,
then joins every worker in turn. Workers drain whatever is still queued
before they observe closure, so Shutdown returns only after every task
submitted before it has run. Execute fails with ErrPoolClosed afterwards.
Repeated calls return the first result. Calling Shutdown from inside a task
deadlocks.

Faults:

A panic inside a task terminates the worker that was running it. That worker
is not restarted, so the pool keeps running with one fewer worker; the
remaining workers keep draining the queue. Shutdown reports every such fault
as a *TaskPanicError joined into its returned error, and reports
ErrTasksAbandoned if all workers died with tasks still queued. Use
MustShutdown to turn a fault into a panic at teardown instead.

Logging:

Workers log "Worker[id] received a task" at debug level and
"Worker[id] terminated" at info level through the pool's *slog.Logger
(WithLogger, default slog.Default()). The messages are advisory.

Metrics:

NewWithMetrics and Instrument wrap a pool in a MetricsPool that records
Prometheus gauges, counters and histograms for queue wait and run time.

Thread Safety:

Execute may be called from any number of goroutines. Tasks from one caller
are enqueued in the order of that caller's calls. Shutdown must be called
once by the pool's owner.
*/
package workerpool
