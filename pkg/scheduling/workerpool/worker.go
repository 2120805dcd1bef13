package workerpool

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/vnykmshr/threadpool/pkg/scheduling/taskqueue"
)

// worker owns one goroutine running a receive-then-execute loop.
type worker struct {
	id     int
	pool   *Pool
	rx     taskqueue.Receiver[Task]
	logger *slog.Logger

	done  chan struct{}
	fault error // written before done is closed
}

func (p *Pool) spawn(id int, rx taskqueue.Receiver[Task]) *worker {
	w := &worker{
		id:     id,
		pool:   p,
		rx:     rx,
		logger: p.logger.With("worker", id),
		done:   make(chan struct{}),
	}
	p.liveWorkers.Add(1)
	go w.run()
	return w
}

// run is the main loop for a worker. It exits normally once the queue is
// closed and drained, or abnormally when a task panics or calls
// runtime.Goexit. The exit hook runs before LiveWorkers drops.
func (w *worker) run() {
	defer close(w.done)
	defer func() {
		if w.fault != nil {
			w.logger.Error(fmt.Sprintf("Worker[%d] terminated abnormally", w.id), "error", w.fault)
		}
		if w.pool.onWorkerExit != nil {
			w.pool.onWorkerExit(w.id, w.fault)
		}
		w.pool.liveWorkers.Add(-1)
	}()

	for {
		task, ok := w.rx.Recv()
		if !ok {
			w.logger.Info(fmt.Sprintf("Worker[%d] terminated", w.id))
			return
		}

		w.logger.Debug(fmt.Sprintf("Worker[%d] received a task", w.id))
		if err := w.execute(task); err != nil {
			return
		}
		w.pool.totalCompleted.Add(1)
	}
}

// execute runs task synchronously. A panic is captured rather than allowed
// to crash the process, but it still ends this worker's loop.
func (w *worker) execute(task Task) (err error) {
	finished := false
	defer func() {
		if finished {
			return
		}
		r := recover()
		if r == nil {
			r = "task called runtime.Goexit"
		}
		err = &TaskPanicError{WorkerID: w.id, Value: r, Stack: debug.Stack()}
		// Goexit keeps unwinding past run's loop, so record the fault here
		// for run's deferred exit handling.
		w.fault = err
	}()

	task.Run()
	finished = true
	return nil
}

// join blocks until the worker goroutine has exited and returns its fault.
func (w *worker) join() error {
	<-w.done
	return w.fault
}
