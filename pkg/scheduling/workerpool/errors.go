package workerpool

import (
	"errors"
	"fmt"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
)

var (
	// ErrPoolClosed is returned by Execute once Shutdown has begun.
	ErrPoolClosed = fmt.Errorf("workerpool: pool is shut down: %w", tperrors.ErrClosed)

	// ErrTasksAbandoned is reported by Shutdown when tasks were still queued
	// after every worker had died.
	ErrTasksAbandoned = errors.New("workerpool: tasks abandoned with no live workers")
)

// TaskPanicError records a task panic that terminated a worker.
type TaskPanicError struct {
	WorkerID int
	Value    any
	Stack    []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("workerpool: worker %d terminated by task panic: %v", e.WorkerID, e.Value)
}

// Unwrap lets callers match with errors.Is(err, errors.ErrTaskPanicked) and,
// when the task panicked with an error value, with that error too.
func (e *TaskPanicError) Unwrap() []error {
	if err, ok := e.Value.(error); ok {
		return []error{tperrors.ErrTaskPanicked, err}
	}
	return []error{tperrors.ErrTaskPanicked}
}
