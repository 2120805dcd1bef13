package workerpool

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/threadpool/internal/testutil"
	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPool(t *testing.T, workers int, opts ...Option) *Pool {
	t.Helper()
	pool, err := New(workers, append([]Option{WithLogger(quietLogger())}, opts...)...)
	testutil.AssertNoError(t, err)
	return pool
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		workerCount int
		expectError bool
	}{
		{"single worker", 1, false},
		{"several workers", 4, false},
		{"many workers", 64, false},
		{"zero workers", 0, true},
		{"negative workers", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := New(tt.workerCount, WithLogger(quietLogger()))
			if tt.expectError {
				testutil.AssertError(t, err)
				testutil.AssertEqual(t, errors.Is(err, tperrors.ErrInvalidConfiguration), true)
				testutil.AssertEqual(t, pool == nil, true)
				return
			}

			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, pool.Size(), tt.workerCount)
			testutil.AssertEqual(t, pool.LiveWorkers(), tt.workerCount)
			testutil.AssertEqual(t, pool.Name(), "default")
			testutil.AssertNoError(t, pool.Shutdown())
			testutil.AssertEqual(t, pool.LiveWorkers(), 0)
		})
	}
}

func TestMustNewPanicsOnZeroWorkers(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic")
		}
	}()
	MustNew(0)
}

func TestWithName(t *testing.T) {
	pool := newTestPool(t, 1, WithName("ingest"), WithName(""))
	defer pool.Shutdown()

	testutil.AssertEqual(t, pool.Name(), "ingest")
}

func TestCompleteness(t *testing.T) {
	for _, workers := range []int{1, 2, 4, 8} {
		for _, tasks := range []int{0, 1, 10, 257} {
			t.Run(fmt.Sprintf("N=%d/M=%d", workers, tasks), func(t *testing.T) {
				pool := newTestPool(t, workers)

				var executed atomic.Int64
				for i := 0; i < tasks; i++ {
					testutil.AssertNoError(t, pool.ExecuteFunc(func() {
						executed.Add(1)
					}))
				}

				testutil.AssertNoError(t, pool.Shutdown())
				testutil.AssertEqual(t, executed.Load(), int64(tasks))
				testutil.AssertEqual(t, pool.TotalSubmitted(), int64(tasks))
				testutil.AssertEqual(t, pool.TotalCompleted(), int64(tasks))
				testutil.AssertEqual(t, pool.QueueSize(), 0)
			})
		}
	}
}

func TestSingleWorkerRunsInSubmissionOrder(t *testing.T) {
	pool := newTestPool(t, 1)

	const n = 200
	var order []int // only touched by the single worker
	for i := 0; i < n; i++ {
		i := i
		testutil.AssertNoError(t, pool.ExecuteFunc(func() {
			order = append(order, i)
		}))
	}
	testutil.AssertNoError(t, pool.Shutdown())

	testutil.AssertEqual(t, len(order), n)
	for i, v := range order {
		if v != i {
			t.Fatalf("position %d ran task %d", i, v)
		}
	}
}

func TestConcurrentCounter(t *testing.T) {
	pool := newTestPool(t, 4)

	var counter atomic.Int64
	for i := 0; i < 100; i++ {
		testutil.AssertNoError(t, pool.ExecuteFunc(func() {
			counter.Add(1)
		}))
	}

	testutil.AssertNoError(t, pool.Shutdown())
	testutil.AssertEqual(t, counter.Load(), int64(100))
}

func TestIndicesIntoGuardedList(t *testing.T) {
	pool := newTestPool(t, 4)

	var (
		mu   sync.Mutex
		list []int
	)
	for i := 0; i < 100; i++ {
		i := i
		testutil.AssertNoError(t, pool.ExecuteFunc(func() {
			mu.Lock()
			list = append(list, i)
			mu.Unlock()
		}))
	}
	testutil.AssertNoError(t, pool.Shutdown())

	testutil.AssertEqual(t, len(list), 100)
	sort.Ints(list)
	for i, v := range list {
		testutil.AssertEqual(t, v, i)
	}
}

func TestShutdownDrainsQueuedTasks(t *testing.T) {
	pool := newTestPool(t, 2)

	const n = 20
	var done atomic.Int64
	for i := 0; i < n; i++ {
		testutil.AssertNoError(t, pool.ExecuteFunc(func() {
			time.Sleep(5 * time.Millisecond)
			done.Add(1)
		}))
	}

	// Most tasks are still queued here; Shutdown must wait for all of them.
	testutil.AssertNoError(t, pool.Shutdown())
	testutil.AssertEqual(t, done.Load(), int64(n))
}

func TestNoDoubleDispatch(t *testing.T) {
	pool := newTestPool(t, 8)

	const n = 1000
	runs := make([]atomic.Int32, n)
	for i := 0; i < n; i++ {
		i := i
		testutil.AssertNoError(t, pool.ExecuteFunc(func() {
			runs[i].Add(1)
		}))
	}
	testutil.AssertNoError(t, pool.Shutdown())

	for i := range runs {
		if got := runs[i].Load(); got != 1 {
			t.Fatalf("task %d ran %d times", i, got)
		}
	}
}

func TestConcurrentSubmittersKeepPerCallerOrder(t *testing.T) {
	pool := newTestPool(t, 1)

	const (
		callers   = 8
		perCaller = 100
	)
	seen := make([][]int, callers) // only touched by the single worker

	var wg sync.WaitGroup
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for i := 0; i < perCaller; i++ {
				i := i
				if err := pool.ExecuteFunc(func() {
					seen[c] = append(seen[c], i)
				}); err != nil {
					t.Errorf("submit: %v", err)
				}
			}
		}(c)
	}
	wg.Wait()
	testutil.AssertNoError(t, pool.Shutdown())

	for c, got := range seen {
		testutil.AssertEqual(t, len(got), perCaller)
		for i, v := range got {
			if v != i {
				t.Fatalf("caller %d: position %d ran task %d", c, i, v)
			}
		}
	}
}

func TestExecuteAfterShutdown(t *testing.T) {
	pool := newTestPool(t, 2)
	testutil.AssertNoError(t, pool.Shutdown())

	err := pool.ExecuteFunc(func() { t.Error("task must not run") })
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, errors.Is(err, ErrPoolClosed), true)
	testutil.AssertEqual(t, tperrors.IsClosed(err), true)
	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(0))
}

func TestExecuteNilTask(t *testing.T) {
	pool := newTestPool(t, 1)
	defer pool.Shutdown()

	var nilFunc TaskFunc
	for name, err := range map[string]error{
		"nil task":     pool.Execute(nil),
		"nil TaskFunc": pool.Execute(nilFunc),
		"nil func":     pool.ExecuteFunc(nil),
	} {
		t.Run(name, func(t *testing.T) {
			testutil.AssertError(t, err)
			testutil.AssertEqual(t, tperrors.IsValidationError(err), true)
		})
	}
	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(0))
}

func TestShutdownIsIdempotent(t *testing.T) {
	pool := newTestPool(t, 2)
	testutil.AssertNoError(t, pool.ExecuteFunc(func() { panic("boom") }))

	first := pool.Shutdown()
	second := pool.Shutdown()
	testutil.AssertError(t, first)
	testutil.AssertEqual(t, first, second)
	testutil.AssertEqual(t, pool.Close(), first)
}

func TestTaskPanicTerminatesOnlyItsWorker(t *testing.T) {
	faults := testutil.NewCallbackTracker()
	clean := testutil.NewCallbackTracker()
	pool := newTestPool(t, 3, WithOnWorkerExit(func(_ int, err error) {
		if err != nil {
			faults.Mark(err)
			return
		}
		clean.Mark()
	}))

	testutil.AssertNoError(t, pool.ExecuteFunc(func() { panic("boom") }))
	testutil.Eventually(t, func() bool { return pool.LiveWorkers() == 2 }, time.Second, time.Millisecond)
	faults.AssertCallCount(t, 1)

	var executed atomic.Int64
	for i := 0; i < 50; i++ {
		testutil.AssertNoError(t, pool.ExecuteFunc(func() { executed.Add(1) }))
	}

	err := pool.Shutdown()
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, executed.Load(), int64(50))
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(50))
	testutil.AssertEqual(t, errors.Is(err, tperrors.ErrTaskPanicked), true)
	testutil.AssertEqual(t, errors.Is(err, ErrTasksAbandoned), false)

	var panicErr *TaskPanicError
	testutil.AssertEqual(t, errors.As(err, &panicErr), true)
	testutil.AssertEqual(t, panicErr.Value, any("boom"))
	testutil.AssertEqual(t, len(panicErr.Stack) > 0, true)

	faults.AssertCallCount(t, 1)
	clean.AssertCallCount(t, 2)
	reported, ok := faults.Value().(error)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, errors.Is(reported, tperrors.ErrTaskPanicked), true)
}

func TestPanicWithErrorValueIsMatchable(t *testing.T) {
	cause := errors.New("disk full")
	pool := newTestPool(t, 1)
	testutil.AssertNoError(t, pool.ExecuteFunc(func() { panic(cause) }))

	err := pool.Shutdown()
	testutil.AssertEqual(t, errors.Is(err, cause), true)
	testutil.AssertEqual(t, errors.Is(err, tperrors.ErrTaskPanicked), true)
}

func TestAllWorkersDeadAbandonsQueuedTasks(t *testing.T) {
	pool := newTestPool(t, 1)

	gate := make(chan struct{})
	testutil.AssertNoError(t, pool.ExecuteFunc(func() {
		<-gate
		panic("boom")
	}))
	for i := 0; i < 5; i++ {
		testutil.AssertNoError(t, pool.ExecuteFunc(func() { t.Error("must not run") }))
	}
	close(gate)

	err := pool.Shutdown()
	testutil.AssertEqual(t, errors.Is(err, tperrors.ErrTaskPanicked), true)
	testutil.AssertEqual(t, errors.Is(err, ErrTasksAbandoned), true)
	testutil.AssertEqual(t, pool.LiveWorkers(), 0)
	testutil.AssertEqual(t, pool.QueueSize(), 5)
}

func TestGoexitIsRecordedAsFault(t *testing.T) {
	rec := testutil.NewLogRecorder(slog.LevelInfo)
	pool := newTestPool(t, 2, WithLogger(rec.Logger()))
	testutil.AssertNoError(t, pool.ExecuteFunc(runtime.Goexit))

	var executed atomic.Int64
	for i := 0; i < 10; i++ {
		testutil.AssertNoError(t, pool.ExecuteFunc(func() { executed.Add(1) }))
	}

	err := pool.Shutdown()
	var panicErr *TaskPanicError
	testutil.AssertEqual(t, errors.As(err, &panicErr), true)
	testutil.AssertEqual(t, executed.Load(), int64(10))
	testutil.AssertEqual(t, rec.Count("terminated abnormally"), 1)
}

func TestMustShutdownPanicsOnFault(t *testing.T) {
	pool := newTestPool(t, 1)
	testutil.AssertNoError(t, pool.ExecuteFunc(func() { panic("boom") }))

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok {
			t.Fatalf("expected error panic, got %v", r)
		}
		testutil.AssertEqual(t, errors.Is(err, tperrors.ErrTaskPanicked), true)
	}()
	pool.MustShutdown()
}

func TestMustShutdownWithoutFault(t *testing.T) {
	pool := newTestPool(t, 2)
	testutil.AssertNoError(t, pool.ExecuteFunc(func() {}))
	pool.MustShutdown()
}

func TestWorkerLogEvents(t *testing.T) {
	rec := testutil.NewLogRecorder(slog.LevelDebug)
	pool, err := New(2, WithLogger(rec.Logger()), WithName("logs"))
	testutil.AssertNoError(t, err)

	for i := 0; i < 5; i++ {
		testutil.AssertNoError(t, pool.ExecuteFunc(func() {}))
	}
	testutil.AssertNoError(t, pool.Shutdown())

	testutil.AssertEqual(t, rec.Count("received a task"), 5)
	testutil.AssertEqual(t, rec.Count("terminated"), 2)

	for _, r := range rec.Records() {
		testutil.AssertEqual(t, r.Attrs["pool"], any("logs"))
	}
}

func TestWorkerLogsAbnormalTermination(t *testing.T) {
	rec := testutil.NewLogRecorder(slog.LevelInfo)
	pool, err := New(1, WithLogger(rec.Logger()))
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, pool.ExecuteFunc(func() { panic("boom") }))
	testutil.AssertError(t, pool.Shutdown())

	testutil.AssertEqual(t, rec.Count("Worker[0] terminated abnormally"), 1)
	testutil.AssertEqual(t, rec.Count("received a task"), 0) // debug level filtered
}

func TestTaskPanicErrorMessage(t *testing.T) {
	err := &TaskPanicError{WorkerID: 3, Value: "boom"}
	testutil.AssertEqual(t, err.Error(), "workerpool: worker 3 terminated by task panic: boom")
}
