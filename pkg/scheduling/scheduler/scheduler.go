package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/common/validation"
	"github.com/vnykmshr/threadpool/pkg/metrics"
	"github.com/vnykmshr/threadpool/pkg/scheduling/workerpool"
)

// ErrDuplicateEntry is returned by Add when the name is already scheduled.
var ErrDuplicateEntry = errors.New("scheduler: entry already exists")

// Entry describes a scheduled task.
type Entry struct {
	Name string
	Spec string
	// Next is the upcoming activation, zero if the scheduler is not started.
	Next time.Time
	// Prev is the last activation, zero if it has never fired.
	Prev time.Time
	// Runs counts triggers whose task was accepted by the executor.
	Runs int64
}

type entry struct {
	name     string
	spec     string
	id       cron.EntryID
	task     workerpool.Task
	schedule cron.Schedule

	skipIfRunning bool
	maxRuns       int64

	reserved atomic.Int64
	runs     atomic.Int64
	inFlight atomic.Bool
}

// Scheduler submits tasks to an executor on cron schedules. A trigger only
// enqueues its task; the task itself runs on an executor worker, so a slow
// task never delays other entries.
type Scheduler struct {
	name    string
	exec    workerpool.Executor
	logger  *slog.Logger
	cron    *cron.Cron
	metrics *metrics.Registry
	locker  Locker

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a stopped scheduler feeding exec.
func New(exec workerpool.Executor, opts ...Option) (*Scheduler, error) {
	if err := validation.ValidateNotNil("scheduler", "executor", exec); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.With("scheduler", o.name)
	s := &Scheduler{
		name:    o.name,
		exec:    exec,
		logger:  logger,
		locker:  o.locker,
		entries: make(map[string]*entry),
	}
	if o.metrics.Enabled {
		s.metrics = metrics.For(o.metrics)
	}

	cl := cronLogger{logger: logger}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(o.location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	return s, nil
}

// Add schedules task under name. spec is a cron expression with an optional
// leading seconds field, or a descriptor such as "@hourly" or "@every 30s".
func (s *Scheduler) Add(name, spec string, task workerpool.Task, opts ...EntryOption) (cron.EntryID, error) {
	if err := validation.ValidateNotEmpty("scheduler", "name", name); err != nil {
		return 0, err
	}
	if err := workerpool.ValidateTask(task); err != nil {
		return 0, err
	}
	schedule, err := parse(spec)
	if err != nil {
		return 0, err
	}

	e := &entry{name: name, spec: spec, task: task, schedule: schedule}
	for _, opt := range opts {
		opt(e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateEntry, name)
	}
	e.id = s.cron.Schedule(schedule, cron.FuncJob(func() { s.trigger(e) }))
	s.entries[name] = e

	s.logger.Debug("schedule added", "entry", name, "spec", spec)
	return e.id, nil
}

// AddFunc is shorthand for Add(name, spec, workerpool.TaskFunc(fn)).
func (s *Scheduler) AddFunc(name, spec string, fn func(), opts ...EntryOption) (cron.EntryID, error) {
	return s.Add(name, spec, workerpool.TaskFunc(fn), opts...)
}

// Remove unschedules name. Tasks already submitted still run.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return false
	}
	delete(s.entries, name)
	s.cron.Remove(e.id)

	s.logger.Debug("schedule removed", "entry", name)
	return true
}

// Entries returns the scheduled entries sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	list := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	s.mu.Unlock()

	out := make([]Entry, 0, len(list))
	for _, e := range list {
		ce := s.cron.Entry(e.id)
		out = append(out, Entry{
			Name: e.name,
			Spec: e.spec,
			Next: ce.Next,
			Prev: ce.Prev,
			Runs: e.runs.Load(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Next returns the upcoming activation of name.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(e.id).Next, true
}

// Start begins firing triggers in a background goroutine. Starting a
// running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop stops firing triggers and waits for in-progress triggers to finish
// submitting, or for ctx to end. Submitted tasks are owned by the executor
// and are not waited for.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return tperrors.NewOperationError("scheduler", "Stop", ctx.Err()).
			WithContext(fmt.Sprintf("scheduler %q", s.name))
	}
}

func (s *Scheduler) trigger(e *entry) {
	if s.locker != nil {
		ok, err := s.claim(e)
		if err != nil {
			s.logger.Warn("tick lock failed, skipping trigger", "entry", e.name, "error", err)
			s.countSubmitFailure(e)
			return
		}
		if !ok {
			s.logger.Debug("tick claimed by another instance", "entry", e.name)
			if s.metrics != nil {
				s.metrics.CronLockSkips.WithLabelValues(s.name, e.name).Inc()
			}
			return
		}
	}

	// A MaxRuns slot is held while submitting and given back unless the
	// executor accepts the task, so skipped and rejected ticks cost nothing.
	if e.maxRuns > 0 && !e.reserveRun() {
		return
	}
	submitted := false
	claimedFlight := false
	defer func() {
		if submitted {
			return
		}
		if e.maxRuns > 0 {
			e.reserved.Add(-1)
		}
		if claimedFlight {
			e.inFlight.Store(false)
		}
	}()

	task := e.task
	if e.skipIfRunning {
		if !e.inFlight.CompareAndSwap(false, true) {
			s.logger.Debug("trigger skipped, previous run still in flight", "entry", e.name)
			return
		}
		claimedFlight = true
		task = workerpool.TaskFunc(func() {
			defer e.inFlight.Store(false)
			e.task.Run()
		})
	}

	if err := s.exec.Execute(task); err != nil {
		s.logger.Error("failed to submit scheduled task", "entry", e.name, "error", err)
		s.countSubmitFailure(e)
		return
	}
	submitted = true

	n := e.runs.Add(1)
	if s.metrics != nil {
		s.metrics.CronTriggers.WithLabelValues(s.name, e.name).Inc()
	}
	if e.maxRuns > 0 && n == e.maxRuns {
		s.Remove(e.name)
	}
}

// reserveRun takes one of the entry's MaxRuns slots if any is left.
func (e *entry) reserveRun() bool {
	for {
		n := e.reserved.Load()
		if n >= e.maxRuns {
			return false
		}
		if e.reserved.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (s *Scheduler) countSubmitFailure(e *entry) {
	if s.metrics != nil {
		s.metrics.CronSubmitFailures.WithLabelValues(s.name, e.name).Inc()
	}
}
