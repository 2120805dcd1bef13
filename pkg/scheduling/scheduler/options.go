package scheduler

import (
	"log/slog"
	"time"

	"github.com/vnykmshr/threadpool/pkg/metrics"
)

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	name     string
	location *time.Location
	metrics  metrics.Config
	locker   Locker
}

func defaultOptions() options {
	return options{
		logger:   slog.Default(),
		name:     "default",
		location: time.Local,
	}
}

// WithLogger sets the logger for trigger and submission events.
// Defaults to slog.Default(); nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName names the scheduler in log events and metrics labels.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLocation sets the time zone cron specs are evaluated in.
// Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithMetrics records trigger and submission failure counters.
// Nothing is recorded unless config.Enabled is set.
func WithMetrics(config metrics.Config) Option {
	return func(o *options) {
		o.metrics = config
	}
}

// WithLocker makes each trigger claim its tick through locker before
// submitting, so schedulers on several hosts sharing entry names submit a
// tick once. Aligned cron specs dedupe exactly; "@every" schedules start
// from each process's own clock and only dedupe within half an interval.
func WithLocker(locker Locker) Option {
	return func(o *options) {
		o.locker = locker
	}
}

// EntryOption configures a single schedule entry.
type EntryOption func(*entry)

// SkipIfStillRunning drops a trigger while the task submitted by the
// previous trigger is still queued or running.
func SkipIfStillRunning() EntryOption {
	return func(e *entry) {
		e.skipIfRunning = true
	}
}

// MaxRuns removes the entry once the executor has accepted n of its tasks.
// Skipped or rejected triggers do not count. Zero means unlimited.
func MaxRuns(n int) EntryOption {
	return func(e *entry) {
		if n > 0 {
			e.maxRuns = int64(n)
		}
	}
}
