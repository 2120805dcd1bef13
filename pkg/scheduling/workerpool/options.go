package workerpool

import "log/slog"

// Option configures a Pool.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	name         string
	onWorkerExit func(workerID int, err error)
}

func defaultOptions() options {
	return options{
		logger: slog.Default(),
		name:   "default",
	}
}

// WithLogger sets the logger that receives worker lifecycle events.
// Defaults to slog.Default(); nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName names the pool in log events and metrics labels.
// Empty names are ignored.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithOnWorkerExit registers a callback invoked on the worker's goroutine
// just before it exits. err is nil for a normal exit after queue closure and
// a *TaskPanicError when a task brought the worker down.
func WithOnWorkerExit(fn func(workerID int, err error)) Option {
	return func(o *options) {
		o.onWorkerExit = fn
	}
}
