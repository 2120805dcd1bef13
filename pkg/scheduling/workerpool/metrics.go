package workerpool

import (
	"sync/atomic"
	"time"

	"github.com/coder/quartz"

	"github.com/vnykmshr/threadpool/pkg/metrics"
)

// MetricsPool wraps a Pool with Prometheus metrics collection.
type MetricsPool struct {
	pool     *Pool
	name     string
	registry atomic.Pointer[metrics.Registry]
	clock    quartz.Clock
	enabled  atomic.Bool
}

// MetricsOption configures a MetricsPool.
type MetricsOption func(*MetricsPool)

// WithClock sets the clock used to time queue wait and task duration.
// Defaults to the real clock.
func WithClock(clock quartz.Clock) MetricsOption {
	return func(mp *MetricsPool) {
		if clock != nil {
			mp.clock = clock
		}
	}
}

// NewWithMetrics creates a pool named name with metrics enabled according to
// metricsConfig.
func NewWithMetrics(workers int, name string, metricsConfig metrics.Config, opts ...Option) (*MetricsPool, error) {
	pool, err := New(workers, append([]Option{WithName(name)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return Instrument(pool, metricsConfig), nil
}

// Instrument wraps an existing pool. Only tasks submitted through the
// returned MetricsPool are timed.
func Instrument(pool *Pool, metricsConfig metrics.Config, opts ...MetricsOption) *MetricsPool {
	mp := &MetricsPool{
		pool:  pool,
		name:  pool.Name(),
		clock: quartz.NewReal(),
	}
	mp.registry.Store(metrics.For(metricsConfig))
	mp.enabled.Store(metricsConfig.Enabled)
	for _, opt := range opts {
		opt(mp)
	}

	mp.updateMetrics()
	return mp
}

// updateMetrics updates the current state metrics.
func (mp *MetricsPool) updateMetrics() {
	if !mp.enabled.Load() {
		return
	}

	reg := mp.registry.Load()
	reg.WorkerPoolSize.WithLabelValues(mp.name).Set(float64(mp.pool.Size()))
	reg.WorkerPoolLive.WithLabelValues(mp.name).Set(float64(mp.pool.LiveWorkers()))
	reg.WorkerPoolQueued.WithLabelValues(mp.name).Set(float64(mp.pool.QueueSize()))
}

// Execute submits task to the underlying pool, timing it when metrics are enabled.
func (mp *MetricsPool) Execute(task Task) error {
	if err := ValidateTask(task); err != nil {
		return err
	}
	if !mp.enabled.Load() {
		return mp.pool.Execute(task)
	}

	wrapped := &metricsTask{
		original:   task,
		pool:       mp,
		submitTime: mp.clock.Now(),
	}

	if err := mp.pool.Execute(wrapped); err != nil {
		return err
	}

	mp.registry.Load().TasksSubmitted.WithLabelValues(mp.name).Inc()
	mp.updateMetrics()
	return nil
}

// ExecuteFunc is shorthand for Execute(TaskFunc(fn)).
func (mp *MetricsPool) ExecuteFunc(fn func()) error {
	return mp.Execute(TaskFunc(fn))
}

// metricsTask wraps a Task to collect execution metrics.
type metricsTask struct {
	original   Task
	pool       *MetricsPool
	submitTime time.Time
}

// Run runs the original task and records metrics. A panic is counted and
// left to propagate so the worker still terminates.
func (mt *metricsTask) Run() {
	mp := mt.pool
	reg := mp.registry.Load()
	start := mp.clock.Now()
	reg.TaskWaitDuration.WithLabelValues(mp.name).Observe(start.Sub(mt.submitTime).Seconds())
	reg.TasksExecuted.WithLabelValues(mp.name).Inc()

	finished := false
	defer func() {
		reg.TaskDuration.WithLabelValues(mp.name).Observe(mp.clock.Since(start).Seconds())
		if finished {
			reg.TasksCompleted.WithLabelValues(mp.name).Inc()
		} else {
			reg.TasksPanicked.WithLabelValues(mp.name).Inc()
		}
		mp.updateMetrics()
	}()

	mt.original.Run()
	finished = true
}

// Shutdown shuts down the underlying pool and refreshes the gauges.
func (mp *MetricsPool) Shutdown() error {
	err := mp.pool.Shutdown()
	mp.updateMetrics()
	return err
}

// Close implements io.Closer.
func (mp *MetricsPool) Close() error {
	return mp.Shutdown()
}

// Pool returns the wrapped pool.
func (mp *MetricsPool) Pool() *Pool {
	return mp.pool
}

// Size returns the number of workers.
func (mp *MetricsPool) Size() int {
	return mp.pool.Size()
}

// LiveWorkers returns the number of worker goroutines still running.
func (mp *MetricsPool) LiveWorkers() int {
	live := mp.pool.LiveWorkers()

	if mp.enabled.Load() {
		mp.registry.Load().WorkerPoolLive.WithLabelValues(mp.name).Set(float64(live))
	}

	return live
}

// QueueSize returns the current number of queued tasks.
func (mp *MetricsPool) QueueSize() int {
	queueSize := mp.pool.QueueSize()

	if mp.enabled.Load() {
		mp.registry.Load().WorkerPoolQueued.WithLabelValues(mp.name).Set(float64(queueSize))
	}

	return queueSize
}

// TotalSubmitted returns the total number of tasks submitted.
func (mp *MetricsPool) TotalSubmitted() int64 {
	return mp.pool.TotalSubmitted()
}

// TotalCompleted returns the total number of tasks completed.
func (mp *MetricsPool) TotalCompleted() int64 {
	return mp.pool.TotalCompleted()
}

// EnableMetrics enables metrics collection.
func (mp *MetricsPool) EnableMetrics(config metrics.Config) error {
	mp.registry.Store(metrics.For(config))
	mp.enabled.Store(config.Enabled)
	mp.updateMetrics()
	return nil
}

// DisableMetrics disables metrics collection.
func (mp *MetricsPool) DisableMetrics() {
	mp.enabled.Store(false)
}

// MetricsEnabled returns true if metrics are currently enabled.
func (mp *MetricsPool) MetricsEnabled() bool {
	return mp.enabled.Load()
}

var (
	_ Executor               = (*MetricsPool)(nil)
	_ metrics.Instrumentable = (*MetricsPool)(nil)
)
