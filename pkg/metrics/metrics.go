// Package metrics provides Prometheus instrumentation for threadpool components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for threadpool components.
type Registry struct {
	// Worker Pool Metrics
	WorkerPoolSize   *prometheus.GaugeVec
	WorkerPoolLive   *prometheus.GaugeVec
	WorkerPoolQueued *prometheus.GaugeVec

	// Task Metrics
	TasksSubmitted   *prometheus.CounterVec
	TasksExecuted    *prometheus.CounterVec
	TasksCompleted   *prometheus.CounterVec
	TasksPanicked    *prometheus.CounterVec
	TaskWaitDuration *prometheus.HistogramVec
	TaskDuration     *prometheus.HistogramVec

	// Feeder Metrics
	CronTriggers       *prometheus.CounterVec
	CronSubmitFailures *prometheus.CounterVec
	CronLockSkips      *prometheus.CounterVec
	FeedReceived       *prometheus.CounterVec
	FeedErrors         *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by threadpool components.
var DefaultRegistry *Registry

var (
	sharedMu sync.Mutex
	shared   = make(map[sharedKey]*Registry)
)

type sharedKey struct {
	reg       prometheus.Registerer
	namespace string
}

func init() {
	DefaultRegistry = For(DefaultConfig())
}

// For returns the Registry bound to config's registerer and namespace,
// creating it on first use. Components sharing a registerer share one set
// of collectors, so registering several pools, schedulers and feeds against
// the same Prometheus registry never collides. Constant labels and
// TaskBuckets are taken from the first call for a given registerer and
// namespace; later calls with different values get that first Registry.
// Use a separate namespace or NewRegistryWithConfig for other buckets.
func For(config Config) *Registry {
	config = config.withDefaults()
	key := sharedKey{reg: config.Registry, namespace: config.Namespace}

	sharedMu.Lock()
	defer sharedMu.Unlock()
	if r, ok := shared[key]; ok {
		return r
	}
	r := NewRegistryWithConfig(config)
	shared[key] = r
	return r
}

// NewRegistry creates a new metrics registry with the given Prometheus
// registerer and the default namespace. It registers fresh collectors and
// panics if they already exist on reg; use For to share them.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{Registry: reg})
}

// NewRegistryWithConfig creates a metrics registry honoring the namespace,
// constant labels and task buckets of config. A nil Registry means
// prometheus.DefaultRegisterer.
func NewRegistryWithConfig(config Config) *Registry {
	config = config.withDefaults()
	ns := config.Namespace
	labels := config.Labels
	factory := promauto.With(config.Registry)

	poolLabels := []string{"pool_name"}

	return &Registry{
		WorkerPoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "size",
				Help:        "Number of workers the pool was created with",
				ConstLabels: labels,
			},
			poolLabels,
		),
		WorkerPoolLive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "live_workers",
				Help:        "Number of worker goroutines still running",
				ConstLabels: labels,
			},
			poolLabels,
		),
		WorkerPoolQueued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "queued_tasks",
				Help:        "Number of tasks waiting in the queue",
				ConstLabels: labels,
			},
			poolLabels,
		),
		TasksSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "tasks_submitted_total",
				Help:        "Total number of tasks accepted for execution",
				ConstLabels: labels,
			},
			poolLabels,
		),
		TasksExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "tasks_executed_total",
				Help:        "Total number of tasks picked up by a worker",
				ConstLabels: labels,
			},
			poolLabels,
		),
		TasksCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "tasks_completed_total",
				Help:        "Total number of tasks that returned normally",
				ConstLabels: labels,
			},
			poolLabels,
		),
		TasksPanicked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "tasks_panicked_total",
				Help:        "Total number of tasks that panicked and took their worker down",
				ConstLabels: labels,
			},
			poolLabels,
		),
		TaskWaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "task_wait_seconds",
				Help:        "Time tasks spent queued before a worker picked them up",
				Buckets:     config.TaskBuckets,
				ConstLabels: labels,
			},
			poolLabels,
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "task_duration_seconds",
				Help:        "Time spent running tasks",
				Buckets:     config.TaskBuckets,
				ConstLabels: labels,
			},
			poolLabels,
		),
		CronTriggers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "scheduler",
				Name:        "triggers_total",
				Help:        "Total number of cron triggers that submitted a task",
				ConstLabels: labels,
			},
			[]string{"scheduler_name", "entry"},
		),
		CronSubmitFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "scheduler",
				Name:        "submit_failures_total",
				Help:        "Total number of cron triggers whose task could not be submitted",
				ConstLabels: labels,
			},
			[]string{"scheduler_name", "entry"},
		),
		CronLockSkips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "scheduler",
				Name:        "lock_skips_total",
				Help:        "Total number of cron triggers skipped because another instance held the tick",
				ConstLabels: labels,
			},
			[]string{"scheduler_name", "entry"},
		),
		FeedReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "redisfeed",
				Name:        "payloads_received_total",
				Help:        "Total number of payloads popped from Redis",
				ConstLabels: labels,
			},
			[]string{"feed_name"},
		),
		FeedErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "redisfeed",
				Name:        "errors_total",
				Help:        "Total number of Redis or submission errors seen by the feed",
				ConstLabels: labels,
			},
			[]string{"feed_name"},
		),
	}
}
