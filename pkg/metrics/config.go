package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name unless Config.Namespace is set.
const DefaultNamespace = "threadpool"

// Config selects where pool, scheduler and feed collectors are registered.
type Config struct {
	// Enabled turns collection on. Components given a disabled Config skip
	// every metric update.
	Enabled bool

	// Registry receives the collectors; nil means prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace prefixes metric names; empty means DefaultNamespace.
	Namespace string

	// Labels are constant labels added to every collector.
	Labels prometheus.Labels

	// TaskBuckets are the histogram buckets, in seconds, for task wait and
	// run time. Nil means prometheus.DefBuckets.
	TaskBuckets []float64
}

// DefaultConfig enables collection on the default registerer.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Registry:  prometheus.DefaultRegisterer,
		Namespace: DefaultNamespace,
	}
}

func (c Config) withDefaults() Config {
	if c.Registry == nil {
		c.Registry = prometheus.DefaultRegisterer
	}
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if len(c.TaskBuckets) == 0 {
		c.TaskBuckets = prometheus.DefBuckets
	}
	return c
}

// Instrumentable is implemented by components whose metrics can be switched
// on and off after construction.
type Instrumentable interface {
	EnableMetrics(config Config) error
	DisableMetrics()
	MetricsEnabled() bool
}
