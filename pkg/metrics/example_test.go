package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Example_basicUsage demonstrates basic metrics configuration.
func Example_basicUsage() {
	registry := NewRegistry(prometheus.NewRegistry())

	registry.WorkerPoolSize.WithLabelValues("jobs").Set(4)
	registry.TasksSubmitted.WithLabelValues("jobs").Add(10)

	fmt.Println(testutil.ToFloat64(registry.WorkerPoolSize.WithLabelValues("jobs")))
	fmt.Println(testutil.ToFloat64(registry.TasksSubmitted.WithLabelValues("jobs")))

	// Output:
	// 4
	// 10
}

// Example_configuration demonstrates different metrics configurations.
func Example_configuration() {
	defaultConfig := DefaultConfig()
	fmt.Printf("Default enabled: %v\n", defaultConfig.Enabled)
	fmt.Printf("Default namespace: %s\n", defaultConfig.Namespace)

	customConfig := Config{
		Enabled:   false,
		Namespace: "myapp",
	}
	fmt.Printf("Custom enabled: %v\n", customConfig.Enabled)
	fmt.Printf("Custom namespace: %s\n", customConfig.Namespace)

	// Output:
	// Default enabled: true
	// Default namespace: threadpool
	// Custom enabled: false
	// Custom namespace: myapp
}
