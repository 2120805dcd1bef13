// Package metrics provides Prometheus instrumentation for threadpool components.
//
// # Overview
//
// The metrics package provides instrumentation for:
//   - Worker pools (size, live workers, queued tasks)
//   - Tasks (submitted, executed, completed, panicked, queue wait, run time)
//   - Cron feeders (triggers, failed submissions)
//   - Redis feeders (payloads received, errors)
//
// # Quick Start
//
//	pool, err := workerpool.NewWithMetrics(8, "ingest", metrics.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation:
//
//	reg := prometheus.NewRegistry()
//	cfg := metrics.Config{Enabled: true, Registry: reg, Namespace: "myapp"}
//	pool, _ := workerpool.NewWithMetrics(4, "jobs", cfg)
//
// Components that are given the same registerer and namespace share one
// Registry (see For), so several pools can report into one registry.
//
// # Available Metrics
//
//   - threadpool_workerpool_size
//   - threadpool_workerpool_live_workers
//   - threadpool_workerpool_queued_tasks
//   - threadpool_workerpool_tasks_submitted_total
//   - threadpool_workerpool_tasks_executed_total
//   - threadpool_workerpool_tasks_completed_total
//   - threadpool_workerpool_tasks_panicked_total
//   - threadpool_workerpool_task_wait_seconds
//   - threadpool_workerpool_task_duration_seconds
//   - threadpool_scheduler_triggers_total
//   - threadpool_scheduler_submit_failures_total
//   - threadpool_redisfeed_payloads_received_total
//   - threadpool_redisfeed_errors_total
//
// Pool metrics carry a pool_name label, scheduler metrics scheduler_name and
// entry, feed metrics feed_name.
package metrics
