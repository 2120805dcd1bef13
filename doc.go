/*
Package threadpool is a fixed-size worker pool for Go, plus the pieces that
feed and observe it.

Task Execution (pkg/scheduling):
  - taskqueue: Unbounded FIFO queue with sender and receiver handles
  - workerpool: N workers draining one shared queue; faults surface on Shutdown
  - scheduler: Cron schedules that enqueue tasks into a pool, optionally
    deduplicated across instances with a Redis lock

Ingress and Pacing:
  - ingress/redisfeed: Pulls payloads from a Redis list into a pool
  - ratelimit/bucket: Token bucket limiter for pacing submissions
  - ratelimit/distributed: One rate shared by every process through Redis

Observability (pkg/metrics):
  - Prometheus collectors for pools, schedules and feeds

Example usage:

	import (
		"github.com/vnykmshr/threadpool/pkg/ratelimit/bucket"
		"github.com/vnykmshr/threadpool/pkg/scheduling/workerpool"
	)

	limiter, _ := bucket.New(10, 20) // 10 per second, burst 20
	pool, _ := workerpool.New(5)

	if limiter.Allow() {
		_ = pool.ExecuteFunc(job)
	}
	if err := pool.Shutdown(); err != nil {
		log.Printf("pool fault: %v", err)
	}

The poolctl command in cmd/poolctl wires all of these together from a YAML
or JSON config file, and picks up log level changes to that file without a
restart.
*/
package threadpool
