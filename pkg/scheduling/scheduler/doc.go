/*
Package scheduler feeds a worker pool on cron schedules.

A Scheduler owns a cron runner (github.com/robfig/cron/v3). Each time an
entry fires, its task is submitted to the executor the scheduler was built
with, usually a *workerpool.Pool or *workerpool.MetricsPool. The trigger
only enqueues; the task runs on a pool worker.

Basic Usage:

	pool, _ := workerpool.New(4)
	defer pool.Shutdown()

	s, _ := scheduler.New(pool, scheduler.WithName("reports"))
	s.AddFunc("heartbeat", "@every 30s", func() { log.Println("alive") })
	s.AddFunc("nightly", "0 0 2 * * *", buildReport)

	s.Start()
	defer s.Stop(context.Background())

Specs:

Specs use the standard five cron fields with an optional leading seconds
field, plus the descriptors @yearly, @monthly, @weekly, @daily, @hourly and
"@every <duration>". Validate and Describe check a spec without scheduling
it.

Entry Options:

	// Never queue a second copy while the first is pending or running.
	s.AddFunc("sync", "@every 5s", sync, scheduler.SkipIfStillRunning())

	// Fire three times, then remove the entry.
	s.AddFunc("warmup", "@every 1s", warm, scheduler.MaxRuns(3))

Several Instances:

When the same schedules run in several processes, WithLocker lets only one
of them submit each tick. RedisLocker takes a redsync lock named after the
scheduler and entry, held for half the time to the next activation; the
losers count the tick in threadpool_scheduler_lock_skips_total.

	locker, _ := scheduler.NewRedisLocker("reports:tick:", rdb)
	s, _ := scheduler.New(pool, scheduler.WithName("reports"), scheduler.WithLocker(locker))

Failures:

When the executor rejects a task, typically because the pool has been shut
down, the failure is logged and counted in
threadpool_scheduler_submit_failures_total. A trigger never panics. The
scheduler should be stopped before the pool it feeds is shut down.
*/
package scheduler
