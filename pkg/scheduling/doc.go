/*
Package scheduling groups the task execution primitives:

  - taskqueue: Unbounded multi-producer, multi-consumer FIFO queue
  - workerpool: Fixed worker pool running Tasks from a taskqueue
  - scheduler: Cron-driven submission of Tasks into any Executor

Worker Pool:

	pool, err := workerpool.New(4)
	if err != nil {
		log.Fatal(err)
	}

	_ = pool.Execute(workerpool.TaskFunc(func() {
		// Do work
	}))

	// Runs every queued task, then joins the workers.
	if err := pool.Shutdown(); err != nil {
		log.Printf("worker fault: %v", err)
	}

Scheduler:

	sched, _ := scheduler.New(pool)
	sched.AddFunc("report", "0 9 * * MON-FRI", sendReport) // Weekdays at 9 AM
	sched.AddFunc("heartbeat", "@every 30s", ping, scheduler.SkipIfStillRunning())
	sched.Start()
	defer sched.Stop(context.Background())

A schedule only enqueues; the task runs on a pool worker like any other.
All components are safe for concurrent use.
*/
package scheduling
