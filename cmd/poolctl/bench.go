package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/vnykmshr/threadpool/pkg/common/validation"
	"github.com/vnykmshr/threadpool/pkg/scheduling/workerpool"
)

func createBenchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "run synthetic tasks on a fresh pool and report throughput",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "number of workers (default: pool.workers from config)",
			},
			&cli.IntFlag{
				Name:    "tasks",
				Aliases: []string{"n"},
				Usage:   "number of tasks to submit",
				Value:   10000,
			},
			&cli.DurationFlag{
				Name:  "work",
				Usage: "time each task sleeps",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, _, closeLog, err := buildLogger(cmd, cfg.Log)
			if err != nil {
				return err
			}
			defer closeLog()

			workers := cmd.Int("workers")
			if workers == 0 {
				workers = cfg.Pool.Workers
			}

			res, err := runBench(workers, cmd.Int("tasks"), cmd.Duration("work"), logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "executed %d/%d tasks on %d workers in %s (%.0f tasks/s)\n",
				res.Executed, res.Submitted, workers, res.Elapsed.Round(time.Microsecond), res.Throughput())
			return nil
		},
	}
}

type benchResult struct {
	Submitted int
	Executed  int64
	Elapsed   time.Duration
}

func (r benchResult) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Executed) / r.Elapsed.Seconds()
}

// runBench submits tasks and shuts the pool down, so every submitted task
// has run by the time it returns.
func runBench(workers, tasks int, work time.Duration, logger *slog.Logger) (benchResult, error) {
	if err := validation.ValidatePositive("bench", "tasks", tasks); err != nil {
		return benchResult{}, err
	}
	pool, err := workerpool.New(workers, workerpool.WithName("bench"), workerpool.WithLogger(logger))
	if err != nil {
		return benchResult{}, err
	}

	var executed atomic.Int64
	task := workerpool.TaskFunc(func() {
		if work > 0 {
			time.Sleep(work)
		}
		executed.Add(1)
	})

	start := time.Now()
	for i := 0; i < tasks; i++ {
		if err := pool.Execute(task); err != nil {
			_ = pool.Shutdown()
			return benchResult{}, err
		}
	}
	if err := pool.Shutdown(); err != nil {
		return benchResult{}, err
	}

	res := benchResult{
		Submitted: tasks,
		Executed:  executed.Load(),
		Elapsed:   time.Since(start),
	}
	if res.Executed != int64(tasks) {
		return res, fmt.Errorf("bench: executed %d of %d tasks", res.Executed, tasks)
	}
	return res, nil
}
