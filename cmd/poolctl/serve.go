package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/threadpool/internal/config"
	"github.com/vnykmshr/threadpool/internal/logging"
	"github.com/vnykmshr/threadpool/pkg/ingress/redisfeed"
	"github.com/vnykmshr/threadpool/pkg/metrics"
	"github.com/vnykmshr/threadpool/pkg/ratelimit/bucket"
	"github.com/vnykmshr/threadpool/pkg/ratelimit/distributed"
	"github.com/vnykmshr/threadpool/pkg/scheduling/scheduler"
	"github.com/vnykmshr/threadpool/pkg/scheduling/workerpool"
)

const shutdownTimeout = 5 * time.Second

func createServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run a pool fed by cron schedules and Redis until interrupted",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "override pool.workers",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "override metrics.addr",
			},
			&cli.StringFlag{
				Name:  "redis-addr",
				Usage: "override redis.addr and enable the Redis feed",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if n := cmd.Int("workers"); n != 0 {
				cfg.Pool.Workers = n
			}
			if addr := cmd.String("metrics-addr"); addr != "" {
				cfg.Metrics.Addr = addr
			}
			if addr := cmd.String("redis-addr"); addr != "" {
				cfg.Redis.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, level, closeLog, err := buildLogger(cmd, cfg.Log)
			if err != nil {
				return err
			}
			defer closeLog()

			s, err := newServer(cfg, logger)
			if err != nil {
				return err
			}
			if path := cmd.String("config"); path != "" {
				// An explicit --log-level pins the level across reloads.
				if err := s.watchConfig(path, level, cmd.String("log-level") != ""); err != nil {
					s.close()
					return err
				}
			}
			return s.run(ctx)
		},
	}
}

// server wires the pool to its feeders and the metrics endpoint.
type server struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	pool     *workerpool.MetricsPool
	sched    *scheduler.Scheduler
	feed     *redisfeed.Feed
	redis    *redis.Client
	listener net.Listener
	watcher  *config.Watcher

	handled atomic.Int64
}

func newServer(cfg config.Config, logger *slog.Logger) (*server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mcfg := metrics.Config{
		Enabled:     cfg.Metrics.Enabled,
		Registry:    registry,
		Namespace:   cfg.Metrics.Namespace,
		TaskBuckets: cfg.Metrics.TaskBuckets,
	}

	s := &server{cfg: cfg, logger: logger, registry: registry}

	pool, err := workerpool.NewWithMetrics(cfg.Pool.Workers, cfg.Pool.Name, mcfg,
		workerpool.WithLogger(logger),
		workerpool.WithOnWorkerExit(func(id int, err error) {
			if err != nil {
				logger.Error("worker lost", "worker", id, "error", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	s.pool = pool

	if err := s.setup(mcfg); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *server) setup(mcfg metrics.Config) error {
	if s.cfg.Redis.Enabled() {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     s.cfg.Redis.Addr,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
		})
	}

	schedOpts := []scheduler.Option{
		scheduler.WithLogger(s.logger),
		scheduler.WithName(s.cfg.Pool.Name),
		scheduler.WithMetrics(mcfg),
	}
	if s.redis != nil && s.cfg.Redis.LockSchedules {
		locker, err := scheduler.NewRedisLocker(s.cfg.Redis.Key+":tick:", s.redis)
		if err != nil {
			return err
		}
		schedOpts = append(schedOpts, scheduler.WithLocker(locker))
	}
	sched, err := scheduler.New(s.pool, schedOpts...)
	if err != nil {
		return err
	}
	for _, sc := range s.cfg.Schedules {
		name, message := sc.Name, sc.Message
		if _, err := sched.AddFunc(name, sc.Spec, func() {
			s.logger.Info("schedule fired", "entry", name, "message", message)
		}); err != nil {
			return fmt.Errorf("schedule %q: %w", name, err)
		}
	}
	s.sched = sched

	if s.redis != nil {
		opts := []redisfeed.Option{
			redisfeed.WithLogger(s.logger),
			redisfeed.WithName(s.cfg.Pool.Name),
			redisfeed.WithPollTimeout(s.cfg.Redis.PollTimeout),
			redisfeed.WithMetrics(mcfg),
		}
		if s.cfg.Redis.Limited() {
			limiter, err := s.feedLimiter()
			if err != nil {
				return err
			}
			opts = append(opts, redisfeed.WithRateLimit(limiter))
		}
		feed, err := redisfeed.New(s.redis, s.cfg.Redis.Key, s.pool, s.handlePayload, opts...)
		if err != nil {
			return err
		}
		s.feed = feed
	}

	if s.cfg.Metrics.Enabled {
		ln, err := net.Listen("tcp", s.cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		s.listener = ln
	}
	return nil
}

// watchConfig reloads path while serving. Only the log level is applied
// live; other settings take effect on restart.
func (s *server) watchConfig(path string, level *slog.LevelVar, pinLevel bool) error {
	w, err := config.NewWatcher(path, config.DefaultDebounce, func(cfg config.Config, err error) {
		if err != nil {
			s.logger.Warn("config reload failed, keeping current settings", "path", path, "error", err)
			return
		}
		if !pinLevel {
			if l, perr := logging.ParseLevel(cfg.Log.Level); perr == nil && l != level.Level() {
				level.Set(l)
				s.logger.Info("log level changed", "level", l.String())
			}
		}
		s.logger.Debug("config reloaded", "path", path)
	})
	if err != nil {
		return err
	}
	s.watcher = w
	return nil
}

// feedLimiter builds the per-process bucket, or the shared Redis limiter
// with that bucket as its fallback.
func (s *server) feedLimiter() (redisfeed.Limiter, error) {
	rc := s.cfg.Redis
	local, err := bucket.New(bucket.Limit(rc.RateLimit), rc.Burst)
	if err != nil {
		return nil, err
	}
	if rc.RateLimitScope != "shared" {
		return local, nil
	}
	shared, err := distributed.New(distributed.Config{
		Redis:    s.redis,
		Key:      rc.Key + ":rate",
		Rate:     rc.RateLimit,
		Burst:    rc.Burst,
		Fallback: local,
		Logger:   s.logger,
	})
	if err != nil {
		return nil, err
	}
	return shared, nil
}

func (s *server) handlePayload(payload string) {
	s.handled.Add(1)
	s.logger.Info("payload processed", "bytes", len(payload))
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if s.pool.LiveWorkers() == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintf(w, "live_workers=%d queued=%d\n", s.pool.LiveWorkers(), s.pool.QueueSize())
	})
	return mux
}

// metricsAddr returns the bound metrics address, empty when disabled.
func (s *server) metricsAddr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// run blocks until ctx is done or a component fails. The feeders are
// stopped first, then the pool drains every accepted task.
func (s *server) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if s.listener != nil {
		srv := &http.Server{Handler: s.handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	s.sched.Start()
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.sched.Stop(stopCtx)
	})

	if s.feed != nil {
		g.Go(func() error {
			return s.feed.Run(gctx)
		})
	}

	if s.watcher != nil {
		g.Go(func() error {
			return s.watcher.Run(gctx)
		})
	}

	s.logger.Info("serving",
		"workers", s.cfg.Pool.Workers,
		"schedules", len(s.cfg.Schedules),
		"redis", s.cfg.Redis.Enabled(),
		"redis_rate_limit", s.cfg.Redis.RateLimit,
		"metrics_addr", s.metricsAddr(),
	)

	err := g.Wait()
	if cerr := s.close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	s.logger.Info("stopped", "payloads", s.handled.Load(), "completed", s.pool.TotalCompleted())
	return err
}

// close drains the pool and releases connections.
func (s *server) close() error {
	err := s.pool.Shutdown()
	if s.redis != nil {
		if cerr := s.redis.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	if s.listener != nil {
		// Serve closes the listener itself; this covers a server that never ran.
		_ = s.listener.Close()
	}
	return err
}
