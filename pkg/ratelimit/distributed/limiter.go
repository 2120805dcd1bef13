// Package distributed shares one rate limit between processes through Redis.
//
// Every Limiter configured with the same Redis key draws from the same GCRA
// bucket (github.com/go-redis/redis_rate), so N feeders on N hosts together
// stay under Rate. When Redis is unreachable a Limiter can fall back to a
// local token bucket instead of failing.
//
//	limiter, err := distributed.New(distributed.Config{
//		Redis: rdb,
//		Key:   "threadpool:tasks:rate",
//		Rate:  100, // per second across all instances
//		Burst: 20,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package distributed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/coder/quartz"
	"github.com/go-redis/redis_rate/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/common/validation"
	"github.com/vnykmshr/threadpool/pkg/ratelimit/bucket"
)

// Config holds configuration for a distributed limiter.
type Config struct {
	// Redis client for coordination
	Redis redis.UniversalClient

	// Key names the shared bucket. redis_rate stores it under "rate:"+Key.
	Key string

	// Rate is the number of events allowed per second across all instances
	Rate float64

	// Burst is the maximum number of events allowed at once
	Burst int

	// InstanceID identifies this process in logs; generated when empty
	InstanceID string

	// Fallback, when set, paces callers while Redis is failing
	Fallback *bucket.Limiter

	// RedisTimeout bounds each Redis round trip (default 500ms)
	RedisTimeout time.Duration

	// Logger receives fallback events (default slog.Default())
	Logger *slog.Logger

	// Clock is used for waits between attempts (default real clock)
	Clock quartz.Clock
}

// Limiter is a rate limiter whose state lives in Redis.
type Limiter struct {
	limiter  *redis_rate.Limiter
	key      string
	limit    redis_rate.Limit
	instance string
	fallback *bucket.Limiter
	timeout  time.Duration
	logger   *slog.Logger
	clock    quartz.Clock
}

// New validates config and creates a limiter.
func New(config Config) (*Limiter, error) {
	if err := validation.ValidateNotNil("distributed", "redis", config.Redis); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotEmpty("distributed", "key", config.Key); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive("distributed", "rate", config.Rate); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive("distributed", "burst", config.Burst); err != nil {
		return nil, err
	}

	if config.InstanceID == "" {
		config.InstanceID = generateInstanceID()
	}
	if config.RedisTimeout <= 0 {
		config.RedisTimeout = 500 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = quartz.NewReal()
	}

	return &Limiter{
		limiter:  redis_rate.NewLimiter(config.Redis),
		key:      config.Key,
		limit:    toLimit(config.Rate, config.Burst),
		instance: config.InstanceID,
		fallback: config.Fallback,
		timeout:  config.RedisTimeout,
		logger:   config.Logger.With("limiter", config.Key, "instance", config.InstanceID),
		clock:    config.Clock,
	}, nil
}

// toLimit expresses rate as one event per emission interval, which keeps
// fractional rates exact.
func toLimit(rate float64, burst int) redis_rate.Limit {
	return redis_rate.Limit{
		Rate:   1,
		Burst:  burst,
		Period: time.Duration(float64(time.Second) / rate),
	}
}

// generateInstanceID creates a unique identifier for this process.
func generateInstanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.NewString()[:8])
}

// Allow reports whether an event may happen now across all instances.
func (l *Limiter) Allow(ctx context.Context) bool {
	return l.AllowN(ctx, 1)
}

// AllowN reports whether n events may happen now, consuming them if so.
// On a Redis error the fallback decides, or the events are denied.
func (l *Limiter) AllowN(ctx context.Context, n int) bool {
	res, err := l.allowN(ctx, n)
	if err != nil {
		if l.fallback != nil {
			l.logger.Warn("redis rate limit unavailable, using local limiter", "error", err)
			return l.fallback.AllowN(n)
		}
		return false
	}
	return res.Allowed > 0
}

// Wait blocks until an event may happen or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.WaitN(ctx, 1)
}

// WaitN blocks until n events may happen or ctx is done. Redis is polled
// again after each RetryAfter, so concurrent waiters on other hosts compete
// fairly for freed capacity.
func (l *Limiter) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if n > l.limit.Burst {
		return fmt.Errorf("%w: n=%d burst=%d", bucket.ErrExceedsBurst, n, l.limit.Burst)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := l.allowN(ctx, n)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if l.fallback != nil {
				l.logger.Warn("redis rate limit unavailable, using local limiter", "error", err)
				return l.fallback.WaitN(ctx, n)
			}
			return tperrors.NewOperationError("distributed", "WaitN", err).
				WithContext(fmt.Sprintf("key %q", l.key))
		}
		if res.Allowed > 0 {
			return nil
		}
		delay := res.RetryAfter
		if delay < time.Millisecond {
			delay = time.Millisecond
		}

		timer := l.clock.NewTimer(delay, "distributed", "WaitN")
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (l *Limiter) allowN(ctx context.Context, n int) (*redis_rate.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.limiter.AllowN(ctx, l.key, l.limit, n)
}

// Remaining returns how many events the shared bucket would allow now,
// without consuming any.
func (l *Limiter) Remaining(ctx context.Context) (int, error) {
	res, err := l.allowN(ctx, 0)
	if err != nil {
		return 0, tperrors.NewOperationError("distributed", "Remaining", err)
	}
	return res.Remaining, nil
}

// Reset clears the shared bucket for every instance.
func (l *Limiter) Reset(ctx context.Context) error {
	if err := l.limiter.Reset(ctx, l.key); err != nil {
		return tperrors.NewOperationError("distributed", "Reset", err)
	}
	return nil
}

// InstanceID returns this process's identifier.
func (l *Limiter) InstanceID() string {
	return l.instance
}
