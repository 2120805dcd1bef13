// Package redisfeed pulls payloads from a Redis list and runs a handler for
// each one on a worker pool.
//
// Producers RPUSH string payloads onto the list; a Feed pops them with BLPOP
// in arrival order and submits one task per payload. With a single-worker
// pool the handler therefore sees payloads in list order.
package redisfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/redis/go-redis/v9"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/common/validation"
	"github.com/vnykmshr/threadpool/pkg/metrics"
	"github.com/vnykmshr/threadpool/pkg/scheduling/workerpool"
)

// Handler processes one payload. It runs on a pool worker.
type Handler func(payload string)

// Feed moves payloads from a Redis list into an executor.
type Feed struct {
	name    string
	key     string
	client  redis.UniversalClient
	exec    workerpool.Executor
	handler Handler
	logger  *slog.Logger
	metrics *metrics.Registry
	limiter Limiter

	pollTimeout  time.Duration
	errorBackoff time.Duration
	requeueTries uint

	received atomic.Int64
	running  atomic.Bool
}

// New creates a feed reading key through client.
func New(client redis.UniversalClient, key string, exec workerpool.Executor, handler Handler, opts ...Option) (*Feed, error) {
	if err := validation.ValidateNotNil("redisfeed", "client", client); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotEmpty("redisfeed", "key", key); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil("redisfeed", "executor", exec); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, tperrors.NewValidationError("redisfeed", "handler", nil, "cannot be nil")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := validation.ValidatePositiveDuration("redisfeed", "poll_timeout", o.pollTimeout); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositiveDuration("redisfeed", "error_backoff", o.errorBackoff); err != nil {
		return nil, err
	}

	f := &Feed{
		name:         o.name,
		key:          key,
		client:       client,
		exec:         exec,
		handler:      handler,
		logger:       o.logger.With("feed", o.name, "key", key),
		pollTimeout:  o.pollTimeout,
		errorBackoff: o.errorBackoff,
		limiter:      o.limiter,
		requeueTries: o.requeueTries,
	}
	if o.metrics.Enabled {
		f.metrics = metrics.For(o.metrics)
	}
	return f, nil
}

// Run pops payloads until ctx is done, then returns nil. Redis errors are
// logged and retried after the error backoff. Run returns an OperationError
// when the executor rejects a task or the rate limiter fails for a reason
// other than ctx ending, for example a wait that exceeds the limiter's
// burst. In both cases the payload is pushed back to the head of the list
// first so it is not lost. A payload still waiting on the rate limiter when
// ctx is done is pushed back the same way and Run returns nil.
func (f *Feed) Run(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		return tperrors.NewOperationError("redisfeed", "Run", errors.New("already running")).
			WithContext(fmt.Sprintf("feed %q", f.name))
	}
	defer f.running.Store(false)

	f.logger.Info("redis feed started")
	defer f.logger.Info("redis feed stopped")

	for ctx.Err() == nil {
		res, err := f.client.BLPop(ctx, f.pollTimeout, f.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			f.logger.Warn("redis pop failed", "error", err)
			f.countError()
			if !f.sleep(ctx, f.errorBackoff) {
				return nil
			}
			continue
		}

		// BLPOP replies with [key, value].
		payload := res[1]
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				f.requeue(ctx, payload, "rate limit wait interrupted")
				if ctx.Err() != nil {
					return nil
				}
				return tperrors.NewOperationError("redisfeed", "Run", err).
					WithContext(fmt.Sprintf("feed %q", f.name))
			}
		}
		if err := f.submit(payload); err != nil {
			f.countError()
			f.requeue(ctx, payload, "executor rejected payload")
			return tperrors.NewOperationError("redisfeed", "Run", err).
				WithContext(fmt.Sprintf("feed %q", f.name))
		}
	}
	return nil
}

func (f *Feed) submit(payload string) error {
	err := f.exec.Execute(workerpool.TaskFunc(func() {
		f.handler(payload)
	}))
	if err != nil {
		return err
	}

	f.received.Add(1)
	if f.metrics != nil {
		f.metrics.FeedReceived.WithLabelValues(f.name).Inc()
	}
	return nil
}

func (f *Feed) requeue(ctx context.Context, payload, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(f.requeueTries),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	).Do(func() error {
		return f.client.LPush(ctx, f.key, payload).Err()
	})
	if err != nil {
		f.logger.Error("failed to requeue payload, dropping it", "reason", reason, "payload", payload, "error", err)
		return
	}
	f.logger.Warn("payload requeued", "reason", reason, "payload_bytes", len(payload))
}

func (f *Feed) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (f *Feed) countError() {
	if f.metrics != nil {
		f.metrics.FeedErrors.WithLabelValues(f.name).Inc()
	}
}

// Push appends payloads to the tail of the feed's list.
func (f *Feed) Push(ctx context.Context, payloads ...string) error {
	if len(payloads) == 0 {
		return nil
	}
	args := make([]interface{}, len(payloads))
	for i, p := range payloads {
		args[i] = p
	}
	if err := f.client.RPush(ctx, f.key, args...).Err(); err != nil {
		return tperrors.NewOperationError("redisfeed", "Push", err)
	}
	return nil
}

// Pending returns the number of payloads waiting in Redis.
func (f *Feed) Pending(ctx context.Context) (int64, error) {
	n, err := f.client.LLen(ctx, f.key).Result()
	if err != nil {
		return 0, tperrors.NewOperationError("redisfeed", "Pending", err)
	}
	return n, nil
}

// Received returns the number of payloads handed to the executor.
func (f *Feed) Received() int64 {
	return f.received.Load()
}

// Name returns the feed name.
func (f *Feed) Name() string {
	return f.name
}
