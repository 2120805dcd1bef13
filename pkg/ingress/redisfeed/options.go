package redisfeed

import (
	"context"
	"log/slog"
	"time"

	"github.com/vnykmshr/threadpool/pkg/metrics"
)

const (
	// DefaultPollTimeout bounds each BLPOP. Redis blocks in whole seconds,
	// so shorter timeouts are rounded up by the client.
	DefaultPollTimeout = time.Second

	// DefaultErrorBackoff is the pause after a failed Redis call.
	DefaultErrorBackoff = 500 * time.Millisecond

	// DefaultRequeueAttempts bounds the LPUSH retries for a payload that
	// was popped but not submitted.
	DefaultRequeueAttempts = 5
)

// Limiter paces submissions. *bucket.Limiter and *distributed.Limiter
// both satisfy it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Option configures a Feed.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	name         string
	pollTimeout  time.Duration
	errorBackoff time.Duration
	metrics      metrics.Config
	limiter      Limiter
	requeueTries uint
}

func defaultOptions() options {
	return options{
		logger:       slog.Default(),
		name:         "default",
		pollTimeout:  DefaultPollTimeout,
		errorBackoff: DefaultErrorBackoff,
		requeueTries: DefaultRequeueAttempts,
	}
}

// WithLogger sets the logger. nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName names the feed in log events and metrics labels.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithPollTimeout sets how long each BLPOP blocks. Run notices context
// cancellation at most one poll timeout late.
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) {
		o.pollTimeout = d
	}
}

// WithErrorBackoff sets the pause after a Redis error before polling again.
func WithErrorBackoff(d time.Duration) Option {
	return func(o *options) {
		o.errorBackoff = d
	}
}

// WithMetrics counts received payloads and errors when config.Enabled is set.
func WithMetrics(config metrics.Config) Option {
	return func(o *options) {
		o.metrics = config
	}
}

// WithRateLimit paces submissions: each popped payload waits for a token
// before it reaches the executor.
func WithRateLimit(limiter Limiter) Option {
	return func(o *options) {
		o.limiter = limiter
	}
}

// WithRequeueAttempts sets how many times a payload is pushed back before
// it is dropped with an error log. Zero is ignored.
func WithRequeueAttempts(n uint) Option {
	return func(o *options) {
		if n > 0 {
			o.requeueTries = n
		}
	}
}
