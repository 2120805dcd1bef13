// Package bucket provides a token bucket rate limiter.
//
// A Limiter holds up to Burst tokens and refills at Limit tokens per second.
// Each event consumes one token; Allow reports whether a token is available
// now and Wait blocks until one is.
package bucket

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/coder/quartz"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/common/validation"
)

// Limit is a rate in events per second. Zero allows only the initial
// burst; Inf allows everything.
type Limit float64

// Inf is the infinite rate limit; it allows all events.
var Inf = Limit(math.Inf(1))

// ErrExceedsBurst is returned by WaitN when n can never be satisfied.
var ErrExceedsBurst = errors.New("bucket: request exceeds burst or rate is zero")

// Every converts a minimum interval between events to a Limit.
func Every(interval time.Duration) Limit {
	if interval <= 0 {
		return Inf
	}
	return Limit(time.Second) / Limit(interval)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source. Defaults to the real clock.
func WithClock(clock quartz.Clock) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// Limiter is a token bucket. It is safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	clock  quartz.Clock
	limit  Limit
	burst  int
	tokens float64
	last   time.Time
}

// New creates a limiter that starts full.
func New(limit Limit, burst int, opts ...Option) (*Limiter, error) {
	if err := validation.ValidateNonNegative("bucket", "rate", limit); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive("bucket", "burst", burst); err != nil {
		return nil, err
	}

	l := &Limiter{
		clock:  quartz.NewReal(),
		limit:  limit,
		burst:  burst,
		tokens: float64(burst),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.last = l.clock.Now()
	return l, nil
}

// Allow reports whether an event may happen now.
func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

// AllowN reports whether n events may happen now, consuming the tokens if so.
func (l *Limiter) AllowN(n int) bool {
	if n <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit == Inf {
		return true
	}
	l.refill(l.clock.Now())
	if l.tokens < float64(n) {
		return false
	}
	l.tokens -= float64(n)
	return true
}

// Wait blocks until an event may happen or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.WaitN(ctx, 1)
}

// WaitN blocks until n events may happen or ctx is done. Tokens reserved by
// a cancelled wait are returned to the bucket.
func (l *Limiter) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	delay, err := l.reserve(n)
	if err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}

	timer := l.clock.NewTimer(delay, "bucket", "WaitN")
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		l.cancel(n)
		return ctx.Err()
	}
}

// reserve takes n tokens, letting the balance go negative, and returns how
// long the caller must wait for the debt to be repaid.
func (l *Limiter) reserve(n int) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit == Inf {
		return 0, nil
	}
	if n > l.burst {
		return 0, fmt.Errorf("%w: n=%d burst=%d", ErrExceedsBurst, n, l.burst)
	}

	l.refill(l.clock.Now())
	if l.tokens >= float64(n) {
		l.tokens -= float64(n)
		return 0, nil
	}
	if l.limit == 0 {
		return 0, tperrors.NewOperationError("bucket", "WaitN", ErrExceedsBurst).
			WithContext("rate is zero and the initial burst is spent")
	}

	missing := float64(n) - l.tokens
	l.tokens -= float64(n)
	return time.Duration(missing / float64(l.limit) * float64(time.Second)), nil
}

func (l *Limiter) cancel(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.clock.Now())
	l.tokens = math.Min(l.tokens+float64(n), float64(l.burst))
}

// refill adds the tokens earned since the last update. Callers hold mu.
func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.last)
	l.last = now
	if elapsed <= 0 || l.limit == 0 {
		return
	}
	if l.limit == Inf {
		l.tokens = float64(l.burst)
		return
	}
	l.tokens = math.Min(l.tokens+elapsed.Seconds()*float64(l.limit), float64(l.burst))
}

// Tokens returns the current balance, negative while waiters hold debt.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.clock.Now())
	return l.tokens
}

// SetLimit changes the refill rate, keeping the tokens earned so far.
func (l *Limiter) SetLimit(limit Limit) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.clock.Now())
	l.limit = limit
}

// SetBurst changes the capacity, trimming the balance to fit.
func (l *Limiter) SetBurst(burst int) {
	if burst <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.clock.Now())
	l.burst = burst
	l.tokens = math.Min(l.tokens, float64(burst))
}

// Limit returns the refill rate.
func (l *Limiter) Limit() Limit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Burst returns the capacity.
func (l *Limiter) Burst() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.burst
}
