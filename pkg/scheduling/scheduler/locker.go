package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// lockTimeout bounds one TryLock round trip inside a trigger.
const lockTimeout = 2 * time.Second

// Locker lets several schedulers running the same entries agree on which of
// them submits a tick. TryLock must not block waiting for the holder; it
// reports false when another instance owns key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisLocker is a Locker backed by redsync. Locks are never released
// early; they expire after ttl so a late instance firing the same tick
// still finds them held.
type RedisLocker struct {
	rs     *redsync.Redsync
	prefix string
}

// NewRedisLocker creates a locker storing keys under prefix. With more than
// one client the Redlock quorum applies.
func NewRedisLocker(prefix string, clients ...redis.UniversalClient) (*RedisLocker, error) {
	if len(clients) == 0 {
		return nil, errors.New("scheduler: redis locker needs at least one client")
	}
	pools := make([]rsredis.Pool, 0, len(clients))
	for _, c := range clients {
		if c == nil {
			return nil, errors.New("scheduler: redis locker client is nil")
		}
		pools = append(pools, goredis.NewPool(c))
	}
	return &RedisLocker{rs: redsync.New(pools...), prefix: prefix}, nil
}

// TryLock makes a single acquisition attempt.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m := l.rs.NewMutex(l.prefix+key,
		redsync.WithExpiry(ttl),
		redsync.WithTries(1),
	)

	err := m.TryLockContext(ctx)
	if err == nil {
		return true, nil
	}
	var taken *redsync.ErrTaken
	if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
		return false, nil
	}
	return false, err
}

// claim asks the locker for the current tick of e. The lock lives for half
// the gap to the next activation, which covers clock skew between instances
// without swallowing the next tick.
func (s *Scheduler) claim(e *entry) (bool, error) {
	now := time.Now()
	ttl := e.schedule.Next(now).Sub(now) / 2
	if ttl < 10*time.Millisecond {
		ttl = 10 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	return s.locker.TryLock(ctx, s.name+":"+e.name, ttl)
}
