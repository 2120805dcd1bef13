package distributed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/ratelimit/bucket"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		DialTimeout: 100 * time.Millisecond,
		ReadTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestNewValidation(t *testing.T) {
	client, _ := newTestRedis(t)

	tests := []struct {
		name   string
		config Config
	}{
		{"nil redis", Config{Key: "k", Rate: 1, Burst: 1}},
		{"empty key", Config{Redis: client, Rate: 1, Burst: 1}},
		{"zero rate", Config{Redis: client, Key: "k", Burst: 1}},
		{"negative rate", Config{Redis: client, Key: "k", Rate: -5, Burst: 1}},
		{"zero burst", Config{Redis: client, Key: "k", Rate: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			assert.Nil(t, l)
			assert.True(t, tperrors.IsValidationError(err), "got %v", err)
		})
	}
}

func TestInstanceIDGenerated(t *testing.T) {
	client, _ := newTestRedis(t)

	a, err := New(Config{Redis: client, Key: "k", Rate: 1, Burst: 1})
	require.NoError(t, err)
	b, err := New(Config{Redis: client, Key: "k", Rate: 1, Burst: 1})
	require.NoError(t, err)
	c, err := New(Config{Redis: client, Key: "k", Rate: 1, Burst: 1, InstanceID: "worker-7"})
	require.NoError(t, err)

	assert.NotEmpty(t, a.InstanceID())
	assert.NotEqual(t, a.InstanceID(), b.InstanceID())
	assert.Equal(t, "worker-7", c.InstanceID())
}

func TestLimitIsSharedBetweenInstances(t *testing.T) {
	client, _ := newTestRedis(t)
	ctx := context.Background()
	cfg := Config{Redis: client, Key: "shared", Rate: 0.01, Burst: 2}

	a, err := New(cfg)
	require.NoError(t, err)
	b, err := New(cfg)
	require.NoError(t, err)

	assert.True(t, a.Allow(ctx))
	assert.True(t, b.Allow(ctx))
	assert.False(t, a.Allow(ctx))
	assert.False(t, b.Allow(ctx))

	remaining, err := a.Remaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	require.NoError(t, b.Reset(ctx))
	assert.True(t, a.Allow(ctx))
}

func TestWaitPacesCallers(t *testing.T) {
	client, _ := newTestRedis(t)
	l, err := New(Config{Redis: client, Key: "paced", Rate: 50, Burst: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	// Two waits of one 20ms emission interval each.
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestWaitHonorsContext(t *testing.T) {
	client, _ := newTestRedis(t)
	l, err := New(Config{Redis: client, Key: "slow", Rate: 0.001, Burst: 1})
	require.NoError(t, err)

	require.True(t, l.Allow(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)
}

func TestWaitNExceedsBurst(t *testing.T) {
	client, _ := newTestRedis(t)
	l, err := New(Config{Redis: client, Key: "small", Rate: 10, Burst: 2})
	require.NoError(t, err)

	assert.ErrorIs(t, l.WaitN(context.Background(), 3), bucket.ErrExceedsBurst)
	assert.NoError(t, l.WaitN(context.Background(), 0))
}

func TestRedisDownWithoutFallback(t *testing.T) {
	client, mr := newTestRedis(t)
	l, err := New(Config{Redis: client, Key: "down", Rate: 10, Burst: 1, RedisTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	mr.Close()

	assert.False(t, l.Allow(context.Background()))

	err = l.Wait(context.Background())
	require.Error(t, err)
	var opErr *tperrors.OperationError
	assert.ErrorAs(t, err, &opErr)
}

func TestRedisDownUsesFallback(t *testing.T) {
	client, mr := newTestRedis(t)
	local, err := bucket.New(0, 2)
	require.NoError(t, err)

	l, err := New(Config{
		Redis:        client,
		Key:          "down",
		Rate:         10,
		Burst:        5,
		Fallback:     local,
		RedisTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	mr.Close()

	assert.True(t, l.Allow(context.Background()))
	require.NoError(t, l.Wait(context.Background()))
	assert.False(t, l.Allow(context.Background()), "fallback bucket is spent")
}
