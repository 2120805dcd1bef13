package bucket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
)

func newLimiter(t *testing.T, limit Limit, burst int) (*Limiter, *quartz.Mock) {
	t.Helper()
	mock := quartz.NewMock(t)
	l, err := New(limit, burst, WithClock(mock))
	require.NoError(t, err)
	return l, mock
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name  string
		limit Limit
		burst int
	}{
		{"negative rate", -1, 1},
		{"zero burst", 10, 0},
		{"negative burst", 10, -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.limit, tt.burst)
			require.Error(t, err)
			assert.True(t, tperrors.IsValidationError(err))
		})
	}
}

func TestEvery(t *testing.T) {
	assert.Equal(t, Limit(10), Every(100*time.Millisecond))
	assert.Equal(t, Inf, Every(0))
}

func TestAllowConsumesBurstThenRefills(t *testing.T) {
	l, mock := newLimiter(t, 2, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(), "token %d", i)
	}
	assert.False(t, l.Allow())

	mock.Advance(500 * time.Millisecond)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	// Refill stops at the burst.
	mock.Advance(10 * time.Second)
	assert.InDelta(t, 3.0, l.Tokens(), 1e-9)
}

func TestAllowN(t *testing.T) {
	l, _ := newLimiter(t, 1, 5)

	assert.True(t, l.AllowN(0))
	assert.True(t, l.AllowN(4))
	assert.False(t, l.AllowN(2))
	assert.True(t, l.AllowN(1))
}

func TestInfiniteLimit(t *testing.T) {
	l, _ := newLimiter(t, Inf, 1)

	for i := 0; i < 100; i++ {
		require.True(t, l.Allow())
	}
	require.NoError(t, l.WaitN(context.Background(), 50))
}

func TestZeroLimit(t *testing.T) {
	l, mock := newLimiter(t, 0, 2)

	require.NoError(t, l.Wait(context.Background()))
	require.NoError(t, l.Wait(context.Background()))
	mock.Advance(time.Hour)
	assert.False(t, l.Allow())

	err := l.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExceedsBurst))
}

func TestWaitNExceedsBurst(t *testing.T) {
	l, _ := newLimiter(t, 10, 2)

	err := l.WaitN(context.Background(), 3)
	require.ErrorIs(t, err, ErrExceedsBurst)
	assert.InDelta(t, 2.0, l.Tokens(), 1e-9)
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, mock := newLimiter(t, 4, 1)
	require.True(t, l.Allow())

	trap := mock.Trap().NewTimer("bucket", "WaitN")
	defer trap.Close()

	done := make(chan error, 1)
	go func() { done <- l.Wait(ctx) }()

	call := trap.MustWait(ctx)
	assert.Equal(t, 250*time.Millisecond, call.Duration)
	call.MustRelease(ctx)

	select {
	case <-done:
		t.Fatal("Wait returned before the token was available")
	default:
	}

	mock.Advance(250 * time.Millisecond).MustWait(ctx)
	require.NoError(t, <-done)
	assert.InDelta(t, 0.0, l.Tokens(), 1e-9)
}

func TestWaitCancelReturnsTokens(t *testing.T) {
	testCtx, testCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer testCancel()

	l, mock := newLimiter(t, 1, 2)
	require.True(t, l.AllowN(2))

	trap := mock.Trap().NewTimer("bucket", "WaitN")
	defer trap.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.WaitN(ctx, 2) }()

	call := trap.MustWait(testCtx)
	assert.Equal(t, 2*time.Second, call.Duration)
	call.MustRelease(testCtx)
	assert.InDelta(t, -2.0, l.Tokens(), 1e-9)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.InDelta(t, 0.0, l.Tokens(), 1e-9)
}

func TestWaitCancelledContext(t *testing.T) {
	l, _ := newLimiter(t, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.Wait(ctx), context.Canceled)
	assert.InDelta(t, 1.0, l.Tokens(), 1e-9)
}

func TestSetLimitAndBurst(t *testing.T) {
	l, mock := newLimiter(t, 1, 4)
	require.True(t, l.AllowN(4))

	mock.Advance(time.Second)
	l.SetLimit(10)
	assert.Equal(t, Limit(10), l.Limit())
	// The second at the old rate earned one token.
	assert.InDelta(t, 1.0, l.Tokens(), 1e-9)

	mock.Advance(100 * time.Millisecond)
	assert.InDelta(t, 2.0, l.Tokens(), 1e-9)

	l.SetBurst(1)
	assert.Equal(t, 1, l.Burst())
	assert.InDelta(t, 1.0, l.Tokens(), 1e-9)

	l.SetBurst(0)
	assert.Equal(t, 1, l.Burst())
}
