package processor

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/crm-dispatch/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, redis.Adapter) {
	mr := miniredis.RunT(t)
	adapter, err := redis.Connect(context.Background(), "crm:", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	return mr, adapter
}

func TestIdempotency_FirstAttempt(t *testing.T) {
	mr, rdb := setupRedis(t)
	s := NewIdempotencyService(rdb, DefaultIdempotencyConfig())

	a, err := s.Acquire(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", a.JobID)
	assert.Zero(t, a.RetryCount)
	assert.False(t, a.IsRetry())
	assert.True(t, mr.Exists("crm:dispatch:lock:job-1"))
}

func TestIdempotency_ConcurrentConsumer(t *testing.T) {
	_, rdb := setupRedis(t)
	s := NewIdempotencyService(rdb, DefaultIdempotencyConfig())
	ctx := context.Background()

	_, err := s.Acquire(ctx, "job-2")
	require.NoError(t, err)

	second, err := s.Acquire(ctx, "job-2")
	assert.ErrorIs(t, err, ErrLockAcquireFailed)
	assert.Nil(t, second)
}

func TestIdempotency_MarkSuccess(t *testing.T) {
	mr, rdb := setupRedis(t)
	s := NewIdempotencyService(rdb, DefaultIdempotencyConfig())
	ctx := context.Background()

	a, err := s.Acquire(ctx, "job-3")
	require.NoError(t, err)
	require.NoError(t, s.MarkSuccess(ctx, a))

	processed, err := s.IsProcessed(ctx, "job-3")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.False(t, mr.Exists("crm:dispatch:lock:job-3"))

	_, err = s.Acquire(ctx, "job-3")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestIdempotency_RetryThenExhausted(t *testing.T) {
	_, rdb := setupRedis(t)
	cfg := DefaultIdempotencyConfig()
	cfg.MaxRetries = 2
	s := NewIdempotencyService(rdb, cfg)
	ctx := context.Background()

	for i := 0; i < cfg.MaxRetries; i++ {
		a, err := s.Acquire(ctx, "job-4")
		require.NoError(t, err)
		assert.Equal(t, i, a.RetryCount)
		assert.Equal(t, i > 0, a.IsRetry())
		require.NoError(t, s.MarkFailure(ctx, a, assert.AnError))
	}

	n, err := s.RetryCount(ctx, "job-4")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Acquire(ctx, "job-4")
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestIdempotency_Release(t *testing.T) {
	_, rdb := setupRedis(t)
	s := NewIdempotencyService(rdb, DefaultIdempotencyConfig())
	ctx := context.Background()

	a, err := s.Acquire(ctx, "job-5")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, a))
	require.NoError(t, s.Release(ctx, a))
	require.NoError(t, s.Release(ctx, nil))

	_, err = s.Acquire(ctx, "job-5")
	assert.NoError(t, err)
}

func TestIdempotency_CorruptCounter(t *testing.T) {
	mr, rdb := setupRedis(t)
	s := NewIdempotencyService(rdb, DefaultIdempotencyConfig())
	require.NoError(t, mr.Set("crm:dispatch:retry:job-6", "abc"))

	_, err := s.RetryCount(context.Background(), "job-6")
	assert.ErrorContains(t, err, "corrupt retry counter")
}
