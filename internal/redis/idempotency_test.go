package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return Wrap(rdb, zap.NewNop()), mr
}

func TestIdempotencyService_NewRequest(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())

	result, err := svc.CheckOrReserve(context.Background(), "org-1", "key-1")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestIdempotencyService_DuplicateWhileReserved(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	_, err := svc.CheckOrReserve(ctx, "org-1", "key-1")
	require.NoError(t, err)

	_, err = svc.CheckOrReserve(ctx, "org-1", "key-1")
	assert.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestIdempotencyService_ReplaysStoredJob(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	reserved, err := svc.Reserve(ctx, "org-1", "key-1")
	require.NoError(t, err)
	require.True(t, reserved)

	require.NoError(t, svc.Store(ctx, "org-1", "key-1", &IdempotencyResult{JobID: "job-9", StatusCode: 202}, IdempotencyTTL))

	cached, err := svc.CheckOrReserve(ctx, "org-1", "key-1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "job-9", cached.JobID)
	assert.Equal(t, 202, cached.StatusCode)
	assert.NotZero(t, cached.CreatedAt)
}

func TestIdempotencyService_OrgIsolation(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	_, err := svc.CheckOrReserve(ctx, "org-A", "same-key")
	require.NoError(t, err)

	result, err := svc.CheckOrReserve(ctx, "org-B", "same-key")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestIdempotencyService_ReleaseAllowsRetry(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	_, err := svc.CheckOrReserve(ctx, "org-1", "key-1")
	require.NoError(t, err)
	require.NoError(t, svc.Release(ctx, "org-1", "key-1"))

	result, err := svc.CheckOrReserve(ctx, "org-1", "key-1")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestIdempotencyService_ReservationExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	_, err := svc.CheckOrReserve(ctx, "org-1", "key-1")
	require.NoError(t, err)

	mr.FastForward(processingTTL + time.Second)

	result, err := svc.CheckOrReserve(ctx, "org-1", "key-1")
	require.NoError(t, err)
	assert.Nil(t, result)
}
