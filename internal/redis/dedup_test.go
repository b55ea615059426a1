package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebhookDeduper_FirstSeen(t *testing.T) {
	client, mr := setupTestRedis(t)
	d := NewWebhookDeduper(client, time.Minute, zap.NewNop())
	ctx := context.Background()
	body := []byte(`{"type":"template-event","payload":{"id":"abc123","status":"approved"}}`)

	first, err := d.FirstSeen(ctx, body)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.FirstSeen(ctx, body)
	require.NoError(t, err)
	assert.False(t, again)

	other, err := d.FirstSeen(ctx, []byte(`{"type":"template-event"}`))
	require.NoError(t, err)
	assert.True(t, other)

	mr.FastForward(2 * time.Minute)
	expired, err := d.FirstSeen(ctx, body)
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestWebhookDeduper_Forget(t *testing.T) {
	client, _ := setupTestRedis(t)
	d := NewWebhookDeduper(client, 0, zap.NewNop())
	ctx := context.Background()
	body := []byte(`{}`)

	_, err := d.FirstSeen(ctx, body)
	require.NoError(t, err)
	require.NoError(t, d.Forget(ctx, body))

	first, err := d.FirstSeen(ctx, body)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestWebhookDeduper_RedisError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectSetNX(dedupKey([]byte(`{}`)), 1, DefaultDedupTTL).SetErr(errors.New("timeout"))
	d := NewWebhookDeduper(Wrap(rdb, zap.NewNop()), 0, zap.NewNop())

	_, err := d.FirstSeen(context.Background(), []byte(`{}`))
	assert.ErrorContains(t, err, "redis setnx failed")
}
