package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultDedupTTL is how long an identical webhook body is treated as a replay.
const DefaultDedupTTL = 10 * time.Minute

// WebhookDeduper drops provider retries of a webhook body that was already
// accepted. Replays that slip through are still harmless because applying an
// event twice leaves the template unchanged.
type WebhookDeduper struct {
	client *Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewWebhookDeduper creates a deduper. A zero ttl uses DefaultDedupTTL.
func NewWebhookDeduper(client *Client, ttl time.Duration, logger *zap.Logger) *WebhookDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &WebhookDeduper{client: client, ttl: ttl, logger: logger}
}

// FirstSeen reports whether body has not been seen within the TTL, marking it
// seen in the same round trip.
func (d *WebhookDeduper) FirstSeen(ctx context.Context, body []byte) (bool, error) {
	key := dedupKey(body)
	set, err := d.client.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !set {
		d.logger.Debug("duplicate webhook delivery", zap.String("key", key))
	}
	return set, nil
}

// Forget clears the mark for body, used when the event could not be queued.
func (d *WebhookDeduper) Forget(ctx context.Context, body []byte) error {
	if err := d.client.rdb.Del(ctx, dedupKey(body)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func dedupKey(body []byte) string {
	sum := sha256.Sum256(body)
	return "webhook:seen:" + hex.EncodeToString(sum[:])
}
