package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// IdempotencyTTL is how long a client-provided Idempotency-Key maps to the
	// job it created.
	IdempotencyTTL = 24 * time.Hour

	// processingTTL is the lock duration while a request is being accepted.
	processingTTL = time.Minute

	processingMarker = "processing"
)

// ErrDuplicateRequest means another request with the same key is still being accepted.
var ErrDuplicateRequest = errors.New("duplicate request: idempotency key already exists")

// IdempotencyResult is the response replayed for a repeated request.
type IdempotencyResult struct {
	JobID      string `json:"job_id"`
	StatusCode int    `json:"status_code"`
	CreatedAt  int64  `json:"created_at"`
}

// IdempotencyService makes job-creating requests safe to retry.
type IdempotencyService struct {
	client *Client
	logger *zap.Logger
}

// NewIdempotencyService creates a new idempotency service.
func NewIdempotencyService(client *Client, logger *zap.Logger) *IdempotencyService {
	return &IdempotencyService{
		client: client,
		logger: logger,
	}
}

func (s *IdempotencyService) buildKey(orgID, idempotencyKey string) string {
	return fmt.Sprintf("idempotency:%s:%s", orgID, idempotencyKey)
}

// Check returns (nil, nil) when the key is unused and ErrDuplicateRequest
// while it is reserved but not yet stored.
func (s *IdempotencyService) Check(ctx context.Context, orgID, idempotencyKey string) (*IdempotencyResult, error) {
	val, err := s.client.rdb.Get(ctx, s.buildKey(orgID, idempotencyKey)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	if val == processingMarker {
		return nil, ErrDuplicateRequest
	}

	var result IdempotencyResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		s.logger.Error("failed to unmarshal idempotency result", zap.Error(err))
		return nil, fmt.Errorf("invalid cached result: %w", err)
	}

	s.logger.Debug("idempotency cache hit",
		zap.String("org_id", orgID),
		zap.String("job_id", result.JobID),
	)
	return &result, nil
}

// Store records the job created for the key.
func (s *IdempotencyService) Store(ctx context.Context, orgID, idempotencyKey string, result *IdempotencyResult, ttl time.Duration) error {
	if result.CreatedAt == 0 {
		result.CreatedAt = time.Now().Unix()
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := s.client.rdb.Set(ctx, s.buildKey(orgID, idempotencyKey), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Release drops a reservation whose request failed so the client can retry.
func (s *IdempotencyService) Release(ctx context.Context, orgID, idempotencyKey string) error {
	if err := s.client.rdb.Del(ctx, s.buildKey(orgID, idempotencyKey)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Reserve acquires the key with SET NX. It reports false if the key exists.
func (s *IdempotencyService) Reserve(ctx context.Context, orgID, idempotencyKey string) (bool, error) {
	set, err := s.client.rdb.SetNX(ctx, s.buildKey(orgID, idempotencyKey), processingMarker, processingTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return set, nil
}

// CheckOrReserve returns the stored result for a repeated key, or reserves a
// fresh key and returns (nil, nil).
func (s *IdempotencyService) CheckOrReserve(ctx context.Context, orgID, idempotencyKey string) (*IdempotencyResult, error) {
	result, err := s.Check(ctx, orgID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	reserved, err := s.Reserve(ctx, orgID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, ErrDuplicateRequest
	}
	return nil, nil
}
