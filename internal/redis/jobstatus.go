package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/jobs"
)

// DefaultJobStatusTTL keeps finished job documents around for a day.
const DefaultJobStatusTTL = 24 * time.Hour

// JobStatusStore persists job status documents with a TTL so pollers in any
// API replica can read what a worker wrote.
type JobStatusStore struct {
	client *Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewJobStatusStore creates a status store. A zero ttl uses DefaultJobStatusTTL.
func NewJobStatusStore(client *Client, ttl time.Duration, logger *zap.Logger) *JobStatusStore {
	if ttl <= 0 {
		ttl = DefaultJobStatusTTL
	}
	return &JobStatusStore{client: client, ttl: ttl, logger: logger}
}

func jobStatusKey(jobID string) string {
	return "job:" + jobID
}

// Put overwrites the status document and refreshes its TTL.
func (s *JobStatusStore) Put(ctx context.Context, st *jobs.Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal job status: %w", err)
	}
	if err := s.client.rdb.Set(ctx, jobStatusKey(st.JobID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Get returns jobs.ErrJobNotFound for unknown or expired ids.
func (s *JobStatusStore) Get(ctx context.Context, jobID string) (*jobs.Status, error) {
	val, err := s.client.rdb.Get(ctx, jobStatusKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, jobs.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var st jobs.Status
	if err := json.Unmarshal(val, &st); err != nil {
		s.logger.Error("corrupt job status document", zap.String("job_id", jobID), zap.Error(err))
		return nil, fmt.Errorf("invalid job status: %w", err)
	}
	return &st, nil
}
