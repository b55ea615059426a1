package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Delivery is a dequeued job. Ack removes it from durable transports once
// the job has reached a terminal state.
type Delivery struct {
	Job *Job
	Ack func(ctx context.Context) error
}

// Queue transports jobs from the API to the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	Dequeue(ctx context.Context) (*Delivery, error)
}

// ErrQueueClosed is returned by Dequeue after Close.
var ErrQueueClosed = errors.New("queue closed")

// MemoryQueue is a buffered in-process queue for local runs and tests.
type MemoryQueue struct {
	jobs           chan *Job
	enqueueTimeout time.Duration
	logger         *zap.Logger
}

// NewMemoryQueue creates a new in-memory queue
func NewMemoryQueue(bufferSize int, logger *zap.Logger) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	logger.Info("initialized in-memory job queue", zap.Int("buffer_size", bufferSize))
	return &MemoryQueue{
		jobs:           make(chan *Job, bufferSize),
		enqueueTimeout: 5 * time.Second,
		logger:         logger,
	}
}

// Enqueue blocks up to five seconds when the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	timer := time.NewTimer(q.enqueueTimeout)
	defer timer.Stop()

	select {
	case q.jobs <- job:
		q.logger.Debug("job enqueued", zap.String("job_id", job.ID.String()), zap.String("kind", string(job.Kind)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("queue is full, could not enqueue job %s", job.ID)
	}
}

// Dequeue blocks until a job is available or ctx ends.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return nil, ErrQueueClosed
		}
		return &Delivery{Job: job, Ack: func(context.Context) error { return nil }}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops delivering jobs. Enqueue must not be called afterwards.
func (q *MemoryQueue) Close() {
	close(q.jobs)
}
