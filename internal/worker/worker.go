package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/lalithlochan/templar/internal/apperr"
	"github.com/lalithlochan/templar/internal/jobs"
	"github.com/lalithlochan/templar/internal/metrics"
)

// Runner executes one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, job *jobs.Job) *jobs.Status
}

// Worker pulls jobs off a queue and runs them with bounded concurrency.
type Worker struct {
	queue  jobs.Queue
	runner Runner
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	config Config
	logger *zap.Logger
}

type Config struct {
	Concurrency  int
	AckTimeout   time.Duration
	ErrorBackoff time.Duration // pause after a failed dequeue
}

func New(queue jobs.Queue, runner Runner, cfg Config, logger *zap.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = 10 * time.Second
	}
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = time.Second
	}

	return &Worker{
		queue:  queue,
		runner: runner,
		sem:    semaphore.NewWeighted(int64(cfg.Concurrency)),
		config: cfg,
		logger: logger,
	}
}

// Start consumes jobs until ctx is cancelled or the queue is closed, then
// waits for in-flight jobs to finish.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("worker started", zap.Int("concurrency", w.config.Concurrency))
	defer w.wg.Wait()

	for {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			w.logger.Info("worker stopping")
			return
		}

		d, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.sem.Release(1)
			switch {
			case errors.Is(err, jobs.ErrQueueClosed):
				w.logger.Info("queue closed, worker stopping")
				return
			case ctx.Err() != nil:
				w.logger.Info("worker stopping")
				return
			}
			w.logger.Error("failed to dequeue job", zap.Error(err))
			if sleepContext(ctx, w.config.ErrorBackoff) != nil {
				return
			}
			continue
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer w.sem.Release(1)
			w.process(ctx, d)
		}()
	}
}

func (w *Worker) process(ctx context.Context, d *jobs.Delivery) {
	metrics.AddJobsInFlight(1)
	defer metrics.AddJobsInFlight(-1)

	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("job runner panicked",
				zap.String("job_id", d.Job.ID.String()),
				zap.Error(apperr.Internal(fmt.Errorf("%v", p))),
			)
		}
		w.ack(d)
	}()

	status := w.runner.Run(ctx, d.Job)
	w.logger.Debug("job finished",
		zap.String("job_id", d.Job.ID.String()),
		zap.String("status", string(status.State)),
	)
}

// ack uses its own context so a shutdown does not leave finished jobs on
// the queue.
func (w *Worker) ack(d *jobs.Delivery) {
	if d.Ack == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.config.AckTimeout)
	defer cancel()
	if err := d.Ack(ctx); err != nil {
		w.logger.Warn("failed to ack job",
			zap.String("job_id", d.Job.ID.String()),
			zap.Error(err),
		)
	}
}
