package sqs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/jobs"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
}

// API is the subset of the SQS client the queue uses.
type API interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Queue carries jobs between the API and the workers through SQS.
// A message is deleted only when its delivery is acked, so a crashed worker
// leaves the job to reappear after the visibility timeout.
type Queue struct {
	client   API
	queueURL string
	logger   *zap.Logger
}

// NewQueue creates a new SQS-backed job queue.
func NewQueue(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("sqs job queue initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return NewQueueWithClient(sqs.NewFromConfig(awsCfg), cfg.QueueURL, logger), nil
}

// NewQueueWithClient wraps an existing client.
func NewQueueWithClient(client API, queueURL string, logger *zap.Logger) *Queue {
	return &Queue{client: client, queueURL: queueURL, logger: logger}
}

// Enqueue sends a job to SQS.
func (q *Queue) Enqueue(ctx context.Context, job *jobs.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		q.logger.Error("failed to send job to sqs",
			zap.Error(err),
			zap.String("job_id", job.ID.String()),
		)
		return fmt.Errorf("sqs send failed: %w", err)
	}
	return nil
}

// Dequeue long-polls until a job arrives or ctx ends. Messages that do not
// decode are deleted so they cannot block the queue.
func (q *Queue) Dequeue(ctx context.Context) (*jobs.Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   120,
		})
		if err != nil {
			return nil, fmt.Errorf("sqs receive failed: %w", err)
		}
		if len(result.Messages) == 0 {
			continue
		}

		msg := result.Messages[0]
		receipt := aws.ToString(msg.ReceiptHandle)

		var job jobs.Job
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &job); err != nil {
			q.logger.Error("dropping undecodable job message", zap.Error(err))
			if derr := q.delete(ctx, receipt); derr != nil {
				q.logger.Warn("failed to delete undecodable message", zap.Error(derr))
			}
			continue
		}

		return &jobs.Delivery{
			Job: &job,
			Ack: func(ctx context.Context) error { return q.delete(ctx, receipt) },
		}, nil
	}
}

func (q *Queue) delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete failed: %w", err)
	}
	return nil
}
