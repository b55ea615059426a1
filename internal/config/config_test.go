package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("AWS_REGION", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "https://partner.gupshup.io", cfg.GupshupBaseURL)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 20*time.Second, cfg.MediaTimeout)
	assert.Equal(t, 3, cfg.TaskMaxRetries)
	assert.Equal(t, time.Second, cfg.TaskBackoffBase)
	assert.Equal(t, 24*time.Hour, cfg.JobStatusTTL)
	assert.Equal(t, 10*time.Minute, cfg.WebhookDedupTTL)
	assert.Equal(t, 100, cfg.RateLimitPerMinute)
	assert.Equal(t, "us-east-1", cfg.SQSRegion)
	assert.Equal(t, "us-east-1", cfg.SNSRegion)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("AWS_REGION", "ap-south-1")
	t.Setenv("SNS_REGION", "eu-west-1")
	t.Setenv("WORKER_CONCURRENCY", "32")
	t.Setenv("TASK_BACKOFF_BASE", "250ms")
	t.Setenv("SQS_QUEUE_URL", "https://sqs.ap-south-1.amazonaws.com/123/templar-jobs")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 32, cfg.WorkerConcurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.TaskBackoffBase)
	assert.Equal(t, "ap-south-1", cfg.SQSRegion)
	assert.Equal(t, "eu-west-1", cfg.SNSRegion)
	assert.Equal(t, "https://sqs.ap-south-1.amazonaws.com/123/templar-jobs", cfg.SQSQueueURL)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"bad port", "PORT", "http", "invalid PORT"},
		{"bad retries", "TASK_MAX_RETRIES", "three", "invalid TASK_MAX_RETRIES"},
		{"bad duration", "JOB_STATUS_TTL", "1 day", "invalid JOB_STATUS_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ProductionNeedsCredentialSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("CREDENTIAL_SECRET", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("CREDENTIAL_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
