package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBMaxConns int

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// AWS Services
	AWSRegion    string
	SQSRegion    string
	SQSQueueURL  string // empty: in-process queue
	SNSRegion    string
	SNSTopicARN  string // empty: lifecycle events are only logged
	SESFromEmail string
	AlertEmailTo string // empty: no failure alerts

	// Provider
	GupshupBaseURL  string
	ProviderTimeout time.Duration
	MediaTimeout    time.Duration

	// CredentialSecret is the master secret app tokens are encrypted under.
	CredentialSecret string

	// Jobs
	WorkerConcurrency  int
	TaskMaxRetries     int
	TaskBackoffBase    time.Duration
	JobStatusTTL       time.Duration
	WebhookDedupTTL    time.Duration
	RateLimitPerMinute int

	// Circuit breaker
	BreakerMaxFailures int
	BreakerRecovery    time.Duration
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "templar",
		DBName:     "templar",
		DBSSLMode:  "disable",
		DBMaxConns: 10,

		// Redis defaults
		RedisHost: "localhost",
		RedisPort: 6379,

		AWSRegion:    "us-east-1",
		SESFromEmail: "noreply@templar.local",

		GupshupBaseURL:  "https://partner.gupshup.io",
		ProviderTimeout: 10 * time.Second,
		MediaTimeout:    20 * time.Second,

		WorkerConcurrency:  10,
		TaskMaxRetries:     3,
		TaskBackoffBase:    time.Second,
		JobStatusTTL:       24 * time.Hour,
		WebhookDedupTTL:    10 * time.Minute,
		RateLimitPerMinute: 100,

		BreakerMaxFailures: 5,
		BreakerRecovery:    30 * time.Second,
	}

	strVars := map[string]*string{
		"LOG_LEVEL":         &cfg.LogLevel,
		"ENV":               &cfg.Env,
		"DB_HOST":           &cfg.DBHost,
		"DB_USER":           &cfg.DBUser,
		"DB_PASSWORD":       &cfg.DBPassword,
		"DB_NAME":           &cfg.DBName,
		"DB_SSLMODE":        &cfg.DBSSLMode,
		"REDIS_HOST":        &cfg.RedisHost,
		"REDIS_PASSWORD":    &cfg.RedisPassword,
		"AWS_REGION":        &cfg.AWSRegion,
		"SQS_QUEUE_URL":     &cfg.SQSQueueURL,
		"SNS_TOPIC_ARN":     &cfg.SNSTopicARN,
		"SES_FROM_EMAIL":    &cfg.SESFromEmail,
		"ALERT_EMAIL_TO":    &cfg.AlertEmailTo,
		"GUPSHUP_BASE_URL":  &cfg.GupshupBaseURL,
		"CREDENTIAL_SECRET": &cfg.CredentialSecret,
	}
	for name, dst := range strVars {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	intVars := map[string]*int{
		"PORT":                  &cfg.Port,
		"DB_PORT":               &cfg.DBPort,
		"DB_MAX_CONNS":          &cfg.DBMaxConns,
		"REDIS_PORT":            &cfg.RedisPort,
		"REDIS_DB":              &cfg.RedisDB,
		"WORKER_CONCURRENCY":    &cfg.WorkerConcurrency,
		"TASK_MAX_RETRIES":      &cfg.TaskMaxRetries,
		"RATE_LIMIT_PER_MINUTE": &cfg.RateLimitPerMinute,
		"BREAKER_MAX_FAILURES":  &cfg.BreakerMaxFailures,
	}
	for name, dst := range intVars {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = n
	}

	durationVars := map[string]*time.Duration{
		"PROVIDER_TIMEOUT":  &cfg.ProviderTimeout,
		"MEDIA_TIMEOUT":     &cfg.MediaTimeout,
		"TASK_BACKOFF_BASE": &cfg.TaskBackoffBase,
		"JOB_STATUS_TTL":    &cfg.JobStatusTTL,
		"WEBHOOK_DEDUP_TTL": &cfg.WebhookDedupTTL,
		"BREAKER_RECOVERY":  &cfg.BreakerRecovery,
	}
	for name, dst := range durationVars {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = d
	}

	// Regional services default to AWS_REGION
	cfg.SQSRegion = cfg.AWSRegion
	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	}
	cfg.SNSRegion = cfg.AWSRegion
	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	}

	if cfg.CredentialSecret == "" && cfg.IsProduction() {
		return nil, errors.New("CREDENTIAL_SECRET is required in production")
	}

	return cfg, nil
}
