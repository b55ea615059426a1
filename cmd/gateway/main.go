package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/api"
	"github.com/lalithlochan/templar/internal/circuitbreaker"
	"github.com/lalithlochan/templar/internal/config"
	"github.com/lalithlochan/templar/internal/crypto"
	"github.com/lalithlochan/templar/internal/db"
	"github.com/lalithlochan/templar/internal/jobs"
	"github.com/lalithlochan/templar/internal/metrics"
	"github.com/lalithlochan/templar/internal/observ"
	"github.com/lalithlochan/templar/internal/provider"
	"github.com/lalithlochan/templar/internal/redis"
	"github.com/lalithlochan/templar/internal/sns"
	"github.com/lalithlochan/templar/internal/sqs"
	"github.com/lalithlochan/templar/internal/syncer"
	"github.com/lalithlochan/templar/internal/webhook"
	"github.com/lalithlochan/templar/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting templar gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx := context.Background()

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		MaxConns: int32(cfg.DBMaxConns),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	templates := db.NewTemplateRepository(database, logger)
	apps := db.NewAppRepository(database, logger)

	secret := cfg.CredentialSecret
	if secret == "" {
		logger.Warn("CREDENTIAL_SECRET not set, using development secret")
		secret = "templar-development-secret"
	}
	vault, err := crypto.NewVault(secret)
	if err != nil {
		return fmt.Errorf("failed to create credential vault: %w", err)
	}

	// Redis backs job status, idempotency, webhook dedup and rate limiting.
	// Without it job status lives in memory and the rest is disabled.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var (
		statuses    jobs.StatusStore = jobs.NewMemoryStatusStore()
		idempotency *redis.IdempotencyService
		dedup       *redis.WebhookDeduper
		rateLimiter *redis.RateLimiter
	)
	if redisClient != nil {
		defer redisClient.Close()
		statuses = redis.NewJobStatusStore(redisClient, cfg.JobStatusTTL, logger)
		idempotency = redis.NewIdempotencyService(redisClient, logger)
		dedup = redis.NewWebhookDeduper(redisClient, cfg.WebhookDedupTTL, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimitPerMinute,
			Window: time.Minute,
		})
	}

	// Job transport: SQS when configured, otherwise an in-process queue.
	var queue jobs.Queue
	if cfg.SQSQueueURL != "" {
		queue, err = sqs.NewQueue(ctx, sqs.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSQueueURL,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create sqs queue: %w", err)
		}
	} else {
		logger.Warn("SQS_QUEUE_URL not set, jobs are queued in memory")
		memQueue := jobs.NewMemoryQueue(1000, logger)
		defer memQueue.Close()
		queue = memQueue
	}

	// Outcome notifications
	notifiers := []worker.Notifier{worker.NewLogNotifier(logger)}
	if cfg.SNSTopicARN != "" {
		publisher, err := sns.NewPublisher(ctx, cfg.SNSTopicARN, cfg.SNSRegion)
		if err != nil {
			logger.Warn("sns publisher unavailable, lifecycle events disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, worker.NewSNSNotifier(publisher, logger))
		}
	}
	if cfg.AlertEmailTo != "" {
		alerter, err := worker.NewSESNotifier(ctx, worker.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
			ToEmail:   cfg.AlertEmailTo,
		}, logger)
		if err != nil {
			logger.Warn("ses alerter unavailable, failure alerts disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, alerter)
		}
	}

	breakerCfg := circuitbreaker.DefaultConfig("")
	breakerCfg.MaxFailures = cfg.BreakerMaxFailures
	breakerCfg.RecoveryTimeout = cfg.BreakerRecovery
	breakerCfg.OnStateChange = func(name string, _, to circuitbreaker.State) {
		metrics.SetBreakerState(name, int(to))
	}
	breakers := circuitbreaker.NewRegistry(breakerCfg, logger)

	providers := provider.NewFactory(provider.GupshupConfig{
		BaseURL:         cfg.GupshupBaseURL,
		Timeout:         cfg.ProviderTimeout,
		DownloadTimeout: cfg.MediaTimeout,
		UploadTimeout:   cfg.MediaTimeout,
	}, breakers.Wrapper(), logger)

	orchestrator := worker.NewOrchestrator(worker.Deps{
		Templates: templates,
		Apps:      apps,
		Vault:     vault,
		Providers: providers,
		Syncer:    syncer.NewReconciler(templates, logger),
		Webhooks:  webhook.NewReconciler(templates, logger),
		Statuses:  statuses,
		Notifier:  worker.NewMultiNotifier(logger, notifiers...),
	}, worker.RetryConfig{
		MaxRetries:  cfg.TaskMaxRetries,
		BackoffBase: cfg.TaskBackoffBase,
	}, logger)

	w := worker.New(queue, orchestrator, worker.Config{
		Concurrency: cfg.WorkerConcurrency,
	}, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		w.Start(workerCtx)
		close(workerDone)
	}()

	logger.Info("background worker started", zap.Int("concurrency", cfg.WorkerConcurrency))

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	handler := api.NewHandler(logger, queue, statuses).
		WithTemplates(templates).
		WithIdempotency(idempotency).
		WithWebhookDedup(dedup).
		WithBreakers(breakers)
	handler.Mount(r, rateLimiter)

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		workerCancel()
		<-workerDone
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			workerCancel()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		// Stop taking jobs and let in-flight ones finish
		workerCancel()
		<-workerDone

		logger.Info("server stopped gracefully")
	}

	return nil
}
