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

	"github.com/kha997/zenanotify/internal/api"
	"github.com/kha997/zenanotify/internal/broadcast"
	"github.com/kha997/zenanotify/internal/circuitbreaker"
	"github.com/kha997/zenanotify/internal/config"
	"github.com/kha997/zenanotify/internal/db"
	"github.com/kha997/zenanotify/internal/dispatch"
	"github.com/kha997/zenanotify/internal/metrics"
	"github.com/kha997/zenanotify/internal/observ"
	"github.com/kha997/zenanotify/internal/pipeline"
	"github.com/kha997/zenanotify/internal/redis"
	"github.com/kha997/zenanotify/internal/rules"
	"github.com/kha997/zenanotify/internal/sqs"
	"github.com/kha997/zenanotify/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting zenanotify gateway",
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
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	// Redis backs the broadcast transport, unread cache, and rate limiter.
	// All three degrade gracefully when Redis is down.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, broadcast/cache/rate-limit disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
		redisClient = nil
	}

	var unreadCounter *redis.UnreadCounter
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		defer redisClient.Close()
		unreadCounter = redis.NewUnreadCounter(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimitPerMinute,
			Window: 1 * time.Minute,
		})
	}

	// Broadcast transport: SNS topic when configured, else Redis pub/sub,
	// else a no-op (in-app rows and deliveries still work).
	var transport broadcast.Transport = broadcast.NopTransport{}
	if cfg.SNSBroadcastTopicARN != "" {
		snsTransport, err := broadcast.NewSNSTransport(ctx, broadcast.SNSConfig{
			Region:   cfg.AWSRegion,
			TopicARN: cfg.SNSBroadcastTopicARN,
		}, logger)
		if err != nil {
			logger.Warn("sns broadcast transport unavailable", zap.Error(err))
		} else {
			transport = snsTransport
		}
	} else if redisClient != nil {
		transport = broadcast.NewRedisTransport(redisClient.RDB(), logger)
	}
	publisher := broadcast.NewPublisher(transport, logger)

	// Optional SQS nudge for delivery jobs.
	var queue dispatch.Queue
	if cfg.SQSQueueURL != "" {
		producer, err := sqs.NewProducer(ctx, sqs.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSQueueURL,
		}, logger)
		if err != nil {
			logger.Warn("sqs producer unavailable, deliveries rely on DB poll", zap.Error(err))
		} else {
			defer producer.Close()
			queue = producer
		}
	}

	dispatcher := dispatch.New(repo, queue, logger)
	evaluator := rules.NewEvaluator(repo, logger)

	var unreadCache pipeline.UnreadCache
	if unreadCounter != nil {
		unreadCache = unreadCounter
	}
	pipe := pipeline.New(evaluator, repo, dispatcher, publisher, unreadCache, logger)

	// Channel senders, each behind its own circuit breaker.
	emailSender, err := worker.NewSESSender(ctx, worker.SESConfig{
		Region:    cfg.AWSRegion,
		FromEmail: cfg.SESFromEmail,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create SES email sender: %w", err)
	}

	webhookSender := worker.NewWebhookSender(logger, worker.WebhookConfig{
		Timeout: time.Duration(cfg.WebhookTimeout) * time.Second,
	})

	multiSender := worker.NewMultiSender(logger,
		circuitbreaker.NewProtectedSender(emailSender, circuitbreaker.New(circuitbreaker.DefaultConfig("ses"), logger), logger),
		circuitbreaker.NewProtectedSender(webhookSender, circuitbreaker.New(circuitbreaker.DefaultConfig("webhook"), logger), logger),
	)

	w := worker.New(repo, multiSender, worker.Config{
		PollInterval: time.Duration(cfg.WorkerPollSeconds) * time.Second,
		BatchSize:    cfg.WorkerBatchSize,
		MaxRetries:   cfg.WorkerMaxRetries,
		StaleAfter:   time.Duration(cfg.WorkerStaleMinutes) * time.Minute,
	}, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go w.Start(workerCtx)

	logger.Info("delivery worker started",
		zap.Int("poll_seconds", cfg.WorkerPollSeconds),
		zap.Int("batch_size", cfg.WorkerBatchSize),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

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

	handler := api.NewHandler(logger, repo, pipe, unreadCacheOrNil(unreadCounter))

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.UserKeyFunc))

		r.Post("/events", handler.IngestEvent)

		r.Get("/notifications", handler.ListNotifications)
		r.Get("/notifications/unread-count", handler.UnreadCount)
		r.Post("/notifications/read-all", handler.MarkAllRead)
		r.Get("/notifications/{id}", handler.GetNotification)
		r.Post("/notifications/{id}/read", handler.MarkRead)

		r.Get("/rules", handler.ListRules)
		r.Put("/rules", handler.UpsertRule)
		r.Post("/rules/{id}/toggle", handler.ToggleRule)
		r.Delete("/rules/{id}", handler.DeleteRule)

		r.Get("/deliveries/dead-letter", handler.ListDeadLetteredDeliveries)
		r.Post("/deliveries/{id}/retry", handler.RetryDelivery)
		r.Post("/deliveries/{id}/discard", handler.DiscardDelivery)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unreachable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

// unreadCacheOrNil keeps a typed-nil *redis.UnreadCounter from becoming a
// non-nil api.UnreadCache interface.
func unreadCacheOrNil(c *redis.UnreadCounter) api.UnreadCache {
	if c == nil {
		return nil
	}
	return c
}
