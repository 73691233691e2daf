// Package config loads service configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the notification gateway.
type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Env      string `env:"ENV" envDefault:"development"`

	// Postgres
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"zenanotify"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"zenanotify"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	// Redis (broadcast transport, unread cache, rate limiting).
	// Optional: the gateway degrades gracefully when unreachable.
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// SQS delivery-queue nudge. Empty queue URL disables SQS; deliveries
	// are then picked up by the DB poll loop alone.
	SQSRegion   string `env:"SQS_REGION"`
	SQSQueueURL string `env:"SQS_QUEUE_URL"`

	// AWS services
	AWSRegion    string `env:"AWS_REGION" envDefault:"us-east-1"`
	SESFromEmail string `env:"SES_FROM_EMAIL" envDefault:"noreply@zenamanage.local"`

	// SNS broadcast topic. When set, real-time broadcasts are published to
	// this topic instead of Redis pub/sub.
	SNSBroadcastTopicARN string `env:"SNS_BROADCAST_TOPIC_ARN"`

	// Delivery worker
	WorkerPollSeconds int `env:"WORKER_POLL_SECONDS" envDefault:"5"`
	WorkerBatchSize   int `env:"WORKER_BATCH_SIZE" envDefault:"10"`
	WorkerMaxRetries  int `env:"WORKER_MAX_RETRIES" envDefault:"5"`

	// Deliveries stuck in processing longer than this are assumed
	// abandoned by a crashed worker and returned to pending.
	WorkerStaleMinutes int `env:"WORKER_STALE_MINUTES" envDefault:"5"`

	// Webhook delivery timeout in seconds
	WebhookTimeout int `env:"WEBHOOK_TIMEOUT" envDefault:"30"`

	// API rate limit, requests per user per minute
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present, matching local development setups.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.SQSRegion == "" {
		cfg.SQSRegion = cfg.AWSRegion
	}

	return cfg, nil
}
