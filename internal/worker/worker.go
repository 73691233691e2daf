// Package worker runs the asynchronous delivery loop: it polls pending
// delivery jobs, routes them to channel senders, and applies the retry
// policy. Channel failures live and die here; they never touch the
// notification rows the pipeline wrote.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kha997/zenanotify/internal/db"
	"github.com/kha997/zenanotify/internal/metrics"
)

// Repository is the subset of db operations the worker needs.
type Repository interface {
	GetPendingDeliveries(ctx context.Context, limit int) ([]*db.Delivery, error)
	UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status string, attempt int, errorMsg *string, nextRetryAt *time.Time) error
	RequeueStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Worker struct {
	repo   Repository
	sender Sender
	config Config
	logger *zap.Logger
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int

	// StaleAfter is how long a delivery may sit in processing before a
	// crashed worker is assumed and the row is returned to pending.
	StaleAfter time.Duration
}

func New(repo Repository, sender Sender, cfg Config, logger *zap.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 5 * time.Minute
	}

	return &Worker{
		repo:   repo,
		sender: sender,
		config: cfg,
		logger: logger,
	}
}

// Start runs the poll loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("delivery worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	if requeued, err := w.repo.RequeueStaleProcessing(ctx, w.config.StaleAfter); err != nil {
		w.logger.Error("failed to requeue stale deliveries", zap.Error(err))
	} else if requeued > 0 {
		w.logger.Warn("requeued stale deliveries", zap.Int64("count", requeued))
	}

	deliveries, err := w.repo.GetPendingDeliveries(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to get pending deliveries", zap.Error(err))
		return
	}

	for _, d := range deliveries {
		w.processDelivery(ctx, d)
	}
}

func (w *Worker) processDelivery(ctx context.Context, d *db.Delivery) {
	// Mark as processing first to prevent duplicate picks
	_ = w.repo.UpdateDeliveryStatus(ctx, d.ID, db.DeliveryProcessing, d.Attempt, nil, d.NextRetryAt)

	err := w.sender.Send(ctx, d)
	newAttempt := d.Attempt + 1

	if err != nil {
		w.logger.Error("failed to send delivery",
			zap.Error(err),
			zap.String("id", d.ID.String()),
			zap.String("channel", d.Channel),
			zap.Int("attempt", newAttempt),
		)

		errMsg := err.Error()

		if newAttempt >= w.config.MaxRetries {
			if dlErr := w.repo.UpdateDeliveryStatus(ctx, d.ID, db.DeliveryDeadLettered, newAttempt, &errMsg, nil); dlErr != nil {
				w.logger.Error("failed to dead-letter delivery",
					zap.String("id", d.ID.String()),
					zap.Error(dlErr),
				)
			} else {
				w.logger.Warn("delivery dead-lettered",
					zap.String("id", d.ID.String()),
					zap.String("channel", d.Channel),
					zap.Int("attempts", newAttempt),
				)
			}
			metrics.RecordDeliveryProcessed(db.DeliveryDeadLettered, d.Channel)
		} else {
			nextRetry := w.nextRetryAt(newAttempt)
			_ = w.repo.UpdateDeliveryStatus(ctx, d.ID, db.DeliveryPending, newAttempt, &errMsg, &nextRetry)
			metrics.RecordDeliveryProcessed("retry", d.Channel)
		}
		return
	}

	w.logger.Info("delivery sent",
		zap.String("id", d.ID.String()),
		zap.String("channel", d.Channel),
	)
	_ = w.repo.UpdateDeliveryStatus(ctx, d.ID, db.DeliverySent, newAttempt, nil, nil)
	metrics.RecordDeliveryProcessed(db.DeliverySent, d.Channel)
	metrics.RecordDeliveryLatency(d.Channel, time.Since(d.CreatedAt))
}

// nextRetryAt schedules the next attempt with a stepped backoff.
func (w *Worker) nextRetryAt(attempt int) time.Time {
	delays := []time.Duration{
		1 * time.Minute,
		5 * time.Minute,
		15 * time.Minute,
	}

	idx := attempt - 1
	if idx >= len(delays) {
		idx = len(delays) - 1
	}

	return time.Now().Add(delays[idx])
}
