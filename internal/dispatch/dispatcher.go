// Package dispatch turns a written notification plus its matched rule's
// channel set into durable delivery jobs.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kha997/zenanotify/internal/db"
	"github.com/kha997/zenanotify/internal/metrics"
)

// Repository is the subset of db operations dispatch needs. The delivery
// row insert is the durable enqueue.
type Repository interface {
	CreateDelivery(ctx context.Context, d *db.Delivery) error
}

// Queue is an optional fast-path nudge (SQS) that wakes a remote worker
// ahead of the next DB poll. Nudge failures are logged only: the delivery
// row already guarantees the send.
type Queue interface {
	Enqueue(ctx context.Context, d *db.Delivery) (string, error)
}

// Dispatcher fans one notification out to its non-inapp channels. The
// in-app channel needs no job: the notification row written before
// dispatch is the in-app delivery.
type Dispatcher struct {
	repo   Repository
	queue  Queue // nil when SQS is not configured
	logger *zap.Logger
}

// New creates a dispatcher. queue may be nil.
func New(repo Repository, queue Queue, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		queue:  queue,
		logger: logger,
	}
}

// Dispatch enqueues one delivery per non-inapp channel in the rule's set.
// A failed enqueue on one channel does not stop the others; the joined
// error reports every failure to the caller, whose notification row is
// untouched either way (degrading to in-app-only visibility).
func (d *Dispatcher) Dispatch(ctx context.Context, notif *db.Notification, channels []string, cfg db.ChannelConfig) error {
	var errs []error

	for _, channel := range channels {
		if channel == db.ChannelInApp {
			continue
		}

		payload, err := d.buildPayload(channel, notif, cfg)
		if err != nil {
			d.logger.Warn("skipping channel with unusable config",
				zap.Error(err),
				zap.String("channel", channel),
				zap.String("notification_id", notif.ID.String()),
			)
			metrics.RecordEnqueueFailure(channel)
			errs = append(errs, err)
			continue
		}

		delivery := &db.Delivery{
			ID:             uuid.New(),
			NotificationID: notif.ID,
			UserID:         notif.UserID,
			Channel:        channel,
			Payload:        payload,
			Status:         db.DeliveryPending,
			Attempt:        0,
		}

		if err := d.repo.CreateDelivery(ctx, delivery); err != nil {
			d.logger.Error("failed to enqueue delivery",
				zap.Error(err),
				zap.String("channel", channel),
				zap.String("notification_id", notif.ID.String()),
			)
			metrics.RecordEnqueueFailure(channel)
			errs = append(errs, fmt.Errorf("enqueue %s delivery: %w", channel, err))
			continue
		}

		metrics.RecordDeliveryEnqueued(channel)

		if d.queue != nil {
			if msgID, err := d.queue.Enqueue(ctx, delivery); err != nil {
				d.logger.Warn("queue nudge failed, delivery will be picked up by poll",
					zap.Error(err),
					zap.String("delivery_id", delivery.ID.String()),
				)
			} else {
				d.logger.Debug("delivery nudged onto queue",
					zap.String("delivery_id", delivery.ID.String()),
					zap.String("message_id", msgID),
				)
			}
		}
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) buildPayload(channel string, notif *db.Notification, cfg db.ChannelConfig) (json.RawMessage, error) {
	switch channel {
	case db.ChannelEmail:
		if cfg.EmailTo == "" {
			return nil, fmt.Errorf("email channel configured without email_to")
		}
		return json.Marshal(EmailPayload{
			To:      cfg.EmailTo,
			Subject: notif.Title,
			Body:    notif.Body,
		})

	case db.ChannelWebhook:
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("webhook channel configured without webhook_url")
		}
		body, err := json.Marshal(notif)
		if err != nil {
			return nil, fmt.Errorf("marshal notification body: %w", err)
		}
		return json.Marshal(WebhookPayload{
			URL:     cfg.WebhookURL,
			Headers: cfg.WebhookHeaders,
			Body:    body,
		})

	default:
		return nil, fmt.Errorf("unsupported channel: %s", channel)
	}
}
