// Package sqs implements the optional SQS nudge for delivery jobs.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/kha997/zenanotify/internal/db"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
}

// Message is the payload sent to SQS. It references the delivery row;
// consumers re-read the row rather than trusting the message body, so a
// stale or duplicate message is harmless.
type Message struct {
	DeliveryID     string `json:"delivery_id"`
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Channel        string `json:"channel"`
	EnqueuedAt     int64  `json:"enqueued_at"`
}

// Producer sends delivery nudges to SQS.
type Producer struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewProducer creates a new SQS producer.
func NewProducer(ctx context.Context, cfg Config, logger *zap.Logger) (*Producer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("sqs producer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Producer{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// Enqueue sends a delivery nudge to SQS. Returns the message ID for
// tracking.
func (p *Producer) Enqueue(ctx context.Context, d *db.Delivery) (string, error) {
	msg := Message{
		DeliveryID:     d.ID.String(),
		NotificationID: d.NotificationID.String(),
		UserID:         d.UserID.String(),
		Channel:        d.Channel,
		EnqueuedAt:     time.Now().UnixNano(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}

	result, err := p.client.SendMessage(ctx, input)
	if err != nil {
		p.logger.Error("failed to send message to sqs",
			zap.Error(err),
			zap.String("delivery_id", d.ID.String()),
		)
		return "", fmt.Errorf("sqs send failed: %w", err)
	}

	return aws.ToString(result.MessageId), nil
}

// Close releases producer resources. AWS SDK v2 clients need no explicit
// close; kept for symmetric shutdown in main.
func (p *Producer) Close() {}
