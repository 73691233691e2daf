package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/kha997/zenanotify/internal/db"
)

// Sender is the unified interface for delivery channels.
// Implementations: email (SES), webhook (HTTP POST).
type Sender interface {
	Send(ctx context.Context, d *db.Delivery) error
	SupportsChannel(channel string) bool
}

// MultiSender routes deliveries to the first sender supporting the channel.
type MultiSender struct {
	senders []Sender
	logger  *zap.Logger
}

// NewMultiSender creates a router over the given channel senders.
func NewMultiSender(logger *zap.Logger, senders ...Sender) *MultiSender {
	return &MultiSender{
		senders: senders,
		logger:  logger,
	}
}

// Send routes the delivery to the appropriate sender based on channel.
func (m *MultiSender) Send(ctx context.Context, d *db.Delivery) error {
	for _, sender := range m.senders {
		if sender.SupportsChannel(d.Channel) {
			m.logger.Debug("routing delivery to sender",
				zap.String("channel", d.Channel),
				zap.String("delivery_id", d.ID.String()),
			)
			return sender.Send(ctx, d)
		}
	}

	return fmt.Errorf("no sender found for channel: %s", d.Channel)
}

// SupportsChannel checks if any underlying sender supports the channel.
func (m *MultiSender) SupportsChannel(channel string) bool {
	for _, sender := range m.senders {
		if sender.SupportsChannel(channel) {
			return true
		}
	}
	return false
}

// LogSender logs deliveries instead of sending them, for development and
// tests.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, d *db.Delivery) error {
	s.logger.Info("logging delivery (development mode)",
		zap.String("id", d.ID.String()),
		zap.String("channel", d.Channel),
		zap.String("user_id", d.UserID.String()),
		zap.Any("payload", json.RawMessage(d.Payload)),
	)
	return nil
}

func (s *LogSender) SupportsChannel(channel string) bool {
	return channel == db.ChannelEmail || channel == db.ChannelWebhook
}
