package worker

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kha997/zenanotify/internal/db"
)

type channelSender struct {
	channel string
	sends   int
	err     error
}

func (c *channelSender) Send(ctx context.Context, d *db.Delivery) error {
	c.sends++
	return c.err
}

func (c *channelSender) SupportsChannel(channel string) bool {
	return channel == c.channel
}

func TestMultiSenderRoutesByChannel(t *testing.T) {
	email := &channelSender{channel: db.ChannelEmail}
	webhook := &channelSender{channel: db.ChannelWebhook}

	m := NewMultiSender(zap.NewNop(), email, webhook)

	d := &db.Delivery{ID: uuid.New(), Channel: db.ChannelWebhook}
	if err := m.Send(context.Background(), d); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if webhook.sends != 1 {
		t.Errorf("webhook sends = %d, want 1", webhook.sends)
	}
	if email.sends != 0 {
		t.Errorf("email sends = %d, want 0", email.sends)
	}
}

func TestMultiSenderUnknownChannel(t *testing.T) {
	m := NewMultiSender(zap.NewNop(), &channelSender{channel: db.ChannelEmail})

	d := &db.Delivery{ID: uuid.New(), Channel: "sms"}
	if err := m.Send(context.Background(), d); err == nil {
		t.Fatal("expected error for unsupported channel")
	}
}

func TestMultiSenderSupportsChannel(t *testing.T) {
	m := NewMultiSender(zap.NewNop(), &channelSender{channel: db.ChannelEmail})

	if !m.SupportsChannel(db.ChannelEmail) {
		t.Error("expected email support")
	}
	if m.SupportsChannel(db.ChannelWebhook) {
		t.Error("unexpected webhook support")
	}
}

func TestLogSenderAcceptsBothChannels(t *testing.T) {
	s := NewLogSender(zap.NewNop())

	if !s.SupportsChannel(db.ChannelEmail) || !s.SupportsChannel(db.ChannelWebhook) {
		t.Error("log sender should handle email and webhook")
	}
	if s.SupportsChannel(db.ChannelInApp) {
		t.Error("inapp never reaches a sender")
	}

	d := &db.Delivery{ID: uuid.New(), UserID: uuid.New(), Channel: db.ChannelEmail, Payload: []byte(`{}`)}
	if err := s.Send(context.Background(), d); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
}
