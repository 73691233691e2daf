package worker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kha997/zenanotify/internal/db"
	"github.com/kha997/zenanotify/internal/dispatch"
)

func webhookDelivery(t *testing.T, url string, headers map[string]string) *db.Delivery {
	t.Helper()

	payload, err := json.Marshal(dispatch.WebhookPayload{
		URL:     url,
		Headers: headers,
		Body:    json.RawMessage(`{"title":"Task assigned to you"}`),
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	return &db.Delivery{
		ID:             uuid.New(),
		NotificationID: uuid.New(),
		UserID:         uuid.New(),
		Channel:        db.ChannelWebhook,
		Payload:        payload,
		Status:         db.DeliveryPending,
	}
}

func TestWebhookSenderDelivers(t *testing.T) {
	var gotMethod, gotBody string
	var gotHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	sender := NewWebhookSender(zap.NewNop(), WebhookConfig{Timeout: 5 * time.Second})
	d := webhookDelivery(t, server.URL, map[string]string{"X-Signature": "abc123"})

	if err := sender.Send(context.Background(), d); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if !strings.Contains(gotBody, "Task assigned to you") {
		t.Errorf("body = %q", gotBody)
	}
	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("content-type = %q", gotHeaders.Get("Content-Type"))
	}
	if gotHeaders.Get("X-ZenaNotify-Delivery-ID") != d.ID.String() {
		t.Error("delivery id header missing")
	}
	if gotHeaders.Get("X-ZenaNotify-Notification-ID") != d.NotificationID.String() {
		t.Error("notification id header missing")
	}
	if gotHeaders.Get("X-Signature") != "abc123" {
		t.Error("rule-configured header not forwarded")
	}
}

func TestWebhookSenderNon2xxFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	sender := NewWebhookSender(zap.NewNop(), WebhookConfig{})
	d := webhookDelivery(t, server.URL, nil)

	err := sender.Send(context.Background(), d)
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error should carry the status code, got: %v", err)
	}
}

func TestWebhookSenderRejectsWrongChannel(t *testing.T) {
	sender := NewWebhookSender(zap.NewNop(), WebhookConfig{})

	d := &db.Delivery{ID: uuid.New(), Channel: db.ChannelEmail}
	if err := sender.Send(context.Background(), d); err == nil {
		t.Fatal("expected error for email delivery")
	}
}

func TestWebhookSenderBadPayload(t *testing.T) {
	sender := NewWebhookSender(zap.NewNop(), WebhookConfig{})

	d := &db.Delivery{ID: uuid.New(), Channel: db.ChannelWebhook, Payload: []byte(`not json`)}
	if err := sender.Send(context.Background(), d); err == nil {
		t.Fatal("expected error for malformed payload")
	}

	d = &db.Delivery{ID: uuid.New(), Channel: db.ChannelWebhook, Payload: []byte(`{"url":""}`)}
	if err := sender.Send(context.Background(), d); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestWebhookSenderSupportsChannel(t *testing.T) {
	sender := NewWebhookSender(zap.NewNop(), WebhookConfig{})

	if !sender.SupportsChannel(db.ChannelWebhook) {
		t.Error("expected webhook support")
	}
	if sender.SupportsChannel(db.ChannelEmail) {
		t.Error("unexpected email support")
	}
}
