package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kha997/zenanotify/internal/db"
)

type recordingRepo struct {
	deliveries []*db.Delivery
	failFor    map[string]bool // channels whose inserts fail
}

func (r *recordingRepo) CreateDelivery(ctx context.Context, d *db.Delivery) error {
	if r.failFor[d.Channel] {
		return errors.New("insert failed")
	}
	r.deliveries = append(r.deliveries, d)
	return nil
}

type recordingQueue struct {
	enqueued []uuid.UUID
	err      error
}

func (q *recordingQueue) Enqueue(ctx context.Context, d *db.Delivery) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.enqueued = append(q.enqueued, d.ID)
	return "msg-1", nil
}

func testNotification() *db.Notification {
	projectID := uuid.New()
	return &db.Notification{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		ProjectID: &projectID,
		EventKey:  "task.assigned",
		Title:     "Task assigned to you",
		Body:      "Layla assigned \"Pour foundation\" to you.",
		Priority:  db.PriorityNormal,
		Channel:   db.ChannelInApp,
	}
}

func TestDispatchCreatesDeliveryPerChannel(t *testing.T) {
	repo := &recordingRepo{}
	d := New(repo, nil, zap.NewNop())

	notif := testNotification()
	cfg := db.ChannelConfig{
		EmailTo:    "pm@example.com",
		WebhookURL: "https://hooks.example.com/zn",
	}

	err := d.Dispatch(context.Background(), notif, []string{db.ChannelInApp, db.ChannelEmail, db.ChannelWebhook}, cfg)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	// inapp is skipped: the notification row is the in-app delivery.
	if len(repo.deliveries) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(repo.deliveries))
	}

	for _, delivery := range repo.deliveries {
		if delivery.Status != db.DeliveryPending {
			t.Errorf("delivery status = %q, want pending", delivery.Status)
		}
		if delivery.NotificationID != notif.ID {
			t.Error("delivery not linked to notification")
		}
		if delivery.Attempt != 0 {
			t.Errorf("fresh delivery attempt = %d", delivery.Attempt)
		}
	}

	var email EmailPayload
	if err := json.Unmarshal(repo.deliveries[0].Payload, &email); err != nil {
		t.Fatalf("bad email payload: %v", err)
	}
	if email.To != "pm@example.com" || email.Subject != notif.Title {
		t.Errorf("email payload = %+v", email)
	}

	var webhook WebhookPayload
	if err := json.Unmarshal(repo.deliveries[1].Payload, &webhook); err != nil {
		t.Fatalf("bad webhook payload: %v", err)
	}
	if webhook.URL != "https://hooks.example.com/zn" {
		t.Errorf("webhook url = %q", webhook.URL)
	}
	var embedded db.Notification
	if err := json.Unmarshal(webhook.Body, &embedded); err != nil {
		t.Fatalf("webhook body is not a notification: %v", err)
	}
	if embedded.ID != notif.ID {
		t.Error("webhook body carries wrong notification")
	}
}

func TestDispatchMissingConfigSkipsChannel(t *testing.T) {
	repo := &recordingRepo{}
	d := New(repo, nil, zap.NewNop())

	// email_to unset: email fails, webhook still goes through.
	cfg := db.ChannelConfig{WebhookURL: "https://hooks.example.com/zn"}

	err := d.Dispatch(context.Background(), testNotification(), []string{db.ChannelEmail, db.ChannelWebhook}, cfg)
	if err == nil {
		t.Fatal("expected error for unconfigured email channel")
	}

	if len(repo.deliveries) != 1 {
		t.Fatalf("expected webhook delivery to survive, got %d deliveries", len(repo.deliveries))
	}
	if repo.deliveries[0].Channel != db.ChannelWebhook {
		t.Errorf("surviving channel = %q", repo.deliveries[0].Channel)
	}
}

func TestDispatchInsertFailureIsolated(t *testing.T) {
	repo := &recordingRepo{failFor: map[string]bool{db.ChannelEmail: true}}
	d := New(repo, nil, zap.NewNop())

	cfg := db.ChannelConfig{
		EmailTo:    "pm@example.com",
		WebhookURL: "https://hooks.example.com/zn",
	}

	err := d.Dispatch(context.Background(), testNotification(), []string{db.ChannelEmail, db.ChannelWebhook}, cfg)
	if err == nil {
		t.Fatal("expected joined error for failed email insert")
	}
	if len(repo.deliveries) != 1 || repo.deliveries[0].Channel != db.ChannelWebhook {
		t.Fatal("webhook delivery must survive the email insert failure")
	}
}

func TestDispatchQueueNudge(t *testing.T) {
	repo := &recordingRepo{}
	queue := &recordingQueue{}
	d := New(repo, queue, zap.NewNop())

	cfg := db.ChannelConfig{EmailTo: "pm@example.com"}

	if err := d.Dispatch(context.Background(), testNotification(), []string{db.ChannelEmail}, cfg); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	if len(queue.enqueued) != 1 {
		t.Fatalf("expected 1 queue nudge, got %d", len(queue.enqueued))
	}
	if queue.enqueued[0] != repo.deliveries[0].ID {
		t.Error("nudge carries wrong delivery id")
	}
}

func TestDispatchQueueNudgeFailureIgnored(t *testing.T) {
	repo := &recordingRepo{}
	queue := &recordingQueue{err: errors.New("sqs unreachable")}
	d := New(repo, queue, zap.NewNop())

	cfg := db.ChannelConfig{EmailTo: "pm@example.com"}

	// The row insert is the durable enqueue; a dead queue must not
	// surface as a dispatch failure.
	if err := d.Dispatch(context.Background(), testNotification(), []string{db.ChannelEmail}, cfg); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if len(repo.deliveries) != 1 {
		t.Fatal("delivery row missing")
	}
}

func TestDispatchInAppOnly(t *testing.T) {
	repo := &recordingRepo{}
	d := New(repo, nil, zap.NewNop())

	if err := d.Dispatch(context.Background(), testNotification(), []string{db.ChannelInApp}, db.ChannelConfig{}); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if len(repo.deliveries) != 0 {
		t.Fatalf("inapp-only rule created %d deliveries", len(repo.deliveries))
	}
}
