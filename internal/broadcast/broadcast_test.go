package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kha997/zenanotify/internal/db"
)

type recordingTransport struct {
	published []publishedMsg
	err       error
}

type publishedMsg struct {
	channel string
	event   string
	payload []byte
}

func (t *recordingTransport) Publish(ctx context.Context, channel, eventName string, payload []byte) error {
	if t.err != nil {
		return t.err
	}
	t.published = append(t.published, publishedMsg{channel: channel, event: eventName, payload: payload})
	return nil
}

func testNotification(projectID *uuid.UUID) *db.Notification {
	return &db.Notification{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		ProjectID: projectID,
		EventKey:  "task.assigned",
		Title:     "Task assigned to you",
		Body:      "Layla assigned a task to you.",
		Priority:  db.PriorityNormal,
		Channel:   db.ChannelInApp,
	}
}

func TestNotificationCreatedPublishesUserAndProject(t *testing.T) {
	projectID := uuid.New()
	transport := &recordingTransport{}
	pub := NewPublisher(transport, zap.NewNop())

	notif := testNotification(&projectID)
	pub.NotificationCreated(context.Background(), notif)

	if len(transport.published) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(transport.published))
	}

	if transport.published[0].channel != UserChannel(notif.UserID) {
		t.Errorf("first channel = %q, want user channel", transport.published[0].channel)
	}
	if transport.published[1].channel != ProjectChannel(projectID) {
		t.Errorf("second channel = %q, want project channel", transport.published[1].channel)
	}
	for _, msg := range transport.published {
		if msg.event != EventNotificationCreated {
			t.Errorf("event = %q, want %q", msg.event, EventNotificationCreated)
		}
	}

	var um userMessage
	if err := json.Unmarshal(transport.published[0].payload, &um); err != nil {
		t.Fatalf("bad user payload: %v", err)
	}
	if um.UserID != notif.UserID || um.Notification.ID != notif.ID {
		t.Error("user payload carries wrong ids")
	}
}

func TestNotificationCreatedSystemWideSkipsProjectChannel(t *testing.T) {
	transport := &recordingTransport{}
	pub := NewPublisher(transport, zap.NewNop())

	pub.NotificationCreated(context.Background(), testNotification(nil))

	if len(transport.published) != 1 {
		t.Fatalf("expected only the user channel, got %d publishes", len(transport.published))
	}
}

func TestNotificationCreatedSkipsEmpty(t *testing.T) {
	transport := &recordingTransport{}
	pub := NewPublisher(transport, zap.NewNop())

	pub.NotificationCreated(context.Background(), nil)
	pub.NotificationCreated(context.Background(), &db.Notification{ID: uuid.New(), UserID: uuid.New()})

	if len(transport.published) != 0 {
		t.Fatalf("empty notifications must not broadcast, got %d publishes", len(transport.published))
	}
}

func TestNotificationCreatedSwallowsTransportErrors(t *testing.T) {
	transport := &recordingTransport{err: errors.New("broker down")}
	pub := NewPublisher(transport, zap.NewNop())

	// Must not panic or propagate; NotificationCreated has no error return.
	pub.NotificationCreated(context.Background(), testNotification(nil))
}

func TestChannelNames(t *testing.T) {
	userID := uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	if got := UserChannel(userID); got != "private-user.00000000-0000-0000-0000-0000000000aa" {
		t.Errorf("UserChannel() = %q", got)
	}
	projectID := uuid.MustParse("00000000-0000-0000-0000-0000000000bb")
	if got := ProjectChannel(projectID); got != "private-project.00000000-0000-0000-0000-0000000000bb" {
		t.Errorf("ProjectChannel() = %q", got)
	}
}

func TestRedisTransportPublish(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ctx := context.Background()
	channel := UserChannel(uuid.New())

	sub := rdb.Subscribe(ctx, channel)
	t.Cleanup(func() { sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	transport := NewRedisTransport(rdb, zap.NewNop())
	if err := transport.Publish(ctx, channel, EventNotificationCreated, []byte(`{"hello":"world"}`)); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}
	if env.Event != EventNotificationCreated {
		t.Errorf("envelope event = %q", env.Event)
	}
	if string(env.Payload) != `{"hello":"world"}` {
		t.Errorf("envelope payload = %s", env.Payload)
	}
}

func TestRedisTransportNoSubscribers(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	transport := NewRedisTransport(rdb, zap.NewNop())
	if err := transport.Publish(context.Background(), "private-user.nobody", "x", []byte(`{}`)); err != nil {
		t.Fatalf("publish to empty channel must succeed, got %v", err)
	}
}
