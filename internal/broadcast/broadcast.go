// Package broadcast pushes lightweight real-time events to connected
// clients so unread counts and lists update without polling.
//
// Broadcast is a best-effort UX enhancement: publish failures are logged
// and counted, never propagated. Durable delivery is the dispatcher's job.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kha997/zenanotify/internal/db"
	"github.com/kha997/zenanotify/internal/metrics"
)

// EventNotificationCreated is the event name clients subscribe to.
const EventNotificationCreated = "notification.created"

// Transport publishes a named event on a channel. Implementations:
// Redis pub/sub, SNS topic, and NopTransport for tests.
type Transport interface {
	Publish(ctx context.Context, channel, eventName string, payload []byte) error
}

// UserChannel names the private channel of one user.
func UserChannel(userID uuid.UUID) string {
	return fmt.Sprintf("private-user.%s", userID)
}

// ProjectChannel names the private channel of one project.
func ProjectChannel(projectID uuid.UUID) string {
	return fmt.Sprintf("private-project.%s", projectID)
}

// userMessage is the wire payload on a user channel.
type userMessage struct {
	UserID       uuid.UUID        `json:"user_id"`
	Notification *db.Notification `json:"notification"`
	Timestamp    int64            `json:"timestamp"`
}

// projectMessage is the wire payload on a project channel.
type projectMessage struct {
	ProjectID    uuid.UUID        `json:"project_id"`
	Notification *db.Notification `json:"notification"`
	Timestamp    int64            `json:"timestamp"`
}

// Publisher fans a written notification out to its live channels.
type Publisher struct {
	transport Transport
	logger    *zap.Logger
}

// NewPublisher creates a broadcast publisher over the given transport.
func NewPublisher(transport Transport, logger *zap.Logger) *Publisher {
	return &Publisher{
		transport: transport,
		logger:    logger,
	}
}

// NotificationCreated publishes the notification on the recipient's channel
// and, for project-scoped notifications, on the project's channel. Empty
// notifications are skipped so clients never see no-op events.
func (p *Publisher) NotificationCreated(ctx context.Context, notif *db.Notification) {
	if p == nil || p.transport == nil {
		return
	}
	if notif == nil || (notif.Title == "" && notif.Body == "") {
		return
	}

	now := time.Now().Unix()

	p.publish(ctx, UserChannel(notif.UserID), "user", userMessage{
		UserID:       notif.UserID,
		Notification: notif,
		Timestamp:    now,
	})

	if notif.ProjectID != nil {
		p.publish(ctx, ProjectChannel(*notif.ProjectID), "project", projectMessage{
			ProjectID:    *notif.ProjectID,
			Notification: notif,
			Timestamp:    now,
		})
	}
}

func (p *Publisher) publish(ctx context.Context, channel, kind string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("failed to marshal broadcast payload",
			zap.Error(err),
			zap.String("channel", channel),
		)
		metrics.RecordBroadcastFailure()
		return
	}

	if err := p.transport.Publish(ctx, channel, EventNotificationCreated, payload); err != nil {
		p.logger.Warn("broadcast publish failed",
			zap.Error(err),
			zap.String("channel", channel),
		)
		metrics.RecordBroadcastFailure()
		return
	}

	metrics.RecordBroadcastPublished(kind)
}

// NopTransport discards every publish. Used when no transport is configured.
type NopTransport struct{}

func (NopTransport) Publish(context.Context, string, string, []byte) error { return nil }
