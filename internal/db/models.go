package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Channel constants. InApp is satisfied by the notification row itself;
// email and webhook become delivery jobs.
const (
	ChannelInApp   = "inapp"
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
)

// Priority constants
const (
	PriorityCritical = "critical"
	PriorityNormal   = "normal"
	PriorityLow      = "low"
)

// Delivery status constants
const (
	DeliveryPending      = "pending"
	DeliveryProcessing   = "processing"
	DeliverySent         = "sent"
	DeliveryDeadLettered = "dead_lettered"
	DeliveryDiscarded    = "discarded"
)

// ValidChannel reports whether s names a supported channel.
func ValidChannel(s string) bool {
	return s == ChannelInApp || s == ChannelEmail || s == ChannelWebhook
}

// ValidPriority reports whether s names a supported priority.
func ValidPriority(s string) bool {
	return s == PriorityCritical || s == PriorityNormal || s == PriorityLow
}

// Notification is the durable in-app record written by the pipeline.
// Its only mutation after insert is setting read_at.
type Notification struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	ProjectID *uuid.UUID      `json:"project_id,omitempty"`
	EventKey  string          `json:"event_key"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Priority  string          `json:"priority"`
	Channel   string          `json:"channel"`
	LinkURL   *string         `json:"link_url,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ChannelConfig is the per-rule delivery configuration. The pipeline owns
// no user directory, so the rule owner states where each channel delivers.
type ChannelConfig struct {
	EmailTo        string            `json:"email_to,omitempty"`
	WebhookURL     string            `json:"webhook_url,omitempty"`
	WebhookHeaders map[string]string `json:"webhook_headers,omitempty"`
}

// NotificationRule maps an event key to the channels a user wants it on,
// optionally scoped to a single project. At most one rule exists per
// (user_id, project_id, event_key) tuple.
type NotificationRule struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	ProjectID     *uuid.UUID      `json:"project_id,omitempty"`
	EventKey      string          `json:"event_key"`
	Channels      []string        `json:"channels"`
	ChannelConfig json.RawMessage `json:"channel_config,omitempty"`
	IsEnabled     bool            `json:"is_enabled"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Config decodes the rule's channel_config bag. An empty bag is not an
// error; senders validate the fields they need at delivery time.
func (r *NotificationRule) Config() (ChannelConfig, error) {
	var cfg ChannelConfig
	if len(r.ChannelConfig) == 0 {
		return cfg, nil
	}
	err := json.Unmarshal(r.ChannelConfig, &cfg)
	return cfg, err
}

// Delivery is one queued channel send for a notification. It is the
// durable job record the worker polls; retries and dead-lettering happen
// on this row, never on the notification itself.
type Delivery struct {
	ID             uuid.UUID       `json:"id"`
	NotificationID uuid.UUID       `json:"notification_id"`
	UserID         uuid.UUID       `json:"user_id"`
	Channel        string          `json:"channel"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	Attempt        int             `json:"attempt"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	NextRetryAt    *time.Time      `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
