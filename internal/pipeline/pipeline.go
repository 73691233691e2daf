// Package pipeline wires rule evaluation, notification persistence,
// channel dispatch, and real-time broadcast into the one inbound contract
// the rest of ZenaManage calls: EvaluateAndNotify.
//
// Failure policy, in order of appearance: a malformed event is dropped
// with a warning and never retried; a rule-store read failure aborts the
// whole call (nothing can be evaluated); everything after that is isolated
// per recipient — one user's failed write, enqueue, or broadcast never
// touches their siblings.
package pipeline

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kha997/zenanotify/internal/db"
	"github.com/kha997/zenanotify/internal/event"
	"github.com/kha997/zenanotify/internal/metrics"
	"github.com/kha997/zenanotify/internal/rules"
)

// Evaluator resolves an event to its matched recipients.
type Evaluator interface {
	Evaluate(ctx context.Context, ev *event.Event) ([]rules.Match, error)
}

// Writer persists notification rows.
type Writer interface {
	CreateNotification(ctx context.Context, notif *db.Notification) error
}

// Dispatcher enqueues channel deliveries for a written notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, notif *db.Notification, channels []string, cfg db.ChannelConfig) error
}

// Broadcaster publishes best-effort real-time events.
type Broadcaster interface {
	NotificationCreated(ctx context.Context, notif *db.Notification)
}

// UnreadCache bumps cached unread counts. Optional.
type UnreadCache interface {
	Incr(ctx context.Context, userID uuid.UUID)
}

// Pipeline is the notification pipeline entry point.
type Pipeline struct {
	evaluator   Evaluator
	writer      Writer
	dispatcher  Dispatcher
	broadcaster Broadcaster
	unread      UnreadCache // nil when Redis is not configured
	logger      *zap.Logger
}

// New wires the pipeline. unread may be nil.
func New(evaluator Evaluator, writer Writer, dispatcher Dispatcher, broadcaster Broadcaster, unread UnreadCache, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		evaluator:   evaluator,
		writer:      writer,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		unread:      unread,
		logger:      logger,
	}
}

// EvaluateAndNotify processes one domain event end to end and returns the
// IDs of the notification rows it wrote.
//
// A malformed event returns an empty result and a nil error: notification
// delivery is a non-critical side effect of the triggering action and
// callers get a best-effort "processed" signal regardless of partial
// failures. Only a rule-store read failure surfaces as an error.
func (p *Pipeline) EvaluateAndNotify(ctx context.Context, ev *event.Event) ([]uuid.UUID, error) {
	metrics.RecordEventReceived(ev.Key)

	if err := ev.Validate(); err != nil {
		p.logger.Warn("dropping malformed event",
			zap.Error(err),
			zap.String("event_key", ev.Key),
			zap.String("actor_id", ev.ActorID.String()),
		)
		metrics.RecordEventDropped("validation")
		return nil, nil
	}

	matches, err := p.evaluator.Evaluate(ctx, ev)
	if err != nil {
		metrics.RecordEventDropped("rule_lookup")
		return nil, err
	}

	if len(matches) == 0 {
		p.logger.Debug("no rules matched event", zap.String("event", ev.String()))
		return nil, nil
	}

	content := Compose(ev)
	metadata := p.buildMetadata(ev)

	var created []uuid.UUID

	// Sequential per-recipient loop: writes for one event are ordered per
	// recipient, and one recipient's failure is contained to this iteration.
	for _, match := range matches {
		metrics.RecordRuleMatched(ev.Key)

		notif := &db.Notification{
			ID:        uuid.New(),
			UserID:    match.UserID,
			ProjectID: ev.ProjectID,
			EventKey:  ev.Key,
			Title:     content.Title,
			Body:      content.Body,
			Priority:  content.Priority,
			Channel:   db.ChannelInApp,
			LinkURL:   content.LinkURL,
			Metadata:  metadata,
		}

		if err := p.writer.CreateNotification(ctx, notif); err != nil {
			p.logger.Error("failed to persist notification, skipping recipient",
				zap.Error(err),
				zap.String("event_key", ev.Key),
				zap.String("user_id", match.UserID.String()),
			)
			metrics.RecordNotificationWriteFailure()
			continue
		}

		metrics.RecordNotificationWritten(notif.Priority)
		created = append(created, notif.ID)

		cfg, err := match.Rule.Config()
		if err != nil {
			p.logger.Warn("rule has malformed channel config, dispatching with empty config",
				zap.Error(err),
				zap.String("rule_id", match.Rule.ID.String()),
			)
			cfg = db.ChannelConfig{}
		}

		if err := p.dispatcher.Dispatch(ctx, notif, match.Channels(), cfg); err != nil {
			// The row exists, so the recipient keeps at least in-app
			// visibility. Already counted per channel by the dispatcher.
			p.logger.Warn("partial dispatch for notification",
				zap.Error(err),
				zap.String("notification_id", notif.ID.String()),
			)
		}

		if p.unread != nil {
			p.unread.Incr(ctx, match.UserID)
		}

		p.broadcaster.NotificationCreated(ctx, notif)
	}

	p.logger.Info("event processed",
		zap.String("event", ev.String()),
		zap.Int("recipients_matched", len(matches)),
		zap.Int("notifications_written", len(created)),
	)

	return created, nil
}

func (p *Pipeline) buildMetadata(ev *event.Event) json.RawMessage {
	meta := map[string]any{
		"actor_id":  ev.ActorID,
		"entity_id": ev.EntityID,
	}
	if len(ev.ChangedFields) > 0 {
		meta["changed_fields"] = ev.ChangedFields
	}
	for k, v := range ev.Data {
		if k == "link_url" {
			continue
		}
		meta[k] = v
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		p.logger.Warn("failed to marshal event metadata", zap.Error(err))
		return nil
	}
	return raw
}
