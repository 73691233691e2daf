// Package rules matches domain events against stored notification rules.
package rules

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kha997/zenanotify/internal/db"
	"github.com/kha997/zenanotify/internal/event"
)

// Store is the subset of repository operations the evaluator needs.
type Store interface {
	ListEnabledRulesForEvent(ctx context.Context, eventKey string, projectID *uuid.UUID) ([]*db.NotificationRule, error)
}

// Match is one recipient the event should notify, carrying the rule whose
// channel set and config drive dispatch.
type Match struct {
	UserID uuid.UUID
	Rule   *db.NotificationRule
}

// Channels returns the valid channels of the matched rule. Unknown channel
// names that somehow reached storage are skipped rather than failing the
// whole match.
func (m Match) Channels() []string {
	channels := make([]string, 0, len(m.Rule.Channels))
	for _, ch := range m.Rule.Channels {
		if db.ValidChannel(ch) {
			channels = append(channels, ch)
		}
	}
	return channels
}

// Evaluator resolves which users an event notifies. The pipeline is
// rule-driven: a user with no matching enabled rule gets nothing, even if
// they are a natural recipient of the event.
type Evaluator struct {
	store  Store
	logger *zap.Logger
}

// NewEvaluator creates a rule evaluator.
func NewEvaluator(store Store, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		store:  store,
		logger: logger,
	}
}

// Evaluate returns at most one Match per user for the event, in stable
// first-seen order. When a user holds both a project-scoped and a
// system-wide rule for the event's key, only the project-scoped rule fires;
// firing both would duplicate the notification.
func (e *Evaluator) Evaluate(ctx context.Context, ev *event.Event) ([]Match, error) {
	matched, err := e.store.ListEnabledRulesForEvent(ctx, ev.Key, ev.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list rules for event %q: %w", ev.Key, err)
	}

	byUser := make(map[uuid.UUID]int)
	matches := make([]Match, 0, len(matched))

	for _, rule := range matched {
		// The store query already filters these; a disabled rule must
		// never fire regardless of where it came from.
		if !rule.IsEnabled {
			continue
		}

		idx, seen := byUser[rule.UserID]
		if !seen {
			byUser[rule.UserID] = len(matches)
			matches = append(matches, Match{UserID: rule.UserID, Rule: rule})
			continue
		}

		// Project-scoped shadows system-wide for the same user.
		if rule.ProjectID != nil && matches[idx].Rule.ProjectID == nil {
			matches[idx].Rule = rule
		}
	}

	e.logger.Debug("event evaluated",
		zap.String("event_key", ev.Key),
		zap.Int("rules_considered", len(matched)),
		zap.Int("recipients", len(matches)),
	)

	return matches, nil
}
