package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const ruleColumns = `
	id, user_id, project_id, event_key, channels,
	channel_config, is_enabled, created_at, updated_at
`

// UpsertRule creates a rule or replaces the channels/config/enabled flag of
// the existing rule for the same (user_id, project_id, event_key) tuple.
// Two partial unique indexes back the tuple invariant, so the upsert runs as
// update-then-insert inside a transaction instead of ON CONFLICT.
func (r *Repository) UpsertRule(ctx context.Context, rule *NotificationRule) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	updateQuery := `
		UPDATE notification_rules
		SET channels = $1, channel_config = $2, is_enabled = $3, updated_at = NOW()
		WHERE user_id = $4 AND event_key = $5
		  AND (project_id = $6 OR ($6::uuid IS NULL AND project_id IS NULL))
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRow(ctx, updateQuery,
		rule.Channels,
		rule.ChannelConfig,
		rule.IsEnabled,
		rule.UserID,
		rule.EventKey,
		rule.ProjectID,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)

	if err != nil && !isNoRows(err) {
		return fmt.Errorf("update rule: %w", err)
	}

	if isNoRows(err) {
		if rule.ID == uuid.Nil {
			rule.ID = uuid.New()
		}
		insertQuery := `
			INSERT INTO notification_rules (
				id, user_id, project_id, event_key, channels, channel_config, is_enabled
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at, updated_at
		`
		err = tx.QueryRow(ctx, insertQuery,
			rule.ID,
			rule.UserID,
			rule.ProjectID,
			rule.EventKey,
			rule.Channels,
			rule.ChannelConfig,
			rule.IsEnabled,
		).Scan(&rule.CreatedAt, &rule.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Info("notification rule saved",
		zap.String("rule_id", rule.ID.String()),
		zap.String("user_id", rule.UserID.String()),
		zap.String("event_key", rule.EventKey),
		zap.Bool("enabled", rule.IsEnabled),
	)

	return nil
}

// ListRulesByUser retrieves all rules owned by a user.
func (r *Repository) ListRulesByUser(ctx context.Context, userID uuid.UUID) ([]*NotificationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM notification_rules
		WHERE user_id = $1
		ORDER BY event_key, project_id NULLS FIRST
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// ListEnabledRulesForEvent retrieves enabled rules matching an event key:
// system-wide rules plus, when the event carries a project, rules scoped to
// that project. Precedence between the two is the evaluator's job.
func (r *Repository) ListEnabledRulesForEvent(ctx context.Context, eventKey string, projectID *uuid.UUID) ([]*NotificationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM notification_rules
		WHERE event_key = $1
		  AND is_enabled = true
		  AND (project_id IS NULL OR project_id = $2)
		ORDER BY user_id, project_id NULLS FIRST
	`

	rows, err := r.db.Pool().Query(ctx, query, eventKey, projectID)
	if err != nil {
		return nil, fmt.Errorf("query rules for event: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// SetRuleEnabled toggles a rule on or off.
func (r *Repository) SetRuleEnabled(ctx context.Context, id, userID uuid.UUID, enabled bool) error {
	query := `
		UPDATE notification_rules
		SET is_enabled = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
	`

	result, err := r.db.Pool().Exec(ctx, query, enabled, id, userID)
	if err != nil {
		return fmt.Errorf("toggle rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteRule removes a rule owned by the user.
func (r *Repository) DeleteRule(ctx context.Context, id, userID uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx,
		`DELETE FROM notification_rules WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanRules(rows pgx.Rows) ([]*NotificationRule, error) {
	var rules []*NotificationRule
	for rows.Next() {
		var rule NotificationRule
		err := rows.Scan(
			&rule.ID,
			&rule.UserID,
			&rule.ProjectID,
			&rule.EventKey,
			&rule.Channels,
			&rule.ChannelConfig,
			&rule.IsEnabled,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, &rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return rules, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
