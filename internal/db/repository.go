package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a row does not exist or is not visible to
// the requesting user.
var ErrNotFound = errors.New("not found")

// Repository handles database operations for notifications, rules, and
// deliveries.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository.
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateNotification inserts a new notification row.
func (r *Repository) CreateNotification(ctx context.Context, notif *Notification) error {
	query := `
		INSERT INTO notifications (
			id, user_id, project_id, event_key, title, body,
			priority, channel, link_url, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		notif.ID,
		notif.UserID,
		notif.ProjectID,
		notif.EventKey,
		notif.Title,
		notif.Body,
		notif.Priority,
		notif.Channel,
		notif.LinkURL,
		notif.Metadata,
	).Scan(&notif.CreatedAt)

	if err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.String("notification_id", notif.ID.String()),
			zap.String("user_id", notif.UserID.String()),
		)
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

// GetNotification retrieves a notification by ID, scoped to its recipient.
func (r *Repository) GetNotification(ctx context.Context, id, userID uuid.UUID) (*Notification, error) {
	query := `
		SELECT
			id, user_id, project_id, event_key, title, body,
			priority, channel, link_url, metadata, read_at, created_at
		FROM notifications
		WHERE id = $1 AND user_id = $2
	`

	var notif Notification
	err := r.db.Pool().QueryRow(ctx, query, id, userID).Scan(
		&notif.ID,
		&notif.UserID,
		&notif.ProjectID,
		&notif.EventKey,
		&notif.Title,
		&notif.Body,
		&notif.Priority,
		&notif.Channel,
		&notif.LinkURL,
		&notif.Metadata,
		&notif.ReadAt,
		&notif.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}

	return &notif, nil
}

// ListNotificationsByUser retrieves a user's notifications, newest first.
// When unreadOnly is set, read rows are filtered out.
func (r *Repository) ListNotificationsByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, error) {
	query := `
		SELECT
			id, user_id, project_id, event_key, title, body,
			priority, channel, link_url, metadata, read_at, created_at
		FROM notifications
		WHERE user_id = $1 AND ($2 = false OR read_at IS NULL)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var notif Notification
		err := rows.Scan(
			&notif.ID,
			&notif.UserID,
			&notif.ProjectID,
			&notif.EventKey,
			&notif.Title,
			&notif.Body,
			&notif.Priority,
			&notif.Channel,
			&notif.LinkURL,
			&notif.Metadata,
			&notif.ReadAt,
			&notif.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, &notif)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}

// MarkRead sets read_at on an unread notification. The guard on read_at
// makes the operation idempotent: a second call matches zero rows and the
// original timestamp survives. Returns true when this call did the marking.
func (r *Repository) MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	query := `
		UPDATE notifications
		SET read_at = NOW()
		WHERE id = $1 AND user_id = $2 AND read_at IS NULL
	`

	result, err := r.db.Pool().Exec(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Distinguish "already read" (fine) from "no such row".
		if _, err := r.GetNotification(ctx, id, userID); err != nil {
			return false, err
		}
		return false, nil
	}

	return true, nil
}

// MarkAllRead sets read_at on all of a user's unread notifications.
// The user_id guard keeps the bulk update inside one user's rows.
func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `
		UPDATE notifications
		SET read_at = NOW()
		WHERE user_id = $1 AND read_at IS NULL
	`

	result, err := r.db.Pool().Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}

	return result.RowsAffected(), nil
}

// UnreadCount returns the number of unread notifications for a user.
func (r *Repository) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}
