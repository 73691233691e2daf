package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const deliveryColumns = `
	id, notification_id, user_id, channel, payload,
	status, attempt, error_message, next_retry_at,
	created_at, updated_at
`

// CreateDelivery inserts a pending delivery job. This insert is the durable
// enqueue: once the row exists the channel send is at-least-once.
func (r *Repository) CreateDelivery(ctx context.Context, d *Delivery) error {
	query := `
		INSERT INTO deliveries (
			id, notification_id, user_id, channel, payload, status, attempt
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		d.ID,
		d.NotificationID,
		d.UserID,
		d.Channel,
		d.Payload,
		d.Status,
		d.Attempt,
	).Scan(&d.CreatedAt, &d.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create delivery",
			zap.Error(err),
			zap.String("notification_id", d.NotificationID.String()),
			zap.String("channel", d.Channel),
		)
		return fmt.Errorf("insert delivery: %w", err)
	}

	return nil
}

// GetDelivery retrieves a delivery by ID.
func (r *Repository) GetDelivery(ctx context.Context, id uuid.UUID) (*Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = $1`

	var d Delivery
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.NotificationID,
		&d.UserID,
		&d.Channel,
		&d.Payload,
		&d.Status,
		&d.Attempt,
		&d.ErrorMessage,
		&d.NextRetryAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query delivery: %w", err)
	}

	return &d, nil
}

// GetPendingDeliveries retrieves deliveries due for a send attempt.
func (r *Repository) GetPendingDeliveries(ctx context.Context, limit int) ([]*Delivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM deliveries
		WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending deliveries: %w", err)
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

// UpdateDeliveryStatus updates the status, attempt count, error message,
// and retry schedule of a delivery.
func (r *Repository) UpdateDeliveryStatus(
	ctx context.Context,
	id uuid.UUID,
	status string,
	attempt int,
	errorMsg *string,
	nextRetryAt *time.Time,
) error {
	query := `
		UPDATE deliveries
		SET status = $1, attempt = $2, error_message = $3, next_retry_at = $4, updated_at = NOW()
		WHERE id = $5
	`

	result, err := r.db.Pool().Exec(ctx, query, status, attempt, errorMsg, nextRetryAt, id)
	if err != nil {
		r.logger.Error("failed to update delivery status",
			zap.Error(err),
			zap.String("delivery_id", id.String()),
		)
		return fmt.Errorf("update delivery status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// RequeueStaleProcessing returns deliveries stuck in processing back to
// pending. A worker that dies between marking a row processing and writing
// the outcome would otherwise strand it forever, since the poll query only
// selects pending rows.
func (r *Repository) RequeueStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE deliveries
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'processing' AND updated_at < NOW() - make_interval(secs => $1)
	`

	result, err := r.db.Pool().Exec(ctx, query, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("requeue stale deliveries: %w", err)
	}

	return result.RowsAffected(), nil
}

// ListDeadLetteredDeliveries retrieves deliveries that exhausted their
// retries, newest first.
func (r *Repository) ListDeadLetteredDeliveries(ctx context.Context, limit, offset int) ([]*Delivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM deliveries
		WHERE status = 'dead_lettered'
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool().Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query dead lettered deliveries: %w", err)
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

// RetryDeadLettered resets a dead-lettered delivery to pending with a fresh
// attempt counter so the worker picks it up again.
func (r *Repository) RetryDeadLettered(ctx context.Context, id uuid.UUID) (*Delivery, error) {
	query := `
		UPDATE deliveries
		SET status = $1, attempt = 0, error_message = NULL, next_retry_at = NULL, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING ` + deliveryColumns + `
	`

	var d Delivery
	err := r.db.Pool().QueryRow(ctx, query, DeliveryPending, id, DeliveryDeadLettered).Scan(
		&d.ID,
		&d.NotificationID,
		&d.UserID,
		&d.Channel,
		&d.Payload,
		&d.Status,
		&d.Attempt,
		&d.ErrorMessage,
		&d.NextRetryAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("delivery not dead-lettered: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("retry delivery: %w", err)
	}

	r.logger.Info("dead-lettered delivery requeued",
		zap.String("delivery_id", d.ID.String()),
		zap.String("channel", d.Channel),
	)

	return &d, nil
}

// DiscardDeadLettered marks a dead-lettered delivery as discarded so it is
// never retried.
func (r *Repository) DiscardDeadLettered(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE deliveries SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		DeliveryDiscarded, id, DeliveryDeadLettered,
	)
	if err != nil {
		return fmt.Errorf("discard delivery: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("delivery not dead-lettered: %w", ErrNotFound)
	}

	r.logger.Info("dead-lettered delivery discarded", zap.String("delivery_id", id.String()))

	return nil
}

func scanDeliveries(rows pgx.Rows) ([]*Delivery, error) {
	var deliveries []*Delivery
	for rows.Next() {
		var d Delivery
		err := rows.Scan(
			&d.ID,
			&d.NotificationID,
			&d.UserID,
			&d.Channel,
			&d.Payload,
			&d.Status,
			&d.Attempt,
			&d.ErrorMessage,
			&d.NextRetryAt,
			&d.CreatedAt,
			&d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		deliveries = append(deliveries, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return deliveries, nil
}
