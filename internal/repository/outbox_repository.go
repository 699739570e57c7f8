package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vaidashi/storefront-api/internal/database"
	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload,
		created_at, processed_at, processing_attempts, last_error, status`

// OutboxRepository handles database operations for outbox messages
type OutboxRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(db *database.Database, logger logger.Logger) *OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

// CreateInTx writes an outbox message in the same transaction as the change it describes
func (r *OutboxRepository) CreateInTx(ctx context.Context, tx *sqlx.Tx, message *models.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (
			aggregate_type, aggregate_id, event_type, payload, created_at, status
		) VALUES (
			$1, $2, $3, $4, $5, $6
		) RETURNING id
	`

	var id int64
	err := tx.QueryRowContext(
		ctx,
		query,
		message.AggregateType,
		message.AggregateID,
		message.EventType,
		message.Payload,
		message.CreatedAt,
		message.Status,
	).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to create outbox message", "error", err, "eventType", message.EventType)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	message.ID = id
	return nil
}

// GetPendingMessages returns up to limit pending messages, oldest first
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`

	messages := []*models.OutboxMessage{}
	if err := r.db.DB.SelectContext(ctx, &messages, query, models.OutboxStatusPending, limit); err != nil {
		r.logger.Error("Failed to get pending outbox messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

// MarkAsProcessing claims a pending message and counts the attempt.
// It returns false when another worker claimed the message first.
func (r *OutboxRepository) MarkAsProcessing(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE outbox_messages
		SET status = $1, processing_attempts = processing_attempts + 1, claimed_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := r.db.DB.ExecContext(ctx, query, models.OutboxStatusProcessing, id, models.OutboxStatusPending)
	if err != nil {
		r.logger.Error("Failed to mark outbox message as processing", "error", err, "messageID", id)
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return rowsAffected == 1, nil
}

// ReleaseStale returns messages claimed longer than olderThan ago to the
// pending queue. Claims are left behind when a worker dies mid-batch.
func (r *OutboxRepository) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE outbox_messages
		SET status = $1, claimed_at = NULL
		WHERE status = $2
		  AND (claimed_at IS NULL OR claimed_at < NOW() - ($3 * INTERVAL '1 second'))
	`

	result, err := r.db.DB.ExecContext(ctx, query, models.OutboxStatusPending, models.OutboxStatusProcessing, olderThan.Seconds())
	if err != nil {
		r.logger.Error("Failed to release stale outbox claims", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	released, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return released, nil
}

// MarkAsCompleted records a successful publish
func (r *OutboxRepository) MarkAsCompleted(ctx context.Context, id int64) error {
	query := `UPDATE outbox_messages SET status = $1, processed_at = $2, last_error = NULL WHERE id = $3`

	if _, err := r.db.DB.ExecContext(ctx, query, models.OutboxStatusCompleted, models.GetCurrentTime(), id); err != nil {
		r.logger.Error("Failed to mark outbox message as completed", "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// MarkForRetry puts a message back in the pending queue with its last error
func (r *OutboxRepository) MarkForRetry(ctx context.Context, id int64, errorMessage string) error {
	query := `UPDATE outbox_messages SET status = $1, last_error = $2 WHERE id = $3`

	if _, err := r.db.DB.ExecContext(ctx, query, models.OutboxStatusPending, errorMessage, id); err != nil {
		r.logger.Error("Failed to return outbox message to pending", "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// MarkAsFailed records a message that will not be retried from the outbox
func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	query := `UPDATE outbox_messages SET status = $1, last_error = $2 WHERE id = $3`

	if _, err := r.db.DB.ExecContext(ctx, query, models.OutboxStatusFailed, errorMessage, id); err != nil {
		r.logger.Error("Failed to mark outbox message as failed", "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetMessage retrieves an outbox message by ID
func (r *OutboxRepository) GetMessage(ctx context.Context, id int64) (*models.OutboxMessage, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_messages WHERE id = $1`

	var message models.OutboxMessage
	if err := r.db.DB.GetContext(ctx, &message, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get outbox message", "error", err, "messageID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &message, nil
}

// CountByStatus returns the number of outbox messages per status
func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error) {
	var rows []struct {
		Status models.OutboxStatus `db:"status"`
		Count  int                 `db:"count"`
	}

	query := `SELECT status, COUNT(*) AS count FROM outbox_messages GROUP BY status`
	if err := r.db.DB.SelectContext(ctx, &rows, query); err != nil {
		r.logger.Error("Failed to count outbox messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	counts := make(map[models.OutboxStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}
