package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vaidashi/storefront-api/internal/database"
	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

const deadLetterColumns = `id, original_message_id, aggregate_type, aggregate_id, event_type, payload,
		error_message, failure_reason, retry_count, last_retry_at, status, created_at, resolved_at`

// DeadLetterRepository handles database operations related to dead letter messages
type DeadLetterRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewDeadLetterRepository creates a new DeadLetterRepository
func NewDeadLetterRepository(db *database.Database, logger logger.Logger) *DeadLetterRepository {
	return &DeadLetterRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new dead letter message
func (r *DeadLetterRepository) Create(ctx context.Context, message *models.DeadLetterMessage) error {
	query := `
		INSERT INTO dead_letter_messages (
			original_message_id, aggregate_type, aggregate_id, event_type, payload,
			error_message, failure_reason, retry_count, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		) RETURNING id
	`

	var id int64
	err := r.db.DB.QueryRowContext(
		ctx,
		query,
		message.OriginalMessageID,
		message.AggregateType,
		message.AggregateID,
		message.EventType,
		message.Payload,
		message.ErrorMessage,
		message.FailureReason,
		message.RetryCount,
		message.Status,
		message.CreatedAt,
	).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to create dead letter message", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	message.ID = id
	return nil
}

// List returns dead letter messages with the given status, oldest first.
// An empty status lists every message.
func (r *DeadLetterRepository) List(ctx context.Context, status models.DeadLetterStatus, limit, offset int) ([]*models.DeadLetterMessage, error) {
	query := `
		SELECT ` + deadLetterColumns + `
		FROM dead_letter_messages
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`

	messages := []*models.DeadLetterMessage{}
	if err := r.db.DB.SelectContext(ctx, &messages, query, string(status), limit, offset); err != nil {
		r.logger.Error("Failed to list dead letter messages", "error", err, "status", status)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

// GetPendingMessages retrieves pending dead letter messages
func (r *DeadLetterRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.DeadLetterMessage, error) {
	return r.List(ctx, models.DeadLetterStatusPending, limit, 0)
}

// MarkAsRetrying claims a pending message for a retry round.
// It returns false when the message was not pending.
func (r *DeadLetterRepository) MarkAsRetrying(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE dead_letter_messages
		SET status = $1, retry_count = retry_count + 1, last_retry_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.DB.ExecContext(ctx, query,
		models.DeadLetterStatusRetrying, models.GetCurrentTime(), id, models.DeadLetterStatusPending)
	if err != nil {
		r.logger.Error("Failed to mark dead letter message as retrying", "error", err, "messageID", id)
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return rowsAffected == 1, nil
}

// MarkAsResolved marks a message as resolved
func (r *DeadLetterRepository) MarkAsResolved(ctx context.Context, id int64) error {
	query := `UPDATE dead_letter_messages SET status = $1, resolved_at = $2 WHERE id = $3`

	if _, err := r.db.DB.ExecContext(ctx, query, models.DeadLetterStatusResolved, models.GetCurrentTime(), id); err != nil {
		r.logger.Error("Failed to mark dead letter message as resolved", "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// MarkAsDiscarded marks a message as permanently discarded
func (r *DeadLetterRepository) MarkAsDiscarded(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE dead_letter_messages
		SET status = $1,
			failure_reason = CONCAT(failure_reason, ' | Discarded: ', $2::text),
			resolved_at = $3
		WHERE id = $4 AND status IN ($5, $6)
	`

	result, err := r.db.DB.ExecContext(ctx, query,
		models.DeadLetterStatusDiscarded, reason, models.GetCurrentTime(), id,
		models.DeadLetterStatusPending, models.DeadLetterStatusRetrying)
	if err != nil {
		r.logger.Error("Failed to mark dead letter message as discarded", "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ResetToPending puts a message back in the pending queue, e.g. after a manual retry request
func (r *DeadLetterRepository) ResetToPending(ctx context.Context, id int64) error {
	query := `UPDATE dead_letter_messages SET status = $1 WHERE id = $2 AND status = $3`

	result, err := r.db.DB.ExecContext(ctx, query,
		models.DeadLetterStatusPending, id, models.DeadLetterStatusRetrying)
	if err != nil {
		r.logger.Error("Failed to reset dead letter message to pending", "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetMessage retrieves a message by ID
func (r *DeadLetterRepository) GetMessage(ctx context.Context, id int64) (*models.DeadLetterMessage, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letter_messages WHERE id = $1`

	var message models.DeadLetterMessage
	if err := r.db.DB.GetContext(ctx, &message, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get dead letter message", "error", err, "messageID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &message, nil
}
