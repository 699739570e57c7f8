package repository

import (
	"context"
	"fmt"

	"github.com/vaidashi/storefront-api/internal/database"
	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

// ContactRepository stores contact form messages
type ContactRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewContactRepository creates a new ContactRepository
func NewContactRepository(db *database.Database, logger logger.Logger) *ContactRepository {
	return &ContactRepository{db: db, logger: logger}
}

// Create inserts a contact message
func (r *ContactRepository) Create(ctx context.Context, msg *models.ContactMessage) error {
	query := `INSERT INTO contact_messages (id, name, email, message, created_at) VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.db.DB.ExecContext(ctx, query, msg.ID, msg.Name, msg.Email, msg.Message, msg.Date); err != nil {
		r.logger.Error("Failed to save contact message", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetAll returns every contact message, newest first
func (r *ContactRepository) GetAll(ctx context.Context) ([]*models.ContactMessage, error) {
	query := `SELECT id, name, email, message, created_at FROM contact_messages ORDER BY created_at DESC`

	messages := []*models.ContactMessage{}
	if err := r.db.DB.SelectContext(ctx, &messages, query); err != nil {
		r.logger.Error("Failed to get contact messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}
