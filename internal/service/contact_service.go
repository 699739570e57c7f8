package service

import (
	"context"

	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/internal/repository"
	apperrors "github.com/vaidashi/storefront-api/pkg/errors"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

// ContactService stores messages from the contact form
type ContactService struct {
	contactRepo *repository.ContactRepository
	logger      logger.Logger
}

func NewContactService(contactRepo *repository.ContactRepository, logger logger.Logger) *ContactService {
	return &ContactService{contactRepo: contactRepo, logger: logger}
}

// Submit saves a message
func (s *ContactService) Submit(ctx context.Context, name, email, message string) (*models.ContactMessage, error) {
	msg := models.NewContactMessage(name, email, message)

	if err := s.contactRepo.Create(ctx, msg); err != nil {
		return nil, apperrors.NewPersistenceError("Failed to save message").WithCause(err)
	}

	s.logger.Info("Contact message received", "messageID", msg.ID)
	return msg, nil
}

// List returns messages newest first
func (s *ContactService) List(ctx context.Context) ([]*models.ContactMessage, error) {
	msgs, err := s.contactRepo.GetAll(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError("Failed to fetch messages").WithCause(err)
	}
	return msgs, nil
}
