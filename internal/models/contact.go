package models

import "time"

// ContactMessage is a message left through the contact form
type ContactMessage struct {
	ID      string    `db:"id" json:"_id"`
	Name    string    `db:"name" json:"name" validate:"required"`
	Email   string    `db:"email" json:"email" validate:"required,email"`
	Message string    `db:"message" json:"message" validate:"required"`
	Date    time.Time `db:"created_at" json:"date"`
}

// NewContactMessage stamps a message with an id and the current time
func NewContactMessage(name, email, message string) *ContactMessage {
	return &ContactMessage{
		ID:      GenerateID("msg"),
		Name:    name,
		Email:   email,
		Message: message,
		Date:    GetCurrentTime(),
	}
}
