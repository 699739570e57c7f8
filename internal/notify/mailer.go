package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/vaidashi/storefront-api/internal/config"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

// Mail is a single outgoing message
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers mail. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// dialer is the part of *gomail.Dialer used here
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer sends mail through an SMTP relay
type SMTPMailer struct {
	dialer dialer
	from   string
}

// NewSMTPMailer creates a mailer for the configured relay
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   cfg.From,
	}
}

// Send opens a connection, sends mail and closes the connection.
// gomail has no context support, so ctx is only checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, mail Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", mail.To)
	msg.SetHeader("Subject", mail.Subject)
	msg.SetBody("text/plain", mail.Body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", mail.To, err)
	}

	return nil
}

// LogMailer writes mail to the log instead of sending it. Used when SMTP is not configured.
type LogMailer struct {
	logger logger.Logger
}

// NewLogMailer creates a LogMailer
func NewLogMailer(logger logger.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, mail Mail) error {
	m.logger.Info("Mail not sent, SMTP is not configured",
		"to", mail.To,
		"subject", mail.Subject)
	return nil
}

// NewMailer picks the SMTP mailer when a host is configured
func NewMailer(cfg config.SMTPConfig, logger logger.Logger) Mailer {
	if cfg.Host == "" {
		return NewLogMailer(logger)
	}
	return NewSMTPMailer(cfg)
}
