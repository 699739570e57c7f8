package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/vaidashi/storefront-api/internal/models"
	apperrors "github.com/vaidashi/storefront-api/pkg/errors"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

type fakeMailer struct {
	mu    sync.Mutex
	sent  []Mail
	err   error
	block chan struct{}
}

func (f *fakeMailer) Send(ctx context.Context, mail Mail) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, mail)
	return f.err
}

func deliveredOrder() *models.Order {
	return &models.Order{
		ID:            "ord-0012ab34",
		CustomerName:  "Sita",
		Email:         "sita@example.com",
		Items:         models.OrderItems{{Name: "SSD 1TB", Price: 50, Quantity: 2}},
		TotalAmount:   100,
		PaymentMethod: models.PaymentCOD,
		Status:        models.OrderStatusDelivered,
	}
}

func TestDeliveredMail(t *testing.T) {
	mail := DeliveredMail(deliveredOrder())

	assert.Equal(t, "sita@example.com", mail.To)
	assert.Equal(t, "Order #12AB34 delivered", mail.Subject)
	assert.Contains(t, mail.Body, "Items: 2")
	assert.Contains(t, mail.Body, "Total: Rs. 100.00")
	assert.Contains(t, mail.Body, "2 x SSD 1TB")
}

func TestDispatcher_SendsOnce(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(mailer, time.Second, logger.NewNopLogger())

	assert.True(t, d.NotifyDelivered(deliveredOrder()))
	require.NoError(t, d.Close(context.Background()))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "sita@example.com", mailer.sent[0].To)
}

func TestDispatcher_SkipsWithoutEmail(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(mailer, time.Second, logger.NewNopLogger())

	order := deliveredOrder()
	order.Email = ""

	assert.False(t, d.NotifyDelivered(order))
	require.NoError(t, d.Close(context.Background()))
	assert.Empty(t, mailer.sent)
}

func TestDispatcher_FailureIsReportedNotReturned(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("relay refused")}
	d := NewDispatcher(mailer, time.Second, logger.NewNopLogger())

	results := make(chan error, 1)
	d.onResult = func(_ string, err error) { results <- err }

	assert.True(t, d.NotifyDelivered(deliveredOrder()))

	err := <-results
	assert.ErrorIs(t, err, apperrors.ErrNotification)
	require.NoError(t, d.Close(context.Background()))
	assert.Len(t, mailer.sent, 1, "no retry after a failed send")
}

func TestDispatcher_CloseRejectsNewWork(t *testing.T) {
	d := NewDispatcher(&fakeMailer{}, time.Second, logger.NewNopLogger())
	require.NoError(t, d.Close(context.Background()))

	assert.False(t, d.NotifyDelivered(deliveredOrder()))
}

func TestDispatcher_CloseTimesOut(t *testing.T) {
	mailer := &fakeMailer{block: make(chan struct{})}
	d := NewDispatcher(mailer, time.Second, logger.NewNopLogger())
	d.NotifyDelivered(deliveredOrder())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	close(mailer.block)
}

type fakeDialer struct {
	messages []*gomail.Message
	err      error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	f.messages = append(f.messages, m...)
	return f.err
}

func TestSMTPMailer_Send(t *testing.T) {
	fd := &fakeDialer{}
	m := &SMTPMailer{dialer: fd, from: "shop@example.com"}

	err := m.Send(context.Background(), Mail{To: "sita@example.com", Subject: "Hi", Body: "Body"})
	require.NoError(t, err)
	require.Len(t, fd.messages, 1)
	assert.Equal(t, []string{"sita@example.com"}, fd.messages[0].GetHeader("To"))
	assert.Equal(t, []string{"shop@example.com"}, fd.messages[0].GetHeader("From"))

	fd.err = errors.New("535 auth failed")
	assert.ErrorContains(t, m.Send(context.Background(), Mail{To: "x@example.com"}), "535 auth failed")
}

func TestSMTPMailer_CancelledContext(t *testing.T) {
	fd := &fakeDialer{}
	m := &SMTPMailer{dialer: fd}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.Send(ctx, Mail{To: "x@example.com"}), context.Canceled)
	assert.Empty(t, fd.messages)
}
