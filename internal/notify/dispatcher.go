package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vaidashi/storefront-api/internal/models"
	apperrors "github.com/vaidashi/storefront-api/pkg/errors"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

// Dispatcher sends customer notifications in the background.
// A failed send is logged and dropped.
type Dispatcher struct {
	mailer  Mailer
	logger  logger.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	// onResult is called after every attempt; tests use it to observe outcomes
	onResult func(orderID string, err error)
}

// NewDispatcher creates a Dispatcher. timeout bounds each send.
func NewDispatcher(mailer Mailer, timeout time.Duration, logger logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		mailer:  mailer,
		logger:  logger,
		timeout: timeout,
	}
}

// NotifyDelivered schedules the delivery email for order and returns immediately.
// It reports whether a send was scheduled.
func (d *Dispatcher) NotifyDelivered(order *models.Order) bool {
	if order.Email == "" {
		return false
	}

	mail := DeliveredMail(order)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("Dispatcher closed, delivery notification dropped", "orderID", order.ID)
		return false
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := d.mailer.Send(ctx, mail)
		if err != nil {
			err = apperrors.NewNotificationError("failed to send delivery notification").WithCause(err)
			d.logger.Error("Delivery notification failed",
				"error", err,
				"orderID", order.ID,
				"to", mail.To)
		} else {
			d.logger.Info("Delivery notification sent", "orderID", order.ID, "to", mail.To)
		}

		if d.onResult != nil {
			d.onResult(order.ID, err)
		}
	}()

	return true
}

// Close stops accepting notifications and waits for in-flight sends,
// or until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for notifications: %w", ctx.Err())
	}
}

// DeliveredMail renders the delivery email for order
func DeliveredMail(order *models.Order) Mail {
	ref := order.ShortRef()

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", order.CustomerName)
	fmt.Fprintf(&b, "Good news! Your order #%s has been delivered.\n\n", ref)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "  %d x %s  Rs. %.2f\n", item.Quantity, item.Name, item.LineTotal())
	}
	fmt.Fprintf(&b, "\nItems: %d\n", order.Items.Count())
	fmt.Fprintf(&b, "Total: Rs. %.2f\n", order.TotalAmount)
	fmt.Fprintf(&b, "Payment: %s\n\n", order.PaymentMethod)
	b.WriteString("Thank you for shopping with us.\n")

	return Mail{
		To:      order.Email,
		Subject: fmt.Sprintf("Order #%s delivered", ref),
		Body:    b.String(),
	}
}
