package service

import (
	"context"
	"errors"
	"math"

	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/internal/repository"
	apperrors "github.com/vaidashi/storefront-api/pkg/errors"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

// DeliveryNotifier is told about orders that just became Delivered
type DeliveryNotifier interface {
	NotifyDelivered(order *models.Order) bool
}

// OrderService handles order-related operations
type OrderService struct {
	orderRepo  *repository.OrderRepository
	outboxRepo *repository.OutboxRepository
	notifier   DeliveryNotifier
	logger     logger.Logger
}

// NewOrderService creates a new OrderService
func NewOrderService(
	orderRepo *repository.OrderRepository,
	outboxRepo *repository.OutboxRepository,
	notifier DeliveryNotifier,
	logger logger.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		notifier:   notifier,
		logger:     logger,
	}
}

// CreateOrder stores a Pending order and its order_created event in one transaction.
// The submitted total is kept as is; a mismatch with the items is only logged.
func (s *OrderService) CreateOrder(ctx context.Context, draft models.OrderDraft) (*models.Order, error) {
	order, err := models.NewOrder(draft)
	if err != nil {
		return nil, apperrors.NewValidationError("Order must contain at least one item").WithCause(err)
	}

	if computed := order.Items.Total(); math.Abs(computed-order.TotalAmount) > 0.005 {
		s.logger.Warn("Order total does not match items",
			"orderID", order.ID,
			"submitted", order.TotalAmount,
			"computed", computed)
	}

	outboxMsg, err := models.NewOrderCreatedEvent(order)
	if err != nil {
		s.logger.Error("Failed to create outbox message", "error", err)
		return nil, apperrors.NewInternalError("Failed to place order").WithCause(err)
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError("Failed to place order").WithCause(err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	if err = s.orderRepo.CreateInTx(ctx, tx, order); err != nil {
		return nil, apperrors.NewPersistenceError("Failed to place order").WithCause(err)
	}

	if err = s.outboxRepo.CreateInTx(ctx, tx, outboxMsg); err != nil {
		return nil, apperrors.NewPersistenceError("Failed to place order").WithCause(err)
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return nil, apperrors.NewPersistenceError("Failed to place order").WithCause(err)
	}

	s.logger.Info("Order created",
		"orderID", order.ID,
		"paymentMethod", order.PaymentMethod,
		"totalAmount", order.TotalAmount,
		"outboxID", outboxMsg.ID)

	return order, nil
}

// ListOrders returns every order, newest first
func (s *OrderService) ListOrders(ctx context.Context) ([]*models.Order, error) {
	orders, err := s.orderRepo.GetAll(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError("Failed to fetch orders").WithCause(err)
	}
	return orders, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "Order not found", "Failed to fetch order")
	}
	return order, nil
}

// UpdateOrderStatus moves an order to newStatus under a row lock. changed is
// false when the order already had that status, in which case nothing is written.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, newStatus models.OrderStatus) (order *models.Order, changed bool, err error) {
	if !newStatus.Valid() {
		return nil, false, apperrors.NewValidationError("Invalid order status").WithContext("status", newStatus)
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, false, apperrors.NewPersistenceError("Failed to update order").WithCause(err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	order, err = s.orderRepo.GetByIDForUpdateInTx(ctx, tx, id)
	if err != nil {
		return nil, false, mapRepoError(err, "Order not found", "Failed to update order")
	}

	if order.Status == newStatus {
		return order, false, nil
	}

	oldStatus := order.Status
	order.Status = newStatus
	order.UpdatedAt = models.GetCurrentTime()

	events := make([]*models.OutboxMessage, 0, 2)

	changedEvent, err := models.NewOrderStatusChangedEvent(order, oldStatus)
	if err != nil {
		return nil, false, apperrors.NewInternalError("Failed to update order").WithCause(err)
	}
	events = append(events, changedEvent)

	if newStatus == models.OrderStatusDelivered {
		deliveredEvent, err := models.NewOrderDeliveredEvent(order)
		if err != nil {
			return nil, false, apperrors.NewInternalError("Failed to update order").WithCause(err)
		}
		events = append(events, deliveredEvent)
	}

	if err = s.orderRepo.UpdateStatusInTx(ctx, tx, order.ID, newStatus, order.UpdatedAt); err != nil {
		return nil, false, mapRepoError(err, "Order not found", "Failed to update order")
	}

	for _, event := range events {
		if err = s.outboxRepo.CreateInTx(ctx, tx, event); err != nil {
			return nil, false, apperrors.NewPersistenceError("Failed to update order").WithCause(err)
		}
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return nil, false, apperrors.NewPersistenceError("Failed to update order").WithCause(err)
	}
	committed = true

	s.logger.Info("Order status updated",
		"orderID", order.ID,
		"oldStatus", oldStatus,
		"newStatus", newStatus)

	return order, true, nil
}

// DeliverOrder marks an order Delivered and, the first time only, notifies the
// customer when an email is on file. The notification never affects the result.
func (s *OrderService) DeliverOrder(ctx context.Context, id string) (*models.Order, error) {
	order, changed, err := s.UpdateOrderStatus(ctx, id, models.OrderStatusDelivered)
	if err != nil {
		return nil, err
	}

	if changed && order.Email != "" && s.notifier != nil {
		s.notifier.NotifyDelivered(order)
	}

	return order, nil
}

// CountByStatus reports the number of orders in each status
func (s *OrderService) CountByStatus(ctx context.Context) (map[models.OrderStatus]int, error) {
	counts, err := s.orderRepo.CountByStatus(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError("Failed to count orders").WithCause(err)
	}
	return counts, nil
}

func mapRepoError(err error, notFoundMsg, failMsg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFoundError(notFoundMsg)
	}
	return apperrors.NewPersistenceError(failMsg).WithCause(err)
}
