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

var (
	ErrNotFound = errors.New("record not found")
	ErrDatabase = errors.New("database error")
)

const orderColumns = `id, customer_name, address, phone, email, items, total_amount,
		payment_method, status, created_at, updated_at`

// OrderRepository handles database operations for orders.
// Items and total_amount are written once on insert and never updated.
type OrderRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *database.Database, logger logger.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

// BeginTx starts a transaction shared by an order write and its outbox event
func (r *OrderRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return tx, nil
}

// CreateInTx inserts a new order within tx
func (r *OrderRepository) CreateInTx(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := tx.ExecContext(
		ctx,
		query,
		order.ID,
		order.CustomerName,
		order.Address,
		order.Phone,
		order.Email,
		order.Items,
		order.TotalAmount,
		order.PaymentMethod,
		order.Status,
		order.Date,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create order", "error", err, "orderID", order.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetByID retrieves an order by its ID
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var order models.Order
	if err := r.db.DB.GetContext(ctx, &order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get order by ID", "error", err, "orderID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &order, nil
}

// GetByIDForUpdateInTx reads an order and locks its row until tx ends
func (r *OrderRepository) GetByIDForUpdateInTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	var order models.Order
	if err := tx.GetContext(ctx, &order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to lock order", "error", err, "orderID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &order, nil
}

// GetAll returns every order, newest first
func (r *OrderRepository) GetAll(ctx context.Context) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC`

	orders := []*models.Order{}
	if err := r.db.DB.SelectContext(ctx, &orders, query); err != nil {
		r.logger.Error("Failed to get all orders", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return orders, nil
}

// UpdateStatusInTx changes only the status column of an order
func (r *OrderRepository) UpdateStatusInTx(ctx context.Context, tx *sqlx.Tx, id string, status models.OrderStatus, at time.Time) error {
	query := `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`

	result, err := tx.ExecContext(ctx, query, status, at, id)
	if err != nil {
		r.logger.Error("Failed to update order status", "error", err, "orderID", id)
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

// CountByStatus returns the number of orders per status
func (r *OrderRepository) CountByStatus(ctx context.Context) (map[models.OrderStatus]int, error) {
	var rows []struct {
		Status models.OrderStatus `db:"status"`
		Count  int                `db:"count"`
	}

	query := `SELECT status, COUNT(*) AS count FROM orders GROUP BY status`
	if err := r.db.DB.SelectContext(ctx, &rows, query); err != nil {
		r.logger.Error("Failed to count orders", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	counts := make(map[models.OrderStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}
