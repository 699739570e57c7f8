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

const productColumns = `id, name, price, category, subcategory, specs, image_url, created_at`

// ProductRepository handles database operations for the catalog
type ProductRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewProductRepository creates a new ProductRepository
func NewProductRepository(db *database.Database, logger logger.Logger) *ProductRepository {
	return &ProductRepository{db: db, logger: logger}
}

// Create inserts a product
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.DB.ExecContext(ctx, query,
		product.ID,
		product.Name,
		product.Price,
		product.Category,
		product.Subcategory,
		product.Specs,
		product.ImageURL,
		product.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create product", "error", err, "productID", product.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetAll returns the whole catalog, newest first
func (r *ProductRepository) GetAll(ctx context.Context) ([]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY created_at DESC, id DESC`

	products := []*models.Product{}
	if err := r.db.DB.SelectContext(ctx, &products, query); err != nil {
		r.logger.Error("Failed to get products", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return products, nil
}

// GetByID retrieves a product by its ID
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	var product models.Product
	if err := r.db.DB.GetContext(ctx, &product, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get product", "error", err, "productID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &product, nil
}

// Delete removes a product and returns the deleted row
func (r *ProductRepository) Delete(ctx context.Context, id string) (*models.Product, error) {
	query := `DELETE FROM products WHERE id = $1 RETURNING ` + productColumns

	var product models.Product
	if err := r.db.DB.GetContext(ctx, &product, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to delete product", "error", err, "productID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &product, nil
}
