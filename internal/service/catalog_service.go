package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/internal/repository"
	"github.com/vaidashi/storefront-api/internal/storage"
	"github.com/vaidashi/storefront-api/pkg/cache"
	apperrors "github.com/vaidashi/storefront-api/pkg/errors"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

// Image is an uploaded product picture
type Image struct {
	Filename string
	Content  io.Reader
}

// CatalogService manages products. The full list is cached and dropped on every write.
type CatalogService struct {
	productRepo *repository.ProductRepository
	images      storage.ImageStore
	cache       cache.Cache
	ttl         time.Duration
	logger      logger.Logger
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(
	productRepo *repository.ProductRepository,
	images storage.ImageStore,
	c cache.Cache,
	ttl time.Duration,
	logger logger.Logger,
) *CatalogService {
	return &CatalogService{
		productRepo: productRepo,
		images:      images,
		cache:       c,
		ttl:         ttl,
		logger:      logger,
	}
}

func (s *CatalogService) listKey() string {
	return s.cache.GenerateKey("list", "all")
}

// ListProducts returns the catalog newest first
func (s *CatalogService) ListProducts(ctx context.Context) ([]*models.Product, error) {
	key := s.listKey()

	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Catalog cache read failed", "error", err)
	} else if cached != "" {
		var products []*models.Product
		if err := json.Unmarshal([]byte(cached), &products); err == nil {
			return products, nil
		}
		s.logger.Warn("Discarding unreadable catalog cache entry", "key", key)
	}

	products, err := s.productRepo.GetAll(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError("Failed to fetch products").WithCause(err)
	}

	if data, err := json.Marshal(products); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			s.logger.Warn("Catalog cache write failed", "error", err)
		}
	}

	return products, nil
}

// FilterProducts applies the storefront category and search filters
func (s *CatalogService) FilterProducts(ctx context.Context, category, query string) ([]*models.Product, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Product, 0, len(products))
	for _, p := range products {
		if p.Matches(category, query) {
			filtered = append(filtered, p)
		}
	}

	return filtered, nil
}

// GetProduct retrieves a product by ID
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "Product not found", "Failed to fetch product")
	}
	return product, nil
}

// CreateProduct stores the image, if any, and then the product
func (s *CatalogService) CreateProduct(ctx context.Context, draft models.ProductDraft, image *Image) (*models.Product, error) {
	var imageURL string

	if image != nil {
		url, err := s.images.Save(ctx, image.Filename, image.Content)
		if err != nil {
			if errors.Is(err, storage.ErrUnsupportedType) || errors.Is(err, storage.ErrTooLarge) {
				return nil, apperrors.NewValidationError(err.Error()).WithCause(err)
			}
			return nil, apperrors.NewInternalError("Failed to store image").WithCause(err)
		}
		imageURL = url
	}

	product := models.NewProduct(draft, imageURL)

	if err := s.productRepo.Create(ctx, product); err != nil {
		if imageURL != "" {
			if delErr := s.images.Delete(ctx, imageURL); delErr != nil {
				s.logger.Warn("Failed to remove orphaned image", "error", delErr, "url", imageURL)
			}
		}
		return nil, apperrors.NewPersistenceError("Failed to save product").WithCause(err)
	}

	s.invalidate(ctx)

	s.logger.Info("Product created", "productID", product.ID, "category", product.Category)
	return product, nil
}

// DeleteProduct removes the product, then its image on a best-effort basis
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	product, err := s.productRepo.Delete(ctx, id)
	if err != nil {
		return mapRepoError(err, "Product not found", "Failed to delete product")
	}

	s.invalidate(ctx)

	if product.ImageURL != "" {
		if err := s.images.Delete(ctx, product.ImageURL); err != nil {
			s.logger.Warn("Failed to delete product image", "error", err, "productID", id)
		}
	}

	s.logger.Info("Product deleted", "productID", id)
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, s.listKey()); err != nil {
		s.logger.Warn("Catalog cache invalidation failed", "error", err)
	}
}
