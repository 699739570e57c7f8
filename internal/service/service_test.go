package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/storefront-api/internal/database"
	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/internal/repository"
	"github.com/vaidashi/storefront-api/pkg/cache"
	apperrors "github.com/vaidashi/storefront-api/pkg/errors"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

func newMockDB(t *testing.T) (*database.Database, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return database.NewFromDB(sqlx.NewDb(mockDB, "postgres"), logger.NewNopLogger()), mock
}

type recordingNotifier struct {
	mu     sync.Mutex
	orders []*models.Order
}

func (n *recordingNotifier) NotifyDelivered(order *models.Order) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, order)
	return true
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.orders)
}

func newOrderService(t *testing.T) (*OrderService, sqlmock.Sqlmock, *recordingNotifier) {
	db, mock := newMockDB(t)
	log := logger.NewNopLogger()
	notifier := &recordingNotifier{}

	svc := NewOrderService(
		repository.NewOrderRepository(db, log),
		repository.NewOutboxRepository(db, log),
		notifier,
		log,
	)
	return svc, mock, notifier
}

func ssdDraft() models.OrderDraft {
	return models.OrderDraft{
		CustomerName:  "Sita",
		Address:       "Kathmandu",
		Phone:         "9800000000",
		Email:         "sita@example.com",
		Items:         models.OrderItems{{Name: "SSD 1TB", Price: 50, Quantity: 2}},
		TotalAmount:   100,
		PaymentMethod: models.PaymentCOD,
	}
}

var orderColumns = []string{
	"id", "customer_name", "address", "phone", "email", "items", "total_amount",
	"payment_method", "status", "created_at", "updated_at",
}

func storedOrder(status models.OrderStatus, email string) *sqlmock.Rows {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(orderColumns).AddRow(
		"ord-0012ab34", "Sita", "Kathmandu", "9800000000", email,
		[]byte(`[{"name":"SSD 1TB","price":50,"quantity":2}]`), 100.0,
		"COD", string(status), now, now,
	)
}

func TestOrderService_CreateOrder(t *testing.T) {
	svc, mock, _ := newOrderService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(sqlmock.AnyArg(), "Sita", "Kathmandu", "9800000000", "sita@example.com",
			sqlmock.AnyArg(), 100.0, models.PaymentCOD, models.OrderStatusPending,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO outbox_messages").
		WithArgs(models.AggregateOrder, sqlmock.AnyArg(), models.EventOrderCreated,
			sqlmock.AnyArg(), sqlmock.AnyArg(), models.OutboxStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	order, err := svc.CreateOrder(context.Background(), ssdDraft())
	require.NoError(t, err)

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, 100.0, order.TotalAmount)
	assert.Len(t, order.Items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderService_CreateOrder_KeepsSubmittedTotal(t *testing.T) {
	svc, mock, _ := newOrderService(t)

	draft := ssdDraft()
	draft.TotalAmount = 90

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO outbox_messages").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	order, err := svc.CreateOrder(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, 90.0, order.TotalAmount)
}

func TestOrderService_CreateOrder_PersistenceFailureRollsBack(t *testing.T) {
	svc, mock, _ := newOrderService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	order, err := svc.CreateOrder(context.Background(), ssdDraft())
	assert.Nil(t, order)
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderService_CreateOrder_OutboxFailureRollsBack(t *testing.T) {
	svc, mock, _ := newOrderService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO outbox_messages").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := svc.CreateOrder(context.Background(), ssdDraft())
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderService_CreateOrder_EmptyItems(t *testing.T) {
	svc, mock, _ := newOrderService(t)

	draft := ssdDraft()
	draft.Items = nil

	_, err := svc.CreateOrder(context.Background(), draft)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderService_DeliverOrder_NotifiesOnce(t *testing.T) {
	svc, mock, notifier := newOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders WHERE id = \$1 FOR UPDATE`).
		WithArgs("ord-0012ab34").
		WillReturnRows(storedOrder(models.OrderStatusPending, "sita@example.com"))
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(models.OrderStatusDelivered, sqlmock.AnyArg(), "ord-0012ab34").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO outbox_messages").
		WithArgs(models.AggregateOrder, "ord-0012ab34", models.EventOrderStatusChanged,
			sqlmock.AnyArg(), sqlmock.AnyArg(), models.OutboxStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectQuery("INSERT INTO outbox_messages").
		WithArgs(models.AggregateOrder, "ord-0012ab34", models.EventOrderDelivered,
			sqlmock.AnyArg(), sqlmock.AnyArg(), models.OutboxStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectCommit()

	order, err := svc.DeliverOrder(context.Background(), "ord-0012ab34")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusDelivered, order.Status)
	assert.Equal(t, 1, notifier.count())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderService_DeliverOrder_AlreadyDelivered(t *testing.T) {
	svc, mock, notifier := newOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(storedOrder(models.OrderStatusDelivered, "sita@example.com"))
	mock.ExpectRollback()

	order, err := svc.DeliverOrder(context.Background(), "ord-0012ab34")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusDelivered, order.Status)
	assert.Zero(t, notifier.count(), "a repeated delivery sends nothing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderService_DeliverOrder_WithoutEmail(t *testing.T) {
	svc, mock, notifier := newOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(storedOrder(models.OrderStatusPending, ""))
	mock.ExpectExec("UPDATE orders SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO outbox_messages").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectQuery("INSERT INTO outbox_messages").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectCommit()

	_, err := svc.DeliverOrder(context.Background(), "ord-0012ab34")
	require.NoError(t, err)
	assert.Zero(t, notifier.count())
}

func TestOrderService_DeliverOrder_NotFound(t *testing.T) {
	svc, mock, notifier := newOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows(orderColumns))
	mock.ExpectRollback()

	_, err := svc.DeliverOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, apperrors.StatusCode(err))
	assert.Zero(t, notifier.count())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderService_UpdateOrderStatus_InvalidStatus(t *testing.T) {
	svc, _, _ := newOrderService(t)

	_, _, err := svc.UpdateOrderStatus(context.Background(), "ord-1", models.OrderStatus("Shipped"))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestOrderService_ListOrders(t *testing.T) {
	svc, mock, _ := newOrderService(t)

	mock.ExpectQuery("ORDER BY created_at DESC").
		WillReturnRows(storedOrder(models.OrderStatusPending, ""))

	orders, err := svc.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 2, orders[0].Items.Count())
}

func TestOrderService_GetOrder_NotFound(t *testing.T) {
	svc, mock, _ := newOrderService(t)

	mock.ExpectQuery("FROM orders WHERE id").WillReturnRows(sqlmock.NewRows(orderColumns))

	_, err := svc.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// catalog

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]string
	deletes int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]string{}}
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		c.entries[key] = string(v)
	case string:
		c.entries[key] = v
	}
	return nil
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key], nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.deletes++
	return nil
}

func (c *memoryCache) GenerateKey(operation, key string) string {
	return cache.GenerateKey("products", operation, key)
}

type fakeImageStore struct {
	saved   []string
	deleted []string
	saveErr error
}

func (f *fakeImageStore) Save(_ context.Context, filename string, r io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	io.Copy(io.Discard, r)
	url := "/uploads/" + filename
	f.saved = append(f.saved, url)
	return url, nil
}

func (f *fakeImageStore) Delete(_ context.Context, url string) error {
	f.deleted = append(f.deleted, url)
	return nil
}

var productColumns = []string{"id", "name", "price", "category", "subcategory", "specs", "image_url", "created_at"}

func productRows() *sqlmock.Rows {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(productColumns).
		AddRow("prd-2", "Gaming Laptop", 1500.0, "Laptops", "Gaming", "16GB", "/uploads/b.png", now).
		AddRow("prd-1", "SSD 1TB", 50.0, "Storage", "SSD", "NVMe", "/uploads/a.png", now.Add(-time.Hour))
}

func newCatalogService(t *testing.T) (*CatalogService, sqlmock.Sqlmock, *memoryCache, *fakeImageStore) {
	db, mock := newMockDB(t)
	c := newMemoryCache()
	images := &fakeImageStore{}

	svc := NewCatalogService(repository.NewProductRepository(db, logger.NewNopLogger()), images, c, time.Minute, logger.NewNopLogger())
	return svc, mock, c, images
}

func TestCatalogService_ListProducts_ReadThroughCache(t *testing.T) {
	svc, mock, _, _ := newCatalogService(t)

	mock.ExpectQuery("FROM products ORDER BY created_at DESC").WillReturnRows(productRows())

	first, err := svc.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "prd-2", first[0].ID)

	// served from cache; sqlmock fails on any unexpected query
	second, err := svc.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first[1].Name, second[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogService_FilterProducts(t *testing.T) {
	svc, mock, _, _ := newCatalogService(t)
	mock.ExpectQuery("FROM products").WillReturnRows(productRows())

	products, err := svc.FilterProducts(context.Background(), "Storage", "ssd")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "prd-1", products[0].ID)

	products, err = svc.FilterProducts(context.Background(), "Storage", "laptop")
	require.NoError(t, err)
	assert.Empty(t, products)

	// menu entries match subcategories and names too
	products, err = svc.FilterProducts(context.Background(), "gaming", "")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "prd-2", products[0].ID)
}

func TestCatalogService_CreateProduct_InvalidatesCache(t *testing.T) {
	svc, mock, c, images := newCatalogService(t)

	mock.ExpectExec("INSERT INTO products").
		WithArgs(sqlmock.AnyArg(), "SSD 1TB", 50.0, "Storage", "SSD", "NVMe", "/uploads/ssd.png", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	product, err := svc.CreateProduct(context.Background(),
		models.ProductDraft{Name: "SSD 1TB", Price: 50, Category: "Storage", Subcategory: "SSD", Specs: "NVMe"},
		&Image{Filename: "ssd.png", Content: strings.NewReader("img")})
	require.NoError(t, err)

	assert.Equal(t, "/uploads/ssd.png", product.ImageURL)
	assert.Equal(t, []string{"/uploads/ssd.png"}, images.saved)
	assert.Equal(t, 1, c.deletes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogService_CreateProduct_RemovesImageOnFailure(t *testing.T) {
	svc, mock, _, images := newCatalogService(t)

	mock.ExpectExec("INSERT INTO products").WillReturnError(errors.New("unique violation"))

	_, err := svc.CreateProduct(context.Background(),
		models.ProductDraft{Name: "SSD", Category: "Storage"},
		&Image{Filename: "ssd.png", Content: strings.NewReader("img")})

	assert.ErrorIs(t, err, apperrors.ErrPersistence)
	assert.Equal(t, []string{"/uploads/ssd.png"}, images.deleted)
}

func TestCatalogService_DeleteProduct(t *testing.T) {
	svc, mock, c, images := newCatalogService(t)

	now := time.Now()
	mock.ExpectQuery("DELETE FROM products").
		WithArgs("prd-1").
		WillReturnRows(sqlmock.NewRows(productColumns).
			AddRow("prd-1", "SSD 1TB", 50.0, "Storage", "SSD", "NVMe", "/uploads/a.png", now))

	require.NoError(t, svc.DeleteProduct(context.Background(), "prd-1"))
	assert.Equal(t, []string{"/uploads/a.png"}, images.deleted)
	assert.Equal(t, 1, c.deletes)
}

func TestCatalogService_DeleteProduct_NotFound(t *testing.T) {
	svc, mock, _, images := newCatalogService(t)

	mock.ExpectQuery("DELETE FROM products").WillReturnRows(sqlmock.NewRows(productColumns))

	err := svc.DeleteProduct(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, images.deleted)
}

func TestContactService_Submit(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewContactService(repository.NewContactRepository(db, logger.NewNopLogger()), logger.NewNopLogger())

	mock.ExpectExec("INSERT INTO contact_messages").
		WithArgs(sqlmock.AnyArg(), "Ram", "ram@example.com", "Hello", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	msg, err := svc.Submit(context.Background(), "Ram", "ram@example.com", "Hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
