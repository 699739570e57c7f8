package models

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ssdCart() OrderItems {
	return OrderItems{{Name: "SSD 1TB", Price: 50, Quantity: 2}}
}

func TestNewOrder(t *testing.T) {
	draft := OrderDraft{
		CustomerName:  "Sita",
		Address:       "Kathmandu",
		Phone:         "9800000000",
		Items:         ssdCart(),
		TotalAmount:   100,
		PaymentMethod: PaymentCOD,
	}

	order, err := NewOrder(draft)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^ord-[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`), order.ID)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, 100.0, order.TotalAmount)
	assert.Equal(t, draft.Items, order.Items)
	assert.False(t, order.Date.IsZero())

	draft.Items[0].Quantity = 7
	assert.Equal(t, 2, order.Items[0].Quantity, "order keeps its own snapshot of the cart")
}

func TestNewOrder_EmptyItems(t *testing.T) {
	_, err := NewOrder(OrderDraft{PaymentMethod: PaymentCOD})
	assert.ErrorIs(t, err, ErrEmptyDraft)
}

func TestOrderItems_TotalAndCount(t *testing.T) {
	items := OrderItems{
		{Name: "SSD 1TB", Price: 50, Quantity: 2},
		{Name: "Cable", Price: 0.1, Quantity: 3},
	}

	assert.Equal(t, 100.3, items.Total())
	assert.Equal(t, 5, items.Count())
}

func TestOrderItems_ValueAndScan(t *testing.T) {
	val, err := ssdCart().Value()
	require.NoError(t, err)

	var scanned OrderItems
	require.NoError(t, scanned.Scan(val))
	assert.Equal(t, ssdCart(), scanned)

	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)

	assert.Error(t, scanned.Scan(42))
}

func TestPaymentMethod(t *testing.T) {
	assert.True(t, PaymentCOD.Valid())
	assert.False(t, PaymentCOD.IsGateway())
	assert.True(t, PaymentESewa.IsGateway())
	assert.True(t, PaymentKhalti.IsGateway())
	assert.False(t, PaymentMethod("Card").Valid())
}

func TestShortRef(t *testing.T) {
	assert.Equal(t, "1234AB", ShortRef("ord-001234ab"))
	assert.Equal(t, "ABC", ShortRef("abc"))
}

func TestNewOrderDeliveredEvent(t *testing.T) {
	order, err := NewOrder(OrderDraft{
		CustomerName:  "Sita",
		Email:         "sita@example.com",
		Items:         ssdCart(),
		TotalAmount:   100,
		PaymentMethod: PaymentESewa,
	})
	require.NoError(t, err)
	order.Status = OrderStatusDelivered

	msg, err := NewOrderDeliveredEvent(order)
	require.NoError(t, err)
	assert.Equal(t, EventOrderDelivered, msg.EventType)
	assert.Equal(t, order.ID, msg.AggregateID)
	assert.Equal(t, OutboxStatusPending, msg.Status)

	event, err := DecodeEvent(msg.Payload)
	require.NoError(t, err)

	var data OrderDelivered
	require.NoError(t, json.Unmarshal(event.Data, &data))
	assert.Equal(t, 2, data.ItemCount)
	assert.Equal(t, 100.0, data.TotalAmount)
	assert.Equal(t, "sita@example.com", data.Email)
}

func TestProduct_Matches(t *testing.T) {
	p := &Product{Name: "Samsung 990 Pro", Category: "Storage", Subcategory: "NVMe SSD"}

	tests := []struct {
		category string
		query    string
		want     bool
	}{
		{"", "", true},
		{"All", "samsung", true},
		{"storage", "", true},
		{"Storage", "nvme", true},
		{"Storage", "ssd", true},
		{"SSD", "", true},
		{"stor", "", true},
		{"Samsung", "990", true},
		{"Laptop", "", false},
		{"Monitors", "samsung", false},
		{"", "keyboard", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Matches(tt.category, tt.query), "category=%q query=%q", tt.category, tt.query)
	}
}
