package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// PaymentMethod is the closed set of ways a customer can pay
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "COD"
	PaymentESewa  PaymentMethod = "eSewa"
	PaymentKhalti PaymentMethod = "Khalti"
)

// Valid reports whether m is one of the known payment methods
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentESewa, PaymentKhalti:
		return true
	}
	return false
}

// IsGateway reports whether m redirects the customer to an external processor
func (m PaymentMethod) IsGateway() bool {
	return m == PaymentESewa || m == PaymentKhalti
}

// OrderStatus represents the status of an order
type OrderStatus string

// Paid is part of the stored vocabulary but no transition sets it.
const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusPaid      OrderStatus = "Paid"
	OrderStatusDelivered OrderStatus = "Delivered"
)

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusDelivered:
		return true
	}
	return false
}

// OrderItem is a line of the cart captured at order time
type OrderItem struct {
	ProductID string  `json:"productId,omitempty"`
	Name      string  `json:"name" validate:"required"`
	Price     float64 `json:"price" validate:"gte=0"`
	Quantity  int     `json:"quantity" validate:"gte=1"`
	ImageURL  string  `json:"imageUrl,omitempty"`
}

// LineTotal is price times quantity
func (i OrderItem) LineTotal() float64 {
	return i.Price * float64(i.Quantity)
}

// OrderItems is stored as a JSONB snapshot
type OrderItems []OrderItem

// Value implements driver.Valuer
func (items OrderItems) Value() (driver.Value, error) {
	if items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(items)
}

// Scan implements sql.Scanner
func (items *OrderItems) Scan(src interface{}) error {
	var data []byte

	switch v := src.(type) {
	case nil:
		*items = OrderItems{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for order items", src)
	}

	return json.Unmarshal(data, items)
}

// Total sums the line totals, rounded to paisa
func (items OrderItems) Total() float64 {
	var total float64
	for _, item := range items {
		total += item.LineTotal()
	}
	return math.Round(total*100) / 100
}

// Count is the number of units across all lines
func (items OrderItems) Count() int {
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

// Order represents an order in the system
type Order struct {
	ID            string        `db:"id" json:"_id"`
	CustomerName  string        `db:"customer_name" json:"customerName"`
	Address       string        `db:"address" json:"address"`
	Phone         string        `db:"phone" json:"phone"`
	Email         string        `db:"email" json:"email,omitempty"`
	Items         OrderItems    `db:"items" json:"items"`
	TotalAmount   float64       `db:"total_amount" json:"totalAmount"`
	PaymentMethod PaymentMethod `db:"payment_method" json:"paymentMethod"`
	Status        OrderStatus   `db:"status" json:"status"`
	Date          time.Time     `db:"created_at" json:"date"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updatedAt"`
}

// ShortRef is the customer facing reference: last six characters, upper case
func (o *Order) ShortRef() string {
	return ShortRef(o.ID)
}

// OrderDraft is what a customer submits. Presence is enforced by the validation layer.
type OrderDraft struct {
	CustomerName  string        `json:"customerName" validate:"required"`
	Address       string        `json:"address" validate:"required"`
	Phone         string        `json:"phone" validate:"required"`
	Email         string        `json:"email" validate:"omitempty,email"`
	Items         OrderItems    `json:"items" validate:"required,min=1,dive"`
	TotalAmount   float64       `json:"totalAmount" validate:"gte=0"`
	PaymentMethod PaymentMethod `json:"paymentMethod" validate:"required,oneof=COD eSewa Khalti"`
}

var ErrEmptyDraft = errors.New("order draft has no items")

// NewOrder turns a draft into a Pending order with a fresh id and timestamp.
// Items are copied so later changes to the caller's slice do not leak in.
func NewOrder(draft OrderDraft) (*Order, error) {
	if len(draft.Items) == 0 {
		return nil, ErrEmptyDraft
	}

	items := make(OrderItems, len(draft.Items))
	copy(items, draft.Items)

	now := GetCurrentTime()

	return &Order{
		ID:            GenerateID("ord"),
		CustomerName:  draft.CustomerName,
		Address:       draft.Address,
		Phone:         draft.Phone,
		Email:         draft.Email,
		Items:         items,
		TotalAmount:   draft.TotalAmount,
		PaymentMethod: draft.PaymentMethod,
		Status:        OrderStatusPending,
		Date:          now,
		UpdatedAt:     now,
	}, nil
}
