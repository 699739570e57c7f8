package models

import (
	"encoding/json"
	"time"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Event types written to the outbox
const (
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
	EventOrderDelivered     = "order_delivered"

	AggregateOrder = "order"
)

// OrderEventTypes lists every event written for orders
var OrderEventTypes = []string{EventOrderCreated, EventOrderStatusChanged, EventOrderDelivered}

// OutboxMessage is an event waiting to be published, written in the same
// transaction as the change it describes.
type OutboxMessage struct {
	ID                 int64        `db:"id" json:"id"`
	AggregateType      string       `db:"aggregate_type" json:"aggregate_type"`
	AggregateID        string       `db:"aggregate_id" json:"aggregate_id"`
	EventType          string       `db:"event_type" json:"event_type"`
	Payload            []byte       `db:"payload" json:"payload"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt        *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	ProcessingAttempts int          `db:"processing_attempts" json:"processing_attempts"`
	LastError          *string      `db:"last_error" json:"last_error,omitempty"`
	Status             OutboxStatus `db:"status" json:"status"`
}

// OutboxMessageEvent is the envelope stored in OutboxMessage.Payload
type OutboxMessageEvent struct {
	EventType   string          `json:"event_type"`
	EventID     string          `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

// OrderStatusChange is the data of an order_status_changed event
type OrderStatusChange struct {
	OrderID   string      `json:"order_id"`
	OldStatus OrderStatus `json:"old_status"`
	NewStatus OrderStatus `json:"new_status"`
}

// OrderDelivered is the data of an order_delivered event
type OrderDelivered struct {
	OrderID      string  `json:"order_id"`
	CustomerName string  `json:"customer_name"`
	Email        string  `json:"email,omitempty"`
	ItemCount    int     `json:"item_count"`
	TotalAmount  float64 `json:"total_amount"`
}

func newOrderEvent(eventType, orderID string, data interface{}) (*OutboxMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	now := GetCurrentTime()

	payload, err := json.Marshal(OutboxMessageEvent{
		EventType:   eventType,
		EventID:     GenerateID("evt"),
		AggregateID: orderID,
		OccurredAt:  now,
		Data:        raw,
	})
	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
		Status:        OutboxStatusPending,
	}, nil
}

// NewOrderCreatedEvent carries the full order snapshot
func NewOrderCreatedEvent(order *Order) (*OutboxMessage, error) {
	return newOrderEvent(EventOrderCreated, order.ID, order)
}

// NewOrderStatusChangedEvent records a status transition
func NewOrderStatusChangedEvent(order *Order, oldStatus OrderStatus) (*OutboxMessage, error) {
	return newOrderEvent(EventOrderStatusChanged, order.ID, OrderStatusChange{
		OrderID:   order.ID,
		OldStatus: oldStatus,
		NewStatus: order.Status,
	})
}

// NewOrderDeliveredEvent summarises a delivered order for downstream consumers
func NewOrderDeliveredEvent(order *Order) (*OutboxMessage, error) {
	return newOrderEvent(EventOrderDelivered, order.ID, OrderDelivered{
		OrderID:      order.ID,
		CustomerName: order.CustomerName,
		Email:        order.Email,
		ItemCount:    order.Items.Count(),
		TotalAmount:  order.TotalAmount,
	})
}

// DecodeEvent unpacks an outbox payload envelope
func DecodeEvent(payload []byte) (*OutboxMessageEvent, error) {
	var event OutboxMessageEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
