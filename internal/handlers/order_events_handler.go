package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

// maxSeenEvents bounds the duplicate filter; older ids are forgotten first
const maxSeenEvents = 10000

// OrderStats is a running summary of the order event stream
type OrderStats struct {
	Created          int                          `json:"created"`
	Delivered        int                          `json:"delivered"`
	Revenue          float64                      `json:"revenue"`
	DeliveredRevenue float64                      `json:"delivered_revenue"`
	ByPaymentMethod  map[models.PaymentMethod]int `json:"by_payment_method"`
	Duplicates       int                          `json:"duplicates"`
	LastEventAt      *time.Time                   `json:"last_event_at,omitempty"`
}

// OrderEventsHandler consumes order events from Kafka and keeps OrderStats.
// Kafka delivers at least once, so events are deduplicated by event id.
type OrderEventsHandler struct {
	logger logger.Logger

	mu        sync.RWMutex
	stats     OrderStats
	seen      map[string]struct{}
	seenOrder []string
}

// NewOrderEventsHandler creates a new OrderEventsHandler
func NewOrderEventsHandler(logger logger.Logger) *OrderEventsHandler {
	return &OrderEventsHandler{
		logger: logger,
		stats:  OrderStats{ByPaymentMethod: map[models.PaymentMethod]int{}},
		seen:   make(map[string]struct{}),
	}
}

// HandleMessage handles incoming order events from Kafka messages
func (h *OrderEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	event, err := models.DecodeEvent(msg.Value)
	if err != nil {
		// a malformed message will never decode; skip it instead of blocking the partition
		h.logger.Error("Dropping undecodable order event", "error", err, "offset", msg.Offset)
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, dup := h.seen[event.EventID]; dup {
		h.stats.Duplicates++
		return nil
	}

	switch event.EventType {
	case models.EventOrderCreated:
		err = h.applyCreated(event)
	case models.EventOrderDelivered:
		err = h.applyDelivered(event)
	case models.EventOrderStatusChanged:
		// delivered orders also emit order_delivered, which carries the totals
	default:
		h.logger.Warn("Unknown order event type", "eventType", event.EventType)
	}

	if err != nil {
		return fmt.Errorf("failed to apply %s: %w", event.EventType, err)
	}

	h.remember(event.EventID)
	at := event.OccurredAt
	h.stats.LastEventAt = &at

	h.logger.Debug("Applied order event",
		"eventType", event.EventType,
		"eventID", event.EventID,
		"orderID", event.AggregateID)

	return nil
}

func (h *OrderEventsHandler) applyCreated(event *models.OutboxMessageEvent) error {
	var order models.Order
	if err := json.Unmarshal(event.Data, &order); err != nil {
		return err
	}

	h.stats.Created++
	h.stats.Revenue = round2(h.stats.Revenue + order.TotalAmount)
	h.stats.ByPaymentMethod[order.PaymentMethod]++
	return nil
}

func (h *OrderEventsHandler) applyDelivered(event *models.OutboxMessageEvent) error {
	var delivered models.OrderDelivered
	if err := json.Unmarshal(event.Data, &delivered); err != nil {
		return err
	}

	h.stats.Delivered++
	h.stats.DeliveredRevenue = round2(h.stats.DeliveredRevenue + delivered.TotalAmount)
	return nil
}

func (h *OrderEventsHandler) remember(eventID string) {
	h.seen[eventID] = struct{}{}
	h.seenOrder = append(h.seenOrder, eventID)

	if len(h.seenOrder) > maxSeenEvents {
		oldest := h.seenOrder[0]
		h.seenOrder = h.seenOrder[1:]
		delete(h.seen, oldest)
	}
}

// Stats returns a copy of the current summary
func (h *OrderEventsHandler) Stats() OrderStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := h.stats
	out.ByPaymentMethod = make(map[models.PaymentMethod]int, len(h.stats.ByPaymentMethod))
	for k, v := range h.stats.ByPaymentMethod {
		out.ByPaymentMethod[k] = v
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
