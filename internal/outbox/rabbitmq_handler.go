package outbox

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

// AMQPPublisher is satisfied by *rabbitmq.Publisher
type AMQPPublisher interface {
	Publish(ctx context.Context, routingKey, messageID string, body []byte, headers map[string]string) error
}

// RabbitMQHandler publishes outbox messages to a topic exchange
type RabbitMQHandler struct {
	publisher AMQPPublisher
	logger    logger.Logger
}

func NewRabbitMQHandler(publisher AMQPPublisher, logger logger.Logger) *RabbitMQHandler {
	return &RabbitMQHandler{publisher: publisher, logger: logger}
}

// RoutingKey maps an event type to its routing key: order_created -> order.created
func RoutingKey(eventType string) string {
	return strings.Replace(eventType, "_", ".", 1)
}

// HandleMessage publishes the message payload under the event's routing key
func (h *RabbitMQHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	key := RoutingKey(message.EventType)
	messageID := strconv.FormatInt(message.ID, 10)

	headers := map[string]string{
		"event_type":   message.EventType,
		"aggregate_id": message.AggregateID,
	}

	if err := h.publisher.Publish(ctx, key, messageID, message.Payload, headers); err != nil {
		return fmt.Errorf("failed to publish message to RabbitMQ: %w", err)
	}

	h.logger.Debug("Published message to RabbitMQ",
		"routingKey", key,
		"messageID", message.ID,
		"aggregateID", message.AggregateID)

	return nil
}
