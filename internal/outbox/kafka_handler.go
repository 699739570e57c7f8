package outbox

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

// KafkaSender is satisfied by *kafka.Producer
type KafkaSender interface {
	SendMessage(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// KafkaHandler publishes outbox messages to a Kafka topic keyed by order ID,
// so all events of one order land on the same partition in order.
type KafkaHandler struct {
	producer KafkaSender
	topic    string
	logger   logger.Logger
}

// NewKafkaHandler creates a new KafkaHandler
func NewKafkaHandler(producer KafkaSender, topic string, logger logger.Logger) *KafkaHandler {
	return &KafkaHandler{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// HandleMessage publishes the message payload
func (h *KafkaHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	headers := map[string]string{
		"event_type":     message.EventType,
		"aggregate_type": message.AggregateType,
		"message_id":     strconv.FormatInt(message.ID, 10),
	}

	if err := h.producer.SendMessage(ctx, h.topic, message.AggregateID, message.Payload, headers); err != nil {
		return fmt.Errorf("failed to publish message to Kafka: %w", err)
	}

	h.logger.Debug("Published message to Kafka",
		"topic", h.topic,
		"messageID", message.ID,
		"aggregateID", message.AggregateID,
		"eventType", message.EventType)

	return nil
}
