package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vaidashi/storefront-api/pkg/logger"
)

// channel is the subset of *amqp.Channel the publisher needs
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes persistent JSON messages to a topic exchange and
// reconnects when the broker drops the connection.
type Publisher struct {
	url      string
	exchange string
	conn     *amqp.Connection
	ch       channel
	mu       sync.RWMutex
	logger   logger.Logger
	done     chan struct{}
	once     sync.Once
}

// NewPublisher dials url, declares exchange as a durable topic exchange and
// starts watching the connection.
func NewPublisher(url, exchange string, logger logger.Logger) (*Publisher, error) {
	p := &Publisher{
		url:      url,
		exchange: exchange,
		logger:   logger,
		done:     make(chan struct{}),
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	go p.handleReconnect(5 * time.Second)

	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // args
	); err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}

	p.mu.Lock()
	p.conn = conn
	p.ch = ch
	p.mu.Unlock()

	return nil
}

func (p *Publisher) handleReconnect(backoff time.Duration) {
	for {
		p.mu.RLock()
		conn := p.conn
		p.mu.RUnlock()

		closed := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-p.done:
			return
		case amqpErr, ok := <-closed:
			if !ok {
				// closed through Close, not by the broker
				return
			}
			p.logger.Warn("RabbitMQ connection closed, reconnecting", "error", amqpErr)
		}

		for {
			select {
			case <-p.done:
				return
			case <-time.After(backoff):
			}

			if err := p.connect(); err != nil {
				p.logger.Error("RabbitMQ reconnect failed", "error", err)
				continue
			}

			p.logger.Info("RabbitMQ reconnected", "exchange", p.exchange)
			break
		}
	}
}

// Publish sends body to the exchange under routingKey. Headers become AMQP headers.
func (p *Publisher) Publish(ctx context.Context, routingKey, messageID string, body []byte, headers map[string]string) error {
	p.mu.RLock()
	ch := p.ch
	p.mu.RUnlock()

	table := amqp.Table{}
	for k, v := range headers {
		table[k] = v
	}

	err := ch.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Headers:      table,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to RabbitMQ: %w", err)
	}

	p.logger.Debug("Message published to RabbitMQ",
		"exchange", p.exchange,
		"routingKey", routingKey,
		"messageID", messageID)

	return nil
}

// Close stops reconnecting and closes the channel and connection.
func (p *Publisher) Close() error {
	p.once.Do(func() { close(p.done) })

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
