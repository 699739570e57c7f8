package api

import (
	"context"
	"fmt"
	"time"

	"github.com/vaidashi/storefront-api/internal/checkout"
	"github.com/vaidashi/storefront-api/internal/config"
	"github.com/vaidashi/storefront-api/internal/database"
	"github.com/vaidashi/storefront-api/internal/handlers"
	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/internal/notify"
	"github.com/vaidashi/storefront-api/internal/outbox"
	"github.com/vaidashi/storefront-api/internal/payment"
	"github.com/vaidashi/storefront-api/internal/repository"
	"github.com/vaidashi/storefront-api/internal/service"
	"github.com/vaidashi/storefront-api/internal/storage"
	"github.com/vaidashi/storefront-api/pkg/cache"
	"github.com/vaidashi/storefront-api/pkg/kafka"
	"github.com/vaidashi/storefront-api/pkg/logger"
	"github.com/vaidashi/storefront-api/pkg/rabbitmq"
	"github.com/vaidashi/storefront-api/pkg/retry"
)

const mailTimeout = 30 * time.Second

// Bootstrap connects every dependency, starts the background workers and
// returns a server whose Shutdown stops them again.
func Bootstrap(ctx context.Context, cfg *config.Config, logger logger.Logger) (server *Server, err error) {
	db, err := database.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	var cleanup []func()
	defer func() {
		if err != nil {
			for i := len(cleanup) - 1; i >= 0; i-- {
				cleanup[i]()
			}
			db.Close()
		}
	}()

	// Initialize repositories
	orderRepo := repository.NewOrderRepository(db, logger)
	outboxRepo := repository.NewOutboxRepository(db, logger)
	dlqRepo := repository.NewDeadLetterRepository(db, logger)
	productRepo := repository.NewProductRepository(db, logger)
	contactRepo := repository.NewContactRepository(db, logger)

	images, err := storage.NewLocalStore(cfg.Uploads.Dir, cfg.Uploads.PublicURL, cfg.Uploads.MaxBytes, logger)
	if err != nil {
		return nil, err
	}

	dispatcher := notify.NewDispatcher(notify.NewMailer(cfg.SMTP, logger), mailTimeout, logger)

	// Initialize services
	orderService := service.NewOrderService(orderRepo, outboxRepo, dispatcher, logger)
	catalogService := service.NewCatalogService(productRepo, images, newCatalogCache(ctx, cfg, logger), cfg.Redis.TTL, logger)
	contactService := service.NewContactService(contactRepo, logger)

	esewa := payment.NewESewa(cfg.ESewa)
	khalti := payment.NewKhaltiClient(cfg.Khalti, logger)
	coordinator := checkout.NewCoordinator(orderService, esewa, khalti, logger)

	publisher, closePublisher, err := newEventPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, func() { closePublisher() })

	outboxProcessor := outbox.NewProcessor(outboxRepo, dlqRepo, outbox.ProcessorConfig{
		PollingInterval: cfg.Outbox.PollInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		MaxRetries:      cfg.Outbox.MaxRetries,
		ClaimTimeout:    cfg.Outbox.ClaimTimeout,
	}, logger)

	deadLetterProcessor := outbox.NewDeadLetterProcessor(dlqRepo, logger, &outbox.DeadLetterProcessorConfig{
		PollingInterval: cfg.Outbox.DLQInterval,
		BatchSize:       5,
		MaxRetries:      cfg.Outbox.DLQMaxRetries,
		BackoffStrategy: &retry.ExponentialBackoff{
			InitialInterval: time.Second,
			MaxInterval:     2 * time.Minute,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
	})

	outboxProcessor.RegisterHandler(publisher, models.OrderEventTypes...)
	deadLetterProcessor.RegisterHandler(publisher, models.OrderEventTypes...)

	var (
		kafkaConsumer *kafka.Consumer
		orderEvents   *handlers.OrderEventsHandler
	)
	if cfg.Kafka.Consume {
		kafkaConsumer, err = kafka.NewConsumer(&kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topics:        []string{cfg.Kafka.OrdersTopic},
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
		}, logger)
		if err != nil {
			return nil, err
		}

		orderEvents = handlers.NewOrderEventsHandler(logger)
		kafkaConsumer.RegisterHandler(cfg.Kafka.OrdersTopic, orderEvents)
	}

	server = NewServer(cfg, Services{
		Orders:      orderService,
		Catalog:     catalogService,
		Contacts:    contactService,
		Checkout:    coordinator,
		ESewa:       esewa,
		Khalti:      khalti,
		DeadLetters: dlqRepo,
		DLQRetrier:  deadLetterProcessor,
		Outbox:      outboxRepo,
		OrderEvents: orderEvents,
		UploadsDir:  images.Dir(),
	}, logger)

	// closers run in reverse: consumer, processors, publisher, mail, database
	server.OnShutdown("database", func(context.Context) error { return db.Close() })
	server.OnShutdown("mail dispatcher", dispatcher.Close)
	server.OnShutdown("event publisher", func(context.Context) error { return closePublisher() })
	server.OnShutdown("outbox processors", func(context.Context) error {
		outboxProcessor.Stop()
		deadLetterProcessor.Stop()
		return nil
	})

	outboxProcessor.Start()
	deadLetterProcessor.Start()

	if kafkaConsumer != nil {
		if startErr := kafkaConsumer.Start(); startErr != nil {
			// non-fatal, the storefront works without the stats consumer
			logger.Error("Failed to start Kafka consumer", "error", startErr)
		} else {
			server.OnShutdown("kafka consumer", func(context.Context) error { return kafkaConsumer.Stop() })
		}
	}

	return server, nil
}

// newEventPublisher returns the outbox handler for the configured broker
// and a function that releases its connection.
func newEventPublisher(cfg *config.Config, logger logger.Logger) (outbox.MessageHandler, func() error, error) {
	switch cfg.Broker {
	case config.BrokerKafka:
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
		if err != nil {
			return nil, nil, err
		}
		return outbox.NewKafkaHandler(producer, cfg.Kafka.OrdersTopic, logger), producer.Close, nil

	case config.BrokerRabbitMQ:
		publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			return nil, nil, err
		}
		return outbox.NewRabbitMQHandler(publisher, logger), publisher.Close, nil

	case config.BrokerLog:
		return outbox.NewLoggingHandler(logger), func() error { return nil }, nil
	}

	return nil, nil, fmt.Errorf("unknown broker %q", cfg.Broker)
}

// newCatalogCache connects to Redis when configured. An unreachable Redis
// degrades to no caching rather than failing startup.
func newCatalogCache(ctx context.Context, cfg *config.Config, logger logger.Logger) cache.Cache {
	if cfg.Redis.Addr == "" {
		return cache.NewNoopCache("catalog")
	}

	c, err := cache.NewRedisCache(ctx, cfg.Redis.Addr, "catalog")
	if err != nil {
		logger.Warn("Redis unavailable, catalog cache disabled", "error", err)
		return cache.NewNoopCache("catalog")
	}

	return c
}
