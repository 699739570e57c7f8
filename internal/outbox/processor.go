package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

// MessageHandler publishes one outbox message
type MessageHandler interface {
	HandleMessage(ctx context.Context, message *models.OutboxMessage) error
}

// OutboxStore is the part of the outbox repository the processor uses
type OutboxStore interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error)
	MarkAsProcessing(ctx context.Context, id int64) (bool, error)
	MarkAsCompleted(ctx context.Context, id int64) error
	MarkForRetry(ctx context.Context, id int64, errorMessage string) error
	MarkAsFailed(ctx context.Context, id int64, errorMessage string) error
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// writeBackTimeout bounds the status update after a publish attempt. The
// update outlives the batch context so a claimed message is never stranded.
const writeBackTimeout = 5 * time.Second

// DeadLetterSink receives messages that ran out of outbox attempts
type DeadLetterSink interface {
	Create(ctx context.Context, message *models.DeadLetterMessage) error
}

// Processor polls the outbox and hands each pending message to the handler
// registered for its event type.
type Processor struct {
	outboxRepo      OutboxStore
	dlq             DeadLetterSink
	handlers        map[string]MessageHandler
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	claimTimeout    time.Duration
	logger          logger.Logger
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	running         bool
	mu              sync.Mutex
}

// ProcessorConfig holds the configuration for the Processor
type ProcessorConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	MaxRetries      int

	// ClaimTimeout is how long a message may stay claimed before it is
	// released back to pending. Never shorter than two polling intervals.
	ClaimTimeout time.Duration
}

// NewProcessor creates a new Processor
func NewProcessor(
	outboxRepo OutboxStore,
	dlq DeadLetterSink,
	config ProcessorConfig,
	logger logger.Logger,
) *Processor {
	ctx, cancel := context.WithCancel(context.Background())

	if config.PollingInterval <= 0 {
		config.PollingInterval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if config.ClaimTimeout <= 0 {
		config.ClaimTimeout = time.Minute
	}
	if config.ClaimTimeout < 2*config.PollingInterval {
		config.ClaimTimeout = 2 * config.PollingInterval
	}

	return &Processor{
		outboxRepo:      outboxRepo,
		dlq:             dlq,
		handlers:        make(map[string]MessageHandler),
		pollingInterval: config.PollingInterval,
		batchSize:       config.BatchSize,
		maxRetries:      config.MaxRetries,
		claimTimeout:    config.ClaimTimeout,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// RegisterHandler registers handler for each of eventTypes. Must be called before Start.
func (p *Processor) RegisterHandler(handler MessageHandler, eventTypes ...string) {
	for _, eventType := range eventTypes {
		p.handlers[eventType] = handler
	}
}

// Start starts the outbox processor
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		p.run()
	}()

	p.logger.Info("Outbox processor started",
		"pollingInterval", p.pollingInterval,
		"batchSize", p.batchSize,
		"maxRetries", p.maxRetries)
}

// Stop stops polling and waits for the current batch to finish
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.cancel()
	p.wg.Wait()
	p.running = false

	p.logger.Info("Outbox processor stopped")
}

func (p *Processor) run() {
	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	// claims left by a previous process are released before the first batch
	p.releaseStale(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.releaseStale(p.ctx)

			ctx, cancel := context.WithTimeout(p.ctx, p.pollingInterval)
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error("Failed to process outbox batch", "error", err)
			}
			cancel()
		}
	}
}

func (p *Processor) releaseStale(ctx context.Context) {
	released, err := p.outboxRepo.ReleaseStale(ctx, p.claimTimeout)
	if err != nil {
		p.logger.Error("Failed to release stale outbox claims", "error", err)
		return
	}
	if released > 0 {
		p.logger.Warn("Released stale outbox claims", "count", released, "claimTimeout", p.claimTimeout)
	}
}

// ProcessBatch handles up to one batch of pending messages and returns how
// many were published.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	messages, err := p.outboxRepo.GetPendingMessages(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending messages: %w", err)
	}

	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages")
		return 0, nil
	}

	p.logger.Debug("Processing batch of outbox messages", "count", len(messages))

	published := 0
	for _, msg := range messages {
		ok, err := p.processMessage(ctx, msg)
		if err != nil {
			p.logger.Error("Failed to process message",
				"error", err,
				"messageID", msg.ID,
				"aggregateID", msg.AggregateID,
				"eventType", msg.EventType)
			continue
		}
		if ok {
			published++
		}
	}

	return published, nil
}

func (p *Processor) processMessage(ctx context.Context, msg *models.OutboxMessage) (bool, error) {
	claimed, err := p.outboxRepo.MarkAsProcessing(ctx, msg.ID)
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processing: %w", err)
	}
	if !claimed {
		return false, nil
	}

	attempts := msg.ProcessingAttempts + 1

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeBackTimeout)
	defer cancel()

	handler, exists := p.handlers[msg.EventType]
	if !exists {
		errorMsg := fmt.Sprintf("no handler registered for event type: %s", msg.EventType)
		if err := p.outboxRepo.MarkAsFailed(wctx, msg.ID, errorMsg); err != nil {
			p.logger.Error("Failed to mark message as failed", "error", err, "messageID", msg.ID)
		}
		return false, fmt.Errorf("%s", errorMsg)
	}

	if err := handler.HandleMessage(ctx, msg); err != nil {
		// a publish cut short by shutdown is retried rather than dead-lettered
		if attempts >= p.maxRetries && ctx.Err() == nil {
			p.deadLetter(wctx, msg, attempts, err)
			return false, fmt.Errorf("message failed after %d attempts: %w", attempts, err)
		}

		p.logger.Warn("Message publish failed, will retry",
			"error", err,
			"messageID", msg.ID,
			"attempt", attempts)

		if markErr := p.outboxRepo.MarkForRetry(wctx, msg.ID, err.Error()); markErr != nil {
			p.logger.Error("Failed to return message to pending", "error", markErr, "messageID", msg.ID)
		}
		return false, nil
	}

	if err := p.outboxRepo.MarkAsCompleted(wctx, msg.ID); err != nil {
		return false, fmt.Errorf("failed to mark message as completed: %w", err)
	}

	p.logger.Info("Published outbox message",
		"messageID", msg.ID,
		"aggregateID", msg.AggregateID,
		"eventType", msg.EventType)

	return true, nil
}

func (p *Processor) deadLetter(ctx context.Context, msg *models.OutboxMessage, attempts int, cause error) {
	reason := fmt.Sprintf("max retries (%d) reached", p.maxRetries)

	p.logger.Error("Moving message to dead letter queue",
		"error", cause,
		"messageID", msg.ID,
		"attempts", attempts)

	if p.dlq != nil {
		dl := models.NewDeadLetterMessage(msg, cause.Error(), reason)
		if err := p.dlq.Create(ctx, dl); err != nil {
			p.logger.Error("Failed to create dead letter message", "error", err, "messageID", msg.ID)
		}
	}

	if err := p.outboxRepo.MarkAsFailed(ctx, msg.ID, reason+": "+cause.Error()); err != nil {
		p.logger.Error("Failed to mark message as failed", "error", err, "messageID", msg.ID)
	}
}
