package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/pkg/logger"
	"github.com/vaidashi/storefront-api/pkg/retry"
)

// ErrNotPending is returned when a manual retry targets a message that is not pending
var ErrNotPending = errors.New("dead letter message is not pending")

// DeadLetterStore is the part of the dead letter repository the processor uses
type DeadLetterStore interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*models.DeadLetterMessage, error)
	GetMessage(ctx context.Context, id int64) (*models.DeadLetterMessage, error)
	MarkAsRetrying(ctx context.Context, id int64) (bool, error)
	MarkAsResolved(ctx context.Context, id int64) error
	MarkAsDiscarded(ctx context.Context, id int64, reason string) error
	ResetToPending(ctx context.Context, id int64) error
}

// DeadLetterProcessor periodically replays dead letter messages with backoff
// and discards the ones that still fail.
type DeadLetterProcessor struct {
	dlqRepo         DeadLetterStore
	handlers        map[string]MessageHandler
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	backoffStrategy retry.BackoffStrategy
	logger          logger.Logger
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	running         bool
	mu              sync.Mutex
}

// DeadLetterProcessorConfig holds the configuration for the DeadLetterProcessor
type DeadLetterProcessorConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	MaxRetries      int
	BackoffStrategy retry.BackoffStrategy
}

// NewDeadLetterProcessor creates a new dead letter processor
func NewDeadLetterProcessor(
	dlqRepo DeadLetterStore,
	logger logger.Logger,
	config *DeadLetterProcessorConfig,
) *DeadLetterProcessor {
	ctx, cancel := context.WithCancel(context.Background())

	backoffStrategy := config.BackoffStrategy
	if backoffStrategy == nil {
		backoffStrategy = retry.NewDefaultExponentialBackoff()
	}

	pollingInterval := config.PollingInterval
	if pollingInterval <= 0 {
		pollingInterval = time.Minute
	}

	return &DeadLetterProcessor{
		dlqRepo:         dlqRepo,
		handlers:        make(map[string]MessageHandler),
		pollingInterval: pollingInterval,
		batchSize:       config.BatchSize,
		maxRetries:      config.MaxRetries,
		backoffStrategy: backoffStrategy,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// RegisterHandler registers handler for each of eventTypes
func (p *DeadLetterProcessor) RegisterHandler(handler MessageHandler, eventTypes ...string) {
	for _, eventType := range eventTypes {
		p.handlers[eventType] = handler
	}
}

// Start starts the dead letter processor
func (p *DeadLetterProcessor) Start() {
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

	p.logger.Info("Dead letter processor started",
		"pollingInterval", p.pollingInterval,
		"batchSize", p.batchSize,
		"maxRetries", p.maxRetries)
}

// Stop stops the dead letter processor
func (p *DeadLetterProcessor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.cancel()
	p.wg.Wait()
	p.running = false

	p.logger.Info("Dead letter processor stopped")
}

func (p *DeadLetterProcessor) run() {
	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := p.ProcessBatch(p.ctx); err != nil {
				p.logger.Error("Failed to process dead letter batch", "error", err)
			}
		}
	}
}

// ProcessBatch replays one batch of pending dead letter messages
func (p *DeadLetterProcessor) ProcessBatch(ctx context.Context) error {
	messages, err := p.dlqRepo.GetPendingMessages(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending messages: %w", err)
	}

	if len(messages) == 0 {
		return nil
	}

	p.logger.Info("Processing batch of dead letter messages", "count", len(messages))

	for _, msg := range messages {
		if err := p.processMessage(ctx, msg); err != nil {
			p.logger.Error("Failed to process dead letter message",
				"error", err,
				"messageID", msg.ID,
				"aggregateID", msg.AggregateID,
				"eventType", msg.EventType,
				"retryCount", msg.RetryCount)
		}
	}

	return nil
}

func (p *DeadLetterProcessor) processMessage(ctx context.Context, msg *models.DeadLetterMessage) error {
	claimed, err := p.dlqRepo.MarkAsRetrying(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to mark message as retrying: %w", err)
	}
	if !claimed {
		return nil
	}

	handler, exists := p.handlers[msg.EventType]
	if !exists {
		if err := p.dlqRepo.MarkAsDiscarded(ctx, msg.ID, "No handler available"); err != nil {
			p.logger.Error("Failed to mark message as discarded", "error", err, "messageID", msg.ID)
		}
		return fmt.Errorf("no handler registered for event type %s", msg.EventType)
	}

	outboxMsg := msg.ToOutboxMessage()

	retryConfig := &retry.RetryConfig{
		MaxAttempts:     p.maxRetries,
		BackoffStrategy: p.backoffStrategy,
		Logger:          p.logger,
	}

	retryFunc := func() error {
		return handler.HandleMessage(ctx, outboxMsg)
	}

	discardFunc := func(err error) error {
		reason := fmt.Sprintf("failed after %d replay attempts: %v", p.maxRetries, err)

		if markErr := p.dlqRepo.MarkAsDiscarded(ctx, msg.ID, reason); markErr != nil {
			p.logger.Error("Failed to mark message as discarded", "error", markErr, "messageID", msg.ID)
		}

		return fmt.Errorf("message discarded after %d retries: %w", p.maxRetries, err)
	}

	if err := retry.RetryWithDiscard(ctx, retryFunc, retryConfig, discardFunc); err != nil {
		return err
	}

	if err := p.dlqRepo.MarkAsResolved(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to mark message as resolved: %w", err)
	}

	p.logger.Info("Replayed dead letter message",
		"messageID", msg.ID,
		"aggregateID", msg.AggregateID,
		"eventType", msg.EventType)

	return nil
}

// RetryNow makes a single replay attempt for a pending message. On failure
// the message goes back to pending for the scheduled processor.
func (p *DeadLetterProcessor) RetryNow(ctx context.Context, id int64) error {
	msg, err := p.dlqRepo.GetMessage(ctx, id)
	if err != nil {
		return err
	}

	if msg.Status != models.DeadLetterStatusPending {
		return ErrNotPending
	}

	claimed, err := p.dlqRepo.MarkAsRetrying(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrNotPending
	}

	handler, exists := p.handlers[msg.EventType]
	if !exists {
		if resetErr := p.dlqRepo.ResetToPending(ctx, id); resetErr != nil {
			p.logger.Error("Failed to reset dead letter message", "error", resetErr, "messageID", id)
		}
		return fmt.Errorf("no handler registered for event type %s", msg.EventType)
	}

	if err := handler.HandleMessage(ctx, msg.ToOutboxMessage()); err != nil {
		if resetErr := p.dlqRepo.ResetToPending(ctx, id); resetErr != nil {
			p.logger.Error("Failed to reset dead letter message", "error", resetErr, "messageID", id)
		}
		return fmt.Errorf("replay failed: %w", err)
	}

	return p.dlqRepo.MarkAsResolved(ctx, id)
}
