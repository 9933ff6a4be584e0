package worker

import (
	"context"
	"sync"
	"time"

	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/metrics"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 25
	maxIdleBackoff      = 30 * time.Second
)

// HandlerFunc processes one outbox event. Delivery is at-least-once, so
// handlers must be idempotent.
type HandlerFunc func(ctx context.Context, e *domain.OutboxEvent) error

// Consumer polls the outbox and dispatches events to registered
// handlers. Multiple consumers can run against the same table; SKIP
// LOCKED dequeuing keeps them from stepping on each other. An empty
// poll backs off up to maxIdleBackoff.
type Consumer struct {
	outbox   domain.OutboxStore
	handlers map[domain.KernelEventType]HandlerFunc
	logger   *zap.Logger

	pollInterval time.Duration
	batchSize    int
	workers      int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewConsumer(outbox domain.OutboxStore, logger *zap.Logger) *Consumer {
	return &Consumer{
		outbox:       outbox,
		handlers:     make(map[domain.KernelEventType]HandlerFunc),
		logger:       logger,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		workers:      1,
		stopCh:       make(chan struct{}),
	}
}

func (c *Consumer) SetPollInterval(d time.Duration) {
	c.pollInterval = d
}

func (c *Consumer) SetBatchSize(n int) {
	c.batchSize = n
}

func (c *Consumer) SetWorkers(n int) {
	if n > 0 {
		c.workers = n
	}
}

// Handle registers a handler for an event type. Must be called before
// Start.
func (c *Consumer) Handle(t domain.KernelEventType, fn HandlerFunc) {
	c.handlers[t] = fn
}

func (c *Consumer) Start() {
	types := c.types()
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go func(id int) {
			defer c.wg.Done()
			c.run(id, types)
		}(i)
	}
	c.logger.Info("outbox consumer started",
		zap.Int("workers", c.workers),
		zap.Int("handlers", len(c.handlers)))
}

func (c *Consumer) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	c.logger.Info("outbox consumer stopped")
}

func (c *Consumer) run(id int, types []domain.KernelEventType) {
	backoff := c.pollInterval
	for {
		select {
		case <-c.stopCh:
			return
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		n := c.drainOnce(ctx, types)
		cancel()

		if n == 0 {
			backoff *= 2
			if backoff > maxIdleBackoff {
				backoff = maxIdleBackoff
			}
		} else {
			backoff = c.pollInterval
		}
	}
}

// drainOnce dequeues one batch and processes it, returning the number
// of events handled.
func (c *Consumer) drainOnce(ctx context.Context, types []domain.KernelEventType) int {
	events, err := c.outbox.Dequeue(ctx, types, c.batchSize)
	if err != nil {
		c.logger.Error("outbox dequeue failed", zap.Error(err))
		return 0
	}

	for i := range events {
		c.process(ctx, &events[i])
	}
	return len(events)
}

func (c *Consumer) process(ctx context.Context, e *domain.OutboxEvent) {
	handler, ok := c.handlers[e.EventType]
	if !ok {
		c.logger.Warn("no handler for event type",
			zap.String("event_type", string(e.EventType)))
		if err := c.outbox.MarkFailed(ctx, e.EventID, "no handler registered"); err != nil {
			c.logger.Error("outbox mark failed", zap.Error(err))
		}
		return
	}

	if err := handler(ctx, e); err != nil {
		c.logger.Warn("event handler failed",
			zap.String("event_id", e.EventID.String()),
			zap.String("event_type", string(e.EventType)),
			zap.Int("attempts", e.Attempts),
			zap.Error(err))
		metrics.OutboxDelivered.WithLabelValues(string(e.EventType), "error").Inc()
		if err := c.outbox.MarkFailed(ctx, e.EventID, err.Error()); err != nil {
			c.logger.Error("outbox mark failed", zap.Error(err))
		}
		return
	}

	metrics.OutboxDelivered.WithLabelValues(string(e.EventType), "ok").Inc()
	if err := c.outbox.MarkComplete(ctx, e.EventID); err != nil {
		c.logger.Error("outbox mark complete failed", zap.Error(err))
	}
}

func (c *Consumer) types() []domain.KernelEventType {
	types := make([]domain.KernelEventType, 0, len(c.handlers))
	for t := range c.handlers {
		types = append(types, t)
	}
	return types
}
