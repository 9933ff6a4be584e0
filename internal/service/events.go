package service

import (
	"context"
	"fmt"

	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// forwardedEvents are the event types mirrored into the outbox for
// asynchronous processing. Everything else only lands in the decision
// log.
var forwardedEvents = map[domain.KernelEventType]bool{
	domain.EventPassageExtracted: true,
	domain.EventClaimAccepted:    true,
}

// EventRecorder appends decision-log events and mirrors the forwarded
// subset into the outbox under the same event ID, so workers can
// deduplicate redeliveries.
type EventRecorder struct {
	events domain.KernelEventStore
	outbox domain.OutboxStore
	logger *zap.Logger
}

func NewEventRecorder(events domain.KernelEventStore, outbox domain.OutboxStore, logger *zap.Logger) *EventRecorder {
	return &EventRecorder{
		events: events,
		outbox: outbox,
		logger: logger,
	}
}

func (r *EventRecorder) Record(ctx context.Context, e *domain.KernelEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	if err := r.events.Append(ctx, e); err != nil {
		return fmt.Errorf("append kernel event: %w", err)
	}
	metrics.KernelEvents.WithLabelValues(string(e.EventType)).Inc()

	if !forwardedEvents[e.EventType] || r.outbox == nil {
		return nil
	}

	err := r.outbox.Enqueue(ctx, &domain.OutboxEvent{
		EventID:   e.ID,
		EventType: e.EventType,
		TenantID:  e.TenantID,
		Payload:   e.Payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}
	return nil
}
