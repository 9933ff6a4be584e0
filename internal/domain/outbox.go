package domain

import (
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxCompleted  OutboxStatus = "completed"
	OutboxFailed     OutboxStatus = "failed"
)

// OutboxEvent is one queued event awaiting delivery to a worker.
// Delivery is at-least-once: consumers must tolerate duplicates, which
// the kernel handlers do by being idempotent. EventID doubles as the
// idempotency key.
type OutboxEvent struct {
	EventID     uuid.UUID       `json:"event_id"`
	EventType   KernelEventType `json:"event_type"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	Payload     map[string]any  `json:"payload"`
	Status      OutboxStatus    `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}
