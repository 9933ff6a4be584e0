package domain

import (
	"time"

	"github.com/google/uuid"
)

type ItemStatus string

const (
	ItemAccepted ItemStatus = "accepted"
	ItemRejected ItemStatus = "rejected"
)

// Item is one ingested piece of source content. Idempotency key is
// (tenant_id, content_hash): re-ingesting identical content only bumps
// updated_at.
type Item struct {
	ID          uuid.UUID      `json:"id"`
	TenantID    uuid.UUID      `json:"tenant_id"`
	SourceType  string         `json:"source_type"`
	SourceRef   string         `json:"source_ref,omitempty"`
	ContentHash string         `json:"content_hash"`
	Title       string         `json:"title,omitempty"`
	Content     string         `json:"content,omitempty"`
	Status      ItemStatus     `json:"status"`
	RejectReason string        `json:"reject_reason,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Passage is a chunk of an item, the unit of evidence for claims.
type Passage struct {
	ID        uuid.UUID `json:"id"`
	ItemID    uuid.UUID `json:"item_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Seq       int       `json:"seq"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Entity is a node in the knowledge graph that claims attach to.
// Archived entities are hidden from workflows but never deleted.
type Entity struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	Name       string    `json:"name"`
	EntityType string    `json:"entity_type"`
	Archived   bool      `json:"archived"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
