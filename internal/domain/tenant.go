package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the isolation boundary: every item, claim, strategy,
// outcome, and event belongs to exactly one tenant, keyed by the
// SHA-256 hash of its API key. The raw key is never stored.
type Tenant struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
