package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*Tenant, error)
}

type ItemStore interface {
	Create(ctx context.Context, i *Item) error
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*Item, error)
	GetByContentHash(ctx context.Context, tenantID uuid.UUID, hash string) (*Item, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]Item, error)
	// Touch bumps updated_at on a duplicate ingest without changing anything else.
	Touch(ctx context.Context, id uuid.UUID) error
}

type PassageStore interface {
	Create(ctx context.Context, p *Passage) error
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*Passage, error)
	GetByItem(ctx context.Context, itemID uuid.UUID, tenantID uuid.UUID) ([]Passage, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]Passage, error)
	UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
	// ReplaceForItem swaps an item's passages in one transaction. Used by
	// the rechunk action; safe to re-run because it is a full replace.
	ReplaceForItem(ctx context.Context, itemID uuid.UUID, tenantID uuid.UUID, passages []Passage) error
}

type EntityStore interface {
	UpsertByName(ctx context.Context, e *Entity) error
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*Entity, error)
	// ListLowValue returns unarchived entities with no claims above the
	// confidence floor, candidates for the prune action.
	ListLowValue(ctx context.Context, tenantID uuid.UUID, confidenceFloor float32) ([]Entity, error)
	// SetArchived flips the archived flag. Pruning archives, never
	// deletes, so a rollback can restore the entities verbatim.
	SetArchived(ctx context.Context, ids []uuid.UUID, archived bool) error
}

// ConflictStats summarizes the conflict graph for one tenant.
type ConflictStats struct {
	TotalClaims      int
	ConflictedClaims int
}

// Density is conflicted claims over total claims.
func (s ConflictStats) Density() float64 {
	if s.TotalClaims == 0 {
		return 0
	}
	return float64(s.ConflictedClaims) / float64(s.TotalClaims)
}

type ClaimStore interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*Claim, error)
	ListByEntity(ctx context.Context, subjectEntityID uuid.UUID, tenantID uuid.UUID) ([]Claim, error)
	FindBySubjectPredicate(ctx context.Context, tenantID uuid.UUID, subjectEntityID uuid.UUID, predicate string) ([]Claim, error)
	// FindEquivalent returns non-merged claims matching subject, predicate
	// and object exactly — the reinforcement lookup.
	FindEquivalent(ctx context.Context, tenantID uuid.UUID, subjectEntityID uuid.UUID, predicate, object string) ([]Claim, error)

	// LinkConflict records the unordered conflict pair and mirrors it into
	// both claims' conflicts_with, all in one transaction. Returns false
	// when the pair was already recorded, so rerunning conflict detection
	// emits no duplicate events.
	LinkConflict(ctx context.Context, a, b uuid.UUID) (bool, error)

	// UpdateConfidence applies an optimistic-concurrency update: it only
	// succeeds when the stored version matches. ErrVersionMismatch tells
	// the caller to reload and retry its whole pass.
	UpdateConfidence(ctx context.Context, id uuid.UUID, confidence float32, version int) error
	Reinforce(ctx context.Context, id uuid.UUID, confidence float32, reinforcementCount int, evidence []uuid.UUID, version int) error
	SetMergedInto(ctx context.Context, id uuid.UUID, survivorID uuid.UUID, version int) error
	AppendEvidence(ctx context.Context, id uuid.UUID, evidence []uuid.UUID) error

	ListForDecay(ctx context.Context, tenantID uuid.UUID) ([]Claim, error)
	ListTenantIDs(ctx context.Context) ([]uuid.UUID, error)
	ConflictStats(ctx context.Context, tenantID uuid.UUID) (ConflictStats, error)
	UpdatePredicate(ctx context.Context, tenantID uuid.UUID, oldPredicate, newPredicate string) (int64, error)

	// WithEntityLock serializes fn against all other conflict/maintenance
	// work on the same subject entity (advisory lock in the Postgres
	// implementation).
	WithEntityLock(ctx context.Context, subjectEntityID uuid.UUID, fn func(ctx context.Context) error) error
}

type MergeStore interface {
	Create(ctx context.Context, m *ClaimMerge) error
	GetBySurvivor(ctx context.Context, survivorID uuid.UUID) ([]ClaimMerge, error)
}

type KernelEventStore interface {
	Append(ctx context.Context, e *KernelEvent) error
	ListByTenant(ctx context.Context, tenantID uuid.UUID, types []KernelEventType, limit int) ([]KernelEvent, error)
	CountByTypeSince(ctx context.Context, tenantID uuid.UUID, eventType KernelEventType, since time.Time) (int, error)
}

type StrategyStore interface {
	// Create persists a new strategy version, assigning the next version
	// number for its scope.
	Create(ctx context.Context, s *MemoryStrategy) error
	GetByID(ctx context.Context, id uuid.UUID) (*MemoryStrategy, error)
	GetActive(ctx context.Context, scopeType StrategyScopeType, scopeID string) (*MemoryStrategy, error)
	ListByScope(ctx context.Context, scopeType StrategyScopeType, scopeID string, includeDeprecated bool) ([]MemoryStrategy, error)
	ListActive(ctx context.Context) ([]MemoryStrategy, error)
	// Activate atomically deprecates the scope's current active strategy
	// and activates this one. The "one active per scope" invariant is
	// enforced here; concurrent activations for a scope serialize.
	Activate(ctx context.Context, id uuid.UUID) error
	// DeleteExperimental removes an experimental strategy that nothing
	// references yet. Strategies that have been activated are versioned
	// history and are never deleted.
	DeleteExperimental(ctx context.Context, id uuid.UUID) error
}

type OutcomeStore interface {
	Append(ctx context.Context, o *OutcomeEvent) error
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*OutcomeEvent, error)
	StatsByStrategy(ctx context.Context, strategyID uuid.UUID, since, until time.Time) (OutcomeStats, error)
	ListByStrategy(ctx context.Context, strategyID uuid.UUID, since time.Time, limit int) ([]OutcomeEvent, error)
}

type ProposalStore interface {
	// Create fails with ErrConflict when an open proposal already exists
	// for the same strategy scope (partial unique index).
	Create(ctx context.Context, p *StrategyChangeProposal) error
	GetByID(ctx context.Context, id uuid.UUID) (*StrategyChangeProposal, error)
	ListPending(ctx context.Context, tenantID uuid.UUID) ([]StrategyChangeProposal, error)
	ListInProgress(ctx context.Context) ([]StrategyChangeProposal, error)
	HasOpenForScope(ctx context.Context, scopeType StrategyScopeType, scopeID string) (bool, error)
	// Transition is a compare-and-swap on status: it only succeeds when
	// the proposal is currently in from. ErrConflict otherwise.
	Transition(ctx context.Context, id uuid.UUID, from, to ProposalStatus) error
	SetCompletedAt(ctx context.Context, id uuid.UUID, at time.Time) error
}

type RestructureStepStore interface {
	Create(ctx context.Context, s *RestructureStep) error
	ListByProposal(ctx context.Context, proposalID uuid.UUID) ([]RestructureStep, error)
	SetStatus(ctx context.Context, proposalID uuid.UUID, stepIndex int, status StepStatus) error
	SetPayload(ctx context.Context, proposalID uuid.UUID, stepIndex int, payload map[string]any) error
}

type OutboxStore interface {
	Enqueue(ctx context.Context, e *OutboxEvent) error
	// Dequeue claims up to limit pending events (SKIP LOCKED in the
	// Postgres implementation) and increments their attempt counters.
	Dequeue(ctx context.Context, types []KernelEventType, limit int) ([]OutboxEvent, error)
	MarkComplete(ctx context.Context, eventID uuid.UUID) error
	// MarkFailed re-queues the event until attempts reach max_attempts,
	// then parks it as failed.
	MarkFailed(ctx context.Context, eventID uuid.UUID, errMsg string) error
	PendingCount(ctx context.Context, types []KernelEventType) (int, error)
	FailedEvents(ctx context.Context, tenantID *uuid.UUID, limit int) ([]OutboxEvent, error)
	RetryFailed(ctx context.Context, eventID uuid.UUID) error
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LLMClient is the extraction gateway: opaque text in, structured claim
// candidates out. The kernel's conflict and maintenance logic never
// calls it.
type LLMClient interface {
	ExtractClaims(ctx context.Context, passage string) ([]ClaimCandidate, error)
}
