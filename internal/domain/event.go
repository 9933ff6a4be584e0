package domain

import (
	"time"

	"github.com/google/uuid"
)

type KernelEventType string

const (
	// Ingestion
	EventItemIngested     KernelEventType = "item_ingested"
	EventItemRejected     KernelEventType = "item_rejected"
	EventPassageExtracted KernelEventType = "passage_extracted"

	// Knowledge formation
	EventEntityLinked          KernelEventType = "entity_linked"
	EventClaimProposed         KernelEventType = "claim_proposed"
	EventClaimAccepted         KernelEventType = "claim_accepted"
	EventClaimRejected         KernelEventType = "claim_rejected"
	EventClaimConflictDetected KernelEventType = "claim_conflict_detected"

	// Maintenance
	EventClaimMerged     KernelEventType = "claim_merged"
	EventClaimDecayed    KernelEventType = "claim_decayed"
	EventClaimReinforced KernelEventType = "claim_reinforced"

	// Adaptive plane
	EventStrategyCreated       KernelEventType = "strategy_created"
	EventStrategyApplied       KernelEventType = "strategy_applied"
	EventStrategyDeprecated    KernelEventType = "strategy_deprecated"
	EventStrategyEvaluated     KernelEventType = "strategy_evaluated"
	EventOutcomeRecorded       KernelEventType = "outcome_recorded"
	EventProposalCreated       KernelEventType = "proposal_created"
	EventProposalApproved      KernelEventType = "proposal_approved"
	EventProposalRejected      KernelEventType = "proposal_rejected"
	EventRestructureStarted    KernelEventType = "restructure_started"
	EventRestructureCompleted  KernelEventType = "restructure_completed"
	EventRestructureRolledBack KernelEventType = "restructure_rolled_back"
)

// KernelEvent is one immutable record in the kernel decision log. Every
// admission, transformation, conflict, maintenance, and restructuring
// decision appends exactly one event; the log is the audit trail that
// makes kernel behavior explainable after the fact.
type KernelEvent struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	EventType     KernelEventType `json:"event_type"`
	Payload       map[string]any  `json:"payload,omitempty"`
	SourceEventID *uuid.UUID      `json:"source_event_id,omitempty"`
	CorrelationID *uuid.UUID      `json:"correlation_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
