package domain

import (
	"time"

	"github.com/google/uuid"
)

type ProposalStatus string

const (
	ProposalPending    ProposalStatus = "pending"
	ProposalApproved   ProposalStatus = "approved"
	ProposalRejected   ProposalStatus = "rejected"
	ProposalInProgress ProposalStatus = "in_progress"
	ProposalCompleted  ProposalStatus = "completed"
	ProposalRolledBack ProposalStatus = "rolled_back"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// StrategyChangeProposal is the evaluator's only output: a proposed
// transition from one strategy version to another. The evaluator never
// executes anything; only the restructuring executor, gated on an
// explicit approval, causes side effects. BaseStrategyID is immutable
// once created — it is the rollback target.
type StrategyChangeProposal struct {
	ID                 uuid.UUID      `json:"id"`
	TenantID           uuid.UUID      `json:"tenant_id"`
	ScopeType          StrategyScopeType `json:"scope_type"`
	ScopeID            string         `json:"scope_id"`
	BaseStrategyID     uuid.UUID      `json:"base_strategy_id"`
	ProposedStrategyID uuid.UUID      `json:"proposed_strategy_id"`
	ChangeSummary      string         `json:"change_summary"`
	ExpectedBenefit    string         `json:"expected_benefit"`
	RiskLevel          RiskLevel      `json:"risk_level"`
	EvaluationWindowHours int         `json:"evaluation_window_hours"`
	Status             ProposalStatus `json:"status"`
	TriggerMetrics     map[string]any `json:"trigger_metrics,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	DecidedAt          *time.Time     `json:"decided_at,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
}

// RestructureAction is a named, idempotent, reversible structural
// mutation the executor can perform.
type RestructureAction string

const (
	ActionRechunkDocuments     RestructureAction = "rechunk_documents"
	ActionReembedPassages      RestructureAction = "reembed_passages"
	ActionAddGraphEdgeTypes    RestructureAction = "add_graph_edge_types"
	ActionRemoveGraphEdgeTypes RestructureAction = "remove_graph_edge_types"
	ActionUpdateClaimPredicates RestructureAction = "update_claim_predicates"
	ActionPruneLowValueEntities RestructureAction = "prune_low_value_entities"
	ActionRebuildIndexes       RestructureAction = "rebuild_indexes"
	ActionSwitchRetrievalMode  RestructureAction = "switch_retrieval_mode"
)

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepCompleted  StepStatus = "completed"
	StepRolledBack StepStatus = "rolled_back"
)

// RestructureStep is one checkpointed unit of an executing proposal.
// Re-running a proposal after a crash skips steps already completed.
type RestructureStep struct {
	ID         uuid.UUID         `json:"id"`
	ProposalID uuid.UUID         `json:"proposal_id"`
	StepIndex  int               `json:"step_index"`
	Action     RestructureAction `json:"action"`
	Status     StepStatus        `json:"status"`
	// Payload records whatever the action needs to undo itself, e.g.
	// the entity IDs a prune step archived.
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
