package domain

import (
	"time"

	"github.com/google/uuid"
)

type OutcomeType string

const (
	OutcomeRetrievalSatisfied    OutcomeType = "retrieval_satisfied"
	OutcomeRetrievalFailed       OutcomeType = "retrieval_failed"
	OutcomeUserCorrected         OutcomeType = "user_corrected"
	OutcomeUserAccepted          OutcomeType = "user_accepted"
	OutcomeArtifactAccepted      OutcomeType = "artifact_accepted"
	OutcomeArtifactRejected      OutcomeType = "artifact_rejected"
	OutcomeAgentDisagreement     OutcomeType = "agent_disagreement"
	OutcomeLatencyExceeded       OutcomeType = "latency_exceeded"
	OutcomeCostThresholdExceeded OutcomeType = "cost_threshold_exceeded"
)

func ValidOutcomeType(t string) bool {
	switch OutcomeType(t) {
	case OutcomeRetrievalSatisfied, OutcomeRetrievalFailed,
		OutcomeUserCorrected, OutcomeUserAccepted,
		OutcomeArtifactAccepted, OutcomeArtifactRejected,
		OutcomeAgentDisagreement, OutcomeLatencyExceeded,
		OutcomeCostThresholdExceeded:
		return true
	}
	return false
}

type OutcomeSource string

const (
	OutcomeSourceUser   OutcomeSource = "user"
	OutcomeSourceAgent  OutcomeSource = "agent"
	OutcomeSourceSystem OutcomeSource = "system"
)

func ValidOutcomeSource(s string) bool {
	switch OutcomeSource(s) {
	case OutcomeSourceUser, OutcomeSourceAgent, OutcomeSourceSystem:
		return true
	}
	return false
}

// OutcomeEvent is one append-only performance signal. Outcomes are never
// updated or deleted; the evaluator derives everything it needs from
// windowed aggregates over this log.
type OutcomeEvent struct {
	ID          uuid.UUID      `json:"id"`
	TenantID    uuid.UUID      `json:"tenant_id"`
	StrategyID  *uuid.UUID     `json:"strategy_id,omitempty"`
	WorkflowID  *string        `json:"workflow_id,omitempty"`
	AgentID     *string        `json:"agent_id,omitempty"`
	OutcomeType OutcomeType    `json:"outcome_type"`
	Source      OutcomeSource  `json:"source"`
	Metrics     map[string]any `json:"metrics,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// OutcomeStats are windowed aggregates over the outcome log for one
// strategy scope.
type OutcomeStats struct {
	Total            int     `json:"total"`
	RetrievalFailed  int     `json:"retrieval_failed"`
	RetrievalSatisfied int   `json:"retrieval_satisfied"`
	UserCorrected    int     `json:"user_corrected"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
}

// FailureRate returns the fraction of all windowed outcomes that were
// retrieval failures.
func (s OutcomeStats) FailureRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.RetrievalFailed) / float64(s.Total)
}
