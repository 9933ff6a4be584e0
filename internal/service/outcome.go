package service

import (
	"context"
	"fmt"

	"github.com/cogmem/kos/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutcomeService records performance signals. The outcome log is
// append-only; nothing here reads it back except to stamp the strategy
// that was active when the outcome happened, which is what the
// evaluator later groups by.
type OutcomeService struct {
	outcomes domain.OutcomeStore
	resolver *StrategyResolver
	recorder *EventRecorder
	logger   *zap.Logger
}

func NewOutcomeService(outcomes domain.OutcomeStore, resolver *StrategyResolver, recorder *EventRecorder, logger *zap.Logger) *OutcomeService {
	return &OutcomeService{
		outcomes: outcomes,
		resolver: resolver,
		recorder: recorder,
		logger:   logger,
	}
}

func (s *OutcomeService) Record(ctx context.Context, o *domain.OutcomeEvent) error {
	if !domain.ValidOutcomeType(string(o.OutcomeType)) {
		return fmt.Errorf("invalid outcome_type %q", o.OutcomeType)
	}
	if o.Source == "" {
		o.Source = domain.OutcomeSourceSystem
	}
	if !domain.ValidOutcomeSource(string(o.Source)) {
		return fmt.Errorf("invalid source %q", o.Source)
	}

	if o.StrategyID == nil {
		workflowID := ""
		if o.WorkflowID != nil {
			workflowID = *o.WorkflowID
		}
		strategy, err := s.resolver.Resolve(ctx, o.TenantID, "", workflowID)
		if err != nil {
			return fmt.Errorf("resolve strategy: %w", err)
		}
		if strategy.ID != uuid.Nil {
			o.StrategyID = &strategy.ID
		}
	}

	if err := s.outcomes.Append(ctx, o); err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}

	payload := map[string]any{
		"outcome_id":   o.ID.String(),
		"outcome_type": string(o.OutcomeType),
		"source":       string(o.Source),
	}
	if o.StrategyID != nil {
		payload["strategy_id"] = o.StrategyID.String()
	}

	return s.recorder.Record(ctx, &domain.KernelEvent{
		TenantID:  o.TenantID,
		EventType: domain.EventOutcomeRecorded,
		Payload:   payload,
	})
}
