package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/metrics"
	"github.com/cogmem/kos/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const restructureBatchSize = 100

// ExecutorService carries out approved proposals. The plan is derived
// from the diff between base and proposed policies, each step is
// checkpointed so a crashed execution resumes where it stopped, and a
// failed step triggers a reverse-order rollback of everything already
// applied. Data is never destroyed: rechunk replaces, prune archives,
// and the base strategy stays intact as the rollback target.
type ExecutorService struct {
	proposals  domain.ProposalStore
	steps      domain.RestructureStepStore
	strategies *StrategyService
	items      domain.ItemStore
	passages   domain.PassageStore
	entities   domain.EntityStore
	claims     domain.ClaimStore
	embedder   domain.EmbeddingClient
	recorder   *EventRecorder
	logger     *zap.Logger
}

func NewExecutorService(
	proposals domain.ProposalStore,
	steps domain.RestructureStepStore,
	strategies *StrategyService,
	items domain.ItemStore,
	passages domain.PassageStore,
	entities domain.EntityStore,
	claims domain.ClaimStore,
	embedder domain.EmbeddingClient,
	recorder *EventRecorder,
	logger *zap.Logger,
) *ExecutorService {
	return &ExecutorService{
		proposals:  proposals,
		steps:      steps,
		strategies: strategies,
		items:      items,
		passages:   passages,
		entities:   entities,
		claims:     claims,
		embedder:   embedder,
		recorder:   recorder,
		logger:     logger,
	}
}

// Approve marks a pending proposal approved and executes it.
func (s *ExecutorService) Approve(ctx context.Context, proposalID uuid.UUID) error {
	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return fmt.Errorf("load proposal: %w", err)
	}

	if err := s.proposals.Transition(ctx, proposalID, domain.ProposalPending, domain.ProposalApproved); err != nil {
		return fmt.Errorf("approve proposal: %w", err)
	}
	if err := s.recorder.Record(ctx, &domain.KernelEvent{
		TenantID:  p.TenantID,
		EventType: domain.EventProposalApproved,
		Payload:   map[string]any{"proposal_id": proposalID.String()},
	}); err != nil {
		return err
	}

	return s.Execute(ctx, proposalID)
}

// Reject closes a pending proposal without side effects.
func (s *ExecutorService) Reject(ctx context.Context, proposalID uuid.UUID, reason string) error {
	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return fmt.Errorf("load proposal: %w", err)
	}

	if err := s.proposals.Transition(ctx, proposalID, domain.ProposalPending, domain.ProposalRejected); err != nil {
		return fmt.Errorf("reject proposal: %w", err)
	}
	return s.recorder.Record(ctx, &domain.KernelEvent{
		TenantID:  p.TenantID,
		EventType: domain.EventProposalRejected,
		Payload: map[string]any{
			"proposal_id": proposalID.String(),
			"reason":      reason,
		},
	})
}

// Execute runs an approved proposal to completion. Safe to call again
// after a crash: completed steps are skipped via their checkpoints.
// On success the proposed strategy is activated and the proposal stays
// in_progress until its evaluation window closes.
func (s *ExecutorService) Execute(ctx context.Context, proposalID uuid.UUID) error {
	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return fmt.Errorf("load proposal: %w", err)
	}

	switch p.Status {
	case domain.ProposalApproved:
		if err := s.proposals.Transition(ctx, proposalID, domain.ProposalApproved, domain.ProposalInProgress); err != nil {
			return fmt.Errorf("start proposal: %w", err)
		}
		if err := s.recorder.Record(ctx, &domain.KernelEvent{
			TenantID:  p.TenantID,
			EventType: domain.EventRestructureStarted,
			Payload:   map[string]any{"proposal_id": proposalID.String()},
		}); err != nil {
			return err
		}
	case domain.ProposalInProgress:
		// Resuming after a crash.
		s.logger.Info("resuming restructure", zap.String("proposal_id", proposalID.String()))
	default:
		return fmt.Errorf("proposal %s is %s: %w", proposalID, p.Status, store.ErrConflict)
	}

	base, err := s.strategies.Get(ctx, p.BaseStrategyID)
	if err != nil {
		return fmt.Errorf("load base strategy: %w", err)
	}
	proposed, err := s.strategies.Get(ctx, p.ProposedStrategyID)
	if err != nil {
		return fmt.Errorf("load proposed strategy: %w", err)
	}

	steps, err := s.ensureSteps(ctx, p, base, proposed)
	if err != nil {
		return err
	}

	for i := range steps {
		step := &steps[i]
		if step.Status == domain.StepCompleted {
			continue
		}
		if err := s.applyStep(ctx, p, proposed, step); err != nil {
			s.logger.Error("restructure step failed",
				zap.String("proposal_id", proposalID.String()),
				zap.String("action", string(step.Action)),
				zap.Int("step_index", step.StepIndex),
				zap.Error(err))
			if rbErr := s.rollbackSteps(ctx, p, base, steps[:i]); rbErr != nil {
				return fmt.Errorf("rollback after step %d: %w", i, rbErr)
			}
			if err := s.proposals.Transition(ctx, proposalID, domain.ProposalInProgress, domain.ProposalRolledBack); err != nil {
				return fmt.Errorf("mark proposal rolled back: %w", err)
			}
			if recErr := s.recorder.Record(ctx, &domain.KernelEvent{
				TenantID:  p.TenantID,
				EventType: domain.EventRestructureRolledBack,
				Payload: map[string]any{
					"proposal_id": proposalID.String(),
					"failed_step": string(step.Action),
					"error":       err.Error(),
				},
			}); recErr != nil {
				return recErr
			}
			return fmt.Errorf("restructure step %s: %w", step.Action, err)
		}
		if err := s.steps.SetStatus(ctx, proposalID, step.StepIndex, domain.StepCompleted); err != nil {
			return fmt.Errorf("checkpoint step %d: %w", step.StepIndex, err)
		}
		step.Status = domain.StepCompleted
		metrics.RestructureActions.WithLabelValues(string(step.Action), "apply").Inc()
	}

	if err := s.strategies.Activate(ctx, p.TenantID, proposed.ID); err != nil {
		return fmt.Errorf("activate proposed strategy: %w", err)
	}

	s.logger.Info("restructure applied, evaluation window open",
		zap.String("proposal_id", proposalID.String()),
		zap.Int("window_hours", p.EvaluationWindowHours))
	return nil
}

// Rollback reverts every completed step of a proposal in reverse order
// and reactivates the base strategy. Used by the window monitor when
// the proposed strategy regresses.
func (s *ExecutorService) Rollback(ctx context.Context, p *domain.StrategyChangeProposal) error {
	base, err := s.strategies.Get(ctx, p.BaseStrategyID)
	if err != nil {
		return fmt.Errorf("load base strategy: %w", err)
	}
	steps, err := s.steps.ListByProposal(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}
	if err := s.rollbackSteps(ctx, p, base, steps); err != nil {
		return err
	}
	return s.strategies.Activate(ctx, p.TenantID, base.ID)
}

func (s *ExecutorService) rollbackSteps(ctx context.Context, p *domain.StrategyChangeProposal, base *domain.MemoryStrategy, steps []domain.RestructureStep) error {
	for i := len(steps) - 1; i >= 0; i-- {
		step := &steps[i]
		if step.Status != domain.StepCompleted {
			continue
		}
		if err := s.revertStep(ctx, p, base, step); err != nil {
			return fmt.Errorf("revert step %s: %w", step.Action, err)
		}
		if err := s.steps.SetStatus(ctx, p.ID, step.StepIndex, domain.StepRolledBack); err != nil {
			return fmt.Errorf("checkpoint rollback %d: %w", step.StepIndex, err)
		}
		metrics.RestructureActions.WithLabelValues(string(step.Action), "revert").Inc()
	}
	return nil
}

// ensureSteps loads the proposal's checkpointed plan, creating it from
// the policy diff on first execution.
func (s *ExecutorService) ensureSteps(ctx context.Context, p *domain.StrategyChangeProposal, base, proposed *domain.MemoryStrategy) ([]domain.RestructureStep, error) {
	existing, err := s.steps.ListByProposal(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	plan := buildPlan(base, proposed)
	steps := make([]domain.RestructureStep, 0, len(plan))
	for i, action := range plan {
		step := domain.RestructureStep{
			ProposalID: p.ID,
			StepIndex:  i,
			Action:     action,
			Status:     domain.StepPending,
		}
		if err := s.steps.Create(ctx, &step); err != nil && !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("create step %d: %w", i, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// buildPlan derives the ordered action list from the policy diff.
// Structural data moves come first, cheap policy switches last.
func buildPlan(base, proposed *domain.MemoryStrategy) []domain.RestructureAction {
	var plan []domain.RestructureAction

	rechunk := base.DocumentPolicy != proposed.DocumentPolicy
	reembed := base.VectorPolicy != proposed.VectorPolicy ||
		(rechunk && proposed.VectorPolicy.Enabled)

	if rechunk {
		plan = append(plan, domain.ActionRechunkDocuments)
	}
	if reembed && proposed.VectorPolicy.Enabled {
		plan = append(plan, domain.ActionReembedPassages)
	}

	added, removed := diffStrings(base.GraphPolicy.EdgeTypes, proposed.GraphPolicy.EdgeTypes)
	if len(added) > 0 {
		plan = append(plan, domain.ActionAddGraphEdgeTypes)
	}
	if len(removed) > 0 {
		plan = append(plan, domain.ActionRemoveGraphEdgeTypes)
	}

	if !reflect.DeepEqual(base.ClaimPolicy.PredicateSet, proposed.ClaimPolicy.PredicateSet) {
		plan = append(plan, domain.ActionUpdateClaimPredicates)
	}

	if pruneFloor(proposed) > pruneFloor(base) {
		plan = append(plan, domain.ActionPruneLowValueEntities)
	}

	if rechunk || reembed {
		plan = append(plan, domain.ActionRebuildIndexes)
	}

	if base.RetrievalPolicy != proposed.RetrievalPolicy {
		plan = append(plan, domain.ActionSwitchRetrievalMode)
	}

	return plan
}

func (s *ExecutorService) applyStep(ctx context.Context, p *domain.StrategyChangeProposal, proposed *domain.MemoryStrategy, step *domain.RestructureStep) error {
	switch step.Action {
	case domain.ActionRechunkDocuments:
		return s.rechunkDocuments(ctx, p.TenantID, proposed.DocumentPolicy)
	case domain.ActionReembedPassages:
		return s.reembedPassages(ctx, p.TenantID)
	case domain.ActionPruneLowValueEntities:
		return s.pruneEntities(ctx, p, proposed, step)
	case domain.ActionUpdateClaimPredicates:
		return s.updatePredicates(ctx, p, false)
	case domain.ActionAddGraphEdgeTypes, domain.ActionRemoveGraphEdgeTypes,
		domain.ActionRebuildIndexes, domain.ActionSwitchRetrievalMode:
		// Policy-level actions: the change takes effect when the
		// proposed strategy activates; retrieval and index providers
		// read it from there.
		s.logger.Info("policy action validated",
			zap.String("proposal_id", p.ID.String()),
			zap.String("action", string(step.Action)))
		return nil
	default:
		return fmt.Errorf("unknown restructure action %q", step.Action)
	}
}

func (s *ExecutorService) revertStep(ctx context.Context, p *domain.StrategyChangeProposal, base *domain.MemoryStrategy, step *domain.RestructureStep) error {
	switch step.Action {
	case domain.ActionRechunkDocuments:
		return s.rechunkDocuments(ctx, p.TenantID, base.DocumentPolicy)
	case domain.ActionReembedPassages:
		return s.reembedPassages(ctx, p.TenantID)
	case domain.ActionPruneLowValueEntities:
		return s.unpruneEntities(ctx, step)
	case domain.ActionUpdateClaimPredicates:
		return s.updatePredicates(ctx, p, true)
	default:
		s.logger.Info("policy action reverted",
			zap.String("proposal_id", p.ID.String()),
			zap.String("action", string(step.Action)))
		return nil
	}
}

// rechunkDocuments re-passages every item under the given document
// policy. ReplaceForItem is a full swap, so repeating it lands in the
// same state.
func (s *ExecutorService) rechunkDocuments(ctx context.Context, tenantID uuid.UUID, policy domain.DocumentPolicy) error {
	if tenantID == uuid.Nil {
		s.logger.Info("rechunk skipped for non-tenant scope")
		return nil
	}

	for offset := 0; ; offset += restructureBatchSize {
		items, err := s.items.ListByTenant(ctx, tenantID, restructureBatchSize, offset)
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		if len(items) == 0 {
			return nil
		}

		for i := range items {
			item := &items[i]
			if item.Status != domain.ItemAccepted || item.Content == "" {
				continue
			}
			chunks := chunkContent(item.Content, policy)
			passages := make([]domain.Passage, len(chunks))
			for j, chunk := range chunks {
				passages[j] = domain.Passage{
					ItemID:   item.ID,
					TenantID: tenantID,
					Seq:      j,
					Content:  chunk,
				}
			}
			if err := s.passages.ReplaceForItem(ctx, item.ID, tenantID, passages); err != nil {
				return fmt.Errorf("rechunk item %s: %w", item.ID, err)
			}
		}

		if len(items) < restructureBatchSize {
			return nil
		}
	}
}

func (s *ExecutorService) reembedPassages(ctx context.Context, tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		s.logger.Info("reembed skipped for non-tenant scope")
		return nil
	}
	if s.embedder == nil {
		return fmt.Errorf("no embedding client configured")
	}

	for offset := 0; ; offset += restructureBatchSize {
		passages, err := s.passages.ListByTenant(ctx, tenantID, restructureBatchSize, offset)
		if err != nil {
			return fmt.Errorf("list passages: %w", err)
		}
		if len(passages) == 0 {
			return nil
		}

		for i := range passages {
			p := &passages[i]
			emb, err := s.embedder.Embed(ctx, p.Content)
			if err != nil {
				return fmt.Errorf("embed passage %s: %w", p.ID, err)
			}
			if err := s.passages.UpdateEmbedding(ctx, p.ID, emb); err != nil {
				return fmt.Errorf("store embedding %s: %w", p.ID, err)
			}
		}

		if len(passages) < restructureBatchSize {
			return nil
		}
	}
}

// pruneEntities archives low-value entities and checkpoints their IDs
// so the revert can unarchive exactly the same set.
func (s *ExecutorService) pruneEntities(ctx context.Context, p *domain.StrategyChangeProposal, proposed *domain.MemoryStrategy, step *domain.RestructureStep) error {
	if p.TenantID == uuid.Nil {
		s.logger.Info("prune skipped for non-tenant scope")
		return nil
	}

	floor := pruneFloor(proposed)
	entities, err := s.entities.ListLowValue(ctx, p.TenantID, floor)
	if err != nil {
		return fmt.Errorf("list low-value entities: %w", err)
	}
	if len(entities) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(entities))
	archived := make([]string, len(entities))
	for i := range entities {
		ids[i] = entities[i].ID
		archived[i] = entities[i].ID.String()
	}

	payload := map[string]any{"archived_entity_ids": archived}
	if err := s.steps.SetPayload(ctx, p.ID, step.StepIndex, payload); err != nil {
		return fmt.Errorf("checkpoint pruned entities: %w", err)
	}
	step.Payload = payload
	if err := s.entities.SetArchived(ctx, ids, true); err != nil {
		return fmt.Errorf("archive entities: %w", err)
	}

	s.logger.Info("entities pruned",
		zap.String("tenant_id", p.TenantID.String()),
		zap.Int("count", len(ids)))
	return nil
}

func (s *ExecutorService) unpruneEntities(ctx context.Context, step *domain.RestructureStep) error {
	var strs []string
	switch raw := step.Payload["archived_entity_ids"].(type) {
	case []string:
		strs = raw
	case []any: // JSONB round trip
		for _, v := range raw {
			if str, ok := v.(string); ok {
				strs = append(strs, str)
			}
		}
	}

	ids := make([]uuid.UUID, 0, len(strs))
	for _, str := range strs {
		id, err := uuid.Parse(str)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	return s.entities.SetArchived(ctx, ids, false)
}

// updatePredicates applies predicate renames the proposal carries in
// its trigger metrics. Claims keep predicates that merely left the
// policy set; only explicit renames touch rows.
func (s *ExecutorService) updatePredicates(ctx context.Context, p *domain.StrategyChangeProposal, reverse bool) error {
	renames, ok := p.TriggerMetrics["predicate_renames"].(map[string]any)
	if !ok || len(renames) == 0 {
		s.logger.Info("predicate set changed, no renames requested",
			zap.String("proposal_id", p.ID.String()))
		return nil
	}
	if p.TenantID == uuid.Nil {
		return nil
	}

	for from, toAny := range renames {
		to, ok := toAny.(string)
		if !ok {
			continue
		}
		a, b := from, to
		if reverse {
			a, b = to, from
		}
		n, err := s.claims.UpdatePredicate(ctx, p.TenantID, a, b)
		if err != nil {
			return fmt.Errorf("rename predicate %s -> %s: %w", a, b, err)
		}
		s.logger.Info("predicate renamed",
			zap.String("from", a),
			zap.String("to", b),
			zap.Int64("claims", n))
	}
	return nil
}

func pruneFloor(s *domain.MemoryStrategy) float32 {
	var floor float32
	for _, rule := range s.ClaimPolicy.DecayRules {
		if rule.MinConfidence > floor {
			floor = rule.MinConfidence
		}
	}
	return floor
}

func diffStrings(old, new []string) (added, removed []string) {
	oldSet := make(map[string]bool, len(old))
	for _, s := range old {
		oldSet[s] = true
	}
	newSet := make(map[string]bool, len(new))
	for _, s := range new {
		newSet[s] = true
		if !oldSet[s] {
			added = append(added, s)
		}
	}
	for _, s := range old {
		if !newSet[s] {
			removed = append(removed, s)
		}
	}
	return added, removed
}
