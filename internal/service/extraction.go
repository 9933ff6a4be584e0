package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// Confidence boost applied when an equivalent claim is seen again.
	reinforcementBoost = 0.1
	maxConfidence      = 0.99
)

// ExtractionService turns passages into claims. It is the only place
// the LLM gateway is called; every candidate is validated against the
// governing strategy's claim policy before admission, and every
// admission decision lands in the log. Re-running extraction for a
// passage reinforces existing claims instead of duplicating them, which
// makes outbox redelivery safe.
type ExtractionService struct {
	passages domain.PassageStore
	entities domain.EntityStore
	claims   domain.ClaimStore
	llm      domain.LLMClient
	embedder domain.EmbeddingClient
	resolver *StrategyResolver
	recorder *EventRecorder
	logger   *zap.Logger
}

func NewExtractionService(
	passages domain.PassageStore,
	entities domain.EntityStore,
	claims domain.ClaimStore,
	llm domain.LLMClient,
	embedder domain.EmbeddingClient,
	resolver *StrategyResolver,
	recorder *EventRecorder,
	logger *zap.Logger,
) *ExtractionService {
	return &ExtractionService{
		passages: passages,
		entities: entities,
		claims:   claims,
		llm:      llm,
		embedder: embedder,
		resolver: resolver,
		recorder: recorder,
		logger:   logger,
	}
}

// ExtractFromPassage extracts claim candidates from one passage and
// admits, reinforces, or rejects each.
func (s *ExtractionService) ExtractFromPassage(ctx context.Context, tenantID, passageID uuid.UUID) error {
	passage, err := s.passages.GetByID(ctx, passageID, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("passage gone before extraction",
				zap.String("passage_id", passageID.String()))
			return nil
		}
		return fmt.Errorf("load passage: %w", err)
	}

	candidates, err := s.llm.ExtractClaims(ctx, passage.Content)
	if err != nil {
		return fmt.Errorf("extract claims: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	strategy, err := s.resolver.Resolve(ctx, tenantID, "", "")
	if err != nil {
		return fmt.Errorf("resolve strategy: %w", err)
	}

	for _, cand := range candidates {
		if err := s.admitCandidate(ctx, tenantID, passage, cand, strategy); err != nil {
			return err
		}
	}
	return nil
}

func (s *ExtractionService) admitCandidate(
	ctx context.Context,
	tenantID uuid.UUID,
	passage *domain.Passage,
	cand domain.ClaimCandidate,
	strategy *domain.MemoryStrategy,
) error {
	predicate := normalizePredicate(cand.Predicate)

	if err := s.recorder.Record(ctx, &domain.KernelEvent{
		TenantID:      tenantID,
		EventType:     domain.EventClaimProposed,
		CorrelationID: &passage.ItemID,
		Payload: map[string]any{
			"passage_id": passage.ID.String(),
			"subject":    cand.SubjectName,
			"predicate":  predicate,
			"object":     cand.Object,
		},
	}); err != nil {
		return err
	}

	if reason := rejectReason(cand, predicate, strategy); reason != "" {
		return s.recorder.Record(ctx, &domain.KernelEvent{
			TenantID:      tenantID,
			EventType:     domain.EventClaimRejected,
			CorrelationID: &passage.ItemID,
			Payload: map[string]any{
				"passage_id": passage.ID.String(),
				"subject":    cand.SubjectName,
				"predicate":  predicate,
				"object":     cand.Object,
				"reason":     reason,
			},
		})
	}

	entity := &domain.Entity{
		TenantID:   tenantID,
		Name:       strings.TrimSpace(cand.SubjectName),
		EntityType: "unknown",
	}
	if err := s.entities.UpsertByName(ctx, entity); err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}

	if err := s.recorder.Record(ctx, &domain.KernelEvent{
		TenantID:      tenantID,
		EventType:     domain.EventEntityLinked,
		CorrelationID: &passage.ItemID,
		Payload: map[string]any{
			"entity_id":  entity.ID.String(),
			"name":       entity.Name,
			"passage_id": passage.ID.String(),
		},
	}); err != nil {
		return err
	}

	equivalents, err := s.claims.FindEquivalent(ctx, tenantID, entity.ID, predicate, cand.Object)
	if err != nil {
		return fmt.Errorf("find equivalent claims: %w", err)
	}
	if len(equivalents) > 0 {
		return s.reinforce(ctx, tenantID, &equivalents[0], passage.ID)
	}

	claim := &domain.Claim{
		TenantID:           tenantID,
		SubjectEntityID:    entity.ID,
		Predicate:          predicate,
		Object:             cand.Object,
		EvidencePassageIDs: []uuid.UUID{passage.ID},
		SourceType:         domain.ClaimSourceInferred,
		Confidence:         initialConfidence(cand),
	}

	if strategy.VectorPolicy.Enabled && s.embedder != nil {
		text := fmt.Sprintf("%s %s %s", entity.Name, predicate, cand.Object)
		emb, err := s.embedder.Embed(ctx, text)
		if err != nil {
			s.logger.Warn("claim embedding failed", zap.Error(err))
		} else {
			claim.Embedding = emb
		}
	}

	if err := s.claims.Create(ctx, claim); err != nil {
		return fmt.Errorf("create claim: %w", err)
	}

	return s.recorder.Record(ctx, &domain.KernelEvent{
		TenantID:      tenantID,
		EventType:     domain.EventClaimAccepted,
		CorrelationID: &passage.ItemID,
		Payload: map[string]any{
			"claim_id":          claim.ID.String(),
			"subject_entity_id": entity.ID.String(),
			"predicate":         predicate,
			"object":            cand.Object,
			"confidence":        claim.Confidence,
		},
	})
}

// reinforce bumps an existing equivalent claim instead of creating a
// duplicate. Version conflicts mean a concurrent maintenance pass won;
// one reload-and-retry is enough because the passage evidence append is
// what matters.
func (s *ExtractionService) reinforce(ctx context.Context, tenantID uuid.UUID, claim *domain.Claim, passageID uuid.UUID) error {
	for attempt := 0; attempt < 3; attempt++ {
		newConf := reinforcedConfidence(claim.Confidence)
		err := s.claims.Reinforce(ctx, claim.ID, newConf, claim.ReinforcementCount+1, []uuid.UUID{passageID}, claim.Version)
		if err == nil {
			return s.recorder.Record(ctx, &domain.KernelEvent{
				TenantID:  tenantID,
				EventType: domain.EventClaimReinforced,
				Payload: map[string]any{
					"claim_id":            claim.ID.String(),
					"confidence":          newConf,
					"reinforcement_count": claim.ReinforcementCount + 1,
				},
			})
		}
		if !errors.Is(err, store.ErrVersionMismatch) {
			return fmt.Errorf("reinforce claim: %w", err)
		}
		reloaded, err := s.claims.GetByID(ctx, claim.ID, tenantID)
		if err != nil {
			return fmt.Errorf("reload claim: %w", err)
		}
		claim = reloaded
	}
	return fmt.Errorf("reinforce claim %s: %w", claim.ID, store.ErrVersionMismatch)
}

func reinforcedConfidence(current float32) float32 {
	next := current + (1-current)*reinforcementBoost
	if next > maxConfidence {
		next = maxConfidence
	}
	return next
}

// initialConfidence scales the source-type prior by how clearly the
// passage stated the claim.
func initialConfidence(cand domain.ClaimCandidate) float32 {
	base := domain.ClaimSourceInferred.InitialConfidence()
	if cand.Confidence <= 0 {
		return base
	}
	conf := base * cand.Confidence
	if conf < 0.1 {
		conf = 0.1
	}
	return conf
}

func normalizePredicate(p string) string {
	p = strings.TrimSpace(strings.ToLower(p))
	return strings.ReplaceAll(p, " ", "_")
}

func rejectReason(cand domain.ClaimCandidate, predicate string, strategy *domain.MemoryStrategy) string {
	if strings.TrimSpace(cand.SubjectName) == "" || predicate == "" || strings.TrimSpace(cand.Object) == "" {
		return "incomplete candidate"
	}
	set := strategy.ClaimPolicy.PredicateSet
	if len(set) == 0 {
		return ""
	}
	for _, allowed := range set {
		if predicate == allowed {
			return ""
		}
	}
	if strategy.GraphPolicy.ConstraintLevel == domain.GraphConstraintHard {
		return fmt.Sprintf("predicate %q not in policy predicate set", predicate)
	}
	return ""
}
