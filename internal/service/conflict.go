package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConflictService maintains the conflict graph. Two claims conflict
// when they share subject and predicate but assert different objects;
// neither side is ever deleted or auto-resolved. Detection runs under a
// per-entity lock so concurrent passes over the same subject serialize,
// and pair recording is idempotent so redelivered events emit nothing
// new.
type ConflictService struct {
	claims   domain.ClaimStore
	resolver *StrategyResolver
	recorder *EventRecorder
	logger   *zap.Logger
}

func NewConflictService(claims domain.ClaimStore, resolver *StrategyResolver, recorder *EventRecorder, logger *zap.Logger) *ConflictService {
	return &ConflictService{
		claims:   claims,
		resolver: resolver,
		recorder: recorder,
		logger:   logger,
	}
}

// DetectForClaim compares one claim against its subject's other claims
// and records any new conflict pairs.
func (s *ConflictService) DetectForClaim(ctx context.Context, tenantID, claimID uuid.UUID) error {
	claim, err := s.claims.GetByID(ctx, claimID, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load claim: %w", err)
	}
	if claim.MergedInto != nil {
		return nil
	}

	strategy, err := s.resolver.Resolve(ctx, tenantID, "", "")
	if err != nil {
		return fmt.Errorf("resolve strategy: %w", err)
	}
	threshold := strategy.ClaimPolicy.ConflictThreshold

	return s.claims.WithEntityLock(ctx, claim.SubjectEntityID, func(ctx context.Context) error {
		siblings, err := s.claims.FindBySubjectPredicate(ctx, tenantID, claim.SubjectEntityID, claim.Predicate)
		if err != nil {
			return fmt.Errorf("list sibling claims: %w", err)
		}

		for i := range siblings {
			other := &siblings[i]
			if other.MergedInto != nil || !claim.ConflictsWithClaim(other) {
				continue
			}
			if claim.Confidence < threshold || other.Confidence < threshold {
				continue
			}

			inserted, err := s.claims.LinkConflict(ctx, claim.ID, other.ID)
			if err != nil {
				return fmt.Errorf("link conflict: %w", err)
			}
			if !inserted {
				continue
			}

			a, b := orderedPair(claim.ID, other.ID)
			if err := s.recorder.Record(ctx, &domain.KernelEvent{
				TenantID:  tenantID,
				EventType: domain.EventClaimConflictDetected,
				Payload: map[string]any{
					"claim_a":           a.String(),
					"claim_b":           b.String(),
					"subject_entity_id": claim.SubjectEntityID.String(),
					"predicate":         claim.Predicate,
				},
			}); err != nil {
				return err
			}

			s.logger.Info("claim conflict detected",
				zap.String("tenant_id", tenantID.String()),
				zap.String("claim_a", a.String()),
				zap.String("claim_b", b.String()),
				zap.String("predicate", claim.Predicate))
		}
		return nil
	})
}

// orderedPair normalizes an unordered claim pair the same way the store
// does, so event payloads match the stored row.
func orderedPair(x, y uuid.UUID) (uuid.UUID, uuid.UUID) {
	if x.String() < y.String() {
		return x, y
	}
	return y, x
}
