package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"sync"
	"time"

	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaintenanceInterval = 1 * time.Hour

	// Confidence changes smaller than this don't get written.
	decayEpsilon = 0.001
)

// MaintenanceResult summarizes one decay pass.
type MaintenanceResult struct {
	ClaimsDecayed int `json:"claims_decayed"`
	ClaimsSkipped int `json:"claims_skipped"`
}

// MaintenanceService runs periodic confidence decay and handles merge
// requests. Decay follows the governing strategy's decay rules:
// half-life per predicate pattern, floored at the rule's minimum so
// claims fade but never vanish. Repeatedly reinforced claims decay
// slower. Updates are optimistic; a version mismatch skips the claim
// and the next pass picks it up.
type MaintenanceService struct {
	claims   domain.ClaimStore
	merges   domain.MergeStore
	resolver *StrategyResolver
	recorder *EventRecorder
	logger   *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewMaintenanceService(
	claims domain.ClaimStore,
	merges domain.MergeStore,
	resolver *StrategyResolver,
	recorder *EventRecorder,
	logger *zap.Logger,
) *MaintenanceService {
	return &MaintenanceService{
		claims:   claims,
		merges:   merges,
		resolver: resolver,
		recorder: recorder,
		logger:   logger,
		interval: defaultMaintenanceInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *MaintenanceService) SetInterval(d time.Duration) {
	s.interval = d
}

func (s *MaintenanceService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("maintenance worker started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				s.RunDecay(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("maintenance worker stopped")
				return
			}
		}
	}()
}

func (s *MaintenanceService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunDecay applies confidence decay for every tenant.
func (s *MaintenanceService) RunDecay(ctx context.Context) *MaintenanceResult {
	total := &MaintenanceResult{}

	tenantIDs, err := s.claims.ListTenantIDs(ctx)
	if err != nil {
		s.logger.Error("failed to list tenants for decay", zap.Error(err))
		return total
	}

	for _, tenantID := range tenantIDs {
		result, err := s.RunDecayForTenant(ctx, tenantID)
		if err != nil {
			s.logger.Error("decay failed for tenant",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err))
			continue
		}
		total.ClaimsDecayed += result.ClaimsDecayed
		total.ClaimsSkipped += result.ClaimsSkipped

		if result.ClaimsDecayed > 0 {
			s.logger.Info("decay complete for tenant",
				zap.String("tenant_id", tenantID.String()),
				zap.Int("claims_decayed", result.ClaimsDecayed),
				zap.Int("claims_skipped", result.ClaimsSkipped))
		}
	}
	return total
}

func (s *MaintenanceService) RunDecayForTenant(ctx context.Context, tenantID uuid.UUID) (*MaintenanceResult, error) {
	result := &MaintenanceResult{}
	now := time.Now()

	strategy, err := s.resolver.Resolve(ctx, tenantID, "", "")
	if err != nil {
		return nil, fmt.Errorf("resolve strategy: %w", err)
	}
	rules := strategy.ClaimPolicy.DecayRules
	if len(rules) == 0 {
		return result, nil
	}

	claims, err := s.claims.ListForDecay(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list claims for decay: %w", err)
	}

	for i := range claims {
		claim := &claims[i]
		rule := matchDecayRule(rules, claim.Predicate)
		if rule == nil || rule.HalfLifeDays <= 0 {
			continue
		}

		newConf := decayedConfidence(claim, rule, now)
		if math.Abs(float64(newConf-claim.Confidence)) <= decayEpsilon {
			continue
		}

		err := s.claims.UpdateConfidence(ctx, claim.ID, newConf, claim.Version)
		if errors.Is(err, store.ErrVersionMismatch) {
			result.ClaimsSkipped++
			continue
		}
		if err != nil {
			s.logger.Warn("failed to update claim confidence",
				zap.String("claim_id", claim.ID.String()),
				zap.Error(err))
			continue
		}
		result.ClaimsDecayed++

		if err := s.recorder.Record(ctx, &domain.KernelEvent{
			TenantID:  tenantID,
			EventType: domain.EventClaimDecayed,
			Payload: map[string]any{
				"claim_id":       claim.ID.String(),
				"old_confidence": claim.Confidence,
				"new_confidence": newConf,
			},
		}); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Merge folds superseded claims into a survivor. The superseded claims
// are retired via merged_into, never deleted, and their evidence moves
// onto the survivor. Runs under the survivor's entity lock.
func (s *MaintenanceService) Merge(ctx context.Context, tenantID, survivorID uuid.UUID, supersededIDs []uuid.UUID, reason string) error {
	survivor, err := s.claims.GetByID(ctx, survivorID, tenantID)
	if err != nil {
		return fmt.Errorf("load survivor claim: %w", err)
	}
	if survivor.MergedInto != nil {
		return fmt.Errorf("survivor %s is itself merged: %w", survivorID, store.ErrConflict)
	}

	return s.claims.WithEntityLock(ctx, survivor.SubjectEntityID, func(ctx context.Context) error {
		var merged []uuid.UUID
		var evidence []uuid.UUID

		for _, id := range supersededIDs {
			if id == survivorID {
				continue
			}
			claim, err := s.claims.GetByID(ctx, id, tenantID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return fmt.Errorf("load superseded claim: %w", err)
			}
			if claim.MergedInto != nil {
				continue
			}
			if claim.SubjectEntityID != survivor.SubjectEntityID {
				return fmt.Errorf("claim %s has a different subject: %w", id, store.ErrConflict)
			}

			if err := s.setMergedInto(ctx, tenantID, claim, survivorID); err != nil {
				return err
			}
			merged = append(merged, id)
			evidence = append(evidence, claim.EvidencePassageIDs...)
		}

		if len(merged) == 0 {
			return nil
		}

		if len(evidence) > 0 {
			if err := s.claims.AppendEvidence(ctx, survivorID, evidence); err != nil {
				return fmt.Errorf("append merged evidence: %w", err)
			}
		}

		if err := s.merges.Create(ctx, &domain.ClaimMerge{
			SurvivorID:   survivorID,
			SupersededID: merged,
			Reason:       reason,
		}); err != nil {
			return fmt.Errorf("record merge: %w", err)
		}

		payload := map[string]any{
			"survivor_id": survivorID.String(),
			"reason":      reason,
		}
		ids := make([]string, len(merged))
		for i, id := range merged {
			ids[i] = id.String()
		}
		payload["superseded_ids"] = ids

		return s.recorder.Record(ctx, &domain.KernelEvent{
			TenantID:  tenantID,
			EventType: domain.EventClaimMerged,
			Payload:   payload,
		})
	})
}

func (s *MaintenanceService) setMergedInto(ctx context.Context, tenantID uuid.UUID, claim *domain.Claim, survivorID uuid.UUID) error {
	for attempt := 0; attempt < 3; attempt++ {
		err := s.claims.SetMergedInto(ctx, claim.ID, survivorID, claim.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionMismatch) {
			return fmt.Errorf("merge claim %s: %w", claim.ID, err)
		}
		reloaded, err := s.claims.GetByID(ctx, claim.ID, tenantID)
		if err != nil {
			return fmt.Errorf("reload claim: %w", err)
		}
		claim = reloaded
	}
	return fmt.Errorf("merge claim %s: %w", claim.ID, store.ErrVersionMismatch)
}

// matchDecayRule returns the first rule whose pattern matches the
// predicate. "*" matches everything.
func matchDecayRule(rules []domain.DecayRule, predicate string) *domain.DecayRule {
	for i := range rules {
		if ok, err := path.Match(rules[i].PredicatePattern, predicate); err == nil && ok {
			return &rules[i]
		}
	}
	return nil
}

func decayedConfidence(claim *domain.Claim, rule *domain.DecayRule, now time.Time) float32 {
	days := now.Sub(claim.UpdatedAt).Hours() / 24
	if days <= 0 {
		return claim.Confidence
	}

	factor := math.Exp(-math.Ln2 * days / float64(rule.HalfLifeDays))
	if claim.ReinforcementCount > 1 {
		factor = math.Pow(factor, 1.0/math.Log(float64(claim.ReinforcementCount+1)))
	}

	newConf := claim.Confidence * float32(factor)
	if newConf < rule.MinConfidence {
		newConf = rule.MinConfidence
	}
	return newConf
}
