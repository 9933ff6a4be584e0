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

// StrategyService owns the strategy lifecycle: create versions,
// activate them, deprecate predecessors. Activation is the only way a
// strategy takes effect, and it atomically retires whatever was active
// at the same scope.
type StrategyService struct {
	strategies domain.StrategyStore
	resolver   *StrategyResolver
	recorder   *EventRecorder
	logger     *zap.Logger
}

func NewStrategyService(strategies domain.StrategyStore, resolver *StrategyResolver, recorder *EventRecorder, logger *zap.Logger) *StrategyService {
	return &StrategyService{
		strategies: strategies,
		resolver:   resolver,
		recorder:   recorder,
		logger:     logger,
	}
}

// Create persists a new strategy version in experimental status. It has
// no effect until activated.
func (s *StrategyService) Create(ctx context.Context, tenantID uuid.UUID, strategy *domain.MemoryStrategy) error {
	if !domain.ValidScopeType(string(strategy.ScopeType)) {
		return fmt.Errorf("invalid scope_type %q: %w", strategy.ScopeType, store.ErrConflict)
	}
	if strategy.ScopeID == "" {
		return fmt.Errorf("missing scope_id: %w", store.ErrConflict)
	}
	if strategy.CreatedBy == "" {
		strategy.CreatedBy = domain.CreatorHuman
	}
	strategy.Status = domain.StrategyExperimental

	if err := s.strategies.Create(ctx, strategy); err != nil {
		return fmt.Errorf("create strategy: %w", err)
	}

	return s.recorder.Record(ctx, &domain.KernelEvent{
		TenantID:  tenantID,
		EventType: domain.EventStrategyCreated,
		Payload: map[string]any{
			"strategy_id": strategy.ID.String(),
			"scope_type":  string(strategy.ScopeType),
			"scope_id":    strategy.ScopeID,
			"version":     strategy.Version,
			"created_by":  string(strategy.CreatedBy),
		},
	})
}

// Activate makes a strategy the active one for its scope, deprecating
// the previous active version.
func (s *StrategyService) Activate(ctx context.Context, tenantID, strategyID uuid.UUID) error {
	strategy, err := s.strategies.GetByID(ctx, strategyID)
	if err != nil {
		return fmt.Errorf("load strategy: %w", err)
	}
	if strategy.Status == domain.StrategyActive {
		return nil
	}

	previous, err := s.strategies.GetActive(ctx, strategy.ScopeType, strategy.ScopeID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load active strategy: %w", err)
	}

	if err := s.strategies.Activate(ctx, strategyID); err != nil {
		return fmt.Errorf("activate strategy: %w", err)
	}
	s.resolver.Invalidate(strategy.Scope())

	if previous != nil {
		if err := s.recorder.Record(ctx, &domain.KernelEvent{
			TenantID:  tenantID,
			EventType: domain.EventStrategyDeprecated,
			Payload: map[string]any{
				"strategy_id": previous.ID.String(),
				"scope_type":  string(previous.ScopeType),
				"scope_id":    previous.ScopeID,
				"version":     previous.Version,
			},
		}); err != nil {
			return err
		}
	}

	if err := s.recorder.Record(ctx, &domain.KernelEvent{
		TenantID:  tenantID,
		EventType: domain.EventStrategyApplied,
		Payload: map[string]any{
			"strategy_id": strategy.ID.String(),
			"scope_type":  string(strategy.ScopeType),
			"scope_id":    strategy.ScopeID,
			"version":     strategy.Version,
		},
	}); err != nil {
		return err
	}

	s.logger.Info("strategy activated",
		zap.String("strategy_id", strategyID.String()),
		zap.String("scope_type", string(strategy.ScopeType)),
		zap.String("scope_id", strategy.ScopeID),
		zap.Int("version", strategy.Version))
	return nil
}

func (s *StrategyService) Get(ctx context.Context, id uuid.UUID) (*domain.MemoryStrategy, error) {
	return s.strategies.GetByID(ctx, id)
}

func (s *StrategyService) ListByScope(ctx context.Context, scopeType domain.StrategyScopeType, scopeID string, includeDeprecated bool) ([]domain.MemoryStrategy, error) {
	return s.strategies.ListByScope(ctx, scopeType, scopeID, includeDeprecated)
}
