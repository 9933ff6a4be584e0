package service

import (
	"context"
	"errors"
	"sync"

	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StrategyResolver walks the scope chain workflow -> project -> tenant
// -> global and returns the first active strategy it finds. Resolution
// is deterministic: the same chain and the same set of active
// strategies always yield the same answer. When nothing is configured
// anywhere, the built-in default applies.
type StrategyResolver struct {
	strategies domain.StrategyStore
	logger     *zap.Logger

	mu    sync.RWMutex
	cache map[domain.ScopeKey]*domain.MemoryStrategy
}

func NewStrategyResolver(strategies domain.StrategyStore, logger *zap.Logger) *StrategyResolver {
	return &StrategyResolver{
		strategies: strategies,
		logger:     logger,
		cache:      make(map[domain.ScopeKey]*domain.MemoryStrategy),
	}
}

// Resolve returns the active strategy for the most specific scope in
// the chain. Empty workflowID/projectID skip their levels.
func (r *StrategyResolver) Resolve(ctx context.Context, tenantID uuid.UUID, projectID, workflowID string) (*domain.MemoryStrategy, error) {
	chain := make([]domain.ScopeKey, 0, 4)
	if workflowID != "" {
		chain = append(chain, domain.ScopeKey{ScopeType: domain.ScopeWorkflow, ScopeID: workflowID})
	}
	if projectID != "" {
		chain = append(chain, domain.ScopeKey{ScopeType: domain.ScopeProject, ScopeID: projectID})
	}
	if tenantID != uuid.Nil {
		chain = append(chain, domain.ScopeKey{ScopeType: domain.ScopeTenant, ScopeID: tenantID.String()})
	}
	chain = append(chain, domain.ScopeKey{ScopeType: domain.ScopeGlobal, ScopeID: domain.GlobalScopeID})

	for _, key := range chain {
		s, err := r.lookup(ctx, key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		return s, nil
	}

	return domain.DefaultStrategy(), nil
}

// ResolveScope returns the active strategy at exactly one scope, no
// chain walk.
func (r *StrategyResolver) ResolveScope(ctx context.Context, key domain.ScopeKey) (*domain.MemoryStrategy, error) {
	return r.lookup(ctx, key)
}

// Invalidate drops the cached entry for a scope. Callers invalidate
// after every activation or deprecation at that scope.
func (r *StrategyResolver) Invalidate(key domain.ScopeKey) {
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
}

func (r *StrategyResolver) lookup(ctx context.Context, key domain.ScopeKey) (*domain.MemoryStrategy, error) {
	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	s, err := r.strategies.GetActive(ctx, key.ScopeType, key.ScopeID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = s
	r.mu.Unlock()
	return s, nil
}
