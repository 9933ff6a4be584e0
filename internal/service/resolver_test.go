package service

import (
	"context"
	"testing"

	"github.com/cogmem/kos/internal/domain"
	"github.com/google/uuid"
)

func seedActive(t *testing.T, strategies *mockStrategyStore, scopeType domain.StrategyScopeType, scopeID string) *domain.MemoryStrategy {
	t.Helper()
	s := domain.DefaultStrategy()
	s.ScopeType = scopeType
	s.ScopeID = scopeID
	if err := strategies.Create(context.Background(), s); err != nil {
		t.Fatalf("seed strategy: %v", err)
	}
	if err := strategies.Activate(context.Background(), s.ID); err != nil {
		t.Fatalf("activate strategy: %v", err)
	}
	return s
}

func TestStrategyResolver_MostSpecificWins(t *testing.T) {
	strategies := newMockStrategyStore()
	resolver := NewStrategyResolver(strategies, testLogger())
	tenantID := uuid.New()

	tenantStrategy := seedActive(t, strategies, domain.ScopeTenant, tenantID.String())
	workflowStrategy := seedActive(t, strategies, domain.ScopeWorkflow, "wf-1")

	got, err := resolver.Resolve(context.Background(), tenantID, "", "wf-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != workflowStrategy.ID {
		t.Fatalf("expected workflow strategy to win, got %s", got.ID)
	}

	got, err = resolver.Resolve(context.Background(), tenantID, "", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != tenantStrategy.ID {
		t.Fatalf("expected tenant strategy without a workflow, got %s", got.ID)
	}
}

func TestStrategyResolver_FallsThroughToProject(t *testing.T) {
	strategies := newMockStrategyStore()
	resolver := NewStrategyResolver(strategies, testLogger())
	tenantID := uuid.New()

	projectStrategy := seedActive(t, strategies, domain.ScopeProject, "proj-1")

	// Workflow scope has nothing configured, so the chain falls through
	got, err := resolver.Resolve(context.Background(), tenantID, "proj-1", "wf-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != projectStrategy.ID {
		t.Fatalf("expected project strategy, got %s", got.ID)
	}
}

func TestStrategyResolver_BuiltInDefault(t *testing.T) {
	resolver := NewStrategyResolver(newMockStrategyStore(), testLogger())

	got, err := resolver.Resolve(context.Background(), uuid.New(), "", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != uuid.Nil {
		t.Fatalf("expected the built-in default (no ID), got %s", got.ID)
	}
	if got.ScopeType != domain.ScopeGlobal || got.CreatedBy != domain.CreatorSystem {
		t.Fatalf("unexpected default strategy: %+v", got)
	}
}

func TestStrategyResolver_Deterministic(t *testing.T) {
	strategies := newMockStrategyStore()
	resolver := NewStrategyResolver(strategies, testLogger())
	tenantID := uuid.New()
	seedActive(t, strategies, domain.ScopeTenant, tenantID.String())

	first, err := resolver.Resolve(context.Background(), tenantID, "proj-1", "wf-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := resolver.Resolve(context.Background(), tenantID, "proj-1", "wf-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if again.ID != first.ID {
			t.Fatalf("resolution changed between identical calls: %s vs %s", again.ID, first.ID)
		}
	}
}

func TestStrategyResolver_CacheInvalidation(t *testing.T) {
	strategies := newMockStrategyStore()
	resolver := NewStrategyResolver(strategies, testLogger())
	tenantID := uuid.New()

	v1 := seedActive(t, strategies, domain.ScopeTenant, tenantID.String())

	got, err := resolver.Resolve(context.Background(), tenantID, "", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != v1.ID {
		t.Fatalf("expected v1, got %s", got.ID)
	}

	// Activate a new version behind the resolver's back: the cache still
	// serves v1 until invalidated
	v2 := seedActive(t, strategies, domain.ScopeTenant, tenantID.String())

	got, _ = resolver.Resolve(context.Background(), tenantID, "", "")
	if got.ID != v1.ID {
		t.Fatalf("expected cached v1 before invalidation, got %s", got.ID)
	}

	resolver.Invalidate(domain.ScopeKey{ScopeType: domain.ScopeTenant, ScopeID: tenantID.String()})

	got, err = resolver.Resolve(context.Background(), tenantID, "", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != v2.ID {
		t.Fatalf("expected v2 after invalidation, got %s", got.ID)
	}
}
