package service

import (
	"context"
	"testing"

	"github.com/cogmem/kos/internal/domain"
	"github.com/google/uuid"
)

type strategyFixture struct {
	svc        *StrategyService
	strategies *mockStrategyStore
	resolver   *StrategyResolver
	events     *mockEventStore

	tenantID uuid.UUID
}

func setupStrategyTest(t *testing.T) *strategyFixture {
	t.Helper()

	f := &strategyFixture{
		strategies: newMockStrategyStore(),
		tenantID:   uuid.New(),
	}
	f.resolver = NewStrategyResolver(f.strategies, testLogger())
	recorder, events, _ := newTestRecorder()
	f.events = events
	f.svc = NewStrategyService(f.strategies, f.resolver, recorder, testLogger())
	return f
}

func (f *strategyFixture) tenantVariant(topK int) *domain.MemoryStrategy {
	s := domain.DefaultStrategy()
	s.ScopeType = domain.ScopeTenant
	s.ScopeID = f.tenantID.String()
	s.RetrievalPolicy.TopKDefault = topK
	// The built-in default is system-stamped; a caller-submitted
	// strategy arrives without a creator.
	s.CreatedBy = ""
	return s
}

func TestStrategyService_CreateAssignsVersion(t *testing.T) {
	f := setupStrategyTest(t)
	ctx := context.Background()

	first := f.tenantVariant(10)
	if err := f.svc.Create(ctx, f.tenantID, first); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second := f.tenantVariant(20)
	if err := f.svc.Create(ctx, f.tenantID, second); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if first.Version != 1 || second.Version != 2 {
		t.Fatalf("expected versions 1 and 2, got %d and %d", first.Version, second.Version)
	}
	if first.Status != domain.StrategyExperimental {
		t.Fatalf("expected new strategies experimental, got %s", first.Status)
	}
	if first.CreatedBy != domain.CreatorHuman {
		t.Fatalf("expected creator defaulted to human, got %s", first.CreatedBy)
	}
	if got := len(f.events.ofType(domain.EventStrategyCreated)); got != 2 {
		t.Fatalf("expected 2 strategy_created events, got %d", got)
	}

	// An explicit creator survives.
	third := f.tenantVariant(30)
	third.CreatedBy = domain.CreatorAgent
	if err := f.svc.Create(ctx, f.tenantID, third); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if third.CreatedBy != domain.CreatorAgent {
		t.Fatalf("expected explicit creator preserved, got %s", third.CreatedBy)
	}
}

func TestStrategyService_CreateRejectsBadScope(t *testing.T) {
	f := setupStrategyTest(t)
	ctx := context.Background()

	s := f.tenantVariant(10)
	s.ScopeType = "department"
	if err := f.svc.Create(ctx, f.tenantID, s); err == nil {
		t.Fatal("expected an error for an unknown scope type")
	}

	s = f.tenantVariant(10)
	s.ScopeID = ""
	if err := f.svc.Create(ctx, f.tenantID, s); err == nil {
		t.Fatal("expected an error for a missing scope id")
	}
}

func TestStrategyService_ActivateDeprecatesPredecessor(t *testing.T) {
	f := setupStrategyTest(t)
	ctx := context.Background()

	v1 := f.tenantVariant(10)
	if err := f.svc.Create(ctx, f.tenantID, v1); err != nil {
		t.Fatalf("create v1: %v", err)
	}
	if err := f.svc.Activate(ctx, f.tenantID, v1.ID); err != nil {
		t.Fatalf("activate v1: %v", err)
	}

	v2 := f.tenantVariant(20)
	if err := f.svc.Create(ctx, f.tenantID, v2); err != nil {
		t.Fatalf("create v2: %v", err)
	}
	if err := f.svc.Activate(ctx, f.tenantID, v2.ID); err != nil {
		t.Fatalf("activate v2: %v", err)
	}

	active, err := f.strategies.GetActive(ctx, domain.ScopeTenant, f.tenantID.String())
	if err != nil {
		t.Fatalf("expected an active strategy, got %v", err)
	}
	if active.ID != v2.ID {
		t.Fatalf("expected v2 active, got %s", active.ID)
	}
	old, _ := f.strategies.GetByID(ctx, v1.ID)
	if old.Status != domain.StrategyDeprecated {
		t.Fatalf("expected v1 deprecated, got %s", old.Status)
	}

	if got := len(f.events.ofType(domain.EventStrategyApplied)); got != 2 {
		t.Fatalf("expected 2 strategy_applied events, got %d", got)
	}
	if got := len(f.events.ofType(domain.EventStrategyDeprecated)); got != 1 {
		t.Fatalf("expected 1 strategy_deprecated event, got %d", got)
	}
}

func TestStrategyService_ActivateIsIdempotent(t *testing.T) {
	f := setupStrategyTest(t)
	ctx := context.Background()

	v1 := f.tenantVariant(10)
	if err := f.svc.Create(ctx, f.tenantID, v1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Activate(ctx, f.tenantID, v1.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := f.svc.Activate(ctx, f.tenantID, v1.ID); err != nil {
		t.Fatalf("re-activate: %v", err)
	}
	if got := len(f.events.ofType(domain.EventStrategyApplied)); got != 1 {
		t.Fatalf("expected a single strategy_applied event, got %d", got)
	}
}

// Activation must bust the resolver cache so the next resolve sees the
// new version immediately.
func TestStrategyService_ActivateInvalidatesResolver(t *testing.T) {
	f := setupStrategyTest(t)
	ctx := context.Background()

	v1 := f.tenantVariant(10)
	if err := f.svc.Create(ctx, f.tenantID, v1); err != nil {
		t.Fatalf("create v1: %v", err)
	}
	if err := f.svc.Activate(ctx, f.tenantID, v1.ID); err != nil {
		t.Fatalf("activate v1: %v", err)
	}

	resolved, err := f.resolver.Resolve(ctx, f.tenantID, "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ID != v1.ID {
		t.Fatalf("expected v1 resolved, got %s", resolved.ID)
	}

	v2 := f.tenantVariant(20)
	if err := f.svc.Create(ctx, f.tenantID, v2); err != nil {
		t.Fatalf("create v2: %v", err)
	}
	if err := f.svc.Activate(ctx, f.tenantID, v2.ID); err != nil {
		t.Fatalf("activate v2: %v", err)
	}

	resolved, err = f.resolver.Resolve(ctx, f.tenantID, "", "")
	if err != nil {
		t.Fatalf("resolve after activation: %v", err)
	}
	if resolved.ID != v2.ID {
		t.Fatalf("expected v2 resolved after activation, got %s", resolved.ID)
	}
}
