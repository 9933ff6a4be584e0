package service

import (
	"context"
	"testing"

	"github.com/cogmem/kos/internal/domain"
	"github.com/google/uuid"
)

type outcomeFixture struct {
	svc        *OutcomeService
	outcomes   *mockOutcomeStore
	strategies *mockStrategyStore
	events     *mockEventStore

	tenantID uuid.UUID
}

func setupOutcomeTest(t *testing.T) *outcomeFixture {
	t.Helper()

	f := &outcomeFixture{
		outcomes:   newMockOutcomeStore(),
		strategies: newMockStrategyStore(),
		tenantID:   uuid.New(),
	}
	resolver := NewStrategyResolver(f.strategies, testLogger())
	recorder, events, _ := newTestRecorder()
	f.events = events
	f.svc = NewOutcomeService(f.outcomes, resolver, recorder, testLogger())
	return f
}

func TestOutcomeService_Record(t *testing.T) {
	f := setupOutcomeTest(t)
	ctx := context.Background()

	o := &domain.OutcomeEvent{
		TenantID:    f.tenantID,
		OutcomeType: domain.OutcomeRetrievalSatisfied,
		Source:      domain.OutcomeSourceUser,
	}
	if err := f.svc.Record(ctx, o); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(f.outcomes.outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(f.outcomes.outcomes))
	}
	if o.ID == uuid.Nil {
		t.Fatal("expected outcome ID assigned")
	}
	if got := len(f.events.ofType(domain.EventOutcomeRecorded)); got != 1 {
		t.Fatalf("expected 1 outcome_recorded event, got %d", got)
	}
}

func TestOutcomeService_InvalidType(t *testing.T) {
	f := setupOutcomeTest(t)

	o := &domain.OutcomeEvent{
		TenantID:    f.tenantID,
		OutcomeType: "retrieval_meh",
	}
	if err := f.svc.Record(context.Background(), o); err == nil {
		t.Fatal("expected an error for an unknown outcome type")
	}
	if len(f.outcomes.outcomes) != 0 {
		t.Fatal("expected nothing appended")
	}
}

func TestOutcomeService_InvalidSource(t *testing.T) {
	f := setupOutcomeTest(t)

	o := &domain.OutcomeEvent{
		TenantID:    f.tenantID,
		OutcomeType: domain.OutcomeUserAccepted,
		Source:      "webhook",
	}
	if err := f.svc.Record(context.Background(), o); err == nil {
		t.Fatal("expected an error for an unknown source")
	}
}

func TestOutcomeService_DefaultsSourceToSystem(t *testing.T) {
	f := setupOutcomeTest(t)

	o := &domain.OutcomeEvent{
		TenantID:    f.tenantID,
		OutcomeType: domain.OutcomeRetrievalFailed,
	}
	if err := f.svc.Record(context.Background(), o); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if o.Source != domain.OutcomeSourceSystem {
		t.Fatalf("expected source %q, got %q", domain.OutcomeSourceSystem, o.Source)
	}
}

// An outcome with no explicit strategy gets stamped with whatever
// strategy resolution would have picked at that moment.
func TestOutcomeService_StampsResolvedStrategy(t *testing.T) {
	f := setupOutcomeTest(t)
	ctx := context.Background()

	active := activeTenantStrategy(t, f.strategies, f.tenantID)

	o := &domain.OutcomeEvent{
		TenantID:    f.tenantID,
		OutcomeType: domain.OutcomeRetrievalSatisfied,
	}
	if err := f.svc.Record(ctx, o); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if o.StrategyID == nil || *o.StrategyID != active.ID {
		t.Fatalf("expected outcome stamped with strategy %s, got %v", active.ID, o.StrategyID)
	}
	ev := f.events.ofType(domain.EventOutcomeRecorded)
	if len(ev) != 1 {
		t.Fatalf("expected 1 event, got %d", len(ev))
	}
	if ev[0].Payload["strategy_id"] != active.ID.String() {
		t.Fatalf("expected event payload to carry the strategy, got %v", ev[0].Payload["strategy_id"])
	}
}

// Built-in defaults have no row to point at, so the stamp stays empty.
func TestOutcomeService_NoStampWithoutStoredStrategy(t *testing.T) {
	f := setupOutcomeTest(t)

	o := &domain.OutcomeEvent{
		TenantID:    f.tenantID,
		OutcomeType: domain.OutcomeUserCorrected,
	}
	if err := f.svc.Record(context.Background(), o); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if o.StrategyID != nil {
		t.Fatalf("expected no strategy stamp, got %v", *o.StrategyID)
	}
}
