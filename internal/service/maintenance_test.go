package service

import (
	"context"
	"testing"
	"time"

	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/store"
	"github.com/google/uuid"
)

type maintenanceFixture struct {
	svc    *MaintenanceService
	claims *mockClaimStore
	merges *mockMergeStore
	events *mockEventStore

	tenantID uuid.UUID
}

func setupMaintenanceTest(t *testing.T) *maintenanceFixture {
	t.Helper()

	f := &maintenanceFixture{
		claims:   newMockClaimStore(),
		merges:   newMockMergeStore(),
		tenantID: uuid.New(),
	}
	resolver := NewStrategyResolver(newMockStrategyStore(), testLogger())
	recorder, events, _ := newTestRecorder()
	f.events = events
	f.svc = NewMaintenanceService(f.claims, f.merges, resolver, recorder, testLogger())
	return f
}

func (f *maintenanceFixture) seedClaim(t *testing.T, confidence float32, age time.Duration, reinforcements int) *domain.Claim {
	t.Helper()
	c := &domain.Claim{
		TenantID:           f.tenantID,
		SubjectEntityID:    uuid.New(),
		Predicate:          "prefers",
		Object:             uuid.NewString(),
		SourceType:         domain.ClaimSourceInferred,
		Confidence:         confidence,
		ReinforcementCount: reinforcements,
	}
	if err := f.claims.Create(context.Background(), c); err != nil {
		t.Fatalf("seed claim: %v", err)
	}
	f.claims.claims[c.ID].UpdatedAt = time.Now().Add(-age)
	return c
}

func TestMaintenanceService_DecayReducesConfidence(t *testing.T) {
	f := setupMaintenanceTest(t)
	c := f.seedClaim(t, 0.8, 90*24*time.Hour, 1) // one half-life old

	result, err := f.svc.RunDecayForTenant(context.Background(), f.tenantID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.ClaimsDecayed != 1 {
		t.Fatalf("expected 1 claim decayed, got %d", result.ClaimsDecayed)
	}

	updated := f.claims.claims[c.ID]
	if updated.Confidence < 0.38 || updated.Confidence > 0.42 {
		t.Fatalf("expected confidence halved to about 0.4, got %f", updated.Confidence)
	}
	if got := len(f.events.ofType(domain.EventClaimDecayed)); got != 1 {
		t.Fatalf("expected 1 claim_decayed event, got %d", got)
	}
}

func TestMaintenanceService_DecayFloor(t *testing.T) {
	f := setupMaintenanceTest(t)
	c := f.seedClaim(t, 0.15, 10*365*24*time.Hour, 1)

	if _, err := f.svc.RunDecayForTenant(context.Background(), f.tenantID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Default decay rule floors at 0.1: claims fade but never vanish
	if got := f.claims.claims[c.ID].Confidence; got != 0.1 {
		t.Fatalf("expected floor 0.1, got %f", got)
	}
}

func TestMaintenanceService_ReinforcedClaimsDecaySlower(t *testing.T) {
	f := setupMaintenanceTest(t)
	weak := f.seedClaim(t, 0.8, 90*24*time.Hour, 1)
	strong := f.seedClaim(t, 0.8, 90*24*time.Hour, 10)

	if _, err := f.svc.RunDecayForTenant(context.Background(), f.tenantID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if f.claims.claims[strong.ID].Confidence <= f.claims.claims[weak.ID].Confidence {
		t.Fatalf("expected reinforced claim to keep more confidence: strong %f vs weak %f",
			f.claims.claims[strong.ID].Confidence, f.claims.claims[weak.ID].Confidence)
	}
}

func TestMaintenanceService_FreshClaimUntouched(t *testing.T) {
	f := setupMaintenanceTest(t)
	c := f.seedClaim(t, 0.8, time.Minute, 1)

	result, err := f.svc.RunDecayForTenant(context.Background(), f.tenantID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.ClaimsDecayed != 0 {
		t.Fatalf("expected no decay on a fresh claim, got %d", result.ClaimsDecayed)
	}
	if f.claims.claims[c.ID].Confidence != 0.8 {
		t.Fatalf("confidence changed: %f", f.claims.claims[c.ID].Confidence)
	}
}

func TestMaintenanceService_VersionMismatchSkips(t *testing.T) {
	f := setupMaintenanceTest(t)
	c := f.seedClaim(t, 0.8, 90*24*time.Hour, 1)

	// A concurrent writer bumps the version between list and update
	f.claims.updateConfidenceErr = store.ErrVersionMismatch

	result, err := f.svc.RunDecayForTenant(context.Background(), f.tenantID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.ClaimsSkipped != 1 {
		t.Fatalf("expected the stale update skipped, got %d", result.ClaimsSkipped)
	}
	if result.ClaimsDecayed != 0 {
		t.Fatalf("expected nothing decayed, got %d", result.ClaimsDecayed)
	}
	if f.claims.claims[c.ID].Confidence != 0.8 {
		t.Fatalf("stale writer must not win: %f", f.claims.claims[c.ID].Confidence)
	}
}

func TestMatchDecayRule(t *testing.T) {
	rules := []domain.DecayRule{
		{PredicatePattern: "works_*", HalfLifeDays: 30, MinConfidence: 0.2},
		{PredicatePattern: "*", HalfLifeDays: 90, MinConfidence: 0.1},
	}

	if r := matchDecayRule(rules, "works_at"); r == nil || r.HalfLifeDays != 30 {
		t.Fatalf("expected the specific rule to match first, got %+v", r)
	}
	if r := matchDecayRule(rules, "prefers"); r == nil || r.HalfLifeDays != 90 {
		t.Fatalf("expected the wildcard rule, got %+v", r)
	}
	if r := matchDecayRule(nil, "prefers"); r != nil {
		t.Fatalf("expected no match without rules, got %+v", r)
	}
}

func TestMaintenanceService_Merge(t *testing.T) {
	f := setupMaintenanceTest(t)
	ctx := context.Background()
	entityID := uuid.New()

	survivor := &domain.Claim{
		TenantID: f.tenantID, SubjectEntityID: entityID,
		Predicate: "uses", Object: "Go", Confidence: 0.9,
		EvidencePassageIDs: []uuid.UUID{uuid.New()},
	}
	superseded := &domain.Claim{
		TenantID: f.tenantID, SubjectEntityID: entityID,
		Predicate: "uses", Object: "Golang", Confidence: 0.6,
		EvidencePassageIDs: []uuid.UUID{uuid.New()},
	}
	_ = f.claims.Create(ctx, survivor)
	_ = f.claims.Create(ctx, superseded)

	if err := f.svc.Merge(ctx, f.tenantID, survivor.ID, []uuid.UUID{superseded.ID}, "same tool"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	merged := f.claims.claims[superseded.ID]
	if merged.MergedInto == nil || *merged.MergedInto != survivor.ID {
		t.Fatalf("expected superseded claim to point at the survivor")
	}
	if len(f.claims.claims[survivor.ID].EvidencePassageIDs) != 2 {
		t.Fatalf("expected evidence folded into the survivor, got %v",
			f.claims.claims[survivor.ID].EvidencePassageIDs)
	}
	if len(f.merges.merges) != 1 {
		t.Fatalf("expected 1 merge record, got %d", len(f.merges.merges))
	}
	if got := len(f.events.ofType(domain.EventClaimMerged)); got != 1 {
		t.Fatalf("expected 1 claim_merged event, got %d", got)
	}
}

func TestMaintenanceService_MergeRejectsCrossEntity(t *testing.T) {
	f := setupMaintenanceTest(t)
	ctx := context.Background()

	survivor := &domain.Claim{TenantID: f.tenantID, SubjectEntityID: uuid.New(), Predicate: "uses", Object: "Go"}
	other := &domain.Claim{TenantID: f.tenantID, SubjectEntityID: uuid.New(), Predicate: "uses", Object: "Go"}
	_ = f.claims.Create(ctx, survivor)
	_ = f.claims.Create(ctx, other)

	if err := f.svc.Merge(ctx, f.tenantID, survivor.ID, []uuid.UUID{other.ID}, ""); err == nil {
		t.Fatal("expected cross-entity merge to fail")
	}
}

func TestMaintenanceService_MergeIdempotent(t *testing.T) {
	f := setupMaintenanceTest(t)
	ctx := context.Background()
	entityID := uuid.New()

	survivor := &domain.Claim{TenantID: f.tenantID, SubjectEntityID: entityID, Predicate: "uses", Object: "Go"}
	superseded := &domain.Claim{TenantID: f.tenantID, SubjectEntityID: entityID, Predicate: "uses", Object: "Golang"}
	_ = f.claims.Create(ctx, survivor)
	_ = f.claims.Create(ctx, superseded)

	if err := f.svc.Merge(ctx, f.tenantID, survivor.ID, []uuid.UUID{superseded.ID}, ""); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if err := f.svc.Merge(ctx, f.tenantID, survivor.ID, []uuid.UUID{superseded.ID}, ""); err != nil {
		t.Fatalf("repeat merge: %v", err)
	}

	// The already-merged claim is skipped, so no second record or event
	if len(f.merges.merges) != 1 {
		t.Fatalf("expected 1 merge record, got %d", len(f.merges.merges))
	}
	if got := len(f.events.ofType(domain.EventClaimMerged)); got != 1 {
		t.Fatalf("expected 1 claim_merged event, got %d", got)
	}
}
