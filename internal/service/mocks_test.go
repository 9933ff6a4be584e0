package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// mockItemStore implements domain.ItemStore for testing.
type mockItemStore struct {
	items   map[uuid.UUID]*domain.Item
	touched int
}

func newMockItemStore() *mockItemStore {
	return &mockItemStore{items: make(map[uuid.UUID]*domain.Item)}
}

func (m *mockItemStore) Create(ctx context.Context, i *domain.Item) error {
	i.ID = uuid.New()
	i.CreatedAt = time.Now()
	i.UpdatedAt = i.CreatedAt
	m.items[i.ID] = i
	return nil
}

func (m *mockItemStore) GetByID(ctx context.Context, id, tenantID uuid.UUID) (*domain.Item, error) {
	item, ok := m.items[id]
	if !ok || item.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return item, nil
}

func (m *mockItemStore) GetByContentHash(ctx context.Context, tenantID uuid.UUID, hash string) (*domain.Item, error) {
	for _, item := range m.items {
		if item.TenantID == tenantID && item.ContentHash == hash {
			return item, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockItemStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.Item, error) {
	var all []domain.Item
	for _, item := range m.items {
		if item.TenantID == tenantID {
			all = append(all, *item)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockItemStore) Touch(ctx context.Context, id uuid.UUID) error {
	item, ok := m.items[id]
	if !ok {
		return store.ErrNotFound
	}
	item.UpdatedAt = time.Now()
	m.touched++
	return nil
}

// mockPassageStore implements domain.PassageStore for testing.
type mockPassageStore struct {
	passages map[uuid.UUID]*domain.Passage
	replaced int
}

func newMockPassageStore() *mockPassageStore {
	return &mockPassageStore{passages: make(map[uuid.UUID]*domain.Passage)}
}

func (m *mockPassageStore) Create(ctx context.Context, p *domain.Passage) error {
	p.ID = uuid.New()
	cp := *p
	m.passages[p.ID] = &cp
	return nil
}

func (m *mockPassageStore) GetByID(ctx context.Context, id, tenantID uuid.UUID) (*domain.Passage, error) {
	p, ok := m.passages[id]
	if !ok || p.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (m *mockPassageStore) GetByItem(ctx context.Context, itemID, tenantID uuid.UUID) ([]domain.Passage, error) {
	var out []domain.Passage
	for _, p := range m.passages {
		if p.ItemID == itemID && p.TenantID == tenantID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *mockPassageStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.Passage, error) {
	var all []domain.Passage
	for _, p := range m.passages {
		if p.TenantID == tenantID {
			all = append(all, *p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockPassageStore) UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	p, ok := m.passages[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Embedding = embedding
	return nil
}

func (m *mockPassageStore) ReplaceForItem(ctx context.Context, itemID, tenantID uuid.UUID, passages []domain.Passage) error {
	for id, p := range m.passages {
		if p.ItemID == itemID && p.TenantID == tenantID {
			delete(m.passages, id)
		}
	}
	for i := range passages {
		passages[i].ID = uuid.New()
		cp := passages[i]
		m.passages[cp.ID] = &cp
	}
	m.replaced++
	return nil
}

// mockEntityStore implements domain.EntityStore for testing.
type mockEntityStore struct {
	entities map[uuid.UUID]*domain.Entity
	lowValue []domain.Entity
}

func newMockEntityStore() *mockEntityStore {
	return &mockEntityStore{entities: make(map[uuid.UUID]*domain.Entity)}
}

func (m *mockEntityStore) UpsertByName(ctx context.Context, e *domain.Entity) error {
	for _, existing := range m.entities {
		if existing.TenantID == e.TenantID && existing.Name == e.Name && existing.EntityType == e.EntityType {
			*e = *existing
			return nil
		}
	}
	e.ID = uuid.New()
	cp := *e
	m.entities[e.ID] = &cp
	return nil
}

func (m *mockEntityStore) GetByID(ctx context.Context, id, tenantID uuid.UUID) (*domain.Entity, error) {
	e, ok := m.entities[id]
	if !ok || e.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return e, nil
}

func (m *mockEntityStore) ListLowValue(ctx context.Context, tenantID uuid.UUID, confidenceFloor float32) ([]domain.Entity, error) {
	return m.lowValue, nil
}

func (m *mockEntityStore) SetArchived(ctx context.Context, ids []uuid.UUID, archived bool) error {
	for _, id := range ids {
		if e, ok := m.entities[id]; ok {
			e.Archived = archived
		}
	}
	return nil
}

// mockClaimStore implements domain.ClaimStore for testing.
type mockClaimStore struct {
	claims    map[uuid.UUID]*domain.Claim
	conflicts map[[2]uuid.UUID]bool
	stats     domain.ConflictStats
	tenantIDs []uuid.UUID

	// updateConfidenceErr fails every UpdateConfidence call when set,
	// simulating a concurrent writer.
	updateConfidenceErr error
}

func newMockClaimStore() *mockClaimStore {
	return &mockClaimStore{
		claims:    make(map[uuid.UUID]*domain.Claim),
		conflicts: make(map[[2]uuid.UUID]bool),
	}
}

func (m *mockClaimStore) Create(ctx context.Context, c *domain.Claim) error {
	c.ID = uuid.New()
	c.Version = 1
	if c.ReinforcementCount == 0 {
		c.ReinforcementCount = 1
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.claims[c.ID] = c
	return nil
}

func (m *mockClaimStore) GetByID(ctx context.Context, id, tenantID uuid.UUID) (*domain.Claim, error) {
	c, ok := m.claims[id]
	if !ok || c.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockClaimStore) ListByEntity(ctx context.Context, subjectEntityID, tenantID uuid.UUID) ([]domain.Claim, error) {
	var out []domain.Claim
	for _, c := range m.claims {
		if c.SubjectEntityID == subjectEntityID && c.TenantID == tenantID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockClaimStore) FindBySubjectPredicate(ctx context.Context, tenantID, subjectEntityID uuid.UUID, predicate string) ([]domain.Claim, error) {
	var out []domain.Claim
	for _, c := range m.claims {
		if c.TenantID == tenantID && c.SubjectEntityID == subjectEntityID && c.Predicate == predicate {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockClaimStore) FindEquivalent(ctx context.Context, tenantID, subjectEntityID uuid.UUID, predicate, object string) ([]domain.Claim, error) {
	var out []domain.Claim
	for _, c := range m.claims {
		if c.TenantID == tenantID && c.SubjectEntityID == subjectEntityID &&
			c.Predicate == predicate && c.Object == object && c.MergedInto == nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockClaimStore) LinkConflict(ctx context.Context, a, b uuid.UUID) (bool, error) {
	if b.String() < a.String() {
		a, b = b, a
	}
	key := [2]uuid.UUID{a, b}
	if m.conflicts[key] {
		return false, nil
	}
	m.conflicts[key] = true
	m.claims[a].ConflictsWith = append(m.claims[a].ConflictsWith, b)
	m.claims[b].ConflictsWith = append(m.claims[b].ConflictsWith, a)
	return true, nil
}

func (m *mockClaimStore) UpdateConfidence(ctx context.Context, id uuid.UUID, confidence float32, version int) error {
	if m.updateConfidenceErr != nil {
		return m.updateConfidenceErr
	}
	c, ok := m.claims[id]
	if !ok {
		return store.ErrNotFound
	}
	if c.Version != version {
		return store.ErrVersionMismatch
	}
	c.Confidence = confidence
	c.Version++
	c.UpdatedAt = time.Now()
	return nil
}

func (m *mockClaimStore) Reinforce(ctx context.Context, id uuid.UUID, confidence float32, reinforcementCount int, evidence []uuid.UUID, version int) error {
	c, ok := m.claims[id]
	if !ok {
		return store.ErrNotFound
	}
	if c.Version != version {
		return store.ErrVersionMismatch
	}
	c.Confidence = confidence
	c.ReinforcementCount = reinforcementCount
	c.EvidencePassageIDs = append(c.EvidencePassageIDs, evidence...)
	c.Version++
	c.UpdatedAt = time.Now()
	return nil
}

func (m *mockClaimStore) SetMergedInto(ctx context.Context, id, survivorID uuid.UUID, version int) error {
	c, ok := m.claims[id]
	if !ok {
		return store.ErrNotFound
	}
	if c.Version != version {
		return store.ErrVersionMismatch
	}
	c.MergedInto = &survivorID
	c.Version++
	return nil
}

func (m *mockClaimStore) AppendEvidence(ctx context.Context, id uuid.UUID, evidence []uuid.UUID) error {
	c, ok := m.claims[id]
	if !ok {
		return store.ErrNotFound
	}
	c.EvidencePassageIDs = append(c.EvidencePassageIDs, evidence...)
	return nil
}

func (m *mockClaimStore) ListForDecay(ctx context.Context, tenantID uuid.UUID) ([]domain.Claim, error) {
	var out []domain.Claim
	for _, c := range m.claims {
		if c.TenantID == tenantID && c.MergedInto == nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockClaimStore) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	if m.tenantIDs != nil {
		return m.tenantIDs, nil
	}
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, c := range m.claims {
		if !seen[c.TenantID] {
			seen[c.TenantID] = true
			out = append(out, c.TenantID)
		}
	}
	return out, nil
}

func (m *mockClaimStore) ConflictStats(ctx context.Context, tenantID uuid.UUID) (domain.ConflictStats, error) {
	if m.stats.TotalClaims > 0 {
		return m.stats, nil
	}
	var stats domain.ConflictStats
	for _, c := range m.claims {
		if c.TenantID != tenantID {
			continue
		}
		stats.TotalClaims++
		if len(c.ConflictsWith) > 0 {
			stats.ConflictedClaims++
		}
	}
	return stats, nil
}

func (m *mockClaimStore) UpdatePredicate(ctx context.Context, tenantID uuid.UUID, oldPredicate, newPredicate string) (int64, error) {
	var n int64
	for _, c := range m.claims {
		if c.TenantID == tenantID && c.Predicate == oldPredicate {
			c.Predicate = newPredicate
			n++
		}
	}
	return n, nil
}

func (m *mockClaimStore) WithEntityLock(ctx context.Context, subjectEntityID uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// mockMergeStore implements domain.MergeStore for testing.
type mockMergeStore struct {
	merges []domain.ClaimMerge
}

func newMockMergeStore() *mockMergeStore {
	return &mockMergeStore{}
}

func (m *mockMergeStore) Create(ctx context.Context, merge *domain.ClaimMerge) error {
	merge.ID = uuid.New()
	m.merges = append(m.merges, *merge)
	return nil
}

func (m *mockMergeStore) GetBySurvivor(ctx context.Context, survivorID uuid.UUID) ([]domain.ClaimMerge, error) {
	var out []domain.ClaimMerge
	for _, merge := range m.merges {
		if merge.SurvivorID == survivorID {
			out = append(out, merge)
		}
	}
	return out, nil
}

// mockEventStore implements domain.KernelEventStore for testing.
type mockEventStore struct {
	events []domain.KernelEvent
}

func newMockEventStore() *mockEventStore {
	return &mockEventStore{}
}

func (m *mockEventStore) Append(ctx context.Context, e *domain.KernelEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now()
	m.events = append(m.events, *e)
	return nil
}

func (m *mockEventStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, types []domain.KernelEventType, limit int) ([]domain.KernelEvent, error) {
	var out []domain.KernelEvent
	for _, e := range m.events {
		if e.TenantID != tenantID {
			continue
		}
		if len(types) > 0 {
			match := false
			for _, t := range types {
				if e.EventType == t {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *mockEventStore) CountByTypeSince(ctx context.Context, tenantID uuid.UUID, eventType domain.KernelEventType, since time.Time) (int, error) {
	count := 0
	for _, e := range m.events {
		if e.TenantID == tenantID && e.EventType == eventType && e.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

// ofType returns recorded events of one type, in append order.
func (m *mockEventStore) ofType(t domain.KernelEventType) []domain.KernelEvent {
	var out []domain.KernelEvent
	for _, e := range m.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// mockStrategyStore implements domain.StrategyStore for testing.
type mockStrategyStore struct {
	strategies map[uuid.UUID]*domain.MemoryStrategy
}

func newMockStrategyStore() *mockStrategyStore {
	return &mockStrategyStore{strategies: make(map[uuid.UUID]*domain.MemoryStrategy)}
}

func (m *mockStrategyStore) Create(ctx context.Context, s *domain.MemoryStrategy) error {
	s.ID = uuid.New()
	maxVersion := 0
	for _, existing := range m.strategies {
		if existing.ScopeType == s.ScopeType && existing.ScopeID == s.ScopeID && existing.Version > maxVersion {
			maxVersion = existing.Version
		}
	}
	s.Version = maxVersion + 1
	s.CreatedAt = time.Now()
	cp := *s
	m.strategies[s.ID] = &cp
	return nil
}

func (m *mockStrategyStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.MemoryStrategy, error) {
	s, ok := m.strategies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockStrategyStore) GetActive(ctx context.Context, scopeType domain.StrategyScopeType, scopeID string) (*domain.MemoryStrategy, error) {
	for _, s := range m.strategies {
		if s.ScopeType == scopeType && s.ScopeID == scopeID && s.Status == domain.StrategyActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockStrategyStore) ListByScope(ctx context.Context, scopeType domain.StrategyScopeType, scopeID string, includeDeprecated bool) ([]domain.MemoryStrategy, error) {
	var out []domain.MemoryStrategy
	for _, s := range m.strategies {
		if s.ScopeType != scopeType || s.ScopeID != scopeID {
			continue
		}
		if !includeDeprecated && s.Status == domain.StrategyDeprecated {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (m *mockStrategyStore) ListActive(ctx context.Context) ([]domain.MemoryStrategy, error) {
	var out []domain.MemoryStrategy
	for _, s := range m.strategies {
		if s.Status == domain.StrategyActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockStrategyStore) DeleteExperimental(ctx context.Context, id uuid.UUID) error {
	s, ok := m.strategies[id]
	if !ok || s.Status != domain.StrategyExperimental {
		return store.ErrNotFound
	}
	delete(m.strategies, id)
	return nil
}

func (m *mockStrategyStore) Activate(ctx context.Context, id uuid.UUID) error {
	target, ok := m.strategies[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, s := range m.strategies {
		if s.ScopeType == target.ScopeType && s.ScopeID == target.ScopeID && s.Status == domain.StrategyActive {
			s.Status = domain.StrategyDeprecated
		}
	}
	target.Status = domain.StrategyActive
	return nil
}

// mockOutcomeStore implements domain.OutcomeStore for testing. Stats can
// be pinned per strategy, or derived from appended outcomes.
type mockOutcomeStore struct {
	outcomes []domain.OutcomeEvent
	stats    map[uuid.UUID]domain.OutcomeStats
	statsFn  func(strategyID uuid.UUID, since, until time.Time) domain.OutcomeStats
}

func newMockOutcomeStore() *mockOutcomeStore {
	return &mockOutcomeStore{stats: make(map[uuid.UUID]domain.OutcomeStats)}
}

func (m *mockOutcomeStore) Append(ctx context.Context, o *domain.OutcomeEvent) error {
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	m.outcomes = append(m.outcomes, *o)
	return nil
}

func (m *mockOutcomeStore) GetByID(ctx context.Context, id, tenantID uuid.UUID) (*domain.OutcomeEvent, error) {
	for i := range m.outcomes {
		if m.outcomes[i].ID == id && m.outcomes[i].TenantID == tenantID {
			return &m.outcomes[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockOutcomeStore) StatsByStrategy(ctx context.Context, strategyID uuid.UUID, since, until time.Time) (domain.OutcomeStats, error) {
	if m.statsFn != nil {
		return m.statsFn(strategyID, since, until), nil
	}
	if stats, ok := m.stats[strategyID]; ok {
		return stats, nil
	}
	return domain.OutcomeStats{}, nil
}

func (m *mockOutcomeStore) ListByStrategy(ctx context.Context, strategyID uuid.UUID, since time.Time, limit int) ([]domain.OutcomeEvent, error) {
	var out []domain.OutcomeEvent
	for _, o := range m.outcomes {
		if o.StrategyID != nil && *o.StrategyID == strategyID {
			out = append(out, o)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// mockProposalStore implements domain.ProposalStore for testing.
// createErr fails the next Create call, simulating a lost race against
// the unique open-proposal index.
type mockProposalStore struct {
	proposals map[uuid.UUID]*domain.StrategyChangeProposal
	createErr error
}

func newMockProposalStore() *mockProposalStore {
	return &mockProposalStore{proposals: make(map[uuid.UUID]*domain.StrategyChangeProposal)}
}

func openProposal(status domain.ProposalStatus) bool {
	switch status {
	case domain.ProposalPending, domain.ProposalApproved, domain.ProposalInProgress:
		return true
	}
	return false
}

func (m *mockProposalStore) Create(ctx context.Context, p *domain.StrategyChangeProposal) error {
	if m.createErr != nil {
		err := m.createErr
		m.createErr = nil
		return err
	}
	for _, existing := range m.proposals {
		if existing.ScopeType == p.ScopeType && existing.ScopeID == p.ScopeID && openProposal(existing.Status) {
			return store.ErrConflict
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	cp := *p
	m.proposals[p.ID] = &cp
	return nil
}

func (m *mockProposalStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.StrategyChangeProposal, error) {
	p, ok := m.proposals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProposalStore) ListPending(ctx context.Context, tenantID uuid.UUID) ([]domain.StrategyChangeProposal, error) {
	var out []domain.StrategyChangeProposal
	for _, p := range m.proposals {
		if p.TenantID == tenantID && p.Status == domain.ProposalPending {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProposalStore) ListInProgress(ctx context.Context) ([]domain.StrategyChangeProposal, error) {
	var out []domain.StrategyChangeProposal
	for _, p := range m.proposals {
		if p.Status == domain.ProposalInProgress {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProposalStore) HasOpenForScope(ctx context.Context, scopeType domain.StrategyScopeType, scopeID string) (bool, error) {
	for _, p := range m.proposals {
		if p.ScopeType == scopeType && p.ScopeID == scopeID && openProposal(p.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockProposalStore) Transition(ctx context.Context, id uuid.UUID, from, to domain.ProposalStatus) error {
	p, ok := m.proposals[id]
	if !ok {
		return store.ErrNotFound
	}
	if p.Status != from {
		return store.ErrConflict
	}
	p.Status = to
	now := time.Now()
	p.DecidedAt = &now
	return nil
}

func (m *mockProposalStore) SetCompletedAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	p, ok := m.proposals[id]
	if !ok {
		return store.ErrNotFound
	}
	p.CompletedAt = &at
	return nil
}

// mockStepStore implements domain.RestructureStepStore for testing.
type mockStepStore struct {
	steps map[uuid.UUID]map[int]*domain.RestructureStep
}

func newMockStepStore() *mockStepStore {
	return &mockStepStore{steps: make(map[uuid.UUID]map[int]*domain.RestructureStep)}
}

func (m *mockStepStore) Create(ctx context.Context, s *domain.RestructureStep) error {
	byIndex, ok := m.steps[s.ProposalID]
	if !ok {
		byIndex = make(map[int]*domain.RestructureStep)
		m.steps[s.ProposalID] = byIndex
	}
	if _, exists := byIndex[s.StepIndex]; exists {
		return store.ErrConflict
	}
	s.ID = uuid.New()
	cp := *s
	byIndex[s.StepIndex] = &cp
	return nil
}

func (m *mockStepStore) ListByProposal(ctx context.Context, proposalID uuid.UUID) ([]domain.RestructureStep, error) {
	byIndex, ok := m.steps[proposalID]
	if !ok {
		return nil, nil
	}
	var out []domain.RestructureStep
	for _, s := range byIndex {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepIndex < out[j].StepIndex })
	return out, nil
}

func (m *mockStepStore) SetStatus(ctx context.Context, proposalID uuid.UUID, stepIndex int, status domain.StepStatus) error {
	byIndex, ok := m.steps[proposalID]
	if !ok {
		return store.ErrNotFound
	}
	s, ok := byIndex[stepIndex]
	if !ok {
		return store.ErrNotFound
	}
	s.Status = status
	return nil
}

func (m *mockStepStore) SetPayload(ctx context.Context, proposalID uuid.UUID, stepIndex int, payload map[string]any) error {
	byIndex, ok := m.steps[proposalID]
	if !ok {
		return store.ErrNotFound
	}
	s, ok := byIndex[stepIndex]
	if !ok {
		return store.ErrNotFound
	}
	s.Payload = payload
	return nil
}

// mockOutboxStore implements domain.OutboxStore for testing.
type mockOutboxStore struct {
	enqueued []domain.OutboxEvent
}

func newMockOutboxStore() *mockOutboxStore {
	return &mockOutboxStore{}
}

func (m *mockOutboxStore) Enqueue(ctx context.Context, e *domain.OutboxEvent) error {
	e.Status = domain.OutboxPending
	if e.MaxAttempts == 0 {
		e.MaxAttempts = 3
	}
	m.enqueued = append(m.enqueued, *e)
	return nil
}

func (m *mockOutboxStore) Dequeue(ctx context.Context, types []domain.KernelEventType, limit int) ([]domain.OutboxEvent, error) {
	return nil, nil
}

func (m *mockOutboxStore) MarkComplete(ctx context.Context, eventID uuid.UUID) error  { return nil }
func (m *mockOutboxStore) MarkFailed(ctx context.Context, eventID uuid.UUID, errMsg string) error {
	return nil
}
func (m *mockOutboxStore) PendingCount(ctx context.Context, types []domain.KernelEventType) (int, error) {
	return len(m.enqueued), nil
}
func (m *mockOutboxStore) FailedEvents(ctx context.Context, tenantID *uuid.UUID, limit int) ([]domain.OutboxEvent, error) {
	return nil, nil
}
func (m *mockOutboxStore) RetryFailed(ctx context.Context, eventID uuid.UUID) error { return nil }

// newTestRecorder wires an EventRecorder over fresh mock stores.
func newTestRecorder() (*EventRecorder, *mockEventStore, *mockOutboxStore) {
	events := newMockEventStore()
	outbox := newMockOutboxStore()
	return NewEventRecorder(events, outbox, testLogger()), events, outbox
}

// activeTenantStrategy seeds an active tenant-scope strategy and returns
// it alongside a resolver backed by the same store.
func activeTenantStrategy(t *testing.T, strategies *mockStrategyStore, tenantID uuid.UUID) *domain.MemoryStrategy {
	t.Helper()
	s := domain.DefaultStrategy()
	s.ScopeType = domain.ScopeTenant
	s.ScopeID = tenantID.String()
	if err := strategies.Create(context.Background(), s); err != nil {
		t.Fatalf("seed strategy: %v", err)
	}
	if err := strategies.Activate(context.Background(), s.ID); err != nil {
		t.Fatalf("activate strategy: %v", err)
	}
	s.Status = domain.StrategyActive
	return s
}
