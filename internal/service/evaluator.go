package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultEvaluatorInterval = 6 * time.Hour
	defaultOutcomeWindow     = 7 * 24 * time.Hour

	// No proposal is generated below this sample size; the window is
	// too thin to mean anything.
	minOutcomeSample = 20

	failureRateThreshold     = 0.30
	latencyThresholdMs       = 2000
	conflictDensityThreshold = 0.50

	defaultEvaluationWindowHours = 72

	evaluatorConcurrency = 4
)

// EvaluatorService periodically reviews every active strategy against
// its windowed outcomes and, when a threshold trips, drafts an
// experimental variant plus a change proposal. It never executes
// anything: strategy state only changes through an approved proposal.
// At most one proposal per scope can be open, so a busy scope simply
// skips the cycle.
type EvaluatorService struct {
	strategies domain.StrategyStore
	outcomes   domain.OutcomeStore
	claims     domain.ClaimStore
	proposals  domain.ProposalStore
	recorder   *EventRecorder
	logger     *zap.Logger

	interval time.Duration
	window   time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// One mutex per scope: scheduled passes and admin-triggered runs
	// must never evaluate the same scope concurrently.
	scopeLocks sync.Map
}

func NewEvaluatorService(
	strategies domain.StrategyStore,
	outcomes domain.OutcomeStore,
	claims domain.ClaimStore,
	proposals domain.ProposalStore,
	recorder *EventRecorder,
	logger *zap.Logger,
) *EvaluatorService {
	return &EvaluatorService{
		strategies: strategies,
		outcomes:   outcomes,
		claims:     claims,
		proposals:  proposals,
		recorder:   recorder,
		logger:     logger,
		interval:   defaultEvaluatorInterval,
		window:     defaultOutcomeWindow,
		stopCh:     make(chan struct{}),
	}
}

func (s *EvaluatorService) SetInterval(d time.Duration) {
	s.interval = d
}

func (s *EvaluatorService) SetWindow(d time.Duration) {
	s.window = d
}

func (s *EvaluatorService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("strategy evaluator started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if err := s.RunOnce(ctx); err != nil {
					s.logger.Error("evaluator run failed", zap.Error(err))
				}
				cancel()
			case <-s.stopCh:
				s.logger.Info("strategy evaluator stopped")
				return
			}
		}
	}()
}

func (s *EvaluatorService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunOnce evaluates all active strategies concurrently.
func (s *EvaluatorService) RunOnce(ctx context.Context) error {
	active, err := s.strategies.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active strategies: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(evaluatorConcurrency)
	for i := range active {
		strategy := active[i]
		g.Go(func() error {
			if err := s.EvaluateStrategy(ctx, &strategy); err != nil {
				s.logger.Warn("strategy evaluation failed",
					zap.String("strategy_id", strategy.ID.String()),
					zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

// EvaluateStrategy reviews one strategy's window and proposes a change
// when warranted. It always logs strategy_evaluated, even when nothing
// trips, so the review itself is auditable.
func (s *EvaluatorService) EvaluateStrategy(ctx context.Context, strategy *domain.MemoryStrategy) error {
	lock, _ := s.scopeLocks.LoadOrStore(strategy.Scope(), &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now()
	since := now.Add(-s.window)

	stats, err := s.outcomes.StatsByStrategy(ctx, strategy.ID, since, now)
	if err != nil {
		return fmt.Errorf("outcome stats: %w", err)
	}

	tenantID := tenantForScope(strategy)
	var conflictDensity float64
	if tenantID != uuid.Nil {
		cs, err := s.claims.ConflictStats(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("conflict stats: %w", err)
		}
		conflictDensity = cs.Density()
	}

	if err := s.recorder.Record(ctx, &domain.KernelEvent{
		TenantID:  tenantID,
		EventType: domain.EventStrategyEvaluated,
		Payload: map[string]any{
			"strategy_id":      strategy.ID.String(),
			"scope_type":       string(strategy.ScopeType),
			"scope_id":         strategy.ScopeID,
			"total_outcomes":   stats.Total,
			"failure_rate":     stats.FailureRate(),
			"avg_latency_ms":   stats.AvgLatencyMs,
			"conflict_density": conflictDensity,
		},
	}); err != nil {
		return err
	}

	if stats.Total < minOutcomeSample {
		return nil
	}

	proposed, summary, benefit, risk := diagnose(strategy, stats, conflictDensity)
	if proposed == nil {
		return nil
	}

	open, err := s.proposals.HasOpenForScope(ctx, strategy.ScopeType, strategy.ScopeID)
	if err != nil {
		return fmt.Errorf("check open proposals: %w", err)
	}
	if open {
		s.logger.Debug("scope already has an open proposal",
			zap.String("scope_type", string(strategy.ScopeType)),
			zap.String("scope_id", strategy.ScopeID))
		return nil
	}

	proposed.Status = domain.StrategyExperimental
	proposed.CreatedBy = domain.CreatorAgent
	if err := s.strategies.Create(ctx, proposed); err != nil {
		return fmt.Errorf("create experimental strategy: %w", err)
	}
	if err := s.recorder.Record(ctx, &domain.KernelEvent{
		TenantID:  tenantID,
		EventType: domain.EventStrategyCreated,
		Payload: map[string]any{
			"strategy_id": proposed.ID.String(),
			"scope_type":  string(proposed.ScopeType),
			"scope_id":    proposed.ScopeID,
			"version":     proposed.Version,
			"created_by":  string(proposed.CreatedBy),
		},
	}); err != nil {
		return err
	}

	proposal := &domain.StrategyChangeProposal{
		TenantID:              tenantID,
		ScopeType:             strategy.ScopeType,
		ScopeID:               strategy.ScopeID,
		BaseStrategyID:        strategy.ID,
		ProposedStrategyID:    proposed.ID,
		ChangeSummary:         summary,
		ExpectedBenefit:       benefit,
		RiskLevel:             risk,
		EvaluationWindowHours: defaultEvaluationWindowHours,
		Status:                domain.ProposalPending,
		TriggerMetrics: map[string]any{
			"total_outcomes":   stats.Total,
			"failure_rate":     stats.FailureRate(),
			"avg_latency_ms":   stats.AvgLatencyMs,
			"conflict_density": conflictDensity,
		},
	}
	if err := s.proposals.Create(ctx, proposal); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another evaluator won the race for this scope; the
			// drafted variant has no proposal referencing it.
			if delErr := s.strategies.DeleteExperimental(ctx, proposed.ID); delErr != nil {
				s.logger.Warn("failed to discard unreferenced variant",
					zap.String("strategy_id", proposed.ID.String()),
					zap.Error(delErr))
			}
			return nil
		}
		return fmt.Errorf("create proposal: %w", err)
	}

	s.logger.Info("change proposal created",
		zap.String("proposal_id", proposal.ID.String()),
		zap.String("scope_type", string(strategy.ScopeType)),
		zap.String("scope_id", strategy.ScopeID),
		zap.String("summary", summary))

	return s.recorder.Record(ctx, &domain.KernelEvent{
		TenantID:  tenantID,
		EventType: domain.EventProposalCreated,
		Payload: map[string]any{
			"proposal_id":          proposal.ID.String(),
			"base_strategy_id":     strategy.ID.String(),
			"proposed_strategy_id": proposed.ID.String(),
			"change_summary":       summary,
			"risk_level":           string(risk),
		},
	})
}

// diagnose maps windowed symptoms to a concrete strategy variant.
// Returns nil when no threshold trips.
func diagnose(base *domain.MemoryStrategy, stats domain.OutcomeStats, conflictDensity float64) (*domain.MemoryStrategy, string, string, domain.RiskLevel) {
	proposed := base.Clone()
	proposed.ID = uuid.Nil
	proposed.Rationale = ""

	var changes []string
	risk := domain.RiskLow

	if rate := stats.FailureRate(); rate >= failureRateThreshold {
		if proposed.RetrievalPolicy.Mode != domain.RetrievalHybrid {
			proposed.RetrievalPolicy.Mode = domain.RetrievalHybrid
			changes = append(changes, "switch retrieval to hybrid")
			risk = domain.RiskMedium
		}
		if proposed.RetrievalPolicy.TopKDefault < 50 {
			proposed.RetrievalPolicy.TopKDefault += 10
			if proposed.RetrievalPolicy.TopKDefault > 50 {
				proposed.RetrievalPolicy.TopKDefault = 50
			}
			changes = append(changes, fmt.Sprintf("raise top_k to %d", proposed.RetrievalPolicy.TopKDefault))
		}
	} else if stats.AvgLatencyMs >= latencyThresholdMs {
		if proposed.RetrievalPolicy.TopKDefault > 5 {
			proposed.RetrievalPolicy.TopKDefault = proposed.RetrievalPolicy.TopKDefault / 2
			if proposed.RetrievalPolicy.TopKDefault < 5 {
				proposed.RetrievalPolicy.TopKDefault = 5
			}
			changes = append(changes, fmt.Sprintf("lower top_k to %d", proposed.RetrievalPolicy.TopKDefault))
		}
		if proposed.RetrievalPolicy.RerankEnabled {
			proposed.RetrievalPolicy.RerankEnabled = false
			changes = append(changes, "disable reranking")
		}
	}

	if conflictDensity >= conflictDensityThreshold && proposed.ClaimPolicy.ConflictThreshold < 0.9 {
		proposed.ClaimPolicy.ConflictThreshold += 0.2
		if proposed.ClaimPolicy.ConflictThreshold > 0.9 {
			proposed.ClaimPolicy.ConflictThreshold = 0.9
		}
		changes = append(changes, fmt.Sprintf("raise conflict threshold to %.1f", proposed.ClaimPolicy.ConflictThreshold))
	}

	if len(changes) == 0 {
		return nil, "", "", risk
	}

	summary := ""
	for i, c := range changes {
		if i > 0 {
			summary += "; "
		}
		summary += c
	}

	benefit := fmt.Sprintf(
		"Observed failure rate %.0f%%, avg latency %.0fms, conflict density %.0f%% over %d outcomes.",
		stats.FailureRate()*100, stats.AvgLatencyMs, conflictDensity*100, stats.Total)

	proposed.Rationale = summary
	return proposed, summary, benefit, risk
}

// tenantForScope returns the tenant a strategy governs, when there is
// exactly one. Conflict density is only meaningful at tenant scope.
func tenantForScope(strategy *domain.MemoryStrategy) uuid.UUID {
	if strategy.ScopeType != domain.ScopeTenant {
		return uuid.Nil
	}
	id, err := uuid.Parse(strategy.ScopeID)
	if err != nil {
		return uuid.Nil
	}
	return id
}
