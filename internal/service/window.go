package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cogmem/kos/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultWindowMonitorInterval = 15 * time.Minute

	// Minimum outcomes inside the window before a regression verdict.
	minWindowSample = 10

	// The proposed strategy is reverted when its failure rate or
	// average latency exceeds the baseline by more than this margin.
	regressionMargin = 0.10
)

// WindowMonitor watches proposals whose restructure has been applied
// and is sitting in its evaluation window. A strategy that regresses
// against the baseline gets rolled back automatically; one that
// survives the window closes out as completed.
type WindowMonitor struct {
	proposals  domain.ProposalStore
	outcomes   domain.OutcomeStore
	executor   *ExecutorService
	strategies *StrategyService
	recorder   *EventRecorder
	logger     *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewWindowMonitor(
	proposals domain.ProposalStore,
	outcomes domain.OutcomeStore,
	executor *ExecutorService,
	strategies *StrategyService,
	recorder *EventRecorder,
	logger *zap.Logger,
) *WindowMonitor {
	return &WindowMonitor{
		proposals:  proposals,
		outcomes:   outcomes,
		executor:   executor,
		strategies: strategies,
		recorder:   recorder,
		logger:     logger,
		interval:   defaultWindowMonitorInterval,
		stopCh:     make(chan struct{}),
	}
}

func (m *WindowMonitor) SetInterval(d time.Duration) {
	m.interval = d
}

func (m *WindowMonitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.logger.Info("evaluation window monitor started", zap.Duration("interval", m.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if err := m.RunOnce(ctx); err != nil {
					m.logger.Error("window monitor run failed", zap.Error(err))
				}
				cancel()
			case <-m.stopCh:
				m.logger.Info("evaluation window monitor stopped")
				return
			}
		}
	}()
}

func (m *WindowMonitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *WindowMonitor) RunOnce(ctx context.Context) error {
	open, err := m.proposals.ListInProgress(ctx)
	if err != nil {
		return fmt.Errorf("list in-progress proposals: %w", err)
	}

	for i := range open {
		if err := m.CheckProposal(ctx, &open[i]); err != nil {
			m.logger.Warn("window check failed",
				zap.String("proposal_id", open[i].ID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// CheckProposal evaluates one in-progress proposal: mid-window it looks
// for a regression, and at window end it closes the proposal out.
func (m *WindowMonitor) CheckProposal(ctx context.Context, p *domain.StrategyChangeProposal) error {
	start := p.CreatedAt
	if p.DecidedAt != nil {
		start = *p.DecidedAt
	}
	window := time.Duration(p.EvaluationWindowHours) * time.Hour
	now := time.Now()

	regressed, detail, err := m.regressed(ctx, p, start, now)
	if err != nil {
		return err
	}

	if regressed {
		return m.revert(ctx, p, detail)
	}

	if now.Before(start.Add(window)) {
		return nil
	}
	return m.complete(ctx, p)
}

// regressed compares the proposed strategy's windowed failure rate and
// average latency against the base strategy's over the same-length
// window before the change. No verdict without enough data on both
// sides.
func (m *WindowMonitor) regressed(ctx context.Context, p *domain.StrategyChangeProposal, start, now time.Time) (bool, string, error) {
	window := time.Duration(p.EvaluationWindowHours) * time.Hour

	current, err := m.outcomes.StatsByStrategy(ctx, p.ProposedStrategyID, start, now)
	if err != nil {
		return false, "", fmt.Errorf("proposed strategy stats: %w", err)
	}
	if current.Total < minWindowSample {
		return false, "", nil
	}

	baseline, err := m.outcomes.StatsByStrategy(ctx, p.BaseStrategyID, start.Add(-window), start)
	if err != nil {
		return false, "", fmt.Errorf("baseline stats: %w", err)
	}
	if baseline.Total < minWindowSample {
		return false, "", nil
	}

	if current.FailureRate() > baseline.FailureRate()+regressionMargin {
		detail := fmt.Sprintf("failure rate %.0f%% vs baseline %.0f%%",
			current.FailureRate()*100, baseline.FailureRate()*100)
		return true, detail, nil
	}
	if baseline.AvgLatencyMs > 0 && current.AvgLatencyMs > baseline.AvgLatencyMs*(1+regressionMargin) {
		detail := fmt.Sprintf("avg latency %.0fms vs baseline %.0fms",
			current.AvgLatencyMs, baseline.AvgLatencyMs)
		return true, detail, nil
	}
	return false, "", nil
}

func (m *WindowMonitor) revert(ctx context.Context, p *domain.StrategyChangeProposal, detail string) error {
	m.logger.Warn("proposed strategy regressed, rolling back",
		zap.String("proposal_id", p.ID.String()),
		zap.String("detail", detail))

	if err := m.executor.Rollback(ctx, p); err != nil {
		return fmt.Errorf("rollback proposal: %w", err)
	}
	if err := m.proposals.Transition(ctx, p.ID, domain.ProposalInProgress, domain.ProposalRolledBack); err != nil {
		return fmt.Errorf("mark proposal rolled back: %w", err)
	}
	if err := m.proposals.SetCompletedAt(ctx, p.ID, time.Now()); err != nil {
		return fmt.Errorf("stamp proposal: %w", err)
	}

	return m.recorder.Record(ctx, &domain.KernelEvent{
		TenantID:  p.TenantID,
		EventType: domain.EventRestructureRolledBack,
		Payload: map[string]any{
			"proposal_id": p.ID.String(),
			"reason":      detail,
		},
	})
}

func (m *WindowMonitor) complete(ctx context.Context, p *domain.StrategyChangeProposal) error {
	if err := m.proposals.Transition(ctx, p.ID, domain.ProposalInProgress, domain.ProposalCompleted); err != nil {
		return fmt.Errorf("mark proposal completed: %w", err)
	}
	if err := m.proposals.SetCompletedAt(ctx, p.ID, time.Now()); err != nil {
		return fmt.Errorf("stamp proposal: %w", err)
	}

	m.logger.Info("restructure completed",
		zap.String("proposal_id", p.ID.String()))

	return m.recorder.Record(ctx, &domain.KernelEvent{
		TenantID:  p.TenantID,
		EventType: domain.EventRestructureCompleted,
		Payload: map[string]any{
			"proposal_id":          p.ID.String(),
			"proposed_strategy_id": p.ProposedStrategyID.String(),
		},
	})
}
