package store

import (
	"context"
	"errors"
	"time"

	"github.com/cogmem/kos/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProposalStore struct {
	db *pgxpool.Pool
}

func NewProposalStore(db *pgxpool.Pool) *ProposalStore {
	return &ProposalStore{db: db}
}

const proposalColumns = `id, tenant_id, scope_type, scope_id, base_strategy_id, proposed_strategy_id, change_summary, expected_benefit, risk_level, evaluation_window_hours, status, trigger_metrics, created_at, decided_at, completed_at`

// Create relies on a partial unique index over (scope_type, scope_id)
// for open statuses. Two evaluator passes racing on the same scope get
// exactly one proposal; the loser sees ErrConflict.
func (s *ProposalStore) Create(ctx context.Context, p *domain.StrategyChangeProposal) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO strategy_change_proposals (tenant_id, scope_type, scope_id, base_strategy_id, proposed_strategy_id, change_summary, expected_benefit, risk_level, evaluation_window_hours, status, trigger_metrics)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		p.TenantID, p.ScopeType, p.ScopeID, p.BaseStrategyID, p.ProposedStrategyID, p.ChangeSummary, p.ExpectedBenefit, p.RiskLevel, p.EvaluationWindowHours, p.Status, p.TriggerMetrics,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *ProposalStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.StrategyChangeProposal, error) {
	p := &domain.StrategyChangeProposal{}
	err := s.db.QueryRow(ctx,
		`SELECT `+proposalColumns+` FROM strategy_change_proposals WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.TenantID, &p.ScopeType, &p.ScopeID, &p.BaseStrategyID, &p.ProposedStrategyID, &p.ChangeSummary, &p.ExpectedBenefit, &p.RiskLevel, &p.EvaluationWindowHours, &p.Status, &p.TriggerMetrics, &p.CreatedAt, &p.DecidedAt, &p.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *ProposalStore) ListPending(ctx context.Context, tenantID uuid.UUID) ([]domain.StrategyChangeProposal, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+proposalColumns+` FROM strategy_change_proposals
		 WHERE tenant_id = $1 AND status = 'pending'
		 ORDER BY created_at ASC`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProposals(rows)
}

func (s *ProposalStore) ListInProgress(ctx context.Context) ([]domain.StrategyChangeProposal, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+proposalColumns+` FROM strategy_change_proposals
		 WHERE status = 'in_progress'
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProposals(rows)
}

func (s *ProposalStore) HasOpenForScope(ctx context.Context, scopeType domain.StrategyScopeType, scopeID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM strategy_change_proposals
		   WHERE scope_type = $1 AND scope_id = $2
		     AND status IN ('pending', 'approved', 'in_progress')
		 )`,
		scopeType, scopeID,
	).Scan(&exists)
	return exists, err
}

func (s *ProposalStore) Transition(ctx context.Context, id uuid.UUID, from, to domain.ProposalStatus) error {
	decided := ""
	switch to {
	case domain.ProposalApproved, domain.ProposalRejected:
		decided = ", decided_at = NOW()"
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE strategy_change_proposals SET status = $1`+decided+`
		 WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *ProposalStore) SetCompletedAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE strategy_change_proposals SET completed_at = $1 WHERE id = $2`,
		at, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProposals(rows pgx.Rows) ([]domain.StrategyChangeProposal, error) {
	var proposals []domain.StrategyChangeProposal
	for rows.Next() {
		var p domain.StrategyChangeProposal
		if err := rows.Scan(&p.ID, &p.TenantID, &p.ScopeType, &p.ScopeID, &p.BaseStrategyID, &p.ProposedStrategyID, &p.ChangeSummary, &p.ExpectedBenefit, &p.RiskLevel, &p.EvaluationWindowHours, &p.Status, &p.TriggerMetrics, &p.CreatedAt, &p.DecidedAt, &p.CompletedAt); err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}
