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

type OutcomeStore struct {
	db *pgxpool.Pool
}

func NewOutcomeStore(db *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{db: db}
}

func (s *OutcomeStore) Append(ctx context.Context, o *domain.OutcomeEvent) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO outcome_events (tenant_id, strategy_id, workflow_id, agent_id, outcome_type, source, metrics, context)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		o.TenantID, o.StrategyID, o.WorkflowID, o.AgentID, o.OutcomeType, o.Source, o.Metrics, o.Context,
	).Scan(&o.ID, &o.CreatedAt)
}

func (s *OutcomeStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.OutcomeEvent, error) {
	o := &domain.OutcomeEvent{}
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, strategy_id, workflow_id, agent_id, outcome_type, source, metrics, context, created_at
		 FROM outcome_events WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&o.ID, &o.TenantID, &o.StrategyID, &o.WorkflowID, &o.AgentID, &o.OutcomeType, &o.Source, &o.Metrics, &o.Context, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// StatsByStrategy aggregates the outcome window for one strategy. The
// latency average is taken over outcomes that report a latency_ms metric.
func (s *OutcomeStore) StatsByStrategy(ctx context.Context, strategyID uuid.UUID, since, until time.Time) (domain.OutcomeStats, error) {
	var stats domain.OutcomeStats
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE outcome_type = 'retrieval_failed'),
		        COUNT(*) FILTER (WHERE outcome_type = 'retrieval_satisfied'),
		        COUNT(*) FILTER (WHERE outcome_type = 'user_corrected'),
		        COALESCE(AVG((metrics->>'latency_ms')::float) FILTER (WHERE metrics ? 'latency_ms'), 0)
		 FROM outcome_events
		 WHERE strategy_id = $1 AND created_at >= $2 AND created_at < $3`,
		strategyID, since, until,
	).Scan(&stats.Total, &stats.RetrievalFailed, &stats.RetrievalSatisfied, &stats.UserCorrected, &stats.AvgLatencyMs)
	return stats, err
}

func (s *OutcomeStore) ListByStrategy(ctx context.Context, strategyID uuid.UUID, since time.Time, limit int) ([]domain.OutcomeEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, strategy_id, workflow_id, agent_id, outcome_type, source, metrics, context, created_at
		 FROM outcome_events
		 WHERE strategy_id = $1 AND created_at >= $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		strategyID, since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []domain.OutcomeEvent
	for rows.Next() {
		var o domain.OutcomeEvent
		if err := rows.Scan(&o.ID, &o.TenantID, &o.StrategyID, &o.WorkflowID, &o.AgentID, &o.OutcomeType, &o.Source, &o.Metrics, &o.Context, &o.CreatedAt); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
