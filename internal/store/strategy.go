package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/cogmem/kos/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type StrategyStore struct {
	db *pgxpool.Pool
}

func NewStrategyStore(db *pgxpool.Pool) *StrategyStore {
	return &StrategyStore{db: db}
}

const strategyColumns = `id, scope_type, scope_id, version, status, retrieval_policy, document_policy, vector_policy, graph_policy, claim_policy, artifact_policy, created_by, rationale, created_at, updated_at`

func (s *StrategyStore) Create(ctx context.Context, m *domain.MemoryStrategy) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO memory_strategies (scope_type, scope_id, version, status, retrieval_policy, document_policy, vector_policy, graph_policy, claim_policy, artifact_policy, created_by, rationale)
		 VALUES ($1, $2,
		         COALESCE((SELECT MAX(version) FROM memory_strategies WHERE scope_type = $1 AND scope_id = $2), 0) + 1,
		         $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, version, created_at, updated_at`,
		m.ScopeType, m.ScopeID, m.Status,
		m.RetrievalPolicy, m.DocumentPolicy, m.VectorPolicy, m.GraphPolicy, m.ClaimPolicy, m.ArtifactPolicy,
		m.CreatedBy, m.Rationale,
	).Scan(&m.ID, &m.Version, &m.CreatedAt, &m.UpdatedAt)
}

func (s *StrategyStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.MemoryStrategy, error) {
	m := &domain.MemoryStrategy{}
	err := s.db.QueryRow(ctx,
		`SELECT `+strategyColumns+` FROM memory_strategies WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.ScopeType, &m.ScopeID, &m.Version, &m.Status, &m.RetrievalPolicy, &m.DocumentPolicy, &m.VectorPolicy, &m.GraphPolicy, &m.ClaimPolicy, &m.ArtifactPolicy, &m.CreatedBy, &m.Rationale, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *StrategyStore) GetActive(ctx context.Context, scopeType domain.StrategyScopeType, scopeID string) (*domain.MemoryStrategy, error) {
	m := &domain.MemoryStrategy{}
	err := s.db.QueryRow(ctx,
		`SELECT `+strategyColumns+` FROM memory_strategies
		 WHERE scope_type = $1 AND scope_id = $2 AND status = 'active'`,
		scopeType, scopeID,
	).Scan(&m.ID, &m.ScopeType, &m.ScopeID, &m.Version, &m.Status, &m.RetrievalPolicy, &m.DocumentPolicy, &m.VectorPolicy, &m.GraphPolicy, &m.ClaimPolicy, &m.ArtifactPolicy, &m.CreatedBy, &m.Rationale, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *StrategyStore) ListByScope(ctx context.Context, scopeType domain.StrategyScopeType, scopeID string, includeDeprecated bool) ([]domain.MemoryStrategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM memory_strategies
	 WHERE scope_type = $1 AND scope_id = $2`
	if !includeDeprecated {
		query += ` AND status <> 'deprecated'`
	}
	query += ` ORDER BY version DESC`

	rows, err := s.db.Query(ctx, query, scopeType, scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrategies(rows)
}

func (s *StrategyStore) ListActive(ctx context.Context) ([]domain.MemoryStrategy, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+strategyColumns+` FROM memory_strategies
		 WHERE status = 'active'
		 ORDER BY scope_type, scope_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrategies(rows)
}

// Activate deprecates the scope's current active strategy and activates
// this one in a single transaction. The partial unique index on
// (scope_type, scope_id) WHERE status='active' is the backstop: two
// racing activations cannot both commit an active row.
func (s *StrategyStore) Activate(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var scopeType domain.StrategyScopeType
	var scopeID string
	err = tx.QueryRow(ctx,
		`SELECT scope_type, scope_id FROM memory_strategies WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&scopeType, &scopeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE memory_strategies SET status = 'deprecated', updated_at = NOW()
		 WHERE scope_type = $1 AND scope_id = $2 AND status = 'active' AND id <> $3`,
		scopeType, scopeID, id,
	); err != nil {
		return fmt.Errorf("deprecate active strategy: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE memory_strategies SET status = 'active', updated_at = NOW() WHERE id = $1`,
		id,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("activate strategy: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *StrategyStore) DeleteExperimental(ctx context.Context, id uuid.UUID) error {
	ct, err := s.db.Exec(ctx,
		`DELETE FROM memory_strategies WHERE id = $1 AND status = 'experimental'`,
		id,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanStrategies(rows pgx.Rows) ([]domain.MemoryStrategy, error) {
	var strategies []domain.MemoryStrategy
	for rows.Next() {
		var m domain.MemoryStrategy
		if err := rows.Scan(&m.ID, &m.ScopeType, &m.ScopeID, &m.Version, &m.Status, &m.RetrievalPolicy, &m.DocumentPolicy, &m.VectorPolicy, &m.GraphPolicy, &m.ClaimPolicy, &m.ArtifactPolicy, &m.CreatedBy, &m.Rationale, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		strategies = append(strategies, m)
	}
	return strategies, rows.Err()
}
