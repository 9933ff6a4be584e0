package store

import (
	"context"
	"errors"

	"github.com/cogmem/kos/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EntityStore struct {
	db *pgxpool.Pool
}

func NewEntityStore(db *pgxpool.Pool) *EntityStore {
	return &EntityStore{db: db}
}

func (s *EntityStore) UpsertByName(ctx context.Context, e *domain.Entity) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO entities (tenant_id, name, entity_type)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id, name, entity_type) DO UPDATE SET updated_at = NOW()
		 RETURNING id, archived, created_at, updated_at`,
		e.TenantID, e.Name, e.EntityType,
	).Scan(&e.ID, &e.Archived, &e.CreatedAt, &e.UpdatedAt)
}

func (s *EntityStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Entity, error) {
	e := &domain.Entity{}
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, entity_type, archived, created_at, updated_at
		 FROM entities WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&e.ID, &e.TenantID, &e.Name, &e.EntityType, &e.Archived, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *EntityStore) ListLowValue(ctx context.Context, tenantID uuid.UUID, confidenceFloor float32) ([]domain.Entity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT e.id, e.tenant_id, e.name, e.entity_type, e.archived, e.created_at, e.updated_at
		 FROM entities e
		 WHERE e.tenant_id = $1 AND NOT e.archived
		   AND NOT EXISTS (
		     SELECT 1 FROM claims c
		     WHERE c.subject_entity_id = e.id
		       AND c.merged_into IS NULL
		       AND c.confidence >= $2
		   )`,
		tenantID, confidenceFloor,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		var e domain.Entity
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Name, &e.EntityType, &e.Archived, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *EntityStore) SetArchived(ctx context.Context, ids []uuid.UUID, archived bool) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`UPDATE entities SET archived = $1, updated_at = NOW() WHERE id = ANY($2)`,
		archived, ids,
	)
	return err
}
