package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/cogmem/kos/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

type PassageStore struct {
	db *pgxpool.Pool
}

func NewPassageStore(db *pgxpool.Pool) *PassageStore {
	return &PassageStore{db: db}
}

func (s *PassageStore) Create(ctx context.Context, p *domain.Passage) error {
	var embedding *pgvector.Vector
	if len(p.Embedding) > 0 {
		v := pgvector.NewVector(p.Embedding)
		embedding = &v
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO passages (item_id, tenant_id, seq, content, embedding)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		p.ItemID, p.TenantID, p.Seq, p.Content, embedding,
	).Scan(&p.ID, &p.CreatedAt)
}

func (s *PassageStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Passage, error) {
	p := &domain.Passage{}
	err := s.db.QueryRow(ctx,
		`SELECT id, item_id, tenant_id, seq, content, created_at
		 FROM passages WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&p.ID, &p.ItemID, &p.TenantID, &p.Seq, &p.Content, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *PassageStore) GetByItem(ctx context.Context, itemID uuid.UUID, tenantID uuid.UUID) ([]domain.Passage, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, item_id, tenant_id, seq, content, created_at
		 FROM passages WHERE item_id = $1 AND tenant_id = $2
		 ORDER BY seq ASC`,
		itemID, tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPassages(rows)
}

func (s *PassageStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.Passage, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, item_id, tenant_id, seq, content, created_at
		 FROM passages WHERE tenant_id = $1
		 ORDER BY created_at ASC, seq ASC
		 LIMIT $2 OFFSET $3`,
		tenantID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPassages(rows)
}

func (s *PassageStore) UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	tag, err := s.db.Exec(ctx,
		`UPDATE passages SET embedding = $1 WHERE id = $2`,
		vec, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceForItem deletes and re-inserts an item's passages in one
// transaction so a partially applied rechunk can never be observed.
func (s *PassageStore) ReplaceForItem(ctx context.Context, itemID uuid.UUID, tenantID uuid.UUID, passages []domain.Passage) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM passages WHERE item_id = $1 AND tenant_id = $2`,
		itemID, tenantID,
	); err != nil {
		return fmt.Errorf("clear passages: %w", err)
	}

	for i := range passages {
		p := &passages[i]
		var embedding *pgvector.Vector
		if len(p.Embedding) > 0 {
			v := pgvector.NewVector(p.Embedding)
			embedding = &v
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO passages (item_id, tenant_id, seq, content, embedding)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, created_at`,
			itemID, tenantID, p.Seq, p.Content, embedding,
		).Scan(&p.ID, &p.CreatedAt); err != nil {
			return fmt.Errorf("insert passage %d: %w", p.Seq, err)
		}
	}

	return tx.Commit(ctx)
}

func scanPassages(rows pgx.Rows) ([]domain.Passage, error) {
	var passages []domain.Passage
	for rows.Next() {
		var p domain.Passage
		if err := rows.Scan(&p.ID, &p.ItemID, &p.TenantID, &p.Seq, &p.Content, &p.CreatedAt); err != nil {
			return nil, err
		}
		passages = append(passages, p)
	}
	return passages, rows.Err()
}
