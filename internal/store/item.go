package store

import (
	"context"
	"errors"

	"github.com/cogmem/kos/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ItemStore struct {
	db *pgxpool.Pool
}

func NewItemStore(db *pgxpool.Pool) *ItemStore {
	return &ItemStore{db: db}
}

func (s *ItemStore) Create(ctx context.Context, i *domain.Item) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO items (tenant_id, source_type, source_ref, content_hash, title, content, status, reject_reason, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		i.TenantID, i.SourceType, i.SourceRef, i.ContentHash, i.Title, i.Content, i.Status, i.RejectReason, i.Metadata,
	).Scan(&i.ID, &i.CreatedAt, &i.UpdatedAt)
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *ItemStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Item, error) {
	i := &domain.Item{}
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, source_type, source_ref, content_hash, title, content, status, reject_reason, metadata, created_at, updated_at
		 FROM items WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&i.ID, &i.TenantID, &i.SourceType, &i.SourceRef, &i.ContentHash, &i.Title, &i.Content, &i.Status, &i.RejectReason, &i.Metadata, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return i, nil
}

func (s *ItemStore) GetByContentHash(ctx context.Context, tenantID uuid.UUID, hash string) (*domain.Item, error) {
	i := &domain.Item{}
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, source_type, source_ref, content_hash, title, content, status, reject_reason, metadata, created_at, updated_at
		 FROM items WHERE tenant_id = $1 AND content_hash = $2`,
		tenantID, hash,
	).Scan(&i.ID, &i.TenantID, &i.SourceType, &i.SourceRef, &i.ContentHash, &i.Title, &i.Content, &i.Status, &i.RejectReason, &i.Metadata, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return i, nil
}

func (s *ItemStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.Item, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, source_type, source_ref, content_hash, title, content, status, reject_reason, metadata, created_at, updated_at
		 FROM items WHERE tenant_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2 OFFSET $3`,
		tenantID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var i domain.Item
		if err := rows.Scan(&i.ID, &i.TenantID, &i.SourceType, &i.SourceRef, &i.ContentHash, &i.Title, &i.Content, &i.Status, &i.RejectReason, &i.Metadata, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (s *ItemStore) Touch(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE items SET updated_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
