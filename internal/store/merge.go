package store

import (
	"context"

	"github.com/cogmem/kos/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MergeStore struct {
	db *pgxpool.Pool
}

func NewMergeStore(db *pgxpool.Pool) *MergeStore {
	return &MergeStore{db: db}
}

func (s *MergeStore) Create(ctx context.Context, m *domain.ClaimMerge) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO claim_merges (survivor_id, superseded_ids, reason)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		m.SurvivorID, m.SupersededID, m.Reason,
	).Scan(&m.ID, &m.CreatedAt)
}

func (s *MergeStore) GetBySurvivor(ctx context.Context, survivorID uuid.UUID) ([]domain.ClaimMerge, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, survivor_id, superseded_ids, reason, created_at
		 FROM claim_merges WHERE survivor_id = $1
		 ORDER BY created_at ASC`,
		survivorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var merges []domain.ClaimMerge
	for rows.Next() {
		var m domain.ClaimMerge
		if err := rows.Scan(&m.ID, &m.SurvivorID, &m.SupersededID, &m.Reason, &m.CreatedAt); err != nil {
			return nil, err
		}
		merges = append(merges, m)
	}
	return merges, rows.Err()
}
