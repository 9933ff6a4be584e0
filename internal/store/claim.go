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

type ClaimStore struct {
	db *pgxpool.Pool
}

func NewClaimStore(db *pgxpool.Pool) *ClaimStore {
	return &ClaimStore{db: db}
}

const claimColumns = `id, tenant_id, subject_entity_id, predicate, object, object_entity_id, evidence_passage_ids, source_type, confidence, conflicts_with, reinforcement_count, merged_into, metadata, version, created_at, updated_at`

func (s *ClaimStore) Create(ctx context.Context, c *domain.Claim) error {
	var embedding *pgvector.Vector
	if len(c.Embedding) > 0 {
		v := pgvector.NewVector(c.Embedding)
		embedding = &v
	}
	if c.ReinforcementCount == 0 {
		c.ReinforcementCount = 1
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO claims (tenant_id, subject_entity_id, predicate, object, object_entity_id, evidence_passage_ids, source_type, confidence, reinforcement_count, embedding, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, version, created_at, updated_at`,
		c.TenantID, c.SubjectEntityID, c.Predicate, c.Object, c.ObjectEntityID, c.EvidencePassageIDs, c.SourceType, c.Confidence, c.ReinforcementCount, embedding, c.Metadata,
	).Scan(&c.ID, &c.Version, &c.CreatedAt, &c.UpdatedAt)
}

func (s *ClaimStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Claim, error) {
	c := &domain.Claim{}
	err := s.db.QueryRow(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&c.ID, &c.TenantID, &c.SubjectEntityID, &c.Predicate, &c.Object, &c.ObjectEntityID, &c.EvidencePassageIDs, &c.SourceType, &c.Confidence, &c.ConflictsWith, &c.ReinforcementCount, &c.MergedInto, &c.Metadata, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *ClaimStore) ListByEntity(ctx context.Context, subjectEntityID uuid.UUID, tenantID uuid.UUID) ([]domain.Claim, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+claimColumns+` FROM claims
		 WHERE subject_entity_id = $1 AND tenant_id = $2
		 ORDER BY created_at ASC`,
		subjectEntityID, tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClaims(rows)
}

func (s *ClaimStore) FindBySubjectPredicate(ctx context.Context, tenantID uuid.UUID, subjectEntityID uuid.UUID, predicate string) ([]domain.Claim, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+claimColumns+` FROM claims
		 WHERE tenant_id = $1 AND subject_entity_id = $2 AND predicate = $3 AND merged_into IS NULL
		 ORDER BY created_at ASC`,
		tenantID, subjectEntityID, predicate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClaims(rows)
}

func (s *ClaimStore) FindEquivalent(ctx context.Context, tenantID uuid.UUID, subjectEntityID uuid.UUID, predicate, object string) ([]domain.Claim, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+claimColumns+` FROM claims
		 WHERE tenant_id = $1 AND subject_entity_id = $2 AND predicate = $3 AND object = $4 AND merged_into IS NULL
		 ORDER BY created_at ASC`,
		tenantID, subjectEntityID, predicate, object,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClaims(rows)
}

// LinkConflict inserts the normalized pair row and mirrors the link into
// both claims' conflicts_with arrays. The pair row's primary key makes
// rerunning detection a no-op: the second run inserts nothing and the
// caller emits no event.
func (s *ClaimStore) LinkConflict(ctx context.Context, a, b uuid.UUID) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO claim_conflicts (claim_a, claim_b)
		 VALUES (LEAST($1::uuid, $2::uuid), GREATEST($1::uuid, $2::uuid))
		 ON CONFLICT (claim_a, claim_b) DO NOTHING`,
		a, b,
	)
	if err != nil {
		return false, fmt.Errorf("insert conflict pair: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE claims
		 SET conflicts_with = array_append(conflicts_with, $2), updated_at = NOW()
		 WHERE id = $1 AND NOT ($2 = ANY(conflicts_with))`,
		a, b,
	); err != nil {
		return false, fmt.Errorf("link conflict on claim %s: %w", a, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE claims
		 SET conflicts_with = array_append(conflicts_with, $2), updated_at = NOW()
		 WHERE id = $1 AND NOT ($2 = ANY(conflicts_with))`,
		b, a,
	); err != nil {
		return false, fmt.Errorf("link conflict on claim %s: %w", b, err)
	}

	return true, tx.Commit(ctx)
}

func (s *ClaimStore) UpdateConfidence(ctx context.Context, id uuid.UUID, confidence float32, version int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE claims SET confidence = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND version = $3`,
		confidence, id, version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionMismatch
	}
	return nil
}

func (s *ClaimStore) Reinforce(ctx context.Context, id uuid.UUID, confidence float32, reinforcementCount int, evidence []uuid.UUID, version int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE claims
		 SET confidence = $1,
		     reinforcement_count = $2,
		     evidence_passage_ids = ARRAY(SELECT DISTINCT unnest(evidence_passage_ids || $3::uuid[])),
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $4 AND version = $5`,
		confidence, reinforcementCount, evidence, id, version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionMismatch
	}
	return nil
}

func (s *ClaimStore) SetMergedInto(ctx context.Context, id uuid.UUID, survivorID uuid.UUID, version int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE claims SET merged_into = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND version = $3 AND merged_into IS NULL`,
		survivorID, id, version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionMismatch
	}
	return nil
}

func (s *ClaimStore) AppendEvidence(ctx context.Context, id uuid.UUID, evidence []uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE claims
		 SET evidence_passage_ids = ARRAY(SELECT DISTINCT unnest(evidence_passage_ids || $2::uuid[])),
		     updated_at = NOW()
		 WHERE id = $1`,
		id, evidence,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ClaimStore) ListForDecay(ctx context.Context, tenantID uuid.UUID) ([]domain.Claim, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+claimColumns+` FROM claims
		 WHERE tenant_id = $1 AND merged_into IS NULL`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClaims(rows)
}

func (s *ClaimStore) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT tenant_id FROM claims`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *ClaimStore) ConflictStats(ctx context.Context, tenantID uuid.UUID) (domain.ConflictStats, error) {
	var stats domain.ConflictStats
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE cardinality(conflicts_with) > 0)
		 FROM claims WHERE tenant_id = $1 AND merged_into IS NULL`,
		tenantID,
	).Scan(&stats.TotalClaims, &stats.ConflictedClaims)
	return stats, err
}

func (s *ClaimStore) UpdatePredicate(ctx context.Context, tenantID uuid.UUID, oldPredicate, newPredicate string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE claims SET predicate = $1, updated_at = NOW()
		 WHERE tenant_id = $2 AND predicate = $3`,
		newPredicate, tenantID, oldPredicate,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// WithEntityLock holds a transaction-scoped advisory lock keyed on the
// subject entity for the duration of fn. Two workers operating on the
// same entity serialize here; different entities proceed in parallel.
func (s *ClaimStore) WithEntityLock(ctx context.Context, subjectEntityID uuid.UUID, fn func(ctx context.Context) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`,
		subjectEntityID,
	); err != nil {
		return fmt.Errorf("acquire entity lock: %w", err)
	}

	if err := fn(ctx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanClaims(rows pgx.Rows) ([]domain.Claim, error) {
	var claims []domain.Claim
	for rows.Next() {
		var c domain.Claim
		if err := rows.Scan(&c.ID, &c.TenantID, &c.SubjectEntityID, &c.Predicate, &c.Object, &c.ObjectEntityID, &c.EvidencePassageIDs, &c.SourceType, &c.Confidence, &c.ConflictsWith, &c.ReinforcementCount, &c.MergedInto, &c.Metadata, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}
