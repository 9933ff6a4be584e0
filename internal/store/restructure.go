package store

import (
	"context"

	"github.com/cogmem/kos/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RestructureStepStore struct {
	db *pgxpool.Pool
}

func NewRestructureStepStore(db *pgxpool.Pool) *RestructureStepStore {
	return &RestructureStepStore{db: db}
}

func (s *RestructureStepStore) Create(ctx context.Context, step *domain.RestructureStep) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO restructure_steps (proposal_id, step_index, action, status, payload)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		step.ProposalID, step.StepIndex, step.Action, step.Status, step.Payload,
	).Scan(&step.ID, &step.CreatedAt, &step.UpdatedAt)
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *RestructureStepStore) ListByProposal(ctx context.Context, proposalID uuid.UUID) ([]domain.RestructureStep, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, proposal_id, step_index, action, status, payload, created_at, updated_at
		 FROM restructure_steps WHERE proposal_id = $1
		 ORDER BY step_index ASC`,
		proposalID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []domain.RestructureStep
	for rows.Next() {
		var step domain.RestructureStep
		if err := rows.Scan(&step.ID, &step.ProposalID, &step.StepIndex, &step.Action, &step.Status, &step.Payload, &step.CreatedAt, &step.UpdatedAt); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (s *RestructureStepStore) SetPayload(ctx context.Context, proposalID uuid.UUID, stepIndex int, payload map[string]any) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE restructure_steps SET payload = $1, updated_at = NOW()
		 WHERE proposal_id = $2 AND step_index = $3`,
		payload, proposalID, stepIndex,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RestructureStepStore) SetStatus(ctx context.Context, proposalID uuid.UUID, stepIndex int, status domain.StepStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE restructure_steps SET status = $1, updated_at = NOW()
		 WHERE proposal_id = $2 AND step_index = $3`,
		status, proposalID, stepIndex,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
