package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/cogmem/kos/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OutboxStore struct {
	db *pgxpool.Pool
}

func NewOutboxStore(db *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{db: db}
}

// Enqueue inserts the event keyed by its event_id. Re-enqueueing the
// same id (an at-least-once publisher retrying) is a no-op.
func (s *OutboxStore) Enqueue(ctx context.Context, e *domain.OutboxEvent) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	if e.MaxAttempts == 0 {
		e.MaxAttempts = 3
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO outbox_events (event_id, event_type, tenant_id, payload, status, attempts, max_attempts)
		 VALUES ($1, $2, $3, $4, 'pending', 0, $5)
		 ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.EventType, e.TenantID, e.Payload, e.MaxAttempts,
	)
	return err
}

// Dequeue claims up to limit pending events oldest-first. SKIP LOCKED
// lets concurrent workers drain the queue without contending; claimed
// rows move to processing with their attempt counter bumped.
func (s *OutboxStore) Dequeue(ctx context.Context, types []domain.KernelEventType, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 10
	}

	typeFilter := ""
	args := []any{limit}
	if len(types) > 0 {
		strs := make([]string, len(types))
		for i, t := range types {
			strs[i] = string(t)
		}
		typeFilter = " AND event_type = ANY($2)"
		args = append(args, strs)
	}

	query := fmt.Sprintf(
		`UPDATE outbox_events
		 SET status = 'processing', attempts = attempts + 1
		 WHERE event_id IN (
		   SELECT event_id FROM outbox_events
		   WHERE status = 'pending'%s
		   ORDER BY created_at ASC
		   LIMIT $1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING event_id, event_type, tenant_id, payload, status, attempts, max_attempts, COALESCE(error, ''), created_at, processed_at`,
		typeFilter,
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(&e.EventID, &e.EventType, &e.TenantID, &e.Payload, &e.Status, &e.Attempts, &e.MaxAttempts, &e.Error, &e.CreatedAt, &e.ProcessedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *OutboxStore) MarkComplete(ctx context.Context, eventID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE outbox_events
		 SET status = 'completed', processed_at = NOW(), error = NULL
		 WHERE event_id = $1`,
		eventID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, eventID uuid.UUID, errMsg string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE outbox_events
		 SET error = $2,
		     status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END
		 WHERE event_id = $1`,
		eventID, errMsg,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *OutboxStore) PendingCount(ctx context.Context, types []domain.KernelEventType) (int, error) {
	query := `SELECT COUNT(*) FROM outbox_events WHERE status = 'pending'`
	var args []any
	if len(types) > 0 {
		strs := make([]string, len(types))
		for i, t := range types {
			strs[i] = string(t)
		}
		query += ` AND event_type = ANY($1)`
		args = append(args, strs)
	}

	var count int
	err := s.db.QueryRow(ctx, query, args...).Scan(&count)
	return count, err
}

func (s *OutboxStore) FailedEvents(ctx context.Context, tenantID *uuid.UUID, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	var conditions []string
	var args []any

	conditions = append(conditions, "status = 'failed'")
	if tenantID != nil {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", len(args)+1))
		args = append(args, *tenantID)
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT event_id, event_type, tenant_id, payload, status, attempts, max_attempts, COALESCE(error, ''), created_at, processed_at
		 FROM outbox_events
		 WHERE %s
		 ORDER BY created_at ASC
		 LIMIT $%d`,
		strings.Join(conditions, " AND "), len(args),
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(&e.EventID, &e.EventType, &e.TenantID, &e.Payload, &e.Status, &e.Attempts, &e.MaxAttempts, &e.Error, &e.CreatedAt, &e.ProcessedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *OutboxStore) RetryFailed(ctx context.Context, eventID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE outbox_events
		 SET status = 'pending', attempts = 0, error = NULL
		 WHERE event_id = $1 AND status = 'failed'`,
		eventID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
