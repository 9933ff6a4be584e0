package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cogmem/kos/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type KernelEventStore struct {
	db *pgxpool.Pool
}

func NewKernelEventStore(db *pgxpool.Pool) *KernelEventStore {
	return &KernelEventStore{db: db}
}

func (s *KernelEventStore) Append(ctx context.Context, e *domain.KernelEvent) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO kernel_events (tenant_id, event_type, payload, source_event_id, correlation_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		e.TenantID, e.EventType, e.Payload, e.SourceEventID, e.CorrelationID,
	).Scan(&e.ID, &e.CreatedAt)
}

func (s *KernelEventStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, types []domain.KernelEventType, limit int) ([]domain.KernelEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	var conditions []string
	var args []any

	conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", len(args)+1))
	args = append(args, tenantID)

	if len(types) > 0 {
		strs := make([]string, len(types))
		for i, t := range types {
			strs[i] = string(t)
		}
		conditions = append(conditions, fmt.Sprintf("event_type = ANY($%d)", len(args)+1))
		args = append(args, strs)
	}

	args = append(args, limit)
	query := fmt.Sprintf(
		`SELECT id, tenant_id, event_type, payload, source_event_id, correlation_id, created_at
		 FROM kernel_events
		 WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d`,
		strings.Join(conditions, " AND "), len(args),
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list kernel events: %w", err)
	}
	defer rows.Close()

	var events []domain.KernelEvent
	for rows.Next() {
		var e domain.KernelEvent
		if err := rows.Scan(&e.ID, &e.TenantID, &e.EventType, &e.Payload, &e.SourceEventID, &e.CorrelationID, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *KernelEventStore) CountByTypeSince(ctx context.Context, tenantID uuid.UUID, eventType domain.KernelEventType, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM kernel_events
		 WHERE tenant_id = $1 AND event_type = $2 AND created_at >= $3`,
		tenantID, eventType, since,
	).Scan(&count)
	return count, err
}
