package worker

import (
	"context"
	"fmt"

	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/service"
	"github.com/google/uuid"
)

// ExtractionHandler feeds passage_extracted events into claim
// extraction.
func ExtractionHandler(svc *service.ExtractionService) HandlerFunc {
	return func(ctx context.Context, e *domain.OutboxEvent) error {
		passageID, err := payloadUUID(e.Payload, "passage_id")
		if err != nil {
			return err
		}
		return svc.ExtractFromPassage(ctx, e.TenantID, passageID)
	}
}

// ConflictHandler feeds claim_accepted events into conflict detection.
func ConflictHandler(svc *service.ConflictService) HandlerFunc {
	return func(ctx context.Context, e *domain.OutboxEvent) error {
		claimID, err := payloadUUID(e.Payload, "claim_id")
		if err != nil {
			return err
		}
		return svc.DetectForClaim(ctx, e.TenantID, claimID)
	}
}

func payloadUUID(payload map[string]any, key string) (uuid.UUID, error) {
	raw, ok := payload[key].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("payload missing %s", key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("payload %s: %w", key, err)
	}
	return id, nil
}
