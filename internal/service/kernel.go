package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestInput is the raw material handed to the kernel. ProjectID and
// WorkflowID only affect which strategy governs admission and chunking.
type IngestInput struct {
	SourceType string
	SourceRef  string
	Title      string
	Content    string
	Metadata   map[string]any
	ProjectID  string
	WorkflowID string
}

// KernelService is the admission path: it decides whether content
// enters the system, chunks accepted items into passages under the
// governing strategy, and logs every decision. Nothing reaches storage
// without passing through here.
type KernelService struct {
	items    domain.ItemStore
	passages domain.PassageStore
	resolver *StrategyResolver
	embedder domain.EmbeddingClient
	recorder *EventRecorder
	logger   *zap.Logger
}

func NewKernelService(
	items domain.ItemStore,
	passages domain.PassageStore,
	resolver *StrategyResolver,
	embedder domain.EmbeddingClient,
	recorder *EventRecorder,
	logger *zap.Logger,
) *KernelService {
	return &KernelService{
		items:    items,
		passages: passages,
		resolver: resolver,
		embedder: embedder,
		recorder: recorder,
		logger:   logger,
	}
}

// Ingest admits or rejects one piece of content. Idempotent on
// (tenant, content hash): re-ingesting identical content returns the
// existing item with only updated_at bumped, and appends nothing to the
// decision log.
func (s *KernelService) Ingest(ctx context.Context, tenantID uuid.UUID, in IngestInput) (*domain.Item, error) {
	hash := contentHash(in.Content)

	existing, err := s.items.GetByContentHash(ctx, tenantID, hash)
	if err == nil {
		if err := s.items.Touch(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("touch duplicate item: %w", err)
		}
		s.logger.Debug("duplicate ingest",
			zap.String("tenant_id", tenantID.String()),
			zap.String("item_id", existing.ID.String()))
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup content hash: %w", err)
	}

	strategy, err := s.resolver.Resolve(ctx, tenantID, in.ProjectID, in.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("resolve strategy: %w", err)
	}

	item := &domain.Item{
		TenantID:    tenantID,
		SourceType:  in.SourceType,
		SourceRef:   in.SourceRef,
		ContentHash: hash,
		Title:       in.Title,
		Content:     in.Content,
		Metadata:    in.Metadata,
		Status:      domain.ItemAccepted,
	}

	if reason := admissionReason(in, strategy); reason != "" {
		item.Status = domain.ItemRejected
		item.RejectReason = reason
		if err := s.items.Create(ctx, item); err != nil {
			return nil, fmt.Errorf("create rejected item: %w", err)
		}
		if err := s.recorder.Record(ctx, &domain.KernelEvent{
			TenantID:      tenantID,
			EventType:     domain.EventItemRejected,
			CorrelationID: &item.ID,
			Payload: map[string]any{
				"item_id":      item.ID.String(),
				"content_hash": hash,
				"reason":       reason,
			},
		}); err != nil {
			return nil, err
		}
		return item, nil
	}

	if err := s.items.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	chunks := chunkContent(in.Content, strategy.DocumentPolicy)
	for i, chunk := range chunks {
		p := domain.Passage{
			ItemID:   item.ID,
			TenantID: tenantID,
			Seq:      i,
			Content:  chunk,
		}
		if strategy.VectorPolicy.Enabled && s.embedder != nil {
			emb, err := s.embedder.Embed(ctx, chunk)
			if err != nil {
				s.logger.Warn("passage embedding failed",
					zap.String("item_id", item.ID.String()),
					zap.Int("seq", i),
					zap.Error(err))
			} else {
				p.Embedding = emb
			}
		}
		if err := s.passages.Create(ctx, &p); err != nil {
			return nil, fmt.Errorf("create passage %d: %w", i, err)
		}
		if err := s.recorder.Record(ctx, &domain.KernelEvent{
			TenantID:      tenantID,
			EventType:     domain.EventPassageExtracted,
			CorrelationID: &item.ID,
			Payload: map[string]any{
				"passage_id": p.ID.String(),
				"item_id":    item.ID.String(),
				"seq":        i,
			},
		}); err != nil {
			return nil, err
		}
	}

	if err := s.recorder.Record(ctx, &domain.KernelEvent{
		TenantID:      tenantID,
		EventType:     domain.EventItemIngested,
		CorrelationID: &item.ID,
		Payload: map[string]any{
			"item_id":      item.ID.String(),
			"content_hash": hash,
			"source_type":  in.SourceType,
			"passages":     len(chunks),
		},
	}); err != nil {
		return nil, err
	}

	s.logger.Info("item ingested",
		zap.String("tenant_id", tenantID.String()),
		zap.String("item_id", item.ID.String()),
		zap.Int("passages", len(chunks)))

	return item, nil
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// admissionReason returns a non-empty reject reason when the content
// fails the governing strategy's admission rules.
func admissionReason(in IngestInput, strategy *domain.MemoryStrategy) string {
	if strings.TrimSpace(in.Content) == "" {
		return "empty content"
	}
	if in.SourceType == "" {
		return "missing source_type"
	}
	if max := strategy.DocumentPolicy.MaxItemBytes; max > 0 && len(in.Content) > max {
		return fmt.Sprintf("content exceeds %d bytes", max)
	}
	return ""
}

// chunkContent splits content into passages under the document policy.
// Fixed mode cuts by rune count with overlap; paragraph and sentence
// modes split on natural boundaries and regroup up to the chunk size.
// Semantic chunking degrades to paragraph splitting; there is no
// model-assisted chunker.
func chunkContent(content string, policy domain.DocumentPolicy) []string {
	size := policy.ChunkSize
	if size <= 0 {
		size = 500
	}
	overlap := policy.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	switch policy.ChunkingMode {
	case domain.ChunkingParagraph, domain.ChunkingSemantic:
		return regroup(splitOn(content, "\n\n"), size)
	case domain.ChunkingSentence:
		return regroup(splitSentences(content), size)
	default:
		return chunkFixed(content, size, overlap)
	}
}

func chunkFixed(content string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func splitOn(content, sep string) []string {
	var parts []string
	for _, p := range strings.Split(content, sep) {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

func splitSentences(content string) []string {
	var parts []string
	var b strings.Builder
	for _, r := range content {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if trimmed := strings.TrimSpace(b.String()); trimmed != "" {
				parts = append(parts, trimmed)
			}
			b.Reset()
		}
	}
	if trimmed := strings.TrimSpace(b.String()); trimmed != "" {
		parts = append(parts, trimmed)
	}
	return parts
}

// regroup packs parts into chunks no larger than size, keeping each
// part intact. A single part longer than size becomes its own chunk.
func regroup(parts []string, size int) []string {
	var chunks []string
	var b strings.Builder
	for _, part := range parts {
		if b.Len() > 0 && b.Len()+len(part)+1 > size {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(part)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
