package service

import (
	"context"
	"strings"
	"testing"

	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/embedding"
	"github.com/google/uuid"
)

func setupKernelTest() (*KernelService, *mockItemStore, *mockPassageStore, *mockEventStore, *mockOutboxStore, uuid.UUID) {
	items := newMockItemStore()
	passages := newMockPassageStore()
	strategies := newMockStrategyStore()
	resolver := NewStrategyResolver(strategies, testLogger())
	recorder, events, outbox := newTestRecorder()

	svc := NewKernelService(items, passages, resolver, embedding.NewMockClient(), recorder, testLogger())
	return svc, items, passages, events, outbox, uuid.New()
}

func TestKernelService_Ingest(t *testing.T) {
	svc, _, passages, events, outbox, tenantID := setupKernelTest()
	ctx := context.Background()

	item, err := svc.Ingest(ctx, tenantID, IngestInput{
		SourceType: "note",
		Title:      "meeting",
		Content:    "Alice decided to use PostgreSQL for the billing service.",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if item.Status != domain.ItemAccepted {
		t.Fatalf("expected accepted item, got %s", item.Status)
	}

	stored, err := passages.GetByItem(ctx, item.ID, tenantID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 passage, got %d", len(stored))
	}
	if len(stored[0].Embedding) != 1536 {
		t.Fatalf("expected passage embedding, got length %d", len(stored[0].Embedding))
	}

	if got := len(events.ofType(domain.EventPassageExtracted)); got != 1 {
		t.Fatalf("expected 1 passage_extracted event, got %d", got)
	}
	if got := len(events.ofType(domain.EventItemIngested)); got != 1 {
		t.Fatalf("expected 1 item_ingested event, got %d", got)
	}

	// passage_extracted is forwarded to workers; item_ingested is not
	if len(outbox.enqueued) != 1 {
		t.Fatalf("expected 1 outbox event, got %d", len(outbox.enqueued))
	}
	if outbox.enqueued[0].EventType != domain.EventPassageExtracted {
		t.Fatalf("expected passage_extracted in outbox, got %s", outbox.enqueued[0].EventType)
	}
}

func TestKernelService_Ingest_Duplicate(t *testing.T) {
	svc, items, _, events, _, tenantID := setupKernelTest()
	ctx := context.Background()

	in := IngestInput{SourceType: "note", Content: "the same content twice"}
	first, err := svc.Ingest(ctx, tenantID, in)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	eventsBefore := len(events.events)

	second, err := svc.Ingest(ctx, tenantID, in)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the existing item back, got %s vs %s", second.ID, first.ID)
	}
	if items.touched != 1 {
		t.Fatalf("expected duplicate to touch the item once, got %d", items.touched)
	}
	if len(events.events) != eventsBefore {
		t.Fatalf("expected no new events on duplicate ingest, got %d extra", len(events.events)-eventsBefore)
	}
}

func TestKernelService_Ingest_EmptyContent(t *testing.T) {
	svc, _, passages, events, _, tenantID := setupKernelTest()
	ctx := context.Background()

	item, err := svc.Ingest(ctx, tenantID, IngestInput{SourceType: "note", Content: "   "})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if item.Status != domain.ItemRejected {
		t.Fatalf("expected rejected item, got %s", item.Status)
	}
	if item.RejectReason != "empty content" {
		t.Fatalf("unexpected reject reason %q", item.RejectReason)
	}
	if got := len(events.ofType(domain.EventItemRejected)); got != 1 {
		t.Fatalf("expected 1 item_rejected event, got %d", got)
	}
	if len(passages.passages) != 0 {
		t.Fatalf("expected no passages for a rejected item, got %d", len(passages.passages))
	}
}

func TestKernelService_Ingest_MissingSourceType(t *testing.T) {
	svc, _, _, _, _, tenantID := setupKernelTest()

	item, err := svc.Ingest(context.Background(), tenantID, IngestInput{Content: "something"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if item.Status != domain.ItemRejected {
		t.Fatalf("expected rejected item, got %s", item.Status)
	}
	if item.RejectReason != "missing source_type" {
		t.Fatalf("unexpected reject reason %q", item.RejectReason)
	}
}

func TestKernelService_Ingest_OversizeContent(t *testing.T) {
	items := newMockItemStore()
	passages := newMockPassageStore()
	strategies := newMockStrategyStore()
	tenantID := uuid.New()

	s := domain.DefaultStrategy()
	s.ScopeType = domain.ScopeTenant
	s.ScopeID = tenantID.String()
	s.DocumentPolicy.MaxItemBytes = 10
	if err := strategies.Create(context.Background(), s); err != nil {
		t.Fatalf("seed strategy: %v", err)
	}
	if err := strategies.Activate(context.Background(), s.ID); err != nil {
		t.Fatalf("activate strategy: %v", err)
	}

	resolver := NewStrategyResolver(strategies, testLogger())
	recorder, _, _ := newTestRecorder()
	svc := NewKernelService(items, passages, resolver, nil, recorder, testLogger())

	item, err := svc.Ingest(context.Background(), tenantID, IngestInput{
		SourceType: "note",
		Content:    "this content is longer than ten bytes",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if item.Status != domain.ItemRejected {
		t.Fatalf("expected rejected item, got %s", item.Status)
	}
	if !strings.Contains(item.RejectReason, "exceeds") {
		t.Fatalf("unexpected reject reason %q", item.RejectReason)
	}
}

func TestChunkFixed_Overlap(t *testing.T) {
	content := strings.Repeat("a", 10)
	chunks := chunkFixed(content, 4, 2)

	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != "aaaa" {
		t.Fatalf("unexpected first chunk %q", chunks[0])
	}
	// Each step advances by size-overlap
	if chunks[3] != "aaaa" && len(chunks[3]) > 4 {
		t.Fatalf("unexpected last chunk %q", chunks[3])
	}
}

func TestChunkContent_Paragraph(t *testing.T) {
	content := "first paragraph\n\nsecond paragraph\n\nthird"
	chunks := chunkContent(content, domain.DocumentPolicy{
		ChunkingMode: domain.ChunkingParagraph,
		ChunkSize:    100,
	})

	if len(chunks) != 1 {
		t.Fatalf("expected short paragraphs regrouped into 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0], "second paragraph") {
		t.Fatalf("chunk lost content: %q", chunks[0])
	}
}

func TestChunkContent_ParagraphSplit(t *testing.T) {
	content := strings.Repeat("x", 80) + "\n\n" + strings.Repeat("y", 80)
	chunks := chunkContent(content, domain.DocumentPolicy{
		ChunkingMode: domain.ChunkingParagraph,
		ChunkSize:    100,
	})

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks when paragraphs exceed the size, got %d", len(chunks))
	}
}

func TestChunkContent_Sentence(t *testing.T) {
	content := "First sentence. Second one! Third?"
	chunks := chunkContent(content, domain.DocumentPolicy{
		ChunkingMode: domain.ChunkingSentence,
		ChunkSize:    15,
	})

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(chunks), chunks)
	}
}

func TestChunkContent_DefaultsOnZeroSize(t *testing.T) {
	chunks := chunkContent("short text", domain.DocumentPolicy{})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}
