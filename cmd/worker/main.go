// Standalone outbox worker. The server runs its own consumer; this
// binary exists so extraction and conflict detection can scale out
// independently of the HTTP tier.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cogmem/kos/internal/config"
	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/embedding"
	"github.com/cogmem/kos/internal/llm"
	"github.com/cogmem/kos/internal/service"
	"github.com/cogmem/kos/internal/store"
	"github.com/cogmem/kos/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	if err := config.Load(); err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	dbURL := config.DatabaseURL()
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}
	logger.Info("connected to database")

	passageStore := store.NewPassageStore(pool)
	entityStore := store.NewEntityStore(pool)
	claimStore := store.NewClaimStore(pool)
	eventStore := store.NewKernelEventStore(pool)
	strategyStore := store.NewStrategyStore(pool)
	outboxStore := store.NewOutboxStore(pool)

	llmClient, err := llm.NewClient(config.LLMProvider(), config.LLMAPIKey())
	if err != nil {
		logger.Fatal("LLM client initialization failed", zap.Error(err))
	}

	var embeddingClient domain.EmbeddingClient
	embeddingClient, err = embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey(), config.EmbeddingModel())
	if err != nil {
		logger.Warn("embedding client initialization failed, claims will not be embedded", zap.Error(err))
		embeddingClient = nil
	}

	recorder := service.NewEventRecorder(eventStore, outboxStore, logger)
	resolver := service.NewStrategyResolver(strategyStore, logger)
	extractionSvc := service.NewExtractionService(passageStore, entityStore, claimStore, llmClient, embeddingClient, resolver, recorder, logger)
	conflictSvc := service.NewConflictService(claimStore, resolver, recorder, logger)

	consumer := worker.NewConsumer(outboxStore, logger)
	consumer.SetPollInterval(config.OutboxPollInterval())
	consumer.SetBatchSize(config.OutboxBatchSize())
	consumer.SetWorkers(config.OutboxWorkers())
	consumer.Handle(domain.EventPassageExtracted, worker.ExtractionHandler(extractionSvc))
	consumer.Handle(domain.EventClaimAccepted, worker.ConflictHandler(conflictSvc))

	consumer.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	consumer.Stop()
	logger.Info("worker stopped")
}
