package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cogmem/kos/internal/api/handlers"
	mw "github.com/cogmem/kos/internal/api/middleware"
	"github.com/cogmem/kos/internal/buildconfig"
	"github.com/cogmem/kos/internal/config"
	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/embedding"
	"github.com/cogmem/kos/internal/llm"
	"github.com/cogmem/kos/internal/service"
	"github.com/cogmem/kos/internal/store"
	"github.com/cogmem/kos/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router      *chi.Mux
	Maintenance *service.MaintenanceService
	Evaluator   *service.EvaluatorService
	Monitor     *service.WindowMonitor
	Consumer    *worker.Consumer

	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	tenantStore := store.NewTenantStore(db)
	itemStore := store.NewItemStore(db)
	passageStore := store.NewPassageStore(db)
	entityStore := store.NewEntityStore(db)
	claimStore := store.NewClaimStore(db)
	mergeStore := store.NewMergeStore(db)
	eventStore := store.NewKernelEventStore(db)
	strategyStore := store.NewStrategyStore(db)
	outcomeStore := store.NewOutcomeStore(db)
	proposalStore := store.NewProposalStore(db)
	stepStore := store.NewRestructureStepStore(db)
	outboxStore := store.NewOutboxStore(db)

	// External clients via provider factory
	llmClient, err := llm.NewClient(config.LLMProvider(), config.LLMAPIKey())
	if err != nil {
		logger.Warn("LLM client initialization failed",
			zap.String("provider", config.LLMProvider()), zap.Error(err))
	} else {
		logger.Info("LLM client initialized", zap.String("provider", config.LLMProvider()))
	}

	embeddingClient, err := embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey(), config.EmbeddingModel())
	if err != nil {
		logger.Warn("embedding client initialization failed",
			zap.String("provider", config.EmbeddingProvider()), zap.Error(err))
	} else {
		logger.Info("embedding client initialized", zap.String("provider", config.EmbeddingProvider()))
	}

	// Services
	recorder := service.NewEventRecorder(eventStore, outboxStore, logger)
	resolver := service.NewStrategyResolver(strategyStore, logger)
	kernelSvc := service.NewKernelService(itemStore, passageStore, resolver, embeddingClient, recorder, logger)
	extractionSvc := service.NewExtractionService(passageStore, entityStore, claimStore, llmClient, embeddingClient, resolver, recorder, logger)
	conflictSvc := service.NewConflictService(claimStore, resolver, recorder, logger)
	maintenanceSvc := service.NewMaintenanceService(claimStore, mergeStore, resolver, recorder, logger)
	strategySvc := service.NewStrategyService(strategyStore, resolver, recorder, logger)
	outcomeSvc := service.NewOutcomeService(outcomeStore, resolver, recorder, logger)
	evaluatorSvc := service.NewEvaluatorService(strategyStore, outcomeStore, claimStore, proposalStore, recorder, logger)
	executorSvc := service.NewExecutorService(proposalStore, stepStore, strategySvc, itemStore, passageStore, entityStore, claimStore, embeddingClient, recorder, logger)
	monitor := service.NewWindowMonitor(proposalStore, outcomeStore, executorSvc, strategySvc, recorder, logger)

	maintenanceSvc.SetInterval(config.MaintenanceInterval())
	evaluatorSvc.SetInterval(config.EvaluatorInterval())
	evaluatorSvc.SetWindow(config.EvaluatorWindow())
	monitor.SetInterval(config.WindowMonitorInterval())

	// Outbox consumer: passage extraction and conflict detection run
	// asynchronously off the decision log.
	consumer := worker.NewConsumer(outboxStore, logger)
	consumer.SetPollInterval(config.OutboxPollInterval())
	consumer.SetBatchSize(config.OutboxBatchSize())
	consumer.SetWorkers(config.OutboxWorkers())
	consumer.Handle(domain.EventPassageExtracted, worker.ExtractionHandler(extractionSvc))
	consumer.Handle(domain.EventClaimAccepted, worker.ConflictHandler(conflictSvc))

	// Handlers
	tenantHandler := handlers.NewTenantHandler(tenantStore)
	itemHandler := handlers.NewItemHandler(kernelSvc, itemStore, passageStore)
	claimHandler := handlers.NewClaimHandler(claimStore, maintenanceSvc)
	strategyHandler := handlers.NewStrategyHandler(strategySvc, resolver)
	proposalHandler := handlers.NewProposalHandler(proposalStore, stepStore, executorSvc)
	outcomeHandler := handlers.NewOutcomeHandler(outcomeSvc)
	eventHandler := handlers.NewEventHandler(eventStore)
	adminHandler := handlers.NewAdminHandler(maintenanceSvc, evaluatorSvc, outboxStore)

	r := chi.NewRouter()

	app := &App{
		Router:      r,
		Maintenance: maintenanceSvc,
		Evaluator:   evaluatorSvc,
		Monitor:     monitor,
		Consumer:    consumer,
		startTime:   time.Now(),
	}

	// Metrics collector for middleware
	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health and metrics (no auth)
	r.Get("/health", healthHandler(db))
	r.Get("/stats", app.statsHandler())
	r.Handle("/metrics", promhttp.Handler())

	// Tenant creation (no auth, bootstrap endpoint)
	r.Post("/v1/tenants", tenantHandler.Create)

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(tenantStore))

		r.Route("/items", func(r chi.Router) {
			r.Post("/", itemHandler.Ingest)
			r.Get("/", itemHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", itemHandler.GetByID)
				r.Get("/passages", itemHandler.Passages)
			})
		})

		r.Route("/claims", func(r chi.Router) {
			r.Post("/merge", claimHandler.Merge)
			r.Get("/{id}", claimHandler.GetByID)
		})
		r.Get("/entities/{entityID}/claims", claimHandler.ListByEntity)

		r.Route("/strategies", func(r chi.Router) {
			r.Post("/", strategyHandler.Create)
			r.Get("/", strategyHandler.ListByScope)
			r.Get("/resolve", strategyHandler.Resolve)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", strategyHandler.GetByID)
				r.Post("/activate", strategyHandler.Activate)
			})
		})

		r.Route("/proposals", func(r chi.Router) {
			r.Get("/", proposalHandler.ListPending)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", proposalHandler.GetByID)
				r.Post("/approve", proposalHandler.Approve)
				r.Post("/reject", proposalHandler.Reject)
			})
		})

		r.Post("/outcomes", outcomeHandler.Record)
		r.Get("/events", eventHandler.List)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/decay", adminHandler.TriggerDecay)
			r.Post("/evaluate", adminHandler.TriggerEvaluation)
			r.Get("/outbox/failed", adminHandler.FailedOutboxEvents)
			r.Post("/outbox/{id}/retry", adminHandler.RetryOutboxEvent)
		})
	})

	return app
}

// Start launches all background services.
func (app *App) Start() {
	app.Consumer.Start()
	app.Maintenance.Start()
	app.Evaluator.Start()
	app.Monitor.Start()
}

// Stop shuts them down in reverse order.
func (app *App) Stop() {
	app.Monitor.Stop()
	app.Evaluator.Stop()
	app.Maintenance.Stop()
	app.Consumer.Stop()
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) statsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"version":    buildconfig.Version(),
			"commit":     buildconfig.Commit(),
			"build_date": buildconfig.BuildDate(),
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.TenantStore          = (*store.TenantStore)(nil)
	_ domain.ItemStore            = (*store.ItemStore)(nil)
	_ domain.PassageStore         = (*store.PassageStore)(nil)
	_ domain.EntityStore          = (*store.EntityStore)(nil)
	_ domain.ClaimStore           = (*store.ClaimStore)(nil)
	_ domain.MergeStore           = (*store.MergeStore)(nil)
	_ domain.KernelEventStore     = (*store.KernelEventStore)(nil)
	_ domain.StrategyStore        = (*store.StrategyStore)(nil)
	_ domain.OutcomeStore         = (*store.OutcomeStore)(nil)
	_ domain.ProposalStore        = (*store.ProposalStore)(nil)
	_ domain.RestructureStepStore = (*store.RestructureStepStore)(nil)
	_ domain.OutboxStore          = (*store.OutboxStore)(nil)
	_ domain.EmbeddingClient      = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient      = (*embedding.MockClient)(nil)
	_ domain.LLMClient            = (*llm.OpenAIClient)(nil)
	_ domain.LLMClient            = (*llm.AnthropicClient)(nil)
	_ domain.LLMClient            = (*llm.MockClient)(nil)
)
