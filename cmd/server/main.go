package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.app/concierge"
	"basegraph.app/concierge/common/id"
	"basegraph.app/concierge/common/llm"
	"basegraph.app/concierge/common/logger"
	"basegraph.app/concierge/common/otel"
	"basegraph.app/concierge/core/config"
	"basegraph.app/concierge/core/db"
	"basegraph.app/concierge/internal/brain"
	"basegraph.app/concierge/internal/http/middleware"
	httprouter "basegraph.app/concierge/internal/http/router"
	"basegraph.app/concierge/internal/knowledge"
	"basegraph.app/concierge/internal/queue"
	"basegraph.app/concierge/internal/service"
	"basegraph.app/concierge/internal/service/ticketing"
	"basegraph.app/concierge/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "concierge starting",
		"env", cfg.Env,
		"store", cfg.Store.Backend,
		"knowledge", cfg.Knowledge.Backend,
		"llm_provider", cfg.GenerationLLM.Provider)
	if err := id.Init(id.NodeServer); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	health := map[string]httprouter.HealthCheck{}

	var database *db.DB
	if cfg.Store.Backend == "postgres" {
		database, err = openDatabase(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		health["database"] = database.Ping
		slog.InfoContext(ctx, "database connected")
	}

	conversations, closeStore, err := store.Open(cfg.Store.Backend, cfg.Store.BoltPath, database)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open conversation store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	index, err := knowledge.Open(ctx, cfg.Knowledge)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open knowledge index", "error", err, "backend", cfg.Knowledge.Backend)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "knowledge index ready", "backend", index.Name())

	generator, err := newGenerator(cfg.GenerationLLM)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create generation client", "error", err)
		os.Exit(1)
	}

	dispatcher, stopDispatcher, err := newDispatcher(ctx, cfg, conversations, health)
	if err != nil {
		slog.ErrorContext(ctx, "failed to set up ticket dispatch", "error", err)
		os.Exit(1)
	}

	orchestrator := brain.NewOrchestrator(
		brain.OrchestratorConfig{
			RetrievalTopK:             cfg.Orchestrator.RetrievalTopK,
			GenerationTimeout:         cfg.Orchestrator.GenerationTimeout,
			GenerationRetries:         cfg.Orchestrator.GenerationRetries,
			MaxConcurrentGenerations:  cfg.Orchestrator.MaxConcurrentGenerations,
			DegradedConfidencePenalty: cfg.Orchestrator.DegradedConfidencePenalty,
		},
		conversations,
		brain.NewContextBuilder(conversations, cfg.Orchestrator.MaxContextMessages, cfg.Orchestrator.SummaryThreshold),
		brain.NewKnowledgeRetriever(index, brain.RetrieverConfig{
			DefaultTopK:   cfg.Orchestrator.RetrievalTopK,
			Timeout:       cfg.Orchestrator.RetrievalTimeout,
			MaxConcurrent: cfg.Orchestrator.MaxConcurrentRetrievals,
		}),
		generator,
		brain.NewEscalationEngine(brain.EscalationConfig{
			ConfidenceThreshold:      cfg.Escalation.ConfidenceThreshold,
			UrgentSignals:            cfg.Escalation.UrgentSignals,
			SkipWhenAlreadyEscalated: cfg.Escalation.SkipWhenAlreadyEscalated,
		}),
		dispatcher,
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, orchestrator, service.NewServices(conversations), health)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Orchestrator.GenerationTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	// In-flight turns may still be dispatching tickets.
	if err := stopDispatcher(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "ticket dispatcher shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func openDatabase(ctx context.Context, cfg db.Config) (*db.DB, error) {
	if cfg.RunMigrations {
		migrations, err := fs.Sub(concierge.MigrationsFS, "migrations")
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(cfg.DSN, migrations); err != nil {
			return nil, err
		}
	}
	return db.New(ctx, cfg)
}

func newGenerator(cfg config.LLMConfig) (llm.Generator, error) {
	pricing, err := llm.ParsePricing(cfg.InputPricePerMTok, cfg.OutputPricePerMTok)
	if err != nil {
		return nil, err
	}
	return llm.NewGenerator(llm.Config{
		Provider:    cfg.Provider,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: llm.Temp(cfg.Temperature),
		Pricing:     pricing,
	})
}

// newDispatcher prefers the Redis stream consumed by the worker. Without
// Redis, tickets are created in-process when GitLab is configured; otherwise
// escalations are recorded on the conversation only.
func newDispatcher(ctx context.Context, cfg config.Config, conversations store.ConversationStore, health map[string]httprouter.HealthCheck) (brain.TicketDispatcher, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	if cfg.Pipeline.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing redis url: %w", err)
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		health["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

		producer := queue.NewRedisProducer(redisClient, cfg.Pipeline.RedisStream, slog.Default())
		return producer, func(context.Context) error { return producer.Close() }, nil
	}

	processor, err := ticketing.NewProcessorFromConfig(cfg.Ticketing, conversations)
	if err != nil {
		return nil, nil, err
	}
	if processor == nil {
		slog.WarnContext(ctx, "no redis or gitlab configured, escalations will not open tickets")
		return nil, noop, nil
	}

	inline := ticketing.NewInlineDispatcher(processor, ticketing.InlineConfig{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
	})
	slog.InfoContext(ctx, "creating tickets in-process (no redis configured)")
	return inline, inline.Close, nil
}

func setupRouter(cfg config.Config, turns *brain.Orchestrator, services *service.Services, health map[string]httprouter.HealthCheck) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → trace id header → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.TraceHeader(cfg.TraceHeader))
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, turns, services, httprouter.RouterConfig{
		Auth: middleware.AuthConfig{
			Secret: cfg.Auth.JWTSecret,
			Issuer: cfg.Auth.JWTIssuer,
		},
		Health: health,
	})

	return router
}

const banner = `
  ___ ___  _ __   ___(_) ___ _ __ __ _  ___
 / __/ _ \| '_ \ / __| |/ _ \ '__/ _' |/ _ \
| (_| (_) | | | | (__| |  __/ | | (_| |  __/
 \___\___/|_| |_|\___|_|\___|_|  \__, |\___|
                                 |___/
`
