package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/concierge/common/id"
	"basegraph.app/concierge/common/logger"
	"basegraph.app/concierge/common/otel"
	"basegraph.app/concierge/core/config"
	"basegraph.app/concierge/core/db"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/queue"
	"basegraph.app/concierge/internal/service/ticketing"
	"basegraph.app/concierge/internal/store"
	"basegraph.app/concierge/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Setup(cfg)

	slog.InfoContext(ctx, "concierge worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	if err := id.Init(id.NodeWorker); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	var database *db.DB
	if cfg.Store.Backend == "postgres" {
		database, err = db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		slog.InfoContext(ctx, "database connected")
	}

	conversations, closeStore, err := store.Open(cfg.Store.Backend, cfg.Store.BoltPath, database)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open conversation store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	processor, err := ticketing.NewProcessorFromConfig(cfg.Ticketing, conversations)
	if err != nil {
		slog.ErrorContext(ctx, "failed to set up ticketing", "error", err)
		os.Exit(1)
	}
	if processor == nil {
		slog.ErrorContext(ctx, "GITLAB_TOKEN and GITLAB_PROJECT are required for the worker")
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    10,
		Block:        5 * time.Second,
		MaxAttempts:  cfg.Pipeline.MaxAttempts,
		RequeueDelay: cfg.Pipeline.RequeueDelay,
		MaxLen:       int64(cfg.Pipeline.StreamMaxLen),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	w := worker.New(consumer, processor, worker.Config{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
	})

	reclaimer := worker.NewReclaimer(consumer, consumer, w.Handle, worker.ReclaimerConfig{
		MinIdle:       cfg.Pipeline.ReclaimIdle,
		Interval:      time.Minute,
		BatchSize:     10,
		MaxDeliveries: int64(cfg.Pipeline.MaxAttempts) * 2,
	})

	statuses := make([]model.ConversationStatus, len(cfg.Retention.Statuses))
	for i, s := range cfg.Retention.Statuses {
		statuses[i] = model.ConversationStatus(s)
	}
	sweeper := worker.NewRetentionSweeper(conversations, worker.RetentionConfig{
		MaxAge:   cfg.Retention.MaxAge,
		Interval: cfg.Retention.Interval,
		Statuses: statuses,
	})

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(runCtx)
	}()
	go reclaimer.Run(runCtx)
	go sweeper.Run(runCtx)

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Reclaimer and sweeper are quick; the worker may be mid-job.
	reclaimer.Stop()
	sweeper.Stop()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
		stopRun()
	case <-done:
		if err := <-errCh; err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
  ___ ___  _ __   ___(_) ___ _ __ __ _  ___    __      _____  _ __| | _____ _ __
 / __/ _ \| '_ \ / __| |/ _ \ '__/ _' |/ _ \   \ \ /\ / / _ \| '__| |/ / _ \ '__|
| (_| (_) | | | | (__| |  __/ | | (_| |  __/    \ V  V / (_) | |  |   <  __/ |
 \___\___/|_| |_|\___|_|\___|_|  \__, |\___|     \_/\_/ \___/|_|  |_|\_\___|_|
                                 |___/
`
