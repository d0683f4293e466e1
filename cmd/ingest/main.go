package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"basegraph.app/concierge/common/logger"
	"basegraph.app/concierge/core/config"
	"basegraph.app/concierge/internal/knowledge"
)

func main() {
	dir := flag.String("dir", "knowledge", "directory of .md/.txt knowledge files")
	watch := flag.Bool("watch", false, "keep running and re-ingest files as they change")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.ServiceTypeIngest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "concierge.ingest"})

	index, err := knowledge.Open(ctx, cfg.Knowledge)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open knowledge index", "error", err, "backend", cfg.Knowledge.Backend)
		os.Exit(1)
	}
	if index.Name() == "static" {
		slog.WarnContext(ctx, "static backend keeps documents in memory only; set KNOWLEDGE_BACKEND to persist them")
	}

	ingester := knowledge.NewIngester(index, *dir)
	count, err := ingester.IngestAll(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "ingestion failed", "error", err, "dir", *dir)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "knowledge ingested", "documents", count, "backend", index.Name())

	if !*watch {
		return
	}

	watcher, err := knowledge.NewWatcher()
	if err != nil {
		slog.ErrorContext(ctx, "failed to create watcher", "error", err)
		os.Exit(1)
	}
	defer watcher.Stop()

	events, err := watcher.Watch(ctx, *dir)
	if err != nil {
		slog.ErrorContext(ctx, "failed to watch directory", "error", err, "dir", *dir)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "watching for knowledge changes", "dir", *dir)

	for ev := range events {
		if err := ingester.Apply(ctx, ev); err != nil {
			slog.WarnContext(ctx, "failed to apply knowledge change", "error", err, "path", ev.Path)
		}
	}
	slog.InfoContext(ctx, "watcher stopped")
}
