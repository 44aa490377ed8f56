package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/tiktok-archiver/internal/actor"
	"github.com/blackmichael/tiktok-archiver/internal/blob"
	"github.com/blackmichael/tiktok-archiver/internal/config"
	"github.com/blackmichael/tiktok-archiver/internal/domain"
	"github.com/blackmichael/tiktok-archiver/internal/httpserver"
	"github.com/blackmichael/tiktok-archiver/internal/jobs"
	"github.com/blackmichael/tiktok-archiver/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer store.Close()
	logger.Info("record store ready", "path", cfg.DatabasePath)

	blobs, err := blob.NewFileStore(cfg.ArchiveDir)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	runner := actor.NewClient(cfg.ActorAPIURL, cfg.ActorToken, map[domain.ActorKind]string{
		domain.ActorDiscovery:    cfg.DiscoveryActorID,
		domain.ActorMediaResolve: cfg.MediaResolveActorID,
		domain.ActorMediaFetch:   cfg.MediaFetchActorID,
	}, logger)

	resolver := domain.NewResolveService(runner, store, cfg.ChunkSize, 0, logger)
	queue := jobs.NewQueue(resolver, cfg.ResolveWorkers, logger)
	ingestor := domain.NewIngestService(runner, store, queue, cfg.ChunkSize, logger)
	archiver := domain.NewArchiveService(store, blobs, nil, cfg.FetchConcurrency, logger)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	queue.Start(ctx)

	// Requeue records a prior process left unfinished. The in-process queue
	// has no broker behind it, so crash recovery has to be explicit.
	if err := requeueUnfinished(ctx, store, queue, logger); err != nil {
		return fmt.Errorf("requeue unfinished records: %w", err)
	}

	server := httpserver.NewServer(cfg, ingestor, archiver, store, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	queue.Wait()
	return nil
}

func requeueUnfinished(ctx context.Context, store domain.RecordStore, queue *jobs.Queue, logger *slog.Logger) error {
	records, err := store.ListContentByStatus(ctx, domain.ContentCreated, domain.ContentPending)
	if err != nil {
		return err
	}
	for _, rec := range records {
		queue.Dispatch(rec.ID)
	}
	if len(records) > 0 {
		logger.Info("requeued unfinished content records", "count", len(records))
	}
	return nil
}
