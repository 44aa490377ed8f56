// Command archive builds the media archive for one profile. It exists for
// operational re-runs: media left pending by a failed fetch is retried here
// without touching already-archived records.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/blackmichael/tiktok-archiver/internal/blob"
	"github.com/blackmichael/tiktok-archiver/internal/domain"
	"github.com/blackmichael/tiktok-archiver/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		profileID    string
		profileURL   string
		databasePath string
		archiveDir   string
		concurrency  int
	)

	flag.StringVar(&profileID, "profile-id", "", "Profile id to archive")
	flag.StringVar(&profileURL, "profile-url", "", "Profile URL to archive (alternative to -profile-id)")
	flag.StringVar(&databasePath, "db", envOrDefault("DATABASE_PATH", "archiver.db"), "Path to the SQLite database")
	flag.StringVar(&archiveDir, "archive-dir", envOrDefault("ARCHIVE_DIR", "archives"), "Directory archives are written to")
	flag.IntVar(&concurrency, "concurrency", 8, "Concurrent media downloads")
	flag.Parse()

	if profileID == "" && profileURL == "" {
		return fmt.Errorf("one of -profile-id or -profile-url is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	store, err := sqlite.Open(databasePath)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer store.Close()

	blobs, err := blob.NewFileStore(archiveDir)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	ctx := context.Background()

	if profileID == "" {
		profile, err := store.GetOrCreateProfile(ctx, profileURL)
		if err != nil {
			return fmt.Errorf("look up profile: %w", err)
		}
		profileID = profile.ID
	}

	archiver := domain.NewArchiveService(store, blobs, nil, concurrency, logger)
	if err := archiver.Archive(ctx, profileID); err != nil {
		return err
	}

	profile, err := store.GetProfile(ctx, profileID)
	if err != nil {
		return fmt.Errorf("reload profile: %w", err)
	}
	if profile.ArchiveRef == "" {
		fmt.Println("No pending media; nothing archived.")
		return nil
	}

	fmt.Printf("Archive written: %s\n", profile.ArchiveRef)
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
