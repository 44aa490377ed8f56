package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int

	// DatabasePath is the path to the SQLite database file.
	DatabasePath string

	// ActorAPIURL is the base URL of the actor platform API.
	ActorAPIURL string

	// ActorToken authenticates against the actor platform.
	ActorToken string

	// ArchiveDir is the directory where profile archives are written.
	ArchiveDir string

	// ChunkSize bounds how many actor records are held in memory per batch.
	ChunkSize int

	// FetchConcurrency caps concurrent media downloads per archive build.
	FetchConcurrency int

	// ResolveWorkers is the number of media resolution job workers.
	ResolveWorkers int

	// LogLevel is the slog level for the JSON logger.
	LogLevel slog.Level

	// DiscoveryActorID, MediaResolveActorID and MediaFetchActorID identify
	// the platform actors invoked by the pipeline.
	DiscoveryActorID    string
	MediaResolveActorID string
	MediaFetchActorID   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                3000,
		DatabasePath:        "archiver.db",
		ActorAPIURL:         "https://api.apify.com",
		ArchiveDir:          "archives",
		ChunkSize:           100,
		FetchConcurrency:    8,
		ResolveWorkers:      4,
		LogLevel:            slog.LevelInfo,
		DiscoveryActorID:    "GdWCkxBtKWOsKjdch",
		MediaResolveActorID: "JVisUAY6oGn2dBn99",
		MediaFetchActorID:   "5AnFmBqPofhuiqvaf",
	}

	for _, v := range []struct {
		key string
		dst *int
	}{
		{"PORT", &cfg.Port},
		{"CHUNK_SIZE", &cfg.ChunkSize},
		{"FETCH_CONCURRENCY", &cfg.FetchConcurrency},
		{"RESOLVE_WORKERS", &cfg.ResolveWorkers},
	} {
		raw := os.Getenv(v.key)
		if raw == "" {
			continue
		}
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("invalid %s: %q", v.key, raw)
		}
		*v.dst = parsed
	}

	cfg.ActorToken = os.Getenv("ACTOR_API_TOKEN")
	if cfg.ActorToken == "" {
		return nil, fmt.Errorf("ACTOR_API_TOKEN is required")
	}

	for _, v := range []struct {
		key string
		dst *string
	}{
		{"DATABASE_PATH", &cfg.DatabasePath},
		{"ACTOR_API_URL", &cfg.ActorAPIURL},
		{"ARCHIVE_DIR", &cfg.ArchiveDir},
		{"ACTOR_DISCOVERY_ID", &cfg.DiscoveryActorID},
		{"ACTOR_MEDIA_RESOLVE_ID", &cfg.MediaResolveActorID},
		{"ACTOR_MEDIA_FETCH_ID", &cfg.MediaFetchActorID},
	} {
		if raw := os.Getenv(v.key); raw != "" {
			*v.dst = raw
		}
	}

	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
	}

	return cfg, nil
}
