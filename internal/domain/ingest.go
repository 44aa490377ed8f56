package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

const (
	// DefaultChunkSize bounds how many actor records are buffered per batch.
	DefaultChunkSize = 100

	// maxInsertRetries bounds the re-filter-and-retry loop after a bulk
	// insert loses a uniqueness race.
	maxInsertRetries = 3
)

// IngestService consumes the discovery actor's record stream in bounded
// chunks, deduplicates against the record store, persists new content
// records, and fans out one media resolution job per inserted record.
type IngestService struct {
	runner    ActorRunner
	store     RecordStore
	dispatch  ResolutionDispatcher
	chunkSize int
	logger    *slog.Logger
}

// NewIngestService creates an IngestService. chunkSize <= 0 selects the
// default.
func NewIngestService(runner ActorRunner, store RecordStore, dispatch ResolutionDispatcher, chunkSize int, logger *slog.Logger) *IngestService {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &IngestService{
		runner:    runner,
		store:     store,
		dispatch:  dispatch,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// Ingest runs the discovery actor for the given profile URL and persists the
// deduplicated results. It fails only if the discovery invocation itself (or
// the store) cannot be used; duplicate records are absorbed silently.
func (s *IngestService) Ingest(ctx context.Context, profileURL string, spec DiscoveryJobSpec) error {
	profile, err := s.store.GetOrCreateProfile(ctx, profileURL)
	if err != nil {
		return fmt.Errorf("get or create profile: %w", err)
	}

	_, stream, err := s.runner.Invoke(ctx, ActorDiscovery, spec)
	if err != nil {
		return fmt.Errorf("invoke discovery actor: %w", err)
	}
	defer stream.Close()

	existing, err := s.store.ContentSourceURLs(ctx)
	if err != nil {
		return fmt.Errorf("read existing source urls: %w", err)
	}

	var total, inserted int
	for {
		raws, done, err := readChunk(ctx, stream, s.chunkSize)
		if err != nil {
			return fmt.Errorf("read discovery stream: %w", err)
		}

		drafts := make([]*ContentRecord, 0, len(raws))
		for _, raw := range raws {
			draft, err := parseDiscoveryRecord(profile.ID, raw)
			if err != nil {
				s.logger.Warn("skipping malformed discovery record", "error", err)
				continue
			}
			drafts = append(drafts, draft)
		}
		total += len(drafts)

		created, err := s.insertContentChunk(ctx, drafts, existing)
		if err != nil {
			return err
		}
		inserted += len(created)

		for _, rec := range created {
			existing[rec.SourceURL] = struct{}{}
			s.dispatch.Dispatch(rec.ID)
		}

		if done {
			break
		}
	}

	s.logger.Info("ingestion complete",
		"profile", profile.URL,
		"records_seen", total,
		"records_inserted", inserted,
	)
	return nil
}

// insertContentChunk filters drafts against the known source URLs and bulk
// inserts the remainder with ignore-conflict semantics. The pre-filter only
// shrinks the write; the insert is the source of truth for what persisted.
// A residual conflict from a racing ingester triggers a re-read and retry, up
// to maxInsertRetries; drafts still conflicting after that provably exist
// already and are logged and dropped.
func (s *IngestService) insertContentChunk(ctx context.Context, drafts []*ContentRecord, existing map[string]struct{}) ([]*ContentRecord, error) {
	chunk := filterContentDrafts(drafts, existing)

	for attempt := 0; len(chunk) > 0 && attempt < maxInsertRetries; attempt++ {
		created, err := s.store.InsertContentIgnoreConflicts(ctx, chunk)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("insert content records: %w", err)
		}

		refreshed, err := s.store.ContentSourceURLs(ctx)
		if err != nil {
			return nil, fmt.Errorf("re-read existing source urls: %w", err)
		}
		for url := range refreshed {
			existing[url] = struct{}{}
		}
		chunk = filterContentDrafts(chunk, existing)
	}

	for _, rec := range chunk {
		s.logger.Warn("dropping content draft after conflict retries",
			"source_url", rec.SourceURL,
		)
	}
	return nil, nil
}

func filterContentDrafts(drafts []*ContentRecord, existing map[string]struct{}) []*ContentRecord {
	kept := make([]*ContentRecord, 0, len(drafts))
	for _, d := range drafts {
		if _, ok := existing[d.SourceURL]; ok {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}
