package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ResolveService resolves the downloadable media for one content record: it
// invokes the media-resolve actor, stages the media via the media-fetch
// actor, deduplicates the identifiers against the store, and persists new
// media records. The content record's status is owned exclusively by this
// service once ingestion hands it over.
type ResolveService struct {
	runner    ActorRunner
	store     RecordStore
	chunkSize int
	poolSize  int
	logger    *slog.Logger
}

// NewResolveService creates a ResolveService. chunkSize <= 0 selects the
// default; poolSize <= 0 matches the chunk size.
func NewResolveService(runner ActorRunner, store RecordStore, chunkSize, poolSize int, logger *slog.Logger) *ResolveService {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if poolSize <= 0 {
		poolSize = chunkSize
	}
	return &ResolveService{
		runner:    runner,
		store:     store,
		chunkSize: chunkSize,
		poolSize:  poolSize,
		logger:    logger,
	}
}

// Resolve processes one content record. A missing record is a no-op: a racing
// caller already handled it. The record moves to pending before any media
// writes, and to finished or failed only after every chunk has been joined.
// A single failed item never aborts the rest of the job.
func (s *ResolveService) Resolve(ctx context.Context, contentID string) error {
	record, err := s.store.GetContent(ctx, contentID)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("content record gone, skipping resolution", "content_id", contentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load content record: %w", err)
	}

	// Persist pending first so a crash mid-resolution is observable.
	if err := s.store.UpdateContentStatus(ctx, record.ID, ContentPending); err != nil {
		return fmt.Errorf("mark content pending: %w", err)
	}

	spec := mediaResolveJobSpec{Musics: []string{record.SourceURL}}
	_, stream, err := s.runner.Invoke(ctx, ActorMediaResolve, spec)
	if err != nil {
		if statusErr := s.store.UpdateContentStatus(ctx, record.ID, ContentFailed); statusErr != nil {
			s.logger.Error("failed to mark content failed", "content_id", record.ID, "error", statusErr)
		}
		return fmt.Errorf("invoke media-resolve actor: %w", err)
	}
	defer stream.Close()

	existing, err := s.store.MediaIdentifiers(ctx)
	if err != nil {
		return fmt.Errorf("read existing media identifiers: %w", err)
	}

	failed := false
	for {
		raws, done, err := readChunk(ctx, stream, s.chunkSize)
		if err != nil {
			s.logger.Error("media-resolve stream error", "content_id", record.ID, "error", err)
			failed = true
			break
		}

		if len(raws) > 0 {
			if ok := s.processChunk(ctx, record, raws, existing); !ok {
				failed = true
			}
		}

		if done {
			break
		}
	}

	final := ContentFinished
	if failed {
		final = ContentFailed
	}
	if err := s.store.UpdateContentStatus(ctx, record.ID, final); err != nil {
		return fmt.Errorf("mark content %s: %w", final, err)
	}

	s.logger.Info("resolution complete", "content_id", record.ID, "status", final)
	return nil
}

// processChunk stages one chunk of resolved video URLs via the media-fetch
// actor and persists the new media records. Returns false if the chunk left
// unresolved errors behind.
func (s *ResolveService) processChunk(ctx context.Context, record *ContentRecord, raws []json.RawMessage, existing map[string]struct{}) bool {
	urls := make([]string, 0, len(raws))
	for _, raw := range raws {
		u, err := parseResolveRecord(raw)
		if err != nil {
			s.logger.Warn("skipping malformed resolve record", "content_id", record.ID, "error", err)
			continue
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return true
	}

	run, fetchStream, err := s.runner.Invoke(ctx, ActorMediaFetch, newMediaFetchJobSpec(urls))
	if err != nil {
		s.logger.Error("invoke media-fetch actor failed", "content_id", record.ID, "error", err)
		return false
	}
	fetchRaws, err := drainStream(ctx, fetchStream)
	fetchStream.Close()
	if err != nil {
		s.logger.Error("media-fetch stream error", "content_id", record.ID, "error", err)
		return false
	}

	ids := make([]string, 0, len(fetchRaws))
	for _, raw := range fetchRaws {
		id, err := parseFetchRecord(raw)
		if err != nil {
			s.logger.Warn("skipping malformed fetch record", "content_id", record.ID, "error", err)
			continue
		}
		if _, ok := existing[id]; ok {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return true
	}

	drafts := s.resolveFetchURLs(record.ID, run.KeyValueStoreID, ids)

	created, err := s.insertMediaChunk(ctx, drafts, existing)
	if err != nil {
		s.logger.Error("insert media records failed", "content_id", record.ID, "error", err)
		return false
	}
	for _, m := range created {
		existing[m.MediaID] = struct{}{}
	}
	return true
}

// resolveFetchURLs derives fetch URLs for the given identifiers on a bounded
// worker pool and joins the resulting drafts before the caller's bulk insert.
func (s *ResolveService) resolveFetchURLs(contentID, storeID string, ids []string) []*MediaRecord {
	workers := s.poolSize
	if workers > len(ids) {
		workers = len(ids)
	}

	jobs := make(chan string, len(ids))
	results := make(chan *MediaRecord, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				results <- NewMediaRecord(contentID, id, s.runner.ResolveFetchURL(storeID, id))
			}
		}()
	}

	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()
	close(results)

	drafts := make([]*MediaRecord, 0, len(ids))
	for m := range results {
		drafts = append(drafts, m)
	}
	return drafts
}

// insertMediaChunk applies the same optimistic filter, insert-ignore and
// bounded retry discipline as content ingestion, keyed on media identifiers.
func (s *ResolveService) insertMediaChunk(ctx context.Context, drafts []*MediaRecord, existing map[string]struct{}) ([]*MediaRecord, error) {
	chunk := filterMediaDrafts(drafts, existing)

	for attempt := 0; len(chunk) > 0 && attempt < maxInsertRetries; attempt++ {
		created, err := s.store.InsertMediaIgnoreConflicts(ctx, chunk)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}

		refreshed, err := s.store.MediaIdentifiers(ctx)
		if err != nil {
			return nil, fmt.Errorf("re-read existing media identifiers: %w", err)
		}
		for id := range refreshed {
			existing[id] = struct{}{}
		}
		chunk = filterMediaDrafts(chunk, existing)
	}

	for _, m := range chunk {
		s.logger.Warn("dropping media draft after conflict retries", "media_id", m.MediaID)
	}
	return nil, nil
}

func filterMediaDrafts(drafts []*MediaRecord, existing map[string]struct{}) []*MediaRecord {
	kept := make([]*MediaRecord, 0, len(drafts))
	for _, d := range drafts {
		if _, ok := existing[d.MediaID]; ok {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}
