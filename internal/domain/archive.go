package domain

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// ArchiveService bundles a profile's pending media into a single zip blob.
// Downloads run on a bounded worker pool; a failed fetch is logged, excluded
// from the archive and left pending so the next run retries only it.
type ArchiveService struct {
	store       RecordStore
	blobs       BlobStore
	client      *http.Client
	concurrency int
	logger      *slog.Logger
}

// NewArchiveService creates an ArchiveService. concurrency <= 0 selects a
// small default; client nil selects http.DefaultClient.
func NewArchiveService(store RecordStore, blobs BlobStore, client *http.Client, concurrency int, logger *slog.Logger) *ArchiveService {
	if concurrency <= 0 {
		concurrency = 8
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ArchiveService{
		store:       store,
		blobs:       blobs,
		client:      client,
		concurrency: concurrency,
		logger:      logger,
	}
}

// fetchResult is one downloaded media entry. data is nil for failed fetches.
type fetchResult struct {
	record *MediaRecord
	data   []byte
}

// Archive builds the archive for one profile. A missing profile or an empty
// pending set is a no-op that leaves the profile untouched. The blob write
// strictly precedes the archived status update so a crash between the two is
// recovered by re-running, never by marking rows archived without bytes.
func (s *ArchiveService) Archive(ctx context.Context, profileID string) error {
	profile, err := s.store.GetProfile(ctx, profileID)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("profile gone, skipping archive", "profile_id", profileID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	pending, err := s.store.PendingMediaByProfile(ctx, profileID)
	if err != nil {
		return fmt.Errorf("list pending media: %w", err)
	}
	if len(pending) == 0 {
		s.logger.Info("no pending media, nothing to archive", "profile", profile.URL)
		return nil
	}

	results := s.fetchAll(ctx, pending)

	data, fetched, err := s.buildArchive(profile, results)
	if err != nil {
		return fmt.Errorf("build archive: %w", err)
	}

	ref, err := s.blobs.Put(ctx, profile.Name()+".zip", data)
	if err != nil {
		return fmt.Errorf("write archive blob: %w", err)
	}
	if err := s.store.SetProfileArchive(ctx, profile.ID, ref); err != nil {
		return fmt.Errorf("attach archive to profile: %w", err)
	}

	if len(fetched) > 0 {
		if err := s.store.MarkMediaArchived(ctx, fetched); err != nil {
			return fmt.Errorf("mark media archived: %w", err)
		}
	}

	s.logger.Info("archive complete",
		"profile", profile.URL,
		"pending", len(pending),
		"archived", len(fetched),
		"blob", ref,
	)
	return nil
}

// fetchAll downloads every record's bytes on a bounded worker pool and joins
// the results, preserving the input order.
func (s *ArchiveService) fetchAll(ctx context.Context, records []*MediaRecord) []fetchResult {
	workers := s.concurrency
	if workers > len(records) {
		workers = len(records)
	}

	results := make([]fetchResult, len(records))
	jobs := make(chan int, len(records))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				rec := records[idx]
				data, err := s.fetchOne(ctx, rec)
				if err != nil {
					s.logger.Warn("media fetch failed, leaving pending",
						"media_id", rec.MediaID,
						"url", rec.FetchURL,
						"error", err,
					)
					results[idx] = fetchResult{record: rec}
					continue
				}
				results[idx] = fetchResult{record: rec, data: data}
			}
		}()
	}

	for i := range records {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func (s *ArchiveService) fetchOne(ctx context.Context, rec *MediaRecord) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rec.FetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// buildArchive writes every successful fetch into a zip container keyed by
// <profile-name>/<media-identifier>.mp4 and returns the container bytes plus
// the ids of the records whose bytes it holds.
func (s *ArchiveService) buildArchive(profile *Profile, results []fetchResult) ([]byte, []string, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	var fetched []string
	for _, res := range results {
		if res.data == nil {
			continue
		}

		name := fmt.Sprintf("%s/%s.mp4", profile.Name(), res.record.MediaID)
		entry, err := zw.Create(name)
		if err != nil {
			return nil, nil, fmt.Errorf("create entry %s: %w", name, err)
		}
		if _, err := entry.Write(res.data); err != nil {
			return nil, nil, fmt.Errorf("write entry %s: %w", name, err)
		}
		fetched = append(fetched, res.record.ID)
	}

	if err := zw.Close(); err != nil {
		return nil, nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), fetched, nil
}
