package domain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/tiktok-archiver/internal/domain"
	"github.com/blackmichael/tiktok-archiver/internal/sqlite"
)

func seedContent(t *testing.T, store *sqlite.Repository, sourceURL string) *domain.ContentRecord {
	t.Helper()
	ctx := context.Background()

	profile, err := store.GetOrCreateProfile(ctx, profileURL)
	require.NoError(t, err)

	inserted, err := store.InsertContentIgnoreConflicts(ctx, []*domain.ContentRecord{
		domain.NewContentRecord(profile.ID, "alice", "post", sourceURL),
	})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	return inserted[0]
}

func TestResolvePersistsOnlyNewMedia(t *testing.T) {
	store := newTestStore(t)
	runner := newFakeRunner()
	ctx := context.Background()

	record := seedContent(t, store, musicURL("Song-One", "111"))

	// "v1" already exists in the store under another content record.
	other := seedContent(t, store, musicURL("Song-Two", "222"))
	_, err := store.InsertMediaIgnoreConflicts(ctx, []*domain.MediaRecord{
		domain.NewMediaRecord(other.ID, "v1", "https://files.test/old/v1"),
	})
	require.NoError(t, err)

	runner.records[domain.ActorMediaResolve] = append(runner.records[domain.ActorMediaResolve],
		rawResolve("https://www.tiktok.com/@alice/video/1"),
		rawResolve("https://www.tiktok.com/@alice/video/2"),
	)
	runner.records[domain.ActorMediaFetch] = append(runner.records[domain.ActorMediaFetch],
		rawFetch("v1.mp4"),
		rawFetch("v2.mp4"),
	)

	svc := domain.NewResolveService(runner, store, 0, 0, testLogger())
	require.NoError(t, svc.Resolve(ctx, record.ID))

	ids, err := store.MediaIdentifiers(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "v2")

	// The new record's fetch URL is templated from the run's staging store.
	pending, err := store.PendingMediaByProfile(ctx, record.ProfileID)
	require.NoError(t, err)
	var v2 *domain.MediaRecord
	for _, m := range pending {
		if m.MediaID == "v2" {
			v2 = m
		}
	}
	require.NotNil(t, v2)
	assert.Equal(t, record.ID, v2.ContentID)
	assert.Equal(t, "https://files.test/kvs-1/v2", v2.FetchURL)

	updated, err := store.GetContent(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContentFinished, updated.Status)
}

func TestResolveMissingRecordIsNoop(t *testing.T) {
	store := newTestStore(t)
	runner := newFakeRunner()

	svc := domain.NewResolveService(runner, store, 0, 0, testLogger())
	require.NoError(t, svc.Resolve(context.Background(), uuid.NewString()))

	assert.Empty(t, runner.inputs[domain.ActorMediaResolve])
}

func TestResolveMarksFailedWhenResolveInvocationFails(t *testing.T) {
	store := newTestStore(t)
	runner := newFakeRunner()
	runner.errs[domain.ActorMediaResolve] = errors.New("platform down")
	ctx := context.Background()

	record := seedContent(t, store, musicURL("Song-One", "111"))

	svc := domain.NewResolveService(runner, store, 0, 0, testLogger())
	require.Error(t, svc.Resolve(ctx, record.ID))

	updated, err := store.GetContent(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContentFailed, updated.Status)
}

func TestResolveMarksFailedWhenFetchInvocationFails(t *testing.T) {
	store := newTestStore(t)
	runner := newFakeRunner()
	runner.errs[domain.ActorMediaFetch] = errors.New("platform down")
	ctx := context.Background()

	record := seedContent(t, store, musicURL("Song-One", "111"))
	runner.records[domain.ActorMediaResolve] = append(runner.records[domain.ActorMediaResolve],
		rawResolve("https://www.tiktok.com/@alice/video/1"),
	)

	svc := domain.NewResolveService(runner, store, 0, 0, testLogger())
	require.NoError(t, svc.Resolve(ctx, record.ID))

	updated, err := store.GetContent(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContentFailed, updated.Status)

	ids, err := store.MediaIdentifiers(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestResolveEmptyStreamFinishes(t *testing.T) {
	store := newTestStore(t)
	runner := newFakeRunner()
	ctx := context.Background()

	record := seedContent(t, store, musicURL("Song-One", "111"))

	svc := domain.NewResolveService(runner, store, 0, 0, testLogger())
	require.NoError(t, svc.Resolve(ctx, record.ID))

	updated, err := store.GetContent(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContentFinished, updated.Status)

	// No media-fetch run for an empty resolve stream.
	assert.Empty(t, runner.inputs[domain.ActorMediaFetch])
}

func TestResolveSkipsMalformedRecords(t *testing.T) {
	store := newTestStore(t)
	runner := newFakeRunner()
	ctx := context.Background()

	record := seedContent(t, store, musicURL("Song-One", "111"))

	runner.records[domain.ActorMediaResolve] = append(runner.records[domain.ActorMediaResolve],
		rawResolve(""), // malformed: no webVideoUrl
		rawResolve("https://www.tiktok.com/@alice/video/1"),
	)
	runner.records[domain.ActorMediaFetch] = append(runner.records[domain.ActorMediaFetch],
		rawFetch("v1.mp4"),
	)

	svc := domain.NewResolveService(runner, store, 0, 0, testLogger())
	require.NoError(t, svc.Resolve(ctx, record.ID))

	ids, err := store.MediaIdentifiers(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Contains(t, ids, "v1")

	updated, err := store.GetContent(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContentFinished, updated.Status)
}
