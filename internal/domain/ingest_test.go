package domain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/tiktok-archiver/internal/domain"
)

const profileURL = "https://www.tiktok.com/@alice"

func TestIngestInsertsAndDispatchesNewRecords(t *testing.T) {
	store := newTestStore(t)
	runner := newFakeRunner()
	dispatcher := &dispatchRecorder{}

	// Pre-populate one record so the third discovery result is a duplicate.
	existing, err := store.GetOrCreateProfile(context.Background(), profileURL)
	require.NoError(t, err)
	_, err = store.InsertContentIgnoreConflicts(context.Background(), []*domain.ContentRecord{
		domain.NewContentRecord(existing.ID, "bob", "old post", musicURL("Old-Song", "999")),
	})
	require.NoError(t, err)

	runner.records[domain.ActorDiscovery] = append(runner.records[domain.ActorDiscovery],
		rawDiscovery("alice", "first", "Song-One", "111"),
		rawDiscovery("alice", "second", "Song-Two", "222"),
		rawDiscovery("bob", "dup", "Old-Song", "999"),
	)

	svc := domain.NewIngestService(runner, store, dispatcher, 0, testLogger())
	require.NoError(t, svc.Ingest(context.Background(), profileURL, domain.DiscoveryJobSpec{Profiles: []string{profileURL}}))

	urls, err := store.ContentSourceURLs(context.Background())
	require.NoError(t, err)
	assert.Len(t, urls, 3)
	assert.Contains(t, urls, musicURL("Song-One", "111"))
	assert.Contains(t, urls, musicURL("Song-Two", "222"))

	// One resolution job per inserted record, none for the duplicate.
	assert.Len(t, dispatcher.dispatched(), 2)
}

func TestIngestEmptyStreamStillCreatesProfile(t *testing.T) {
	store := newTestStore(t)
	runner := newFakeRunner()
	dispatcher := &dispatchRecorder{}

	svc := domain.NewIngestService(runner, store, dispatcher, 0, testLogger())
	require.NoError(t, svc.Ingest(context.Background(), profileURL, domain.DiscoveryJobSpec{Profiles: []string{profileURL}}))

	profile, err := store.GetOrCreateProfile(context.Background(), profileURL)
	require.NoError(t, err)
	assert.NotEmpty(t, profile.ID)

	urls, err := store.ContentSourceURLs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, urls)
	assert.Empty(t, dispatcher.dispatched())
}

func TestIngestSkipsMalformedRecords(t *testing.T) {
	store := newTestStore(t)
	runner := newFakeRunner()
	dispatcher := &dispatchRecorder{}

	runner.records[domain.ActorDiscovery] = append(runner.records[domain.ActorDiscovery],
		rawDiscovery("alice", "no music id", "Broken", ""),
		rawDiscovery("alice", "good", "Song-One", "111"),
	)

	svc := domain.NewIngestService(runner, store, dispatcher, 0, testLogger())
	require.NoError(t, svc.Ingest(context.Background(), profileURL, domain.DiscoveryJobSpec{Profiles: []string{profileURL}}))

	urls, err := store.ContentSourceURLs(context.Background())
	require.NoError(t, err)
	assert.Len(t, urls, 1)
	assert.Len(t, dispatcher.dispatched(), 1)
}

func TestIngestIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	runner := newFakeRunner()
	dispatcher := &dispatchRecorder{}

	records := []struct{ name, id string }{
		{"Song-One", "111"},
		{"Song-Two", "222"},
	}
	for _, r := range records {
		runner.records[domain.ActorDiscovery] = append(runner.records[domain.ActorDiscovery],
			rawDiscovery("alice", "post", r.name, r.id))
	}

	svc := domain.NewIngestService(runner, store, dispatcher, 0, testLogger())
	require.NoError(t, svc.Ingest(context.Background(), profileURL, domain.DiscoveryJobSpec{Profiles: []string{profileURL}}))
	first := dispatcher.dispatched()

	require.NoError(t, svc.Ingest(context.Background(), profileURL, domain.DiscoveryJobSpec{Profiles: []string{profileURL}}))

	urls, err := store.ContentSourceURLs(context.Background())
	require.NoError(t, err)
	assert.Len(t, urls, 2)
	assert.Equal(t, first, dispatcher.dispatched(), "second run must not dispatch anything")
}

func TestIngestSmallChunksCoverWholeStream(t *testing.T) {
	store := newTestStore(t)
	runner := newFakeRunner()
	dispatcher := &dispatchRecorder{}

	for i := 0; i < 7; i++ {
		runner.records[domain.ActorDiscovery] = append(runner.records[domain.ActorDiscovery],
			rawDiscovery("alice", "post", "Song", string(rune('a'+i))))
	}

	svc := domain.NewIngestService(runner, store, dispatcher, 3, testLogger())
	require.NoError(t, svc.Ingest(context.Background(), profileURL, domain.DiscoveryJobSpec{Profiles: []string{profileURL}}))

	urls, err := store.ContentSourceURLs(context.Background())
	require.NoError(t, err)
	assert.Len(t, urls, 7)
	assert.Len(t, dispatcher.dispatched(), 7)
}

func TestIngestSurfacesInvocationFailure(t *testing.T) {
	store := newTestStore(t)
	runner := newFakeRunner()
	runner.errs[domain.ActorDiscovery] = errors.New("platform down")
	dispatcher := &dispatchRecorder{}

	svc := domain.NewIngestService(runner, store, dispatcher, 0, testLogger())
	err := svc.Ingest(context.Background(), profileURL, domain.DiscoveryJobSpec{Profiles: []string{profileURL}})
	require.Error(t, err)

	// The profile is created before the invocation and survives the failure.
	_, err = store.GetOrCreateProfile(context.Background(), profileURL)
	require.NoError(t, err)
	assert.Empty(t, dispatcher.dispatched())
}
