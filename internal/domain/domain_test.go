package domain_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blackmichael/tiktok-archiver/internal/domain"
	"github.com/blackmichael/tiktok-archiver/internal/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Repository {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// sliceStream replays a fixed set of records, then io.EOF.
type sliceStream struct {
	records []json.RawMessage
	i       int
}

func (s *sliceStream) Next(context.Context) (json.RawMessage, error) {
	if s.i >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.i]
	s.i++
	return rec, nil
}

func (s *sliceStream) Close() error { return nil }

// fakeRunner serves canned records per actor kind and captures invocations.
type fakeRunner struct {
	mu      sync.Mutex
	records map[domain.ActorKind][]json.RawMessage
	errs    map[domain.ActorKind]error
	run     domain.ActorRun
	inputs  map[domain.ActorKind][]any
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		records: make(map[domain.ActorKind][]json.RawMessage),
		errs:    make(map[domain.ActorKind]error),
		run: domain.ActorRun{
			ID:              "run-1",
			DatasetID:       "ds-1",
			KeyValueStoreID: "kvs-1",
		},
		inputs: make(map[domain.ActorKind][]any),
	}
}

func (f *fakeRunner) Invoke(_ context.Context, kind domain.ActorKind, input any) (domain.ActorRun, domain.RecordStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inputs[kind] = append(f.inputs[kind], input)
	if err := f.errs[kind]; err != nil {
		return domain.ActorRun{}, nil, err
	}
	return f.run, &sliceStream{records: f.records[kind]}, nil
}

func (f *fakeRunner) ResolveFetchURL(storeID, mediaID string) string {
	return fmt.Sprintf("https://files.test/%s/%s", storeID, mediaID)
}

// dispatchRecorder collects dispatched content ids.
type dispatchRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (d *dispatchRecorder) Dispatch(contentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, contentID)
}

func (d *dispatchRecorder) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

func rawDiscovery(author, text, musicName, musicID string) json.RawMessage {
	rec := map[string]any{
		"text":       text,
		"authorMeta": map[string]any{"name": author},
		"musicMeta":  map[string]any{"musicName": musicName, "musicId": musicID},
	}
	data, _ := json.Marshal(rec)
	return data
}

func rawResolve(webVideoURL string) json.RawMessage {
	data, _ := json.Marshal(map[string]any{"webVideoUrl": webVideoURL})
	return data
}

func rawFetch(video string) json.RawMessage {
	data, _ := json.Marshal(map[string]any{"video": video})
	return data
}

func musicURL(musicName, musicID string) string {
	return fmt.Sprintf("https://www.tiktok.com/music/%s-%s", musicName, musicID)
}
