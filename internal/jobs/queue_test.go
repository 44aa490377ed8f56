package jobs_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/blackmichael/tiktok-archiver/internal/jobs"
)

type countingResolver struct {
	mu   sync.Mutex
	seen map[string]int
	err  error
	done chan string
}

func newCountingResolver() *countingResolver {
	return &countingResolver{
		seen: make(map[string]int),
		done: make(chan string, 64),
	}
}

func (r *countingResolver) Resolve(_ context.Context, contentID string) error {
	r.mu.Lock()
	r.seen[contentID]++
	r.mu.Unlock()
	r.done <- contentID
	return r.err
}

func (r *countingResolver) count(contentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[contentID]
}

func waitFor(t *testing.T, done <-chan string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d jobs completed", i, n)
		}
	}
}

func TestQueueDeliversEveryDispatch(t *testing.T) {
	resolver := newCountingResolver()
	q := jobs.NewQueue(resolver, 3, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		q.Dispatch(id)
	}
	waitFor(t, resolver.done, len(ids))

	cancel()
	q.Wait()

	for _, id := range ids {
		assert.Equal(t, 1, resolver.count(id))
	}
}

func TestQueueSurvivesResolverErrors(t *testing.T) {
	resolver := newCountingResolver()
	resolver.err = errors.New("resolution exploded")
	q := jobs.NewQueue(resolver, 1, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	q.Dispatch("a")
	q.Dispatch("b")
	waitFor(t, resolver.done, 2)

	cancel()
	q.Wait()

	assert.Equal(t, 1, resolver.count("a"))
	assert.Equal(t, 1, resolver.count("b"))
}

func TestQueueStopsOnCancel(t *testing.T) {
	resolver := newCountingResolver()
	q := jobs.NewQueue(resolver, 2, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()

	finished := make(chan struct{})
	go func() {
		q.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not exit after cancellation")
	}
}
