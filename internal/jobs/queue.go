// Package jobs runs media resolution jobs on a bounded worker pool.
package jobs

import (
	"context"
	"log/slog"
	"sync"
)

// Resolver is the job body executed for each dispatched content record.
type Resolver interface {
	Resolve(ctx context.Context, contentID string) error
}

// Queue dispatches content record ids to resolution workers. Dispatch is
// asynchronous so ingestion never blocks on resolution; delivery is
// at-least-once and relies on the store's idempotent writes.
type Queue struct {
	resolver Resolver
	workers  int
	buffer   chan string
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewQueue creates a Queue with the given worker count.
func NewQueue(resolver Resolver, workers int, logger *slog.Logger) *Queue {
	if workers <= 0 {
		workers = 4
	}
	return &Queue{
		resolver: resolver,
		workers:  workers,
		buffer:   make(chan string, 1024),
		logger:   logger,
	}
}

// Start launches the workers. They drain the queue until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Dispatch enqueues a content record for resolution. It blocks briefly if
// the buffer is full, which backpressures ingestion rather than dropping
// work.
func (q *Queue) Dispatch(contentID string) {
	q.buffer <- contentID
}

// Wait blocks until all workers have exited. Call after cancelling the
// context passed to Start.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case contentID := <-q.buffer:
			if err := q.resolver.Resolve(ctx, contentID); err != nil {
				q.logger.Error("resolution job failed", "content_id", contentID, "error", err)
			}
		}
	}
}
