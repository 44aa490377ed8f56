package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContentStatus is the lifecycle state of a ContentRecord. Transitions are
// monotonic: created -> pending -> finished|failed. Out-of-order writes are
// ignored by the store.
type ContentStatus string

const (
	ContentCreated  ContentStatus = "created"
	ContentPending  ContentStatus = "pending"
	ContentFailed   ContentStatus = "failed"
	ContentFinished ContentStatus = "finished"
)

// Predecessors returns the statuses a record may hold immediately before
// transitioning to s.
func (s ContentStatus) Predecessors() []ContentStatus {
	switch s {
	case ContentPending:
		return []ContentStatus{ContentCreated}
	case ContentFinished, ContentFailed:
		return []ContentStatus{ContentPending}
	default:
		return nil
	}
}

// ContentRecord is one discovered content item pending media resolution.
type ContentRecord struct {
	ID        string
	ProfileID string

	// Author is the content author's display name.
	Author string

	// Text is the content's body text.
	Text string

	// SourceURL is the content-derived source URL, unique across the store.
	SourceURL string

	Status    ContentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewContentRecord creates a ContentRecord draft in the created state.
func NewContentRecord(profileID, author, text, sourceURL string) *ContentRecord {
	now := time.Now().UTC()
	return &ContentRecord{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		Author:    author,
		Text:      text,
		SourceURL: sourceURL,
		Status:    ContentCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
