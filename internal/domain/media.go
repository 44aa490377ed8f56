package domain

import (
	"time"

	"github.com/google/uuid"
)

// MediaStatus is the lifecycle state of a MediaRecord. A record moves from
// pending to archived exactly once, after its bytes are confirmed written
// into an archive. A failed fetch leaves it pending so a later archive run
// retries it.
type MediaStatus string

const (
	MediaPending  MediaStatus = "pending"
	MediaArchived MediaStatus = "archived"
)

// MediaRecord is one resolved downloadable media item belonging to a
// ContentRecord.
type MediaRecord struct {
	ID        string
	ContentID string

	// MediaID is the platform media identifier, unique across the store.
	MediaID string

	// FetchURL is the resolved URL the raw bytes can be streamed from.
	FetchURL string

	Status    MediaStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewMediaRecord creates a MediaRecord draft in the pending state.
func NewMediaRecord(contentID, mediaID, fetchURL string) *MediaRecord {
	now := time.Now().UTC()
	return &MediaRecord{
		ID:        uuid.NewString(),
		ContentID: contentID,
		MediaID:   mediaID,
		FetchURL:  fetchURL,
		Status:    MediaPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
