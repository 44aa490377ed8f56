package domain

import (
	"context"
	"encoding/json"
)

// ProfileStore defines persistence operations for profiles.
type ProfileStore interface {
	// GetOrCreateProfile returns the profile for the given source URL,
	// creating it if absent.
	GetOrCreateProfile(ctx context.Context, url string) (*Profile, error)

	// GetProfile returns a profile by id. Returns ErrNotFound if absent.
	GetProfile(ctx context.Context, id string) (*Profile, error)

	// SetProfileArchive records the profile's archive blob reference.
	SetProfileArchive(ctx context.Context, id, ref string) error
}

// ContentStore defines persistence operations for content records.
type ContentStore interface {
	// InsertContentIgnoreConflicts bulk-inserts drafts, silently skipping
	// rows whose source URL already exists. Returns the rows actually
	// inserted.
	InsertContentIgnoreConflicts(ctx context.Context, records []*ContentRecord) ([]*ContentRecord, error)

	// ContentSourceURLs returns the set of all persisted source URLs.
	ContentSourceURLs(ctx context.Context) (map[string]struct{}, error)

	// GetContent returns a content record by id. Returns ErrNotFound if
	// absent.
	GetContent(ctx context.Context, id string) (*ContentRecord, error)

	// UpdateContentStatus transitions a record's status. Transitions not
	// permitted by the status machine are ignored, not errors.
	UpdateContentStatus(ctx context.Context, id string, status ContentStatus) error

	// ListContentByStatus returns records holding any of the given statuses.
	ListContentByStatus(ctx context.Context, statuses ...ContentStatus) ([]*ContentRecord, error)

	// ListContentByProfile returns a profile's content records, newest first.
	ListContentByProfile(ctx context.Context, profileID string) ([]*ContentRecord, error)
}

// MediaStore defines persistence operations for media records.
type MediaStore interface {
	// InsertMediaIgnoreConflicts bulk-inserts drafts, silently skipping rows
	// whose media identifier already exists. Returns the rows actually
	// inserted.
	InsertMediaIgnoreConflicts(ctx context.Context, records []*MediaRecord) ([]*MediaRecord, error)

	// MediaIdentifiers returns the set of all persisted media identifiers.
	MediaIdentifiers(ctx context.Context) (map[string]struct{}, error)

	// PendingMediaByProfile returns the pending media records whose content
	// record chain resolves to the given profile.
	PendingMediaByProfile(ctx context.Context, profileID string) ([]*MediaRecord, error)

	// MarkMediaArchived transitions the given records from pending to
	// archived. Records no longer pending are left untouched.
	MarkMediaArchived(ctx context.Context, ids []string) error
}

// RecordStore is the full persistence boundary used by the pipeline.
type RecordStore interface {
	ProfileStore
	ContentStore
	MediaStore
}

// BlobStore persists archive blobs by name, overwriting any prior blob under
// the same name, and returns a stable reference.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// ActorKind names the external actors the pipeline invokes.
type ActorKind string

const (
	// ActorDiscovery finds content items for a profile.
	ActorDiscovery ActorKind = "discovery"

	// ActorMediaResolve resolves media identifiers for content URLs.
	ActorMediaResolve ActorKind = "media-resolve"

	// ActorMediaFetch stages raw media bytes and reports their identifiers.
	ActorMediaFetch ActorKind = "media-fetch"
)

// ActorRun describes a started actor run.
type ActorRun struct {
	ID string

	// DatasetID identifies the dataset the run streams its records into.
	DatasetID string

	// KeyValueStoreID identifies the run's staging store; media fetch URLs
	// are templated against it without a further round trip.
	KeyValueStoreID string
}

// RecordStream is a lazy sequence of JSON records produced by an actor run.
type RecordStream interface {
	// Next returns the next record, or io.EOF when the stream ends.
	Next(ctx context.Context) (json.RawMessage, error)

	Close() error
}

// ActorRunner invokes external actors. Invocation failures are retried with
// bounded backoff inside the runner and surfaced after exhaustion.
type ActorRunner interface {
	Invoke(ctx context.Context, kind ActorKind, input any) (ActorRun, RecordStream, error)

	// ResolveFetchURL derives the fetch URL for a staged media item. Pure
	// string templating, no actor round trip.
	ResolveFetchURL(storeID, mediaID string) string
}

// ResolutionDispatcher hands a content record off for asynchronous media
// resolution.
type ResolutionDispatcher interface {
	Dispatch(contentID string)
}
