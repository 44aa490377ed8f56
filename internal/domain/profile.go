package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile is the logical content owner that content records and archives are
// grouped under. It is created on the first scrape request for a new URL and
// never deleted by the pipeline.
type Profile struct {
	// ID is the stable unique identifier.
	ID string

	// URL is the profile's source URL.
	URL string

	// ArchiveRef points at the profile's archive blob. Empty until the first
	// archive build completes.
	ArchiveRef string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProfile creates a Profile for the given source URL.
func NewProfile(url string) *Profile {
	now := time.Now().UTC()
	return &Profile{
		ID:        uuid.NewString(),
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Name returns the short profile name used for archive entry paths, derived
// from the last segment of the profile URL.
func (p *Profile) Name() string {
	trimmed := strings.TrimRight(p.URL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
