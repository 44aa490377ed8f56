package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DiscoveryJobSpec is the job specification handed to the discovery actor.
// Field names follow the actor's input schema.
type DiscoveryJobSpec struct {
	Profiles                     []string `json:"profiles"`
	Hashtags                     []string `json:"hashtags,omitempty"`
	ResultsPerPage               int      `json:"resultsPerPage,omitempty"`
	SearchSection                string   `json:"searchSection,omitempty"`
	MaxProfilesPerQuery          int      `json:"maxProfilesPerQuery,omitempty"`
	ShouldDownloadVideos         bool     `json:"shouldDownloadVideos"`
	ShouldDownloadCovers         bool     `json:"shouldDownloadCovers"`
	ShouldDownloadSlideshowImages bool    `json:"shouldDownloadSlideshowImages"`
	DisableCheerioBoost          bool     `json:"disableCheerioBoost"`
	DisableEnrichAuthorStats     bool     `json:"disableEnrichAuthorStats"`
}

// mediaResolveJobSpec is the input for the media-resolve actor, built from a
// content record's source URL.
type mediaResolveJobSpec struct {
	Musics                       []string `json:"musics"`
	ShouldDownloadVideos         bool     `json:"shouldDownloadVideos"`
	ShouldDownloadCovers         bool     `json:"shouldDownloadCovers"`
	ShouldDownloadSlideshowImages bool    `json:"shouldDownloadSlideshowImages"`
	DisableCheerioBoost          bool     `json:"disableCheerioBoost"`
	DisableEnrichAuthorStats     bool     `json:"disableEnrichAuthorStats"`
}

// mediaFetchJobSpec is the input for the media-fetch actor.
type mediaFetchJobSpec struct {
	StartURLs []startURL      `json:"startUrls"`
	Proxy     map[string]bool `json:"proxy"`
}

type startURL struct {
	URL string `json:"url"`
}

func newMediaFetchJobSpec(urls []string) mediaFetchJobSpec {
	starts := make([]startURL, len(urls))
	for i, u := range urls {
		starts[i] = startURL{URL: u}
	}
	return mediaFetchJobSpec{
		StartURLs: starts,
		Proxy:     map[string]bool{"useApifyProxy": true},
	}
}

// discoveryRecord is the raw shape of one discovery actor result.
type discoveryRecord struct {
	Text       string `json:"text"`
	AuthorMeta struct {
		Name string `json:"name"`
	} `json:"authorMeta"`
	MusicMeta struct {
		MusicName string `json:"musicName"`
		MusicID   string `json:"musicId"`
	} `json:"musicMeta"`
}

// parseDiscoveryRecord maps a raw discovery record into a content draft for
// the given profile. Records without a music id cannot produce a unique
// source URL and are rejected as malformed.
func parseDiscoveryRecord(profileID string, raw json.RawMessage) (*ContentRecord, error) {
	var rec discoveryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal discovery record: %w", err)
	}
	if rec.MusicMeta.MusicID == "" {
		return nil, fmt.Errorf("discovery record missing musicMeta.musicId")
	}

	sourceURL := fmt.Sprintf(
		"https://www.tiktok.com/music/%s-%s",
		strings.ReplaceAll(rec.MusicMeta.MusicName, " ", "-"),
		rec.MusicMeta.MusicID,
	)

	return NewContentRecord(profileID, rec.AuthorMeta.Name, rec.Text, sourceURL), nil
}

// resolveRecord is the raw shape of one media-resolve actor result.
type resolveRecord struct {
	WebVideoURL string `json:"webVideoUrl"`
}

func parseResolveRecord(raw json.RawMessage) (string, error) {
	var rec resolveRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", fmt.Errorf("unmarshal resolve record: %w", err)
	}
	if rec.WebVideoURL == "" {
		return "", fmt.Errorf("resolve record missing webVideoUrl")
	}
	return rec.WebVideoURL, nil
}

// fetchRecord is the raw shape of one media-fetch actor result. The Video
// field names the staged file, e.g. "7012345.mp4".
type fetchRecord struct {
	Video string `json:"video"`
}

func parseFetchRecord(raw json.RawMessage) (string, error) {
	var rec fetchRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", fmt.Errorf("unmarshal fetch record: %w", err)
	}
	if rec.Video == "" {
		return "", fmt.Errorf("fetch record missing video")
	}
	return strings.TrimSuffix(rec.Video, ".mp4"), nil
}
