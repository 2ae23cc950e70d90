// package models defines the data model for the now-playing color integration
package models

import (
	"strings"
	"time"
)

// Credentials is the OAuth state for the provider.
//
// Enabled implies AccessToken is set. ExpiresAt already includes the expiry skew.
type Credentials struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Enabled      bool
}

// Configured reports whether a client identity has been stored.
func (c Credentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Valid reports whether the access token can be used at now.
func (c Credentials) Valid(now time.Time) bool {
	return c.AccessToken != "" && now.Before(c.ExpiresAt)
}

// TrackSnapshot is a single "now playing" result.
//
// An empty TrackID means nothing is playing (the provider answered 204).
type TrackSnapshot struct {
	TrackID    string
	Name       string
	Artists    []string
	Album      string
	Duration   time.Duration
	Progress   time.Duration
	IsPlaying  bool
	ImageURL   string
	CapturedAt time.Time
}

// StoppedSnapshot returns the snapshot used when the provider reports nothing playing.
func StoppedSnapshot(at time.Time) *TrackSnapshot {
	return &TrackSnapshot{Name: "No music playing", CapturedAt: at}
}

// Stopped reports whether the snapshot carries no track.
func (s *TrackSnapshot) Stopped() bool {
	return s == nil || s.TrackID == ""
}

// Playing reports whether a track is present and playing.
func (s *TrackSnapshot) Playing() bool {
	return !s.Stopped() && s.IsPlaying
}

// Artist joins the artist list the way the overlay displays it.
func (s *TrackSnapshot) Artist() string {
	if s == nil {
		return ""
	}
	return strings.Join(s.Artists, ", ")
}

// CacheEntry is an extracted color for one track.
type CacheEntry struct {
	TrackID     string
	Color       RGB
	ExtractedAt time.Time
}

// Fresh reports whether the entry is still within ttl at now.
func (e CacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.ExtractedAt) < ttl
}

// Stats holds lifetime counters. Errors counts extraction failures, PollErrors counts
// provider and network failures; rate limiting is tracked apart from both.
type Stats struct {
	Requests      uint64 `json:"requests"`
	CacheHits     uint64 `json:"cache_hits"`
	Extractions   uint64 `json:"extractions"`
	Errors        uint64 `json:"errors"`
	PollErrors    uint64 `json:"poll_errors"`
	RateLimited   uint64 `json:"rate_limited"`
	Invalidations uint64 `json:"invalidations"`
}

// Play is a persisted play history row.
type Play struct {
	ID        string    `json:"id"`
	Sequence  int       `json:"-"`
	TrackID   string    `json:"track_id"`
	Name      string    `json:"name"`
	Artist    string    `json:"artist"`
	Album     string    `json:"album"`
	ImageURL  string    `json:"image_url,omitempty"`
	ColorHex  string    `json:"color,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// NewPlay builds a [Play] from a snapshot that just became the active track.
func NewPlay(id string, s *TrackSnapshot) *Play {
	return &Play{
		ID:        id,
		TrackID:   s.TrackID,
		Name:      s.Name,
		Artist:    s.Artist(),
		Album:     s.Album,
		ImageURL:  s.ImageURL,
		StartedAt: s.CapturedAt,
	}
}
