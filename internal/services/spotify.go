// Spotify now-playing client
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/get-the-users-currently-playing-track
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/melodyhue/internal/models"
	"github.com/desertthunder/melodyhue/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyAPIURL   = "https://api.spotify.com/v1"

	currentlyPlayingPath = "/me/player/currently-playing"

	// DefaultRetryAfter applies when a 429 carries no usable Retry-After header.
	DefaultRetryAfter = 5 * time.Second
)

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
}

type spotifyShow struct {
	Name      string `json:"name"`
	Publisher string `json:"publisher"`
}

// SpotifyItem is a track, or an episode when currently_playing_type is "episode".
type SpotifyItem struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	DurationMS int64           `json:"duration_ms"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	Images     []SpotifyImage  `json:"images"`
	Show       *spotifyShow    `json:"show"`
}

// SpotifyCurrentlyPlaying is the body of a 200 from /me/player/currently-playing.
type SpotifyCurrentlyPlaying struct {
	Timestamp            int64        `json:"timestamp"`
	ProgressMS           int64        `json:"progress_ms"`
	IsPlaying            bool         `json:"is_playing"`
	CurrentlyPlayingType string       `json:"currently_playing_type"`
	Item                 *SpotifyItem `json:"item"`
}

// Snapshot converts the response into a [models.TrackSnapshot] captured at now.
func (c *SpotifyCurrentlyPlaying) Snapshot(now time.Time) *models.TrackSnapshot {
	if c == nil || c.Item == nil || c.Item.ID == "" {
		return models.StoppedSnapshot(now)
	}

	item := c.Item
	snap := &models.TrackSnapshot{
		TrackID:    item.ID,
		Name:       item.Name,
		Album:      item.Album.Name,
		Duration:   time.Duration(item.DurationMS) * time.Millisecond,
		Progress:   time.Duration(c.ProgressMS) * time.Millisecond,
		IsPlaying:  c.IsPlaying,
		CapturedAt: now,
	}

	for _, a := range item.Artists {
		snap.Artists = append(snap.Artists, a.Name)
	}
	if len(snap.Artists) == 0 && item.Show != nil {
		snap.Artists = []string{item.Show.Publisher}
		snap.Album = item.Show.Name
	}

	images := item.Album.Images
	if len(images) == 0 {
		images = item.Images
	}
	if len(images) > 0 {
		snap.ImageURL = images[0].URL
	}

	return snap
}

// RateLimitError is returned for a 429. It matches [shared.ErrRateLimited] with errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v: retry after %s", shared.ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == shared.ErrRateLimited
}

// PlaybackClient implements [NowPlayingClient] over an [APIService].
type PlaybackClient struct {
	api *APIService
}

func NewPlaybackClient(api *APIService) *PlaybackClient {
	if api == nil {
		api = NewAPIService("", nil)
	}
	return &PlaybackClient{api: api}
}

// CurrentlyPlaying fetches the user's current playback.
func (c *PlaybackClient) CurrentlyPlaying(ctx context.Context, accessToken string, now time.Time) (*models.TrackSnapshot, error) {
	resp, err := c.api.Get(ctx, currentlyPlayingPath, accessToken)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if len(strings.TrimSpace(string(resp.Body))) == 0 {
			return models.StoppedSnapshot(now), nil
		}
		var cp SpotifyCurrentlyPlaying
		if err := json.Unmarshal(resp.Body, &cp); err != nil {
			return nil, fmt.Errorf("%w: failed to decode now playing: %v", shared.ErrTransient, err)
		}
		return cp.Snapshot(now), nil
	case http.StatusNoContent:
		return models.StoppedSnapshot(now), nil
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: ParseRetryAfter(resp.Headers.Get("Retry-After"), now)}
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: now playing returned 401", shared.ErrNotAuthenticated)
	default:
		return nil, fmt.Errorf("%w: now playing returned status %d", shared.ErrTransient, resp.StatusCode)
	}
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
// Missing, malformed or past values yield [DefaultRetryAfter].
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return DefaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return DefaultRetryAfter
}
