// package services talks to Spotify: the token lifecycle, the now-playing endpoint and artwork downloads
package services

import (
	"context"
	"time"

	"github.com/desertthunder/melodyhue/internal/models"
)

// RotationListener is notified when Spotify issues a refresh token different from the one in use,
// so the owner can persist it outside the token file (e.g. back into config.toml).
type RotationListener interface {
	RefreshTokenRotated(refreshToken string)
}

// RotationListenerFunc adapts a function to [RotationListener].
type RotationListenerFunc func(refreshToken string)

func (f RotationListenerFunc) RefreshTokenRotated(refreshToken string) { f(refreshToken) }

// NowPlayingClient fetches the user's current playback.
type NowPlayingClient interface {
	CurrentlyPlaying(ctx context.Context, accessToken string, now time.Time) (*models.TrackSnapshot, error)
}

// Extractor computes the dominant color of the artwork at a URL.
type Extractor interface {
	Extract(ctx context.Context, imageURL string) (models.RGB, error)
}

// Clock returns the current time; tests substitute a manual clock.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
