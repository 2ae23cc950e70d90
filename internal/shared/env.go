package shared

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given .env files (".env" when none) without
// overriding variables already set in the process. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// LookupFunc matches [os.LookupEnv].
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides config values from the environment. A nil lookup uses [os.LookupEnv].
func ApplyEnv(c *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	strs := map[string]*string{
		"SPOTIFY_CLIENT_ID":      &c.Spotify.ClientID,
		"SPOTIFY_CLIENT_SECRET":  &c.Spotify.ClientSecret,
		"SPOTIFY_REFRESH_TOKEN":  &c.Spotify.RefreshToken,
		"SPOTIFY_REDIRECT_URI":   &c.Spotify.RedirectURI,
		"SPOTIFY_TOKENS_FILE":    &c.Persistence.Path,
		"LOG_LEVEL":              &c.Logging.Level,
		"DEFAULT_FALLBACK_COLOR": &c.Colors.Fallback,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	bools := map[string]*bool{
		"SPOTIFY_SHOW_DIALOG":  &c.Spotify.ShowDialog,
		"VERBOSE_SPOTIFY_LOGS": &c.Logging.Verbose,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok && v != "" {
			*dst = parseFlag(v)
		}
	}

	durations := map[string]*time.Duration{
		"SPOTIFY_POLLING_INTERVAL": &c.Polling.Interval,
		"SPOTIFY_REQUEST_INTERVAL": &c.Polling.MinRequestInterval,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := ParseSeconds(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		*dst = d
	}

	return nil
}

// ParseSeconds accepts a Go duration ("2500ms") or a bare number of seconds ("2.5").
func ParseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative interval %q", v)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative interval %q", v)
	}
	return d, nil
}

func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
