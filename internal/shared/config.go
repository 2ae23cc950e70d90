package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "config.toml"

// DefaultTokenPath is where tokens are written when persistence.path is empty.
const DefaultTokenPath = "instance/spotify_tokens.json"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Spotify     SpotifyConfig     `toml:"spotify"`
	Polling     PollingConfig     `toml:"polling"`
	Persistence PersistenceConfig `toml:"persistence"`
	Colors      ColorsConfig      `toml:"colors"`
	Logging     LoggingConfig     `toml:"logging"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
}

// SpotifyConfig contains Spotify API credentials and endpoints.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	RefreshToken string `toml:"refresh_token"`
	ShowDialog   bool   `toml:"show_dialog"`
	AuthURL      string `toml:"auth_url"`
	TokenURL     string `toml:"token_url"`
	APIURL       string `toml:"api_url"`
}

// PollingConfig controls how often the now-playing endpoint is called.
type PollingConfig struct {
	Interval           time.Duration `toml:"interval"`
	MinRequestInterval time.Duration `toml:"min_request_interval"`
	RequestTimeout     time.Duration `toml:"request_timeout"`
}

// PersistenceConfig controls the token snapshot file.
type PersistenceConfig struct {
	Enabled     bool     `toml:"enabled"`
	Path        string   `toml:"path"`
	LegacyPaths []string `toml:"legacy_paths"`
}

// ColorsConfig configures the color cache and the extractor.
type ColorsConfig struct {
	Fallback string        `toml:"fallback"`
	CacheTTL time.Duration `toml:"cache_ttl"`
	Clusters int           `toml:"clusters"`
}

type LoggingConfig struct {
	Verbose bool   `toml:"verbose"`
	Level   string `toml:"level"`
}

// DatabaseConfig contains play history database settings.
type DatabaseConfig struct {
	Path    string `toml:"path"`
	History bool   `toml:"history"`
}

// ServerConfig contains settings for the local OAuth callback listener.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port for [net/http.Server].
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ReadPaths returns the ordered, de-duplicated candidate paths for a persisted token snapshot.
func (p PersistenceConfig) ReadPaths() []string {
	paths := make([]string, 0, len(p.LegacyPaths)+1)
	if p.Path != "" {
		paths = append(paths, p.Path)
	}
	for _, lp := range p.LegacyPaths {
		if lp != "" && !slices.Contains(paths, lp) {
			paths = append(paths, lp)
		}
	}
	return paths
}

// WritePath returns the single path token snapshots are written to.
func (p PersistenceConfig) WritePath() string {
	if p.Path != "" {
		return p.Path
	}
	return DefaultTokenPath
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values from [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes the config back to path. The file holds client secrets so it is
// written owner-readable only.
func SaveConfig(path string, config *Config) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Validate reports the first setting that would make the integration misbehave.
func (c *Config) Validate() error {
	switch {
	case c.Polling.Interval <= 0:
		return fmt.Errorf("%w: polling.interval must be positive", ErrInvalidConfig)
	case c.Polling.MinRequestInterval < 0:
		return fmt.Errorf("%w: polling.min_request_interval must not be negative", ErrInvalidConfig)
	case c.Polling.RequestTimeout <= 0:
		return fmt.Errorf("%w: polling.request_timeout must be positive", ErrInvalidConfig)
	case c.Colors.CacheTTL <= 0:
		return fmt.Errorf("%w: colors.cache_ttl must be positive", ErrInvalidConfig)
	case c.Colors.Clusters < 1:
		return fmt.Errorf("%w: colors.clusters must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// Configured reports whether client credentials are present and not the example placeholders.
func (s SpotifyConfig) Configured() bool {
	if s.ClientID == "" || s.ClientSecret == "" {
		return false
	}
	return s.ClientID != "your_spotify_client_id" && s.ClientSecret != "your_spotify_client_secret"
}
