package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"
)

// PersistedTokens is the on-disk token snapshot.
type PersistedTokens struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresAt    float64 `json:"expires_at"` // unix seconds
}

// Expiry converts ExpiresAt to a [time.Time].
func (p PersistedTokens) Expiry() time.Time {
	if p.ExpiresAt <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(p.ExpiresAt)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// TokenFile reads token snapshots from a list of candidate paths and writes them to one.
type TokenFile struct {
	writePath string
	readPaths []string
}

// NewTokenFile returns a TokenFile writing to writePath. readPaths are tried in order by Load;
// when empty, only writePath is read.
func NewTokenFile(writePath string, readPaths ...string) *TokenFile {
	if len(readPaths) == 0 {
		readPaths = []string{writePath}
	}
	return &TokenFile{writePath: writePath, readPaths: readPaths}
}

func (f *TokenFile) WritePath() string { return f.writePath }

// Load returns the first readable snapshot and the path it came from.
//
// A missing file is not an error. When no candidate could be read, the errors from unreadable or malformed
// candidates are joined; (nil, "", nil) means none exist.
func (f *TokenFile) Load() (*PersistedTokens, string, error) {
	var errs []error
	for _, path := range f.readPaths {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", path, err))
			continue
		}

		var tokens PersistedTokens
		if err := json.Unmarshal(data, &tokens); err != nil {
			errs = append(errs, fmt.Errorf("parse %s: %w", path, err))
			continue
		}
		return &tokens, path, nil
	}
	return nil, "", errors.Join(errs...)
}

// Save writes the snapshot to the write path atomically with owner-only permissions.
func (f *TokenFile) Save(tokens PersistedTokens) error {
	if dir := filepath.Dir(f.writePath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}

	tmp := f.writePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write tokens: %w", err)
	}
	if err := os.Rename(tmp, f.writePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return os.Chmod(f.writePath, 0600)
}

// Remove deletes the written snapshot. A missing file is not an error.
func (f *TokenFile) Remove() error {
	if err := os.Remove(f.writePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}
