package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melodyhue/internal/models"
	"github.com/desertthunder/melodyhue/internal/services"
	"github.com/desertthunder/melodyhue/internal/shared"
	"golang.org/x/sync/singleflight"
)

const DefaultCacheTTL = 5 * time.Second

// SnapshotSource provides the current playback, polling if due. Implemented by [Poller].
type SnapshotSource interface {
	Current(ctx context.Context) *models.TrackSnapshot
}

// ExtractionListener is told about every successfully extracted color.
type ExtractionListener interface {
	ColorExtracted(ctx context.Context, snap *models.TrackSnapshot, c models.RGB)
}

type ColorCacheOptions struct {
	TTL      time.Duration
	Fallback *models.RGB // nil uses [models.DefaultFallback]
	Now      services.Clock
	Logger   *log.Logger
	Verbose  bool
	Counters *Counters
	Listener ExtractionListener
}

// ColorCache maps track ids to extracted artwork colors.
//
// Only the active track is ever read, and the whole map is dropped on every track change.
// Concurrent misses for one track share a single extraction.
type ColorCache struct {
	source    SnapshotSource
	extractor services.Extractor
	listener  ExtractionListener
	counters  *Counters
	logger    *log.Logger
	now       services.Clock
	ttl       time.Duration
	verbose   bool

	mu        sync.Mutex
	entries   map[string]models.CacheEntry
	activeID  string
	activeURL string
	fallback  models.RGB

	// bumped on every track change; extractions started under an older value are discarded
	generation uint64

	group singleflight.Group
}

func NewColorCache(source SnapshotSource, extractor services.Extractor, opts ColorCacheOptions) *ColorCache {
	c := &ColorCache{
		source:    source,
		extractor: extractor,
		listener:  opts.Listener,
		counters:  opts.Counters,
		logger:    shared.WithLogger(opts.Logger, "component", "colors"),
		now:       opts.Now,
		ttl:       orDefault(opts.TTL, DefaultCacheTTL),
		verbose:   opts.Verbose,
		entries:   make(map[string]models.CacheEntry),
		fallback:  models.DefaultFallback,
	}
	if opts.Fallback != nil {
		c.fallback = *opts.Fallback
	}
	if c.counters == nil {
		c.counters = &Counters{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Color returns the dominant color of the playing track's artwork, or the fallback when nothing
// is playing or extraction fails.
func (c *ColorCache) Color(ctx context.Context) models.RGB {
	c.counters.requests.Add(1)
	return c.colorFor(ctx, c.source.Current(ctx))
}

// OnTransition implements [TransitionListener].
func (c *ColorCache) OnTransition(ctx context.Context, t Transition) {
	cur := t.Current
	switch t.Kind {
	case TrackChanged:
		c.mu.Lock()
		clear(c.entries)
		c.generation++
		c.activeID, c.activeURL = cur.TrackID, cur.ImageURL
		c.mu.Unlock()
		c.counters.invalidations.Add(1)

		if cur.IsPlaying {
			c.colorFor(ctx, cur)
		}
	case PlaystateChanged:
		if cur.Playing() {
			c.colorFor(ctx, cur)
		}
	}
}

// Fallback returns the color served when nothing usable is playing.
func (c *ColorCache) Fallback() models.RGB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fallback
}

func (c *ColorCache) SetFallback(rgb models.RGB) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback = rgb
}

// Active returns the track id and artwork URL set by the latest track change.
func (c *ColorCache) Active() (trackID, imageURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID, c.activeURL
}

// Len reports how many entries are cached.
func (c *ColorCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ColorCache) colorFor(ctx context.Context, snap *models.TrackSnapshot) models.RGB {
	if !snap.Playing() {
		return c.Fallback()
	}

	if entry, ok := c.lookup(snap.TrackID); ok {
		c.counters.cacheHits.Add(1)
		return entry.Color
	}

	rgb, err := c.extract(ctx, snap)
	if err != nil {
		return c.Fallback()
	}
	return rgb
}

func (c *ColorCache) lookup(trackID string) (models.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[trackID]
	if !ok || !entry.Fresh(c.now(), c.ttl) {
		return models.CacheEntry{}, false
	}
	return entry, true
}

func (c *ColorCache) extract(ctx context.Context, snap *models.TrackSnapshot) (models.RGB, error) {
	v, err, _ := c.group.Do(snap.TrackID, func() (any, error) {
		// a shared call may have just finished for this track
		if entry, ok := c.lookup(snap.TrackID); ok {
			return entry.Color, nil
		}

		c.mu.Lock()
		gen := c.generation
		c.mu.Unlock()

		c.counters.extractions.Add(1)
		if snap.ImageURL == "" {
			c.counters.errors.Add(1)
			c.logger.Warn("no artwork for track", "track", snap.Name, "id", snap.TrackID)
			return nil, fmt.Errorf("%w: no artwork url", shared.ErrExtraction)
		}

		rgb, err := c.extractor.Extract(context.WithoutCancel(ctx), snap.ImageURL)
		if err != nil {
			c.counters.errors.Add(1)
			c.logger.Warn("color extraction failed", "track", snap.Name, "error", err)
			return nil, err
		}

		c.mu.Lock()
		stale := gen != c.generation
		if !stale {
			c.entries[snap.TrackID] = models.CacheEntry{TrackID: snap.TrackID, Color: rgb, ExtractedAt: c.now()}
		}
		c.mu.Unlock()

		if stale {
			c.logger.Debug("discarding color for previous track", "track", snap.Name, "color", rgb.Hex())
			return rgb, nil
		}

		logf := c.logger.Debug
		if c.verbose {
			logf = c.logger.Info
		}
		logf("extracted color", "track", snap.Name, "color", rgb.Hex())

		if c.listener != nil {
			c.notify(ctx, snap, rgb)
		}
		return rgb, nil
	})
	if err != nil {
		return models.RGB{}, err
	}
	return v.(models.RGB), nil
}

func (c *ColorCache) notify(ctx context.Context, snap *models.TrackSnapshot, rgb models.RGB) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("extraction listener panicked", "panic", r)
		}
	}()
	c.listener.ColorExtracted(ctx, snap, rgb)
}
