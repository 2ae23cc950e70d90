package tasks

import (
	"sync/atomic"

	"github.com/desertthunder/melodyhue/internal/models"
)

// Counters are the process-wide, monotonic integration counters shared by the poller and the color cache.
type Counters struct {
	requests      atomic.Uint64
	cacheHits     atomic.Uint64
	extractions   atomic.Uint64
	errors        atomic.Uint64
	pollErrors    atomic.Uint64
	rateLimited   atomic.Uint64
	invalidations atomic.Uint64
}

// Snapshot copies the current values.
func (c *Counters) Snapshot() models.Stats {
	return models.Stats{
		Requests:      c.requests.Load(),
		CacheHits:     c.cacheHits.Load(),
		Extractions:   c.extractions.Load(),
		Errors:        c.errors.Load(),
		PollErrors:    c.pollErrors.Load(),
		RateLimited:   c.rateLimited.Load(),
		Invalidations: c.invalidations.Load(),
	}
}
