package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melodyhue/internal/models"
	"github.com/desertthunder/melodyhue/internal/services"
	"github.com/desertthunder/melodyhue/internal/shared"
	"golang.org/x/time/rate"
)

const (
	DefaultPollInterval       = 3 * time.Second
	DefaultMinRequestInterval = 3 * time.Second
	DefaultRequestTimeout     = 3 * time.Second
	DefaultTickInterval       = time.Second
	DefaultPanicPause         = 10 * time.Second
)

// TokenProvider is the part of [services.TokenStore] the poller needs.
type TokenProvider interface {
	IsAuthenticated() bool
	HasUserGrant() bool
	AccessToken(ctx context.Context) (string, error)
	Invalidate()
}

// PollerOptions configures a [Poller]. Zero durations use the package defaults;
// a negative MinRequestInterval disables the request floor.
type PollerOptions struct {
	Interval           time.Duration
	MinRequestInterval time.Duration
	RequestTimeout     time.Duration
	TickInterval       time.Duration
	PanicPause         time.Duration

	Now      services.Clock
	Logger   *log.Logger
	Verbose  bool
	Counters *Counters
}

// Poller periodically asks Spotify what is playing and classifies what changed.
//
// The latest snapshot is published through an atomic pointer and never mutated afterwards.
// Transitions are delivered to listeners outside the poll lock, one poll at a time.
type Poller struct {
	tokens   TokenProvider
	client   services.NowPlayingClient
	counters *Counters
	logger   *log.Logger
	now      services.Clock
	verbose  bool

	interval   time.Duration
	timeout    time.Duration
	tick       time.Duration
	panicPause time.Duration

	pollMu       sync.Mutex
	lastPoll     time.Time
	backoffUntil time.Time
	limiter      *rate.Limiter

	latest atomic.Pointer[models.TrackSnapshot]

	// held from the end of a poll until its listeners return, so deliveries keep poll order
	dispatchMu  sync.Mutex
	listenersMu sync.RWMutex
	listeners   []TransitionListener
}

func NewPoller(tokens TokenProvider, client services.NowPlayingClient, opts PollerOptions) *Poller {
	p := &Poller{
		tokens:     tokens,
		client:     client,
		counters:   opts.Counters,
		logger:     shared.WithLogger(opts.Logger, "component", "poller"),
		now:        opts.Now,
		verbose:    opts.Verbose,
		interval:   orDefault(opts.Interval, DefaultPollInterval),
		timeout:    orDefault(opts.RequestTimeout, DefaultRequestTimeout),
		tick:       orDefault(opts.TickInterval, DefaultTickInterval),
		panicPause: orDefault(opts.PanicPause, DefaultPanicPause),
	}
	if p.counters == nil {
		p.counters = &Counters{}
	}
	if p.now == nil {
		p.now = time.Now
	}

	floor := opts.MinRequestInterval
	if floor == 0 {
		floor = DefaultMinRequestInterval
	}
	if floor > 0 {
		p.limiter = rate.NewLimiter(rate.Every(floor), 1)
	}
	return p
}

// Subscribe registers a listener for future transitions.
func (p *Poller) Subscribe(l TransitionListener) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Latest returns the most recently published snapshot without polling; nil before the first successful poll.
func (p *Poller) Latest() *models.TrackSnapshot {
	return p.latest.Load()
}

// Current polls when the interval, backoff window and request floor allow it, notifies listeners of any
// transition, and returns the latest snapshot. Failures are counted and logged, never returned.
func (p *Poller) Current(ctx context.Context) *models.TrackSnapshot {
	if t, changed := p.poll(ctx); changed {
		p.dispatch(ctx, t)
	}
	return p.Latest()
}

// Run drives the poll loop until ctx is cancelled. A panic inside a tick is logged and followed
// by a pause; it never ends the loop.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	p.logger.Debug("poller started", "interval", p.interval, "tick", p.tick)
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("poller stopped")
			return ctx.Err()
		case <-ticker.C:
		}

		if err := p.safeTick(ctx); err != nil {
			p.logger.Error("poll tick failed, pausing", "error", err, "pause", p.panicPause)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.panicPause):
			}
		}
	}
}

func (p *Poller) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	p.Current(ctx)
	return nil
}

// poll performs at most one provider call. When it yields a transition, dispatchMu is
// acquired before the poll lock is released and the caller must release it.
func (p *Poller) poll(ctx context.Context) (t Transition, changed bool) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	snap, ok := p.fetch(ctx)
	if !ok {
		return Transition{}, false
	}

	prev := p.latest.Swap(snap)
	kind := Classify(prev, snap)
	if kind == NoChange {
		return Transition{}, false
	}

	p.dispatchMu.Lock()
	return Transition{Kind: kind, Previous: prev, Current: snap, At: snap.CapturedAt}, true
}

// fetch applies the skip rules and calls the provider. Must hold pollMu.
func (p *Poller) fetch(ctx context.Context) (*models.TrackSnapshot, bool) {
	now := p.now()

	switch {
	case !p.tokens.IsAuthenticated():
		return nil, false
	case !p.tokens.HasUserGrant():
		// app-only tokens cannot read a user's playback
		return nil, false
	case now.Before(p.backoffUntil):
		return nil, false
	case !p.lastPoll.IsZero() && now.Sub(p.lastPoll) < p.interval:
		return nil, false
	case p.limiter != nil && !p.limiter.AllowN(now, 1):
		return nil, false
	}
	p.lastPoll = now

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	token, err := p.tokens.AccessToken(reqCtx)
	if err != nil {
		p.counters.pollErrors.Add(1)
		p.logger.Warn("no access token for now playing", "error", err)
		return nil, false
	}

	snap, err := p.client.CurrentlyPlaying(reqCtx, token, now)
	if err == nil {
		return snap, true
	}

	var rle *services.RateLimitError
	switch {
	case errors.As(err, &rle):
		p.backoffUntil = now.Add(rle.RetryAfter)
		p.lastPoll = time.Time{}
		p.counters.rateLimited.Add(1)
		p.logger.Warn("rate limited by spotify", "retry_after", rle.RetryAfter, "until", p.backoffUntil)
	case errors.Is(err, shared.ErrNotAuthenticated):
		p.tokens.Invalidate()
		p.counters.pollErrors.Add(1)
		p.logger.Warn("access token rejected, re-acquiring on next poll")
	default:
		p.counters.pollErrors.Add(1)
		p.logger.Warn("now playing request failed", "error", err)
	}
	return nil, false
}

func (p *Poller) dispatch(ctx context.Context, t Transition) {
	defer p.dispatchMu.Unlock()

	p.logTransition(t)

	p.listenersMu.RLock()
	listeners := append([]TransitionListener(nil), p.listeners...)
	p.listenersMu.RUnlock()

	for _, l := range listeners {
		p.notify(ctx, l, t)
	}
}

func (p *Poller) notify(ctx context.Context, l TransitionListener, t Transition) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("transition listener panicked", "kind", t.Kind, "panic", r)
		}
	}()
	l.OnTransition(ctx, t)
}

func (p *Poller) logTransition(t Transition) {
	logf := p.logger.Debug
	if p.verbose {
		logf = p.logger.Info
	}

	cur := t.Current
	switch t.Kind {
	case TrackChanged:
		logf("track changed", "track", cur.Name, "artist", cur.Artist(), "id", cur.TrackID, "playing", cur.IsPlaying)
	case PlaystateChanged:
		if cur.IsPlaying {
			logf("playback resumed", "track", cur.Name)
		} else {
			logf("playback paused", "track", cur.Name)
		}
	case Stopped:
		logf("playback stopped")
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
