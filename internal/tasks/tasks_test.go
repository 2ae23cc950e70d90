package tasks

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melodyhue/internal/models"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// fakeTokens implements [TokenManager] without any network.
type fakeTokens struct {
	mu          sync.Mutex
	authed      bool
	userGrant   bool
	token       string
	err         error
	invalidated int
	loggedOut   bool
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{authed: true, userGrant: true, token: "access"}
}

func (f *fakeTokens) IsAuthenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authed
}

func (f *fakeTokens) HasUserGrant() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userGrant
}

func (f *fakeTokens) AccessToken(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.err
}

func (f *fakeTokens) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

func (f *fakeTokens) Configure(context.Context, string, string, string) bool { return f.IsAuthenticated() }
func (f *fakeTokens) Enabled() bool                                         { return f.IsAuthenticated() }
func (f *fakeTokens) AuthorizationURL(state string) string                  { return "https://auth.test/?state=" + state }
func (f *fakeTokens) ExchangeAuthorizationCode(_ context.Context, code string) bool {
	return code == "good"
}

func (f *fakeTokens) Logout() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut, f.authed, f.userGrant = true, false, false
	return true
}

func (f *fakeTokens) Credentials() models.Credentials {
	return models.Credentials{ClientID: "id", ClientSecret: "secret", AccessToken: f.token, Enabled: f.IsAuthenticated()}
}

type playResult struct {
	snap *models.TrackSnapshot
	err  error
}

// fakeClient replays a script of results; the last one repeats.
type fakeClient struct {
	mu     sync.Mutex
	script []playResult
	calls  atomic.Int32
	onCall func(n int)
}

func (f *fakeClient) CurrentlyPlaying(_ context.Context, _ string, now time.Time) (*models.TrackSnapshot, error) {
	n := int(f.calls.Add(1))
	if f.onCall != nil {
		f.onCall(n)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) == 0 {
		return models.StoppedSnapshot(now), nil
	}
	r := f.script[0]
	if len(f.script) > 1 {
		f.script = f.script[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	snap := *r.snap
	snap.CapturedAt = now
	return &snap, nil
}

func (f *fakeClient) push(results ...playResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, results...)
}

type fakeExtractor struct {
	colors  map[string]models.RGB
	err     error
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeExtractor) Extract(_ context.Context, url string) (models.RGB, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return models.RGB{}, f.err
	}
	return f.colors[url], nil
}

type fakeSource struct {
	mu   sync.Mutex
	snap *models.TrackSnapshot
}

func (f *fakeSource) Current(context.Context) *models.TrackSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) set(s *models.TrackSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = s
}

func track(id string, playing bool) *models.TrackSnapshot {
	return &models.TrackSnapshot{
		TrackID:   id,
		Name:      "Song " + id,
		Artists:   []string{"Artist " + id},
		IsPlaying: playing,
		ImageURL:  "https://img.test/" + id,
	}
}

func playing(id string) playResult { return playResult{snap: track(id, true)} }
func paused(id string) playResult  { return playResult{snap: track(id, false)} }
func stopped() playResult          { return playResult{snap: &models.TrackSnapshot{}} }

// kindRecorder collects transition kinds in delivery order.
type kindRecorder struct {
	mu    sync.Mutex
	kinds []TransitionKind
}

func (r *kindRecorder) OnTransition(_ context.Context, t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, t.Kind)
}

func (r *kindRecorder) got() []TransitionKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TransitionKind(nil), r.kinds...)
}
