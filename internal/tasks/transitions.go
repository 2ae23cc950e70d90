package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/melodyhue/internal/models"
)

// TransitionKind classifies the change between two consecutive snapshots.
type TransitionKind int

const (
	NoChange TransitionKind = iota
	TrackChanged
	PlaystateChanged
	Stopped
)

func (k TransitionKind) String() string {
	switch k {
	case NoChange:
		return "no_change"
	case TrackChanged:
		return "track_changed"
	case PlaystateChanged:
		return "playstate_changed"
	case Stopped:
		return "stopped"
	default:
		return ""
	}
}

// Transition is emitted once per poll whose snapshot differs from the previous one.
type Transition struct {
	Kind     TransitionKind
	Previous *models.TrackSnapshot // nil on the first poll
	Current  *models.TrackSnapshot
	At       time.Time
}

// Message is a human-readable line for logs and the watch command.
func (t Transition) Message() string {
	cur := t.Current
	switch t.Kind {
	case TrackChanged:
		return fmt.Sprintf("Now playing: %s - %s", cur.Artist(), cur.Name)
	case PlaystateChanged:
		if cur.IsPlaying {
			return fmt.Sprintf("Resumed: %s - %s", cur.Artist(), cur.Name)
		}
		return fmt.Sprintf("Paused: %s - %s", cur.Artist(), cur.Name)
	case Stopped:
		return "Playback stopped"
	default:
		return ""
	}
}

// Classify compares consecutive snapshots on (track id, is playing).
//
// A new non-empty track id wins over a stop, which wins over a play/pause flip.
// A previous stop counts as an empty id, so A → stopped → A reports [TrackChanged] again.
func Classify(prev, cur *models.TrackSnapshot) TransitionKind {
	if cur == nil {
		return NoChange
	}

	var prevID string
	if prev != nil {
		prevID = prev.TrackID
	}

	switch {
	case cur.TrackID != "" && cur.TrackID != prevID:
		return TrackChanged
	case cur.TrackID == "" && prevID != "":
		return Stopped
	case prev != nil && cur.IsPlaying != prev.IsPlaying:
		return PlaystateChanged
	default:
		return NoChange
	}
}

// TransitionListener receives transitions synchronously, in poll order.
//
// Implementations must not call [Poller.Current]; the snapshot they need is [Transition.Current].
type TransitionListener interface {
	OnTransition(ctx context.Context, t Transition)
}

// TransitionListenerFunc adapts a function to [TransitionListener].
type TransitionListenerFunc func(ctx context.Context, t Transition)

func (f TransitionListenerFunc) OnTransition(ctx context.Context, t Transition) { f(ctx, t) }

// ChannelListener forwards transitions to ch without blocking the poller.
// Transitions are dropped while ch is full.
func ChannelListener(ch chan<- Transition) TransitionListener {
	return TransitionListenerFunc(func(_ context.Context, t Transition) {
		select {
		case ch <- t:
		default:
		}
	})
}
