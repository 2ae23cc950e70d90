package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/melodyhue/internal/models"
	"github.com/desertthunder/melodyhue/internal/tasks"
)

// MsgKind enumerates all message types in the preview.
type MsgKind int

// Msg represents all possible messages in the preview (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgTick MsgKind = iota
	MsgRefreshed
	MsgTransition
	MsgCopied
)

// reading is the payload of [MsgRefreshed].
type reading struct {
	track   *models.TrackSnapshot
	color   models.RGB
	stats   models.Stats
	enabled bool
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(at time.Time) Msg {
	return Msg{kind: MsgTick, data: at}
}

// refreshedMsg is the constructor for [MsgRefreshed]
func refreshedMsg(r reading) Msg {
	return Msg{kind: MsgRefreshed, data: r}
}

// transitionMsg is the constructor for [MsgTransition]
func transitionMsg(t tasks.Transition) Msg {
	return Msg{kind: MsgTransition, data: t}
}

// copiedMsg is the constructor for [MsgCopied]
func copiedMsg(hex string, err error) Msg {
	return Msg{
		kind: MsgCopied,
		data: struct {
			hex string
			err error
		}{hex, err},
	}
}
