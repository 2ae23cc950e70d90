package ui

import (
	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/melodyhue/internal/tasks"
)

var _ list.Item = transitionItem{}

// transitionItem wraps [tasks.Transition] to implement [list.Item].
type transitionItem struct {
	transition tasks.Transition
}

func (i transitionItem) FilterValue() string { return i.transition.Message() }
func (i transitionItem) Title() string       { return i.transition.Message() }
func (i transitionItem) Description() string {
	return i.transition.At.Local().Format("15:04:05") + " • " + i.transition.Kind.String()
}
