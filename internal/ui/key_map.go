package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the preview.
type keyMap struct {
	copy  key.Binding
	stats key.Binding
	help  key.Binding
	quit  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		copy:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy hex")),
		stats: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "counters")),
		help:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		quit:  key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.copy, k.help, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.copy, k.stats},
		{k.help, k.quit},
	}
}
