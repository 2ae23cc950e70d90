package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/melodyhue/internal/formatter"
	"github.com/desertthunder/melodyhue/internal/models"
	"github.com/desertthunder/melodyhue/internal/tasks"
)

const (
	DefaultRefresh = time.Second

	maxTransitions = 20
	swatchWidth    = 28
	swatchHeight   = 7
)

// copyToClipboard is swapped in tests.
var copyToClipboard = clipboard.WriteAll

// Source is the read side of the integration the preview renders. Implemented by [tasks.Integration].
type Source interface {
	CurrentTrackInfo(ctx context.Context) *models.TrackSnapshot
	CurrentColor(ctx context.Context) models.RGB
	Stats() models.Stats
	IsEnabled() bool
}

// Model represents the preview state.
type Model struct {
	ctx         context.Context
	source      Source
	transitions <-chan tasks.Transition
	refresh     time.Duration

	width     int
	height    int
	track     *models.TrackSnapshot
	color     models.RGB
	stats     models.Stats
	enabled   bool
	loaded    bool
	showStats bool
	status    string
	statusErr bool

	history list.Model
	help    help.Model
	keys    keyMap
}

// NewModel creates a preview over source. transitions may be nil; refresh <= 0 uses [DefaultRefresh].
func NewModel(ctx context.Context, source Source, transitions <-chan tasks.Transition, refresh time.Duration) *Model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}

	history := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	history.Title = "Recent"
	history.SetShowStatusBar(false)
	history.SetFilteringEnabled(false)
	history.SetShowHelp(false)

	return &Model{
		ctx:         ctx,
		source:      source,
		transitions: transitions,
		refresh:     refresh,
		color:       models.DefaultFallback,
		history:     history,
		help:        help.New(),
		keys:        newKeyMap(),
	}
}

// Init fetches the first reading and starts the refresh tick.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick(), m.waitForTransition())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.history.SetSize(max(msg.Width-4, 20), max(msg.Height-swatchHeight-10, 4))
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.history, cmd = m.history.Update(msg)
	return m, cmd
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.copy):
		return m, m.copyColor()
	case key.Matches(msg, m.keys.stats):
		m.showStats = !m.showStats
		return m, nil
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	var cmd tea.Cmd
	m.history, cmd = m.history.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTick:
		return m, tea.Batch(m.fetch(), m.tick())

	case MsgRefreshed:
		r := msg.data.(reading)
		m.track, m.color, m.stats, m.enabled = r.track, r.color, r.stats, r.enabled
		m.loaded = true
		return m, nil

	case MsgTransition:
		cmd := m.history.InsertItem(0, transitionItem{transition: msg.data.(tasks.Transition)})
		if n := len(m.history.Items()); n > maxTransitions {
			m.history.RemoveItem(n - 1)
		}
		return m, tea.Batch(cmd, m.waitForTransition())

	case MsgCopied:
		data := msg.data.(struct {
			hex string
			err error
		})
		if data.err != nil {
			m.status, m.statusErr = fmt.Sprintf("Copy failed: %v", data.err), true
		} else {
			m.status, m.statusErr = fmt.Sprintf("Copied %s", data.hex), false
		}
		return m, nil
	}
	return m, nil
}

// View renders the swatch, track details, recent transitions and help.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(styles.title.Render("melodyhue"))
	b.WriteString("\n")

	swatch := Swatch(m.color, swatchWidth, swatchHeight)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, swatch, "  ", m.renderTrack()))
	b.WriteString("\n\n")

	if m.status != "" {
		if m.statusErr {
			b.WriteString(styles.err.Render(m.status))
		} else {
			b.WriteString(styles.ok.Render(m.status))
		}
		b.WriteString("\n\n")
	}

	if m.showStats {
		b.WriteString(string(formatter.StatsToText(m.stats)))
		b.WriteString("\n")
	}

	if len(m.history.Items()) > 0 {
		b.WriteString(m.history.View())
		b.WriteString("\n\n")
	}

	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderTrack() string {
	if !m.loaded {
		return styles.help.Render("Connecting…")
	}

	var lines []string
	if !m.enabled {
		lines = append(lines, styles.warn.Render("Not connected. Run `melodyhue auth login`."))
	}

	t := m.track
	if t.Stopped() {
		lines = append(lines, "No music playing", styles.help.Render("Showing fallback color"))
		return strings.Join(lines, "\n")
	}

	state := styles.ok.Render("▶ Playing")
	if !t.IsPlaying {
		state = styles.warn.Render("⏸ Paused")
	}
	lines = append(lines, state, lipgloss.NewStyle().Bold(true).Render(t.Name), t.Artist())
	if t.Album != "" {
		lines = append(lines, styles.help.Render(t.Album))
	}
	if t.Duration > 0 {
		lines = append(lines, fmt.Sprintf("%s / %s", formatter.FormatDuration(t.Progress), formatter.FormatDuration(t.Duration)))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(at time.Time) tea.Msg { return tickMsg(at) })
}

// fetch reads the color first so the poll it may trigger also updates the track.
func (m *Model) fetch() tea.Cmd {
	return func() tea.Msg {
		color := m.source.CurrentColor(m.ctx)
		return refreshedMsg(reading{
			track:   m.source.CurrentTrackInfo(m.ctx),
			color:   color,
			stats:   m.source.Stats(),
			enabled: m.source.IsEnabled(),
		})
	}
}

func (m *Model) waitForTransition() tea.Cmd {
	if m.transitions == nil {
		return nil
	}
	return func() tea.Msg {
		t, ok := <-m.transitions
		if !ok {
			return nil
		}
		return transitionMsg(t)
	}
}

func (m *Model) copyColor() tea.Cmd {
	hex := m.color.Hex()
	return func() tea.Msg {
		return copiedMsg(hex, copyToClipboard(hex))
	}
}
