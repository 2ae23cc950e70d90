package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/melodyhue/internal/models"
)

var styles = NewPalette("#25D865", "#04B575", "#FF5F5F", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// Swatch renders a w x h block filled with c, its hex code centered in a readable color.
func Swatch(c models.RGB, w, h int) string {
	if w < 9 {
		w = 9
	}
	if h < 1 {
		h = 1
	}

	label := lipgloss.PlaceHorizontal(w, lipgloss.Center, c.Hex())
	blank := strings.Repeat(" ", w)
	rows := make([]string, h)
	for i := range rows {
		rows[i] = blank
	}
	rows[h/2] = label

	return lipgloss.NewStyle().
		Background(lipgloss.Color(c.Hex())).
		Foreground(lipgloss.Color(TextOn(c).Hex())).
		Bold(true).
		Render(strings.Join(rows, "\n"))
}

// TextOn picks black or white, whichever reads better on c.
func TextOn(c models.RGB) models.RGB {
	l, _, _ := c.Colorful().Lab()
	if l > 0.6 {
		return models.RGB{}
	}
	return models.RGB{R: 0xff, G: 0xff, B: 0xff}
}
