// package formatter renders now-playing snapshots, counters and play history as text, JSON, CSV and Markdown
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/desertthunder/melodyhue/internal/models"
	"github.com/desertthunder/melodyhue/internal/shared"
)

// Format selects an output encoding.
type Format string

const (
	Text     Format = "text"
	JSON     Format = "json"
	CSV      Format = "csv"
	Markdown Format = "markdown"
)

// ParseFormat accepts the format names plus "md" and "txt".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return Text, nil
	case "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "markdown", "md":
		return Markdown, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Ext is the file extension used by [WriteHistoryExport].
func (f Format) Ext() string {
	switch f {
	case Markdown:
		return "md"
	case Text:
		return "txt"
	default:
		return string(f)
	}
}

// NowPlaying is what the now and watch commands print.
type NowPlaying struct {
	Track   *models.TrackSnapshot
	Color   models.RGB
	Enabled bool
}

type nowPlayingJSON struct {
	Enabled  bool      `json:"enabled"`
	Playing  bool      `json:"playing"`
	TrackID  string    `json:"track_id,omitempty"`
	Name     string    `json:"name"`
	Artist   string    `json:"artist,omitempty"`
	Album    string    `json:"album,omitempty"`
	Progress string    `json:"progress,omitempty"`
	Duration string    `json:"duration,omitempty"`
	ImageURL string    `json:"image_url,omitempty"`
	Color    string    `json:"color"`
	RGB      [3]uint8  `json:"rgb"`
	Captured time.Time `json:"captured_at"`
}

// NowPlayingToText renders a short human-readable block.
func NowPlayingToText(np NowPlaying) []byte {
	var buf bytes.Buffer
	t := np.Track

	if !np.Enabled {
		buf.WriteString("Spotify: not connected (run `melodyhue auth login`)\n")
	}
	if t.Stopped() {
		fmt.Fprintf(&buf, "%s\n", models.StoppedSnapshot(time.Time{}).Name)
	} else {
		state := "Playing"
		if !t.IsPlaying {
			state = "Paused"
		}
		fmt.Fprintf(&buf, "%s: %s - %s\n", state, t.Artist(), t.Name)
		if t.Album != "" {
			fmt.Fprintf(&buf, "Album: %s\n", t.Album)
		}
		if t.Duration > 0 {
			fmt.Fprintf(&buf, "Position: %s / %s\n", FormatDuration(t.Progress), FormatDuration(t.Duration))
		}
	}
	fmt.Fprintf(&buf, "Color: %s\n", np.Color.Hex())
	return buf.Bytes()
}

func NowPlayingToJSON(np NowPlaying) ([]byte, error) {
	t := np.Track
	if t == nil {
		t = models.StoppedSnapshot(time.Time{})
	}

	out := nowPlayingJSON{
		Enabled:  np.Enabled,
		Playing:  t.Playing(),
		TrackID:  t.TrackID,
		Name:     t.Name,
		Artist:   t.Artist(),
		Album:    t.Album,
		ImageURL: t.ImageURL,
		Color:    np.Color.Hex(),
		RGB:      [3]uint8{np.Color.R, np.Color.G, np.Color.B},
		Captured: t.CapturedAt,
	}
	if t.Duration > 0 {
		out.Progress, out.Duration = FormatDuration(t.Progress), FormatDuration(t.Duration)
	}
	return marshal(out)
}

// NowPlayingToMarkdown renders a heading, the artwork and the color.
func NowPlayingToMarkdown(np NowPlaying) []byte {
	var buf bytes.Buffer
	t := np.Track

	if t.Stopped() {
		buf.WriteString("# No music playing\n\n")
	} else {
		fmt.Fprintf(&buf, "# %s\n\n", t.Name)
		if t.ImageURL != "" {
			fmt.Fprintf(&buf, "![Cover](%s)\n\n", t.ImageURL)
		}
		fmt.Fprintf(&buf, "**Artist**: %s\n", t.Artist())
		if t.Album != "" {
			fmt.Fprintf(&buf, "**Album**: %s\n", t.Album)
		}
	}
	fmt.Fprintf(&buf, "**Color**: `%s`\n", np.Color.Hex())
	return buf.Bytes()
}

// RenderNowPlaying picks the renderer for f. CSV is not supported for a single snapshot.
func RenderNowPlaying(np NowPlaying, f Format) ([]byte, error) {
	switch f {
	case JSON:
		return NowPlayingToJSON(np)
	case Markdown:
		return NowPlayingToMarkdown(np), nil
	case Text:
		return NowPlayingToText(np), nil
	default:
		return nil, fmt.Errorf("%w: %s output is not available for now playing", shared.ErrInvalidArgument, f)
	}
}

// StatsToText renders the counters one per line.
func StatsToText(s models.Stats) []byte {
	var buf bytes.Buffer
	rows := []struct {
		label string
		value uint64
	}{
		{"Requests", s.Requests},
		{"Cache hits", s.CacheHits},
		{"Extractions", s.Extractions},
		{"Extraction errors", s.Errors},
		{"Poll errors", s.PollErrors},
		{"Rate limited", s.RateLimited},
		{"Invalidations", s.Invalidations},
	}
	for _, r := range rows {
		fmt.Fprintf(&buf, "%-18s %d\n", r.label+":", r.value)
	}
	return buf.Bytes()
}

func StatsToJSON(s models.Stats) ([]byte, error) {
	return marshal(s)
}

// HistoryToCSV converts plays to CSV with columns: Started, Track ID, Name, Artist, Album, Color
func HistoryToCSV(plays []*models.Play) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Started", "Track ID", "Name", "Artist", "Album", "Color"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, p := range plays {
		record := []string{
			p.StartedAt.UTC().Format(time.RFC3339),
			p.TrackID,
			p.Name,
			p.Artist,
			p.Album,
			p.ColorHex,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func HistoryToMarkdown(plays []*models.Play) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Play History\n\n")
	fmt.Fprintf(&buf, "**Plays**: %d\n\n", len(plays))

	if len(plays) == 0 {
		return buf.Bytes()
	}

	buf.WriteString("| # | Started | Track | Artist | Color |\n")
	buf.WriteString("|---|---------|-------|--------|-------|\n")
	for i, p := range plays {
		color := p.ColorHex
		if color != "" {
			color = "`" + color + "`"
		}
		fmt.Fprintf(&buf, "| %d | %s | %s | %s | %s |\n",
			i+1, p.StartedAt.Local().Format("2006-01-02 15:04"), escapeCell(p.Name), escapeCell(p.Artist), color)
	}
	return buf.Bytes()
}

func HistoryToText(plays []*models.Play) []byte {
	var buf bytes.Buffer

	if len(plays) == 0 {
		buf.WriteString("No plays recorded yet.\n")
		return buf.Bytes()
	}

	for i, p := range plays {
		color := p.ColorHex
		if color == "" {
			color = "-------"
		}
		fmt.Fprintf(&buf, "%2d. %s  %s  %s - %s\n", i+1, p.StartedAt.Local().Format("Jan 02 15:04"), color, p.Artist, p.Name)
	}
	return buf.Bytes()
}

func HistoryToJSON(plays []*models.Play) ([]byte, error) {
	if plays == nil {
		plays = []*models.Play{}
	}
	return marshal(plays)
}

// RenderHistory picks the renderer for f.
func RenderHistory(plays []*models.Play, f Format) ([]byte, error) {
	switch f {
	case JSON:
		return HistoryToJSON(plays)
	case CSV:
		return HistoryToCSV(plays)
	case Markdown:
		return HistoryToMarkdown(plays), nil
	default:
		return HistoryToText(plays), nil
	}
}

// WriteHistoryExport renders plays and writes them to path.
//
// Defaults to history.{ext} in the working directory.
func WriteHistoryExport(plays []*models.Play, f Format, path string) (string, error) {
	if path == "" {
		path = "history." + f.Ext()
	}

	data, err := RenderHistory(plays, f)
	if err != nil {
		return "", fmt.Errorf("failed to render history: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// FormatDuration renders d as m:ss, or h:mm:ss past an hour.
func FormatDuration(d time.Duration) string {
	total := int(d.Round(time.Second) / time.Second)
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}
