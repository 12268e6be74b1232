// Package feed provides the scrollable event list of the watch screen.
package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/docfeed/dslisten/internal/event"
	"github.com/docfeed/dslisten/internal/printer"
	"github.com/docfeed/dslisten/internal/theme"
)

// MaxEntries caps the number of events kept on screen.
const MaxEntries = 500

// Entry is one received event, pre-rendered.
type Entry struct {
	Time  time.Time
	Kind  event.Kind
	Lines []string
}

// Model holds the feed state.
type Model struct {
	Entries []Entry
	Offset  int // scroll offset in lines, from the bottom
}

func New() Model {
	return Model{}
}

// Add renders ev, appends it and caps the buffer. The view snaps back to
// the newest event unless the user has scrolled up.
func (m *Model) Add(ev event.Event, at time.Time) {
	e := Entry{Time: at, Kind: ev.Kind()}
	for _, l := range strings.Split(printer.Format(ev), "\n") {
		if l != "" {
			e.Lines = append(e.Lines, l)
		}
	}
	m.Entries = append(m.Entries, e)
	if len(m.Entries) > MaxEntries {
		m.Entries = m.Entries[len(m.Entries)-MaxEntries:]
	}
	if m.Offset > 0 {
		m.Offset += len(e.Lines)
		m.clampOffset()
	}
}

// Clear drops every entry.
func (m *Model) Clear() {
	m.Entries = nil
	m.Offset = 0
}

func (m *Model) ScrollUp(n int) {
	m.Offset += n
	m.clampOffset()
}

func (m *Model) ScrollDown(n int) {
	m.Offset -= n
	if m.Offset < 0 {
		m.Offset = 0
	}
}

func (m *Model) clampOffset() {
	max := m.lineCount() - 1
	if max < 0 {
		max = 0
	}
	if m.Offset > max {
		m.Offset = max
	}
}

func (m Model) lineCount() int {
	n := 0
	for _, e := range m.Entries {
		n += len(e.Lines)
	}
	return n
}

func (m Model) lines() []string {
	out := make([]string, 0, m.lineCount())
	for _, e := range m.Entries {
		gutter := lipgloss.NewStyle().Foreground(theme.KindColor(e.Kind)).Render(theme.KindGlyph(e.Kind))
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05"))
		for _, l := range e.Lines {
			switch {
			case l == printer.Separator:
				out = append(out, theme.StyleDimmed.Render(l))
			case strings.HasPrefix(l, "Event fired: "):
				out = append(out, fmt.Sprintf("%s %s %s", ts, gutter, theme.StyleHeader.Render(l)))
			default:
				out = append(out, "  "+l)
			}
		}
	}
	return out
}

// View renders the visible window of the feed.
func (m Model) View(width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	visible := height - 2
	if visible < 3 {
		visible = 3
	}

	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  Waiting for events...")
		return theme.StyleBorder.Width(innerW).Height(visible).Render(body)
	}

	all := m.lines()
	end := len(all) - m.Offset
	start := end - visible
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}

	clip := lipgloss.NewStyle().MaxWidth(innerW)
	shown := make([]string, 0, end-start+1)
	for _, l := range all[start:end] {
		shown = append(shown, clip.Render(l))
	}
	if m.Offset > 0 {
		shown = append(shown, theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more lines", m.Offset)))
	}
	return theme.StyleBorder.Width(innerW).Render(strings.Join(shown, "\n"))
}
