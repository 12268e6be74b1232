package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/docfeed/dslisten/internal/event"
	"github.com/docfeed/dslisten/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Principal string
	Server    string
	Connected bool
	Err       error
	Counts    map[event.Kind]int
	Dropped   int
	Width     int
}

// New creates a status bar model.
func New(principal, server string) Model {
	return Model{
		Principal: principal,
		Server:    server,
		Connected: true,
		Counts:    make(map[event.Kind]int),
	}
}

// Count records one received event.
func (m *Model) Count(k event.Kind) {
	m.Counts[k]++
}

// Total returns the number of events received.
func (m Model) Total() int {
	n := 0
	for _, c := range m.Counts {
		n += c
	}
	return n
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch {
	case m.Connected:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● " + m.Principal + "@" + m.Server)
	case m.Err != nil:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ feed ended: " + m.Err.Error())
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("○ feed closed")
	}

	var parts []string
	for _, k := range event.Kinds() {
		if n := m.Counts[k]; n > 0 {
			parts = append(parts, lipgloss.NewStyle().Foreground(theme.KindColor(k)).Render(
				fmt.Sprintf("%s %d", theme.KindGlyph(k), n),
			))
		}
	}
	counts := fmt.Sprintf("%d events", m.Total())
	if len(parts) > 0 {
		counts += "  " + strings.Join(parts, " ")
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + counts
	if m.Dropped > 0 {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(fmt.Sprintf("%d malformed", m.Dropped))
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
