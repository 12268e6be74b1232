// Package theme provides the Lip Gloss color palette and reusable styles
// for event output. It is a leaf package apart from the event kinds.
package theme

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/docfeed/dslisten/internal/event"
)

// Event family colors.
var (
	ColorObject  = lipgloss.Color("#3b82f6")
	ColorDelete  = lipgloss.Color("#d97706")
	ColorLink    = lipgloss.Color("#06b6d4")
	ColorLogin   = lipgloss.Color("#22c55e")
	ColorLogout  = lipgloss.Color("#6b7280")
	ColorFailed  = lipgloss.Color("#dc2626")
	ColorClass   = lipgloss.Color("#a855f7")
	ColorConfig  = lipgloss.Color("#f59e0b")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// KindColor returns the color for an event kind.
func KindColor(k event.Kind) lipgloss.Color {
	switch {
	case k == event.ObjectDeleted:
		return ColorDelete
	case k.IsObject():
		return ColorObject
	case k == event.LinkChanged:
		return ColorLink
	case k == event.Login:
		return ColorLogin
	case k == event.Logout:
		return ColorLogout
	case k == event.LoginFailed:
		return ColorFailed
	case k == event.ClassLabelChanged:
		return ColorClass
	case k == event.ConfigChanged:
		return ColorConfig
	default:
		return ColorDefault
	}
}

// KindGlyph returns a short marker for an event kind.
func KindGlyph(k event.Kind) string {
	switch {
	case k == event.ObjectCreated:
		return "+"
	case k == event.ObjectDeleted:
		return "-"
	case k.IsObject():
		return "~"
	case k == event.LinkChanged:
		return "&"
	case k == event.Login:
		return ">"
	case k == event.Logout:
		return "<"
	case k == event.LoginFailed:
		return "!"
	case k == event.ClassLabelChanged, k == event.ConfigChanged:
		return "*"
	default:
		return "?"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)
)
