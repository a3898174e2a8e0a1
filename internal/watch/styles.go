package watch

import (
	"github.com/charmbracelet/lipgloss"

	"veille/internal/core"
)

// Colors used in the viewer.
var (
	colorMuted     = lipgloss.Color("240")
	colorSecondary = lipgloss.Color("241")
	colorHighlight = lipgloss.Color("212")
	colorLive      = lipgloss.Color("78")
)

// titleStyle heads the view.
var titleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Padding(0, 1)

// selectedStyle highlights the row under the cursor.
var selectedStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236"))

// statusBarStyle renders the bottom bar.
var statusBarStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// helpStyle renders hints and empty states.
var helpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// errorStyle flags load failures.
var errorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("196")).
	Bold(true)

// liveDotStyle marks rows that arrived over the bus.
var liveDotStyle = lipgloss.NewStyle().Foreground(colorLive)

// Severity badge styles, low to critical.
var (
	badgeLow      = lipgloss.NewStyle().Foreground(colorSecondary)
	badgeMedium   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	badgeHigh     = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	badgeCritical = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// severityStyle maps a severity to its badge style.
func severityStyle(severity core.Severity) lipgloss.Style {
	switch severity {
	case core.SeverityCritical:
		return badgeCritical
	case core.SeverityHigh:
		return badgeHigh
	case core.SeverityMedium:
		return badgeMedium
	default:
		return badgeLow
	}
}
