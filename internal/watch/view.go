package watch

import (
	"fmt"
	"strings"
)

// chrome is the number of lines around the list: title, separators,
// status bar and help.
const chrome = 6

// View renders the event list.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("veille · live events"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Failed to load recent events: %v", m.err)))
		b.WriteString("\n\n")
	}

	if len(m.rows) == 0 {
		b.WriteString(helpStyle.Render("Waiting for events..."))
		b.WriteString("\n")
	} else {
		start, end := m.window()
		for i := start; i < end; i++ {
			b.WriteString(m.renderRow(m.rows[i], i == m.cursor))
			b.WriteString("\n")
		}
	}

	state := "stream live"
	if m.closed {
		state = "stream closed"
	}
	b.WriteString("\n")
	b.WriteString(statusBarStyle.Render(fmt.Sprintf("%d events · %s", len(m.rows), state)))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("[↑/k] Up | [↓/j] Down | [q] Quit"))

	return b.String()
}

// window returns the visible slice bounds, keeping the cursor on screen.
func (m Model) window() (int, int) {
	available := m.height - chrome
	if available < 1 {
		// Before the first WindowSizeMsg arrives the height is unknown.
		available = 20
	}

	start := 0
	if m.cursor >= available {
		start = m.cursor - available + 1
	}
	end := start + available
	if end > len(m.rows) {
		end = len(m.rows)
	}
	return start, end
}

// renderRow formats one event line.
func (m Model) renderRow(r row, selected bool) string {
	badge := severityStyle(r.Severity).Render(fmt.Sprintf("%-8s", strings.ToUpper(string(r.Severity))))

	live := "  "
	if r.Live {
		live = liveDotStyle.Render("●") + " "
	}

	line := fmt.Sprintf("%s%s %s %s  cluster %d  score %.1f",
		live,
		r.DetectedAt.Format("15:04:05"),
		badge,
		r.Label,
		r.ClusterID,
		r.Score,
	)

	if selected {
		return selectedStyle.Render(line)
	}
	return line
}
