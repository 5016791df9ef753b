// Package dashboard implements the companion TUI that polls a running
// consuma server's GET /healthz and GET /requests/stats and renders a
// live status board. Grounded on the teacher's internal/tui package: the
// color palette and huh theme are lifted from tui/styles.go almost
// verbatim (same brand colors, same MakeNeonTheme shape), repurposed from
// a load-test-setup form to a single "target URL" prompt.
package dashboard

import (
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

var (
	primaryColor   = lipgloss.Color("#00FFFF")
	secondaryColor = lipgloss.Color("#FF6B9D")
	accentColor    = lipgloss.Color("#00FF88")
	subColor       = lipgloss.Color("241")

	logoStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true).
			MarginLeft(1)

	successText = lipgloss.NewStyle().Foreground(accentColor)
	warnText    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700"))
	errText     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444"))
	infoText    = lipgloss.NewStyle().Foreground(primaryColor)
	labelStyle  = lipgloss.NewStyle().Foreground(subColor)
)

const asciiLogo = `⚡ consuma`

// MakeNeonTheme builds the huh form theme used by the target-URL prompt.
func MakeNeonTheme() *huh.Theme {
	t := huh.ThemeCharm()
	t.Focused.Title = t.Focused.Title.Foreground(primaryColor).Bold(true)
	t.Focused.Description = t.Focused.Description.Foreground(subColor)
	t.Focused.Base = t.Focused.Base.BorderForeground(secondaryColor)
	t.Focused.TextInput.Cursor = t.Focused.TextInput.Cursor.Foreground(secondaryColor)
	t.Focused.TextInput.Placeholder = t.Focused.TextInput.Placeholder.Foreground(lipgloss.Color("240"))
	return t
}
