package tui

import "github.com/charmbracelet/lipgloss"

var (
	Base     = lipgloss.Color("#1e1e2e")
	Surface1 = lipgloss.Color("#45475a")
	Text     = lipgloss.Color("#cdd6f4")
	Subtext0 = lipgloss.Color("#a6adc8")
	Lavender = lipgloss.Color("#b4befe")
	Sapphire = lipgloss.Color("#74c7ec")
	Green    = lipgloss.Color("#a6e3a1")
	Yellow   = lipgloss.Color("#f9e2af")
	Peach    = lipgloss.Color("#fab387")
	Red      = lipgloss.Color("#f38ba8")

	App = lipgloss.NewStyle().
		Foreground(Text).
		Padding(1, 2)

	Pane = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Surface1).
		Padding(0, 1)

	Title    = lipgloss.NewStyle().Foreground(Sapphire).Bold(true)
	Muted    = lipgloss.NewStyle().Foreground(Subtext0)
	Selected = lipgloss.NewStyle().Foreground(Base).Background(Lavender).Bold(true)
	Error    = lipgloss.NewStyle().Foreground(Red)
)

// hopColors cycles by depth so siblings on one layer share a colour.
var hopColors = []lipgloss.Color{Green, Sapphire, Yellow, Peach, Lavender}

func hopStyle(hops *int) lipgloss.Style {
	if hops == nil {
		return Muted
	}
	return lipgloss.NewStyle().Foreground(hopColors[*hops%len(hopColors)])
}
