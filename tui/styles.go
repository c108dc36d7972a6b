package tui

import "github.com/charmbracelet/lipgloss"

// Styles
var (
	baseFg    = lipgloss.Color("#E6E6E6")
	baseDimFg = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#6B7280"}
	accentFg  = lipgloss.Color("#7C3AED")
	borderCol = lipgloss.Color("#243141")
	okFg      = lipgloss.Color("#22C55E")
	warnFg    = lipgloss.Color("#EAB308")
	errFg     = lipgloss.Color("#EF4444")

	appStyle    = lipgloss.NewStyle().Foreground(baseFg)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(borderCol).Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Foreground(accentFg).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(baseDimFg)
	robotStyle  = lipgloss.NewStyle().Foreground(errFg).Bold(true)
	alertStyle  = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(accentFg).Padding(1, 3)
	labelStyle  = lipgloss.NewStyle().Foreground(baseDimFg).Width(9)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#111827")).Bold(true).Padding(0, 1)
)

func connectionStyle(label string, connected, failed bool) string {
	switch {
	case connected:
		return lipgloss.NewStyle().Foreground(okFg).Render("● " + label)
	case failed:
		return lipgloss.NewStyle().Foreground(errFg).Render("● " + label)
	default:
		return lipgloss.NewStyle().Foreground(warnFg).Render("● " + label)
	}
}

func badge(text, hex string) string {
	return statusStyle.Background(lipgloss.Color(hex)).Render(text)
}
