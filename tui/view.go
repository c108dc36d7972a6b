package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kwv/patroldash/dash"
)

const (
	headerHeight = 3
	footerHeight = 2
	// box border plus horizontal padding
	boxChromeW = 4
	boxChromeH = 2
)

// mapArea returns the map canvas size in cells.
func (m Model) mapArea() (cols, rows int) {
	cols = max(8, m.width-boxChromeW)
	rows = max(4, m.height-headerHeight-footerHeight-boxChromeH)
	return cols, rows
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	s := m.snap

	// Header
	title := titleStyle.Render(" patroldash ")
	conn := connectionStyle(s.ConnectionLabel,
		s.Connection == dash.StateConnected,
		s.Connection == dash.StateError)
	header := lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", conn, "  ", badge(s.StatusText, s.Status.Color()))

	metrics := strings.Join([]string{
		labelStyle.Render("distance") + s.DistanceText(),
		labelStyle.Render("time") + s.ElapsedText(),
		labelStyle.Render("battery") + s.BatteryText(),
		labelStyle.Render("pose") + poseText(s),
	}, "   ")

	feed := "off"
	if s.VideoRunning {
		feed = "on " + dimStyle.Render(s.VideoURL)
	}
	viewLine := fmt.Sprintf("view %s (secondary %s)   feed %s", s.View, s.Secondary, feed)

	// Map
	var body string
	if s.Map == nil {
		body = lipgloss.Place(m.mapW, m.mapH, lipgloss.Center, lipgloss.Center, dimStyle.Render("waiting for map..."))
	} else {
		body = strings.Join(m.mapLines, "\n")
	}
	if len(m.alerts) > 0 {
		body = lipgloss.Place(m.mapW, m.mapH, lipgloss.Center, lipgloss.Center, m.alertView())
	}
	mapBox := boxStyle.Width(m.mapW + 2).Height(m.mapH).Render(body)

	// Footer
	footer := dimStyle.Render(m.status) + "\n" + m.help.View(m.keys)

	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		header, metrics, viewLine, mapBox, footer))
}

func poseText(s dash.Snapshot) string {
	text := s.PoseText()
	if s.Pose != nil && s.PoseStale {
		text += dimStyle.Render(" (stale)")
	}
	return text
}

func (m Model) alertView() string {
	a := m.alerts[0]
	more := ""
	if n := len(m.alerts) - 1; n > 0 {
		more = dimStyle.Render(fmt.Sprintf("\n(+%d more)", n))
	}
	return alertStyle.Render(a.Text + "\n\n" + dimStyle.Render("enter to dismiss") + more)
}
