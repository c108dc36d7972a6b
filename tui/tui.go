package tui

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kwv/patroldash/dash"
)

// refreshInterval is how often the model polls the console.
const refreshInterval = 200 * time.Millisecond

// Console is the part of *dash.Console the terminal UI drives.
type Console interface {
	Snapshot() dash.Snapshot
	Render(w, h int) *image.RGBA
	PublishCommand(cmd string) error
	PublishMission(mission string) error
	SetView(mode dash.ViewMode) dash.Snapshot
	ToggleVideo(force *bool) bool
	Notifications(since int) []dash.Notification
}

type tickMsg time.Time

// Model is the bubbletea model for the operator console.
type Model struct {
	width  int
	height int

	console Console
	keys    keyMap
	help    help.Model

	snap     dash.Snapshot
	mapLines []string
	mapW     int
	mapH     int

	// notifications waiting to be dismissed, oldest first
	alerts   []dash.Notification
	lastNote int

	status string
}

// New creates a model polling c.
func New(c Console) Model {
	return Model{
		console: c,
		keys:    defaultKeys(),
		help:    help.New(),
		status:  "connecting...",
	}
}

// Run starts the full-screen console and blocks until the operator quits.
func Run(c Console) error {
	if _, err := tea.NewProgram(New(c), tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("terminal console: %w", err)
	}
	return nil
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.refresh()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	// An open alert swallows everything but dismiss, like a modal dialog.
	if len(m.alerts) > 0 {
		if key.Matches(msg, m.keys.Dismiss) {
			m.alerts = m.alerts[1:]
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Forward):
		m.command(dash.CmdForward)
	case key.Matches(msg, m.keys.Backward):
		m.command(dash.CmdBackward)
	case key.Matches(msg, m.keys.Left):
		m.command(dash.CmdLeft)
	case key.Matches(msg, m.keys.Right):
		m.command(dash.CmdRight)
	case key.Matches(msg, m.keys.Stop):
		m.command(dash.CmdStop)
	case key.Matches(msg, m.keys.MapView):
		m.snap = m.console.SetView(dash.ViewMap)
		m.status = "view: map"
	case key.Matches(msg, m.keys.Video):
		m.snap = m.console.SetView(dash.ViewVideo)
		m.status = "view: video"
	case key.Matches(msg, m.keys.Feed):
		if m.console.ToggleVideo(nil) {
			m.status = "video feed on"
		} else {
			m.status = "video feed off"
		}
	case key.Matches(msg, m.keys.Return):
		m.mission(dash.MissionReturn)
	case key.Matches(msg, m.keys.Repeat):
		m.mission(dash.MissionRepeat)
	case key.Matches(msg, m.keys.Single):
		m.mission(dash.MissionSingle)
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	default:
		return m, nil
	}
	m.refresh()
	return m, nil
}

func (m *Model) command(cmd string) {
	err := m.console.PublishCommand(cmd)
	switch {
	case err == nil:
		m.status = "sent " + cmd
	case errors.Is(err, dash.ErrNotConnected):
		m.status = "not connected, " + cmd + " dropped"
	case errors.Is(err, dash.ErrNotSent):
		m.status = cmd + " not delivered"
	default:
		m.status = err.Error()
	}
}

func (m *Model) mission(name string) {
	if err := m.console.PublishMission(name); err != nil {
		m.status = err.Error()
		return
	}
	m.status = "mission " + name
}

// refresh pulls the latest state, queues new notifications and re-plots the map.
func (m *Model) refresh() {
	m.snap = m.console.Snapshot()
	for _, n := range m.console.Notifications(m.lastNote) {
		m.alerts = append(m.alerts, n)
		m.lastNote = n.ID
	}

	cols, rows := m.mapArea()
	m.mapW, m.mapH = cols, rows
	buf := newBrailleBuf(cols, rows)
	buf.plot(m.console.Render(cols*2, rows*4))
	m.mapLines = buf.toLines()
}
