package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Forward  key.Binding
	Backward key.Binding
	Left     key.Binding
	Right    key.Binding
	Stop     key.Binding
	MapView  key.Binding
	Video    key.Binding
	Feed     key.Binding
	Return   key.Binding
	Repeat   key.Binding
	Single   key.Binding
	Dismiss  key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Forward:  key.NewBinding(key.WithKeys("up", "w"), key.WithHelp("↑/w", "forward")),
		Backward: key.NewBinding(key.WithKeys("down", "s"), key.WithHelp("↓/s", "backward")),
		Left:     key.NewBinding(key.WithKeys("left", "a"), key.WithHelp("←/a", "left")),
		Right:    key.NewBinding(key.WithKeys("right", "d"), key.WithHelp("→/d", "right")),
		Stop:     key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "stop")),
		MapView:  key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "map view")),
		Video:    key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "video view")),
		Feed:     key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "toggle feed")),
		Return:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "return")),
		Repeat:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "repeat patrol")),
		Single:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "single patrol")),
		Dismiss:  key.NewBinding(key.WithKeys("enter", "esc"), key.WithHelp("enter", "dismiss")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Forward, k.Stop, k.MapView, k.Video, k.Return, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Forward, k.Backward, k.Left, k.Right, k.Stop},
		{k.MapView, k.Video, k.Feed},
		{k.Return, k.Repeat, k.Single},
		{k.Dismiss, k.Help, k.Quit},
	}
}
