package dashboard

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the dashboard's key bindings.
type KeyMap struct {
	Quit        key.Binding
	StartPause  key.Binding
	Stop        key.Binding
	Estop       key.Binding
	BlockErrors key.Binding
	Continue    key.Binding
}

// DefaultKeyMap returns the default dashboard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		StartPause: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "start/pause"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stop"),
		),
		Estop: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "estop"),
		),
		BlockErrors: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "block error"),
		),
		Continue: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "continue"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.StartPause, k.Stop, k.Estop, k.Continue, k.BlockErrors, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.StartPause, k.Stop, k.Estop},
		{k.Continue, k.BlockErrors, k.Quit},
	}
}
