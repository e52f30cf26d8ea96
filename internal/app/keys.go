package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the keys handled by the dashboard itself, before the active
// page sees them.
type KeyMap struct {
	ToggleFocus key.Binding
	Refresh     key.Binding
	JumpPage    key.Binding
	Help        key.Binding
	Quit        key.Binding
}

var GlobalKeys = KeyMap{
	ToggleFocus: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "toggle focus"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh now"),
	),
	JumpPage: key.NewBinding(
		key.WithKeys("1", "2", "3", "4"),
		key.WithHelp("1-4", "go to page"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// pageIndex returns the zero-based page index of a JumpPage key.
func pageIndex(msg string) int {
	if len(msg) != 1 || msg[0] < '1' || msg[0] > '9' {
		return -1
	}
	return int(msg[0] - '1')
}
