package dashboard

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/drewfead/arcbox-desktop/internal/service"
)

// KeyMap holds the dashboard bindings.
type KeyMap struct {
	Up          key.Binding
	Down        key.Binding
	NextTab     key.Binding
	PrevTab     key.Binding
	Detail      key.Binding
	Start       key.Binding
	Stop        key.Binding
	Delete      key.Binding
	Logs        key.Binding
	Refresh     key.Binding
	Connect     key.Binding
	StartDaemon key.Binding
	Back        key.Binding
	Help        key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the standard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		NextTab:     key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab", "next tab")),
		PrevTab:     key.NewBinding(key.WithKeys("shift+tab", "left", "h"), key.WithHelp("shift+tab", "prev tab")),
		Detail:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "inspect")),
		Start:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		Stop:        key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		Delete:      key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Logs:        key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "logs")),
		Refresh:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Connect:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "connect")),
		StartDaemon: key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "start daemon")),
		Back:        key.NewBinding(key.WithKeys("esc", "q"), key.WithHelp("esc", "back")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Delete, k.Logs, k.Detail, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.NextTab, k.PrevTab},
		{k.Detail, k.Start, k.Stop, k.Delete, k.Logs},
		{k.Refresh, k.Connect, k.StartDaemon},
		{k.Help, k.Quit},
	}
}

// forKind narrows the action bindings to what kind supports.
func (k KeyMap) forKind(kind service.Kind) KeyMap {
	startStop := kind == service.KindContainer || kind == service.KindMachine
	k.Start.SetEnabled(startStop)
	k.Stop.SetEnabled(startStop)
	k.Logs.SetEnabled(kind == service.KindContainer)
	return k
}
