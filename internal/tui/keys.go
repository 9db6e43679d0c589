package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the browser keybindings.
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	Open       key.Binding
	Parent     key.Binding
	Root       key.Binding
	SortName   key.Binding
	SortMod    key.Binding
	SortSize   key.Binding
	SortType   key.Binding
	Refresh    key.Binding
	More       key.Binding
	Upload     key.Binding
	Download   key.Binding
	Delete     key.Binding
	Queue      key.Binding
	ClearQueue key.Binding
	Help       key.Binding
	Quit       key.Binding
	Confirm    key.Binding
	Cancel     key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "move down"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open / preview"),
		),
		Parent: key.NewBinding(
			key.WithKeys("backspace"),
			key.WithHelp("backspace", "parent folder"),
		),
		Root: key.NewBinding(
			key.WithKeys("~"),
			key.WithHelp("~", "root"),
		),
		SortName: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "sort by name"),
		),
		SortMod: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "sort by modified"),
		),
		SortSize: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "sort by size"),
		),
		SortType: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "sort by type"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		More: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "load more"),
		),
		Upload: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "upload"),
		),
		Download: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "download"),
		),
		Delete: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "delete"),
		),
		Queue: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "upload queue"),
		),
		ClearQueue: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear finished"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "yes"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("n", "esc"),
			key.WithHelp("n/esc", "no"),
		),
	}
}

// ShortHelp returns keybindings to be shown in the mini help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Parent, k.Upload, k.Download, k.Delete, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Open, k.Parent, k.Root},
		{k.SortName, k.SortMod, k.SortSize, k.SortType},
		{k.Refresh, k.More, k.Upload, k.Download, k.Delete},
		{k.Queue, k.ClearQueue, k.Help, k.Quit},
	}
}
