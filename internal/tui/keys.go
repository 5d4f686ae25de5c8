package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Pause      key.Binding
	AutoScroll key.Binding
	Buffer     key.Binding
	Levels     key.Binding
	Search     key.Binding
	Clear      key.Binding
	Export     key.Binding
	Reconnect  key.Binding
	Up         key.Binding
	Down       key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.AutoScroll, k.Buffer, k.Levels, k.Search, k.Clear, k.Export, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.Reconnect, k.AutoScroll, k.Buffer},
		{k.Levels, k.Search, k.Clear, k.Export},
		{k.Up, k.Down, k.Help, k.Quit},
	}
}

var keys = keyMap{
	Pause:      key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p", "pause/resume")),
	AutoScroll: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "auto-scroll")),
	Buffer:     key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "buffer size")),
	Levels:     key.NewBinding(key.WithKeys("1", "2", "3", "4", "5"), key.WithHelp("1-5", "levels")),
	Search:     key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Clear:      key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear visible")),
	Export:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "export")),
	Reconnect:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reconnect")),
	Up:         key.NewBinding(key.WithKeys("up", "k", "pgup"), key.WithHelp("k/up", "scroll up")),
	Down:       key.NewBinding(key.WithKeys("down", "j", "pgdown"), key.WithHelp("j/down", "scroll down")),
	Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}
