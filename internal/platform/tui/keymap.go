package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/rollphys/internal/core"
)

// ViewerKeyMap defines the key bindings of the rollback viewer.
type ViewerKeyMap struct {
	MoveUp    key.Binding
	MoveDown  key.Binding
	MoveLeft  key.Binding
	MoveRight key.Binding
	FireUp    key.Binding
	FireDown  key.Binding
	FireLeft  key.Binding
	FireRight key.Binding

	Rollback key.Binding
	Correct  key.Binding
	Pause    key.Binding
	Step     key.Binding
	Help     key.Binding
	Quit     key.Binding
}

// ShortHelp returns key bindings for the short help view.
func (k ViewerKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Rollback, k.Correct, k.Pause, k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k ViewerKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.MoveUp, k.MoveDown, k.MoveLeft, k.MoveRight},
		{k.FireUp, k.FireDown, k.FireLeft, k.FireRight},
		{k.Rollback, k.Correct, k.Pause, k.Step},
		{k.Help, k.Quit},
	}
}

// DefaultViewerKeyMap returns default key bindings: WASD steers player 1,
// the arrow keys fire.
func DefaultViewerKeyMap() ViewerKeyMap {
	return ViewerKeyMap{
		MoveUp:    key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "move up")),
		MoveDown:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "move down")),
		MoveLeft:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "move left")),
		MoveRight: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "move right")),
		FireUp:    key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "fire up")),
		FireDown:  key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "fire down")),
		FireLeft:  key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "fire left")),
		FireRight: key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "fire right")),
		Rollback: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rewind"),
		),
		Correct: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "rewind with correction"),
		),
		Pause: key.NewBinding(
			key.WithKeys("p", " "),
			key.WithHelp("p", "pause"),
		),
		Step: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "step when paused"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Action translates a key message to a player action.
func (k ViewerKeyMap) Action(msg tea.KeyMsg) (core.Action, bool) {
	bindings := []struct {
		b key.Binding
		a core.Action
	}{
		{k.MoveUp, core.ActionMoveUp},
		{k.MoveDown, core.ActionMoveDown},
		{k.MoveLeft, core.ActionMoveLeft},
		{k.MoveRight, core.ActionMoveRight},
		{k.FireUp, core.ActionFireUp},
		{k.FireDown, core.ActionFireDown},
		{k.FireLeft, core.ActionFireLeft},
		{k.FireRight, core.ActionFireRight},
	}
	for _, e := range bindings {
		if key.Matches(msg, e.b) {
			return e.a, true
		}
	}
	return 0, false
}
