package core

import (
	"fmt"
	"strings"
)

// Action represents a semantic player action, abstracted from physical key presses.
type Action uint8

const (
	ActionMoveUp Action = iota
	ActionMoveDown
	ActionMoveLeft
	ActionMoveRight
	ActionFireUp
	ActionFireDown
	ActionFireLeft
	ActionFireRight

	actionCount
)

var actionNames = [actionCount]string{
	"MoveUp", "MoveDown", "MoveLeft", "MoveRight",
	"FireUp", "FireDown", "FireLeft", "FireRight",
}

// String returns a human-readable name for the action.
func (a Action) String() string {
	if a < actionCount {
		return actionNames[a]
	}
	return "Unknown"
}

// InputFrame is the input state for a single player during one simulation tick.
// It is a bitmask rather than a map so it compares with == and iterates in a
// fixed order, which the rollback input log relies on.
type InputFrame uint16

// Set marks an action as triggered for this frame.
func (f *InputFrame) Set(a Action) {
	*f |= 1 << a
}

// Has returns true if the given action was triggered this frame.
func (f InputFrame) Has(a Action) bool {
	return f&(1<<a) != 0
}

// Clear resets all actions.
func (f *InputFrame) Clear() {
	*f = 0
}

// Empty reports whether no action is set.
func (f InputFrame) Empty() bool {
	return f == 0
}

func (f InputFrame) String() string {
	if f == 0 {
		return "-"
	}
	var parts []string
	for a := Action(0); a < actionCount; a++ {
		if f.Has(a) {
			parts = append(parts, a.String())
		}
	}
	return strings.Join(parts, "+")
}

// PlayerID identifies a player slot in a MultiInputFrame.
type PlayerID uint8

// MaxPlayers is the number of player slots carried per frame.
const MaxPlayers = 4

const (
	Player1 PlayerID = iota
	Player2
	Player3
	Player4
)

func (p PlayerID) String() string {
	return fmt.Sprintf("P%d", int(p)+1)
}

// MultiInputFrame contains input from all players for a single tick.
// A fixed array keeps it comparable and copyable by value.
type MultiInputFrame [MaxPlayers]InputFrame

// Player returns the input frame for a specific player.
// Out-of-range players have no input.
func (m MultiInputFrame) Player(id PlayerID) InputFrame {
	if int(id) >= MaxPlayers {
		return 0
	}
	return m[id]
}

// SetPlayer sets the input frame for a specific player.
func (m *MultiInputFrame) SetPlayer(id PlayerID, frame InputFrame) {
	if int(id) >= MaxPlayers {
		return
	}
	m[id] = frame
}

// Clear resets all player inputs for the next frame.
func (m *MultiInputFrame) Clear() {
	*m = MultiInputFrame{}
}
