package rollback

import (
	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/snapshot"
)

// inputLog keeps the input that produced each frame for the same window as
// the snapshot ring, indexed by frame modulo capacity.
type inputLog struct {
	slots []inputSlot
}

type inputSlot struct {
	frame snapshot.Frame
	input core.MultiInputFrame
	ok    bool
}

func newInputLog(capacity int) *inputLog {
	return &inputLog{slots: make([]inputSlot, capacity)}
}

func (l *inputLog) index(f snapshot.Frame) int {
	c := snapshot.Frame(len(l.slots))
	i := f % c
	if i < 0 {
		i += c
	}
	return int(i)
}

func (l *inputLog) put(f snapshot.Frame, in core.MultiInputFrame) {
	l.slots[l.index(f)] = inputSlot{frame: f, input: in, ok: true}
}

func (l *inputLog) get(f snapshot.Frame) (core.MultiInputFrame, bool) {
	s := l.slots[l.index(f)]
	if !s.ok || s.frame != f {
		return core.MultiInputFrame{}, false
	}
	return s.input, true
}
