// Package history keeps the most recent per-frame snapshots in a fixed-size
// ring so the rollback driver can restore any frame inside its window.
package history

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/rollphys/internal/snapshot"
)

var (
	// ErrTooOld is returned by Put for a frame that has already left the window.
	ErrTooOld = errors.New("history: frame older than retained window")
	// ErrNotFound is returned by Get for a frame outside the window or never stored.
	ErrNotFound = errors.New("history: frame not retained")
)

// Ring stores snapshots indexed by frame modulo capacity. With newest frame N
// it retains exactly the frames in (N-C, N] that have been put.
type Ring struct {
	slots  []slot
	newest snapshot.Frame
	filled bool // at least one Put happened
}

type slot struct {
	frame snapshot.Frame
	snap  *snapshot.Snapshot
}

// NewRing creates a ring holding up to capacity frames. Capacity must be positive.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		panic(fmt.Sprintf("history: capacity must be positive, got %d", capacity))
	}
	return &Ring{slots: make([]slot, capacity)}
}

func (r *Ring) index(f snapshot.Frame) int {
	c := snapshot.Frame(len(r.slots))
	i := f % c
	if i < 0 {
		i += c
	}
	return int(i)
}

// Cap returns the capacity.
func (r *Ring) Cap() int {
	return len(r.slots)
}

// Put stores snap for frame. Storing a frame at or below the newest one
// overwrites the older entry (resimulation); storing past it advances the
// window and evicts frames that fall out. A frame older than
// OldestRetained fails with ErrTooOld, even before the ring is full.
func (r *Ring) Put(frame snapshot.Frame, snap *snapshot.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("history: nil snapshot for frame %d", frame)
	}
	if r.filled && frame < r.OldestRetained() {
		return fmt.Errorf("%w: frame %d, oldest retained %d", ErrTooOld, frame, r.OldestRetained())
	}

	if !r.filled || frame > r.newest {
		r.newest = frame
		r.filled = true
	}
	r.slots[r.index(frame)] = slot{frame: frame, snap: snap}
	return nil
}

// Get returns the snapshot stored for frame.
func (r *Ring) Get(frame snapshot.Frame) (*snapshot.Snapshot, error) {
	if !r.filled || frame > r.newest || frame <= r.newest-snapshot.Frame(len(r.slots)) {
		return nil, fmt.Errorf("%w: frame %d", ErrNotFound, frame)
	}
	s := r.slots[r.index(frame)]
	if s.snap == nil || s.frame != frame {
		return nil, fmt.Errorf("%w: frame %d", ErrNotFound, frame)
	}
	return s.snap, nil
}

// OldestRetained returns the lowest frame the window can hold, N-C+1.
// It never goes below the first frame that was stored. With nothing
// stored it returns 0.
func (r *Ring) OldestRetained() snapshot.Frame {
	if !r.filled {
		return 0
	}
	oldest := r.newest - snapshot.Frame(len(r.slots)) + 1
	for f := oldest; f <= r.newest; f++ {
		if s := r.slots[r.index(f)]; s.snap != nil && s.frame == f {
			return f
		}
	}
	return r.newest
}

// Newest returns the highest stored frame and whether anything is stored.
func (r *Ring) Newest() (snapshot.Frame, bool) {
	return r.newest, r.filled
}

// Len returns the number of frames currently retained.
func (r *Ring) Len() int {
	if !r.filled {
		return 0
	}
	n := 0
	for f := r.newest - snapshot.Frame(len(r.slots)) + 1; f <= r.newest; f++ {
		if s := r.slots[r.index(f)]; s.snap != nil && s.frame == f {
			n++
		}
	}
	return n
}

// Reset empties the ring.
func (r *Ring) Reset() {
	clear(r.slots)
	r.newest = 0
	r.filled = false
}
