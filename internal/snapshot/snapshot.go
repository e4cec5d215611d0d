package snapshot

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vovakirdan/rollphys/internal/static"
)

// ErrIncompleteState is returned by Capture when the live body set handed in
// by the caller does not cover everything the contact graph references.
var ErrIncompleteState = errors.New("snapshot: incomplete state")

// StaticValidator checks static collider ids. *static.Registry implements it.
type StaticValidator interface {
	Valid(id static.ColliderID) bool
}

var _ StaticValidator = (*static.Registry)(nil)

// Meta carries optional world-level data stored alongside the body and
// contact sections.
type Meta struct {
	// NextBodyID is the body id allocator. Zero means "one past the largest
	// captured id".
	NextBodyID BodyID

	// Statics, when set, is used to validate static contact endpoints.
	Statics StaticValidator
}

// Snapshot is an immutable capture of the mutable simulation state at one
// frame. Accessors return copies; nothing can change a Snapshot after Capture.
type Snapshot struct {
	frame      Frame
	bodies     []BodyState   // sorted by ID, unique
	contacts   []ContactEdge // sorted by Key, unique
	nextBodyID BodyID
}

// Capture builds a Snapshot from the complete, deduplicated live body set and
// the complete contact graph produced by the step that just ran. It does not
// touch the simulation.
func Capture(frame Frame, liveBodies []BodyState, liveContacts []ContactEdge) (*Snapshot, error) {
	return CaptureWith(frame, liveBodies, liveContacts, Meta{})
}

// CaptureWith is Capture with world-level metadata.
func CaptureWith(frame Frame, liveBodies []BodyState, liveContacts []ContactEdge, meta Meta) (*Snapshot, error) {
	bodies := slices.Clone(liveBodies)
	slices.SortFunc(bodies, func(a, b BodyState) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	contacts := slices.Clone(liveContacts)
	slices.SortFunc(contacts, func(a, b ContactEdge) int {
		switch {
		case a.Key.Less(b.Key):
			return -1
		case b.Key.Less(a.Key):
			return 1
		}
		return 0
	})

	s := &Snapshot{
		frame:      frame,
		bodies:     bodies,
		contacts:   contacts,
		nextBodyID: meta.NextBodyID,
	}
	if s.nextBodyID == 0 {
		s.nextBodyID = 1
		if n := len(bodies); n > 0 {
			s.nextBodyID = bodies[n-1].ID + 1
		}
	}

	if err := s.validate(meta.Statics); err != nil {
		return nil, err
	}
	return s, nil
}

// validate checks the sorted sections. It is shared by Capture and Decode.
func (s *Snapshot) validate(statics StaticValidator) error {
	for i, b := range s.bodies {
		if b.ID == 0 {
			return fmt.Errorf("%w: frame %d: body id 0 is never valid", ErrIncompleteState, s.frame)
		}
		if i > 0 && s.bodies[i-1].ID == b.ID {
			return fmt.Errorf("%w: frame %d: body %d listed twice", ErrIncompleteState, s.frame, b.ID)
		}
		if b.ID >= s.nextBodyID {
			return fmt.Errorf("%w: frame %d: body %d not below id allocator %d", ErrIncompleteState, s.frame, b.ID, s.nextBodyID)
		}
	}

	for i, c := range s.contacts {
		if !c.Key.Normalized() {
			return fmt.Errorf("%w: frame %d: contact %s is not a normalised pair", ErrIncompleteState, s.frame, c.Key)
		}
		if i > 0 && s.contacts[i-1].Key == c.Key {
			return fmt.Errorf("%w: frame %d: contact %s listed twice", ErrIncompleteState, s.frame, c.Key)
		}
		for _, e := range [2]Endpoint{c.Key.A, c.Key.B} {
			switch e.Kind {
			case EndpointDynamic:
				if _, ok := s.Body(e.BodyID()); !ok {
					return fmt.Errorf("%w: frame %d: contact %s references body %d not in the live set", ErrIncompleteState, s.frame, c.Key, e.ID)
				}
			case EndpointStatic:
				if e.ID == 0 || (statics != nil && !statics.Valid(e.ColliderID())) {
					return fmt.Errorf("%w: frame %d: contact %s references unknown static collider %d", ErrIncompleteState, s.frame, c.Key, e.ID)
				}
			default:
				return fmt.Errorf("%w: frame %d: contact %s has invalid endpoint kind", ErrIncompleteState, s.frame, c.Key)
			}
		}
	}
	return nil
}

// Frame returns the frame this snapshot was captured at.
func (s *Snapshot) Frame() Frame {
	return s.frame
}

// NextBodyID returns the body id allocator at capture time.
func (s *Snapshot) NextBodyID() BodyID {
	return s.nextBodyID
}

// BodyCount returns the number of captured bodies.
func (s *Snapshot) BodyCount() int {
	return len(s.bodies)
}

// ContactCount returns the number of captured contact points.
func (s *Snapshot) ContactCount() int {
	return len(s.contacts)
}

// Bodies returns a copy of the body states in ascending BodyID order.
func (s *Snapshot) Bodies() []BodyState {
	return slices.Clone(s.bodies)
}

// Contacts returns a copy of the contact graph in ascending key order.
func (s *Snapshot) Contacts() []ContactEdge {
	return slices.Clone(s.contacts)
}

// Body looks up one body state.
func (s *Snapshot) Body(id BodyID) (BodyState, bool) {
	i, ok := slices.BinarySearchFunc(s.bodies, id, func(b BodyState, id BodyID) int {
		switch {
		case b.ID < id:
			return -1
		case b.ID > id:
			return 1
		}
		return 0
	})
	if !ok {
		return BodyState{}, false
	}
	return s.bodies[i], true
}

// BodyIDs returns the captured ids in ascending order.
func (s *Snapshot) BodyIDs() []BodyID {
	ids := make([]BodyID, len(s.bodies))
	for i, b := range s.bodies {
		ids[i] = b.ID
	}
	return ids
}

// Equal reports whether two snapshots hold identical state.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.frame == o.frame &&
		s.nextBodyID == o.nextBodyID &&
		slices.Equal(s.bodies, o.bodies) &&
		slices.Equal(s.contacts, o.contacts)
}

// SameState is Equal ignoring the frame number.
func (s *Snapshot) SameState(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.nextBodyID == o.nextBodyID &&
		slices.Equal(s.bodies, o.bodies) &&
		slices.Equal(s.contacts, o.contacts)
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("snapshot{frame=%d bodies=%d contacts=%d}", s.frame, len(s.bodies), len(s.contacts))
}
