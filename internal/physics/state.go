package physics

import (
	"fmt"

	"github.com/vovakirdan/rollphys/internal/snapshot"
	"github.com/vovakirdan/rollphys/internal/static"
)

// Capture snapshots the dynamic state at the current frame. Static geometry
// is referenced by id only.
func (w *World) Capture() (*snapshot.Snapshot, error) {
	return snapshot.CaptureWith(w.frame, w.Bodies(), w.Contacts(), snapshot.Meta{
		NextBodyID: w.nextID,
		Statics:    w.statics,
	})
}

// Restore rewinds the world to the snapshot. Bodies created after the
// snapshot are removed, bodies destroyed after it are revived from their
// retired definitions, and the contact cache is rebuilt with the stored
// accumulators. The snapshot and the static registry are only read.
//
// A snapshot body that is neither live nor retired, or a contact that names
// unknown static geometry, fails with ErrBodySetMismatch and leaves the
// world untouched.
func (w *World) Restore(s *snapshot.Snapshot) error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrBodySetMismatch)
	}

	states := s.Bodies()
	for _, st := range states {
		if _, live := w.bodies[st.ID]; live {
			continue
		}
		if _, ok := w.retired[st.ID]; !ok {
			return fmt.Errorf("%w: frame %d: body %d is neither live nor retired", ErrBodySetMismatch, s.Frame(), st.ID)
		}
	}
	edges := s.Contacts()
	for _, e := range edges {
		for _, ep := range [2]snapshot.Endpoint{e.Key.A, e.Key.B} {
			if ep.IsStatic() && !w.statics.Valid(ep.ColliderID()) {
				return fmt.Errorf("%w: frame %d: contact %s: %w", ErrBodySetMismatch, s.Frame(), e.Key, static.ErrInvalidID)
			}
		}
	}

	keep := make(map[snapshot.BodyID]bool, len(states))
	for _, st := range states {
		keep[st.ID] = true
	}
	for _, id := range append([]snapshot.BodyID(nil), w.order...) {
		if !keep[id] {
			w.removeBody(id)
		}
	}

	for _, st := range states {
		b, ok := w.bodies[st.ID]
		if !ok {
			r := w.retired[st.ID]
			delete(w.retired, st.ID)
			b = newBody(st.ID, r.def)
			w.bodies[st.ID] = b
			w.insertOrder(st.ID)
		}
		b.setState(st)
	}

	w.contacts = make(map[snapshot.ContactKey]*contact, len(edges))
	for _, e := range edges {
		w.contacts[e.Key] = &contact{
			key:    e.Key,
			normal: e.Normal,
			depth:  e.Depth,
			jn:     e.NormalImpulse,
			jt:     e.TangentImpulse,
		}
	}

	w.frame = s.Frame()
	w.nextID = s.NextBodyID()
	for id := range w.retired {
		if id >= w.nextID {
			// not yet created at the snapshot frame
			delete(w.retired, id)
		}
	}
	return nil
}
