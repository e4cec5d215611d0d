// Package physics is the deterministic simulation context: dynamic circle
// bodies moving among the static colliders of a static.Registry, stepped
// with a sequential-impulse contact solver in fixed-point arithmetic.
//
// A World is an explicitly owned value. Several worlds may share one frozen
// registry and run side by side.
package physics

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vovakirdan/rollphys/internal/config"
	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/snapshot"
	"github.com/vovakirdan/rollphys/internal/static"
)

var (
	// ErrUnknownBody is returned for operations on a body that is not live.
	ErrUnknownBody = errors.New("physics: unknown body")
	// ErrBodySetMismatch is returned by Restore when the live body set cannot
	// be reconciled with the snapshot.
	ErrBodySetMismatch = errors.New("physics: body set mismatch")
	// ErrInvalidBody is returned by CreateBody for unusable definitions.
	ErrInvalidBody = errors.New("physics: invalid body definition")
)

// params are the configured tunables in fixed-point.
type params struct {
	dt            core.Fixed
	gravity       core.Vec2
	iterations    int
	baumgarte     core.Fixed
	slop          core.Fixed
	sleepVelocity core.Fixed
	warmStart     bool
	maxSweep      int
	restThreshold core.Fixed
}

func newParams(cfg config.Physics) params {
	p := params{
		dt:            cfg.Dt(),
		gravity:       cfg.Gravity(),
		iterations:    cfg.VelocityIterations,
		baumgarte:     config.Fx(cfg.Baumgarte),
		slop:          config.Fx(cfg.Slop),
		sleepVelocity: config.Fx(cfg.SleepVelocity),
		warmStart:     cfg.WarmStart,
		maxSweep:      cfg.MaxSweepSteps,
		restThreshold: core.ToFixed(1),
	}
	if p.maxSweep < 1 {
		p.maxSweep = 1
	}
	return p
}

// World owns all mutable simulation state.
type World struct {
	p       params
	statics *static.Registry
	walls   []static.Collider // cached registry contents, id order

	frame   snapshot.Frame
	nextID  snapshot.BodyID
	bodies  map[snapshot.BodyID]*body
	order   []snapshot.BodyID // live ids, ascending
	retired map[snapshot.BodyID]retired

	contacts map[snapshot.ContactKey]*contact
}

// NewWorld creates a world at frame 0 over the given static geometry. The
// registry is frozen; it must be fully built before the world exists.
func NewWorld(cfg config.Physics, statics *static.Registry) *World {
	if statics == nil {
		statics = static.NewRegistry()
	}
	statics.Freeze()

	return &World{
		p:        newParams(cfg),
		statics:  statics,
		walls:    statics.All(),
		nextID:   1,
		bodies:   make(map[snapshot.BodyID]*body),
		retired:  make(map[snapshot.BodyID]retired),
		contacts: make(map[snapshot.ContactKey]*contact),
	}
}

// Statics returns the static registry the world collides against.
func (w *World) Statics() *static.Registry {
	return w.statics
}

// Frame returns the frame of the current state.
func (w *World) Frame() snapshot.Frame {
	return w.frame
}

// Dt returns the step length.
func (w *World) Dt() core.Fixed {
	return w.p.dt
}

// CreateBody adds a dynamic body and returns its id.
func (w *World) CreateBody(def BodyDef) (snapshot.BodyID, error) {
	if def.Radius <= 0 {
		return 0, fmt.Errorf("%w: radius must be positive, got %s", ErrInvalidBody, def.Radius)
	}
	if def.Mass <= 0 {
		return 0, fmt.Errorf("%w: mass must be positive, got %s", ErrInvalidBody, def.Mass)
	}
	if def.Groups == (static.Filter{}) {
		def.Groups = static.DefaultFilter
	}

	id := w.nextID
	w.nextID++

	w.bodies[id] = newBody(id, def)
	w.insertOrder(id)
	delete(w.retired, id)
	return id, nil
}

// DestroyBody removes a body and every contact that involves it. The body is
// retired so a restore to an earlier frame can revive it.
func (w *World) DestroyBody(id snapshot.BodyID) error {
	b, ok := w.bodies[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	w.retired[id] = retired{def: b.def, at: w.frame}
	w.removeBody(id)
	return nil
}

func (w *World) removeBody(id snapshot.BodyID) {
	delete(w.bodies, id)
	if i, ok := slices.BinarySearch(w.order, id); ok {
		w.order = slices.Delete(w.order, i, i+1)
	}
	e := snapshot.Body(id)
	for k := range w.contacts {
		if k.Involves(e) {
			delete(w.contacts, k)
		}
	}
}

func (w *World) insertOrder(id snapshot.BodyID) {
	i, ok := slices.BinarySearch(w.order, id)
	if !ok {
		w.order = slices.Insert(w.order, i, id)
	}
}

// Prune forgets bodies retired at or before frame. Call it with the oldest
// frame a restore can still target.
func (w *World) Prune(before snapshot.Frame) {
	for id, r := range w.retired {
		if r.at <= before {
			delete(w.retired, id)
		}
	}
}

// RetiredCount returns the number of destroyed bodies still remembered.
func (w *World) RetiredCount() int {
	return len(w.retired)
}

// Body returns the current state of a live body.
func (w *World) Body(id snapshot.BodyID) (snapshot.BodyState, bool) {
	b, ok := w.bodies[id]
	if !ok {
		return snapshot.BodyState{}, false
	}
	return b.state(), true
}

// Def returns the definition of a live body.
func (w *World) Def(id snapshot.BodyID) (BodyDef, bool) {
	b, ok := w.bodies[id]
	if !ok {
		return BodyDef{}, false
	}
	return b.def, true
}

// Bodies returns every live body state in ascending id order.
func (w *World) Bodies() []snapshot.BodyState {
	out := make([]snapshot.BodyState, len(w.order))
	for i, id := range w.order {
		out[i] = w.bodies[id].state()
	}
	return out
}

// BodyCount returns the number of live bodies.
func (w *World) BodyCount() int {
	return len(w.order)
}

// Contacts returns the contact graph in ascending key order.
func (w *World) Contacts() []snapshot.ContactEdge {
	out := make([]snapshot.ContactEdge, 0, len(w.contacts))
	for _, c := range w.sortedContacts() {
		out = append(out, c.edge())
	}
	return out
}

// ApplyImpulse changes a body's velocity by impulse/mass and wakes it.
func (w *World) ApplyImpulse(id snapshot.BodyID, impulse core.Vec2) error {
	b, ok := w.bodies[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	if impulse.IsZero() {
		return nil
	}
	b.vel = b.vel.Add(impulse.Scale(b.invMass))
	b.wake()
	return nil
}

// AddLinearVelocity adds dv to a body's velocity and wakes it.
func (w *World) AddLinearVelocity(id snapshot.BodyID, dv core.Vec2) error {
	b, ok := w.bodies[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	if dv.IsZero() {
		return nil
	}
	b.vel = b.vel.Add(dv)
	b.wake()
	return nil
}

// SetLinearVelocity replaces a body's velocity. A non-zero velocity wakes it.
func (w *World) SetLinearVelocity(id snapshot.BodyID, v core.Vec2) error {
	b, ok := w.bodies[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	b.vel = v
	if !v.IsZero() {
		b.wake()
	}
	return nil
}
