package physics

import (
	"slices"

	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/snapshot"
)

// Pair is an unordered endpoint pair, normalised so A < B.
type Pair struct {
	A, B snapshot.Endpoint
}

// Involves reports whether the pair touches the endpoint.
func (p Pair) Involves(e snapshot.Endpoint) bool {
	return p.A == e || p.B == e
}

// Other returns the endpoint opposite e.
func (p Pair) Other(e snapshot.Endpoint) snapshot.Endpoint {
	if p.A == e {
		return p.B
	}
	return p.A
}

func pairOf(k snapshot.ContactKey) Pair {
	return Pair{A: k.A, B: k.B}
}

func cmpPair(x, y Pair) int {
	return cmpKey(snapshot.ContactKey{A: x.A, B: x.B}, snapshot.ContactKey{A: y.A, B: y.B})
}

// StepEvents lists the pairs that started or stopped touching during a step,
// each in ascending pair order.
type StepEvents struct {
	Started []Pair
	Stopped []Pair
}

// Empty reports whether nothing happened.
func (e StepEvents) Empty() bool {
	return len(e.Started) == 0 && len(e.Stopped) == 0
}

// Step advances the world by one frame.
func (w *World) Step() StepEvents {
	w.integrateVelocities()

	found := w.collide()
	events := w.updateContacts(found)

	cs := w.sortedContacts()
	w.prepare(cs)
	if w.p.warmStart {
		w.warmStart(cs)
	}
	for i := 0; i < w.p.iterations; i++ {
		w.solveVelocities(cs)
	}

	w.integratePositions()
	w.correctPositions(cs)
	w.updateSleep(cs)

	w.frame++
	return events
}

func (w *World) integrateVelocities() {
	one := core.ToFixed(1)
	dt := w.p.dt
	for _, id := range w.order {
		b := w.bodies[id]
		if b.sleeping {
			continue
		}
		b.vel = b.vel.Add(w.p.gravity.Scale(dt))
		if d := b.def.LinearDamping; d > 0 {
			b.vel = b.vel.Scale(one.Div(one + dt.Mul(d)))
		}
		if b.def.LockRotation {
			b.angVel = 0
		} else if d := b.def.AngularDamping; d > 0 {
			b.angVel = b.angVel.Mul(one.Div(one + dt.Mul(d)))
		}
	}
}

// updateContacts replaces the contact cache with the narrow-phase result,
// carrying accumulators over for points that persist.
func (w *World) updateContacts(found []manifold) StepEvents {
	oldPairs := make(map[Pair]bool, len(w.contacts))
	for k := range w.contacts {
		oldPairs[pairOf(k)] = true
	}

	next := make(map[snapshot.ContactKey]*contact, len(found))
	newPairs := make(map[Pair]bool, len(found))
	var events StepEvents

	for _, m := range found {
		p := pairOf(m.key)
		if m.carried != nil {
			m.carried.solve = false
			next[m.key] = m.carried
			newPairs[p] = true
			continue
		}

		c, ok := w.contacts[m.key]
		if !ok {
			c = &contact{key: m.key}
		} else if !w.p.warmStart {
			c.jn, c.jt = 0, 0
		}
		c.normal = m.normal
		c.depth = m.depth
		c.solve = true
		next[m.key] = c

		if !newPairs[p] {
			newPairs[p] = true
			if !oldPairs[p] {
				events.Started = append(events.Started, p)
			}
		}
	}

	for p := range oldPairs {
		if !newPairs[p] {
			events.Stopped = append(events.Stopped, p)
		}
	}
	slices.SortFunc(events.Started, cmpPair)
	slices.SortFunc(events.Stopped, cmpPair)

	w.contacts = next
	return events
}

func (w *World) integratePositions() {
	dt := w.p.dt
	for _, id := range w.order {
		b := w.bodies[id]
		if b.sleeping {
			continue
		}
		delta := b.vel.Scale(dt)
		if b.def.Swept {
			w.sweep(b, delta)
		} else {
			b.pos = b.pos.Add(delta)
		}
		b.angle += b.angVel.Mul(dt)
	}
}

// sweep moves a fast body in sub-steps no longer than its radius and stops
// at the first sub-step that penetrates something it collides with.
func (w *World) sweep(b *body, delta core.Vec2) {
	travel := delta.Len()
	steps := 1
	if r := b.def.Radius; travel > r && r > 0 {
		steps = int((travel + r - 1) / r)
	}
	if steps > w.p.maxSweep {
		steps = w.p.maxSweep
	}

	start := b.pos
	for i := 1; i <= steps; i++ {
		p := start.Add(core.V(delta.X.MulInt(int64(i)).DivInt(int64(steps)), delta.Y.MulInt(int64(i)).DivInt(int64(steps))))
		b.pos = p
		if i < steps && w.overlapsAny(b, p) {
			return
		}
	}
}

// updateSleep puts slow bodies to sleep. A body still penetrating something
// by more than twice the slop stays awake until correction has caught up.
// Sleep depends only on the current state, so a restored body sleeps or
// wakes exactly as it did originally.
func (w *World) updateSleep(cs []*contact) {
	sv := w.p.sleepVelocity
	if sv <= 0 {
		return
	}
	restless := make(map[snapshot.BodyID]bool)
	deep := 2 * w.p.slop
	for _, c := range cs {
		if !c.solve || c.depth <= deep {
			continue
		}
		if c.a != nil {
			restless[c.a.id] = true
		}
		if c.b != nil {
			restless[c.b.id] = true
		}
	}

	limit := sv.Mul(sv)
	for _, id := range w.order {
		b := w.bodies[id]
		if b.sleeping || restless[id] {
			continue
		}
		if b.vel.LenSq() <= limit && b.angVel.Abs() <= sv {
			b.sleeping = true
			b.vel = core.Vec2{}
			b.angVel = 0
		}
	}
}
