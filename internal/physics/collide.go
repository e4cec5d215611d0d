package physics

import (
	"slices"

	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/snapshot"
	"github.com/vovakirdan/rollphys/internal/static"
)

// manifold is one contact point found by the narrow phase.
type manifold struct {
	key    snapshot.ContactKey
	normal core.Vec2 // from key.A to key.B
	depth  core.Fixed

	// carried is set for pairs with no awake body; the cached contact is
	// kept as it was.
	carried *contact
}

// circleCircle tests two circles. The normal points from a to b.
// Touching circles count as a contact with zero depth.
func circleCircle(pa core.Vec2, ra core.Fixed, pb core.Vec2, rb core.Fixed) (core.Vec2, core.Fixed, bool) {
	d := pb.Sub(pa)
	rs := ra + rb
	if d.X.Abs() > rs || d.Y.Abs() > rs {
		return core.Vec2{}, 0, false
	}
	if d.LenSq() > rs.Mul(rs) {
		return core.Vec2{}, 0, false
	}
	n, dist := d.Normalize()
	if dist == 0 {
		n = core.V(core.ToFixed(1), 0)
	}
	return n, core.MaxFixed(rs-dist, 0), true
}

// circleBox tests a circle against an axis-aligned box. The normal points
// from the box to the circle.
func circleBox(center core.Vec2, halfW, halfH core.Fixed, p core.Vec2, r core.Fixed) (core.Vec2, core.Fixed, bool) {
	local := p.Sub(center)
	clamped := core.V(
		core.ClampFixed(local.X, -halfW, halfW),
		core.ClampFixed(local.Y, -halfH, halfH),
	)

	if clamped == local {
		// centre inside the box: push out along the shallowest axis
		dx := halfW - local.X.Abs()
		dy := halfH - local.Y.Abs()
		if dx <= dy {
			return core.V(signOne(local.X), 0), dx + r, true
		}
		return core.V(0, signOne(local.Y)), dy + r, true
	}

	d := local.Sub(clamped)
	if d.LenSq() > r.Mul(r) {
		return core.Vec2{}, 0, false
	}
	n, dist := d.Normalize()
	if dist == 0 {
		return core.V(signOne(local.X), 0), r, true
	}
	return n, core.MaxFixed(r-dist, 0), true
}

func signOne(f core.Fixed) core.Fixed {
	if f < 0 {
		return -core.ToFixed(1)
	}
	return core.ToFixed(1)
}

// collideStatic tests a circle against one static collider.
func collideStatic(c static.Collider, p core.Vec2, r core.Fixed) (core.Vec2, core.Fixed, bool) {
	switch c.Shape.Kind {
	case static.ShapeBox:
		return circleBox(c.Transform.Position, c.Shape.HalfW, c.Shape.HalfH, p, r)
	case static.ShapeCircle:
		return circleCircle(c.Transform.Position, c.Shape.Radius, p, r)
	}
	return core.Vec2{}, 0, false
}

type sweepEntry struct {
	b      *body
	bounds core.AABB
}

// collide runs the broad and narrow phase over the current positions. The
// result is sorted by contact key. A sleeping body touched by an awake one
// is woken.
func (w *World) collide() []manifold {
	var found []manifold

	// bodies against bodies: sort and sweep on x, ties broken by id
	entries := make([]sweepEntry, 0, len(w.order))
	for _, id := range w.order {
		b := w.bodies[id]
		entries = append(entries, sweepEntry{b: b, bounds: b.bounds()})
	}
	slices.SortFunc(entries, func(x, y sweepEntry) int {
		switch {
		case x.bounds.Min.X < y.bounds.Min.X:
			return -1
		case x.bounds.Min.X > y.bounds.Min.X:
			return 1
		case x.b.id < y.b.id:
			return -1
		case x.b.id > y.b.id:
			return 1
		}
		return 0
	})

	type pair struct{ a, b *body }
	var pairs []pair
	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].bounds.Min.X > entries[i].bounds.Max.X {
				break
			}
			if !entries[i].bounds.Overlaps(entries[j].bounds) {
				continue
			}
			a, b := entries[i].b, entries[j].b
			if b.id < a.id {
				a, b = b, a
			}
			if !a.def.Groups.Accepts(b.def.Groups) {
				continue
			}
			pairs = append(pairs, pair{a, b})
		}
	}
	slices.SortFunc(pairs, func(x, y pair) int {
		switch {
		case x.a.id != y.a.id:
			return cmpID(x.a.id, y.a.id)
		default:
			return cmpID(x.b.id, y.b.id)
		}
	})

	for _, pr := range pairs {
		key, _ := snapshot.NewContactKey(snapshot.Body(pr.a.id), snapshot.Body(pr.b.id), 0)
		if pr.a.sleeping && pr.b.sleeping {
			if old, ok := w.contacts[key]; ok {
				found = append(found, manifold{key: key, carried: old})
			}
			continue
		}
		n, depth, ok := circleCircle(pr.a.pos, pr.a.def.Radius, pr.b.pos, pr.b.def.Radius)
		if !ok {
			continue
		}
		pr.a.wake()
		pr.b.wake()
		found = append(found, manifold{key: key, normal: n, depth: depth})
	}

	// bodies against static geometry
	for _, id := range w.order {
		b := w.bodies[id]
		bb := b.bounds()
		for _, wall := range w.walls {
			if !wall.Bounds.Overlaps(bb) || !wall.Groups.Accepts(b.def.Groups) {
				continue
			}
			key, _ := snapshot.NewContactKey(snapshot.Static(wall.ID), snapshot.Body(id), 0)
			if b.sleeping {
				if old, ok := w.contacts[key]; ok {
					found = append(found, manifold{key: key, carried: old})
				}
				continue
			}
			n, depth, ok := collideStatic(wall, b.pos, b.def.Radius)
			if !ok {
				continue
			}
			found = append(found, manifold{key: key, normal: n, depth: depth})
		}
	}

	slices.SortFunc(found, func(x, y manifold) int {
		return cmpKey(x.key, y.key)
	})
	return found
}

// overlapsAny reports whether a circle at p penetrates any static collider or
// unswept body that accepts the filter. It is used by swept integration.
func (w *World) overlapsAny(self *body, p core.Vec2) bool {
	r := self.def.Radius
	bb := core.CircleBounds(p, r)
	for _, wall := range w.walls {
		if !wall.Bounds.Overlaps(bb) || !wall.Groups.Accepts(self.def.Groups) {
			continue
		}
		if _, depth, ok := collideStatic(wall, p, r); ok && depth > 0 {
			return true
		}
	}
	for _, id := range w.order {
		o := w.bodies[id]
		if o == self || o.def.Swept || !o.def.Groups.Accepts(self.def.Groups) {
			continue
		}
		if !o.bounds().Overlaps(bb) {
			continue
		}
		if _, depth, ok := circleCircle(o.pos, o.def.Radius, p, r); ok && depth > 0 {
			return true
		}
	}
	return false
}

func cmpID(a, b snapshot.BodyID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpKey(a, b snapshot.ContactKey) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}
