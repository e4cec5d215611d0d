package physics

import (
	"slices"

	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/snapshot"
)

// contact is one cached contact point. normal, depth and the two impulse
// accumulators persist between steps; the rest is solver scratch rebuilt
// every step.
type contact struct {
	key    snapshot.ContactKey
	normal core.Vec2
	depth  core.Fixed
	jn, jt core.Fixed

	a, b        *body // nil for a static endpoint
	rA, rB      core.Vec2
	tangent     core.Vec2
	normalMass  core.Fixed
	tangentMass core.Fixed
	friction    core.Fixed
	bias        core.Fixed
	solve       bool
}

func (c *contact) edge() snapshot.ContactEdge {
	return snapshot.ContactEdge{
		Key:            c.key,
		Normal:         c.normal,
		Depth:          c.depth,
		NormalImpulse:  c.jn,
		TangentImpulse: c.jt,
	}
}

func (w *World) sortedContacts() []*contact {
	out := make([]*contact, 0, len(w.contacts))
	for _, c := range w.contacts {
		out = append(out, c)
	}
	slices.SortFunc(out, func(x, y *contact) int {
		return cmpKey(x.key, y.key)
	})
	return out
}

func (w *World) endpoint(e snapshot.Endpoint) *body {
	if e.IsStatic() {
		return nil
	}
	return w.bodies[e.BodyID()]
}

func invMass(b *body) core.Fixed {
	if b == nil {
		return 0
	}
	return b.invMass
}

func invInertia(b *body) core.Fixed {
	if b == nil {
		return 0
	}
	return b.invInertia
}

func velocityAt(b *body, r core.Vec2) core.Vec2 {
	if b == nil {
		return core.Vec2{}
	}
	return b.vel.Add(core.CrossSV(b.angVel, r))
}

func (c *contact) relativeVelocity() core.Vec2 {
	return velocityAt(c.b, c.rB).Sub(velocityAt(c.a, c.rA))
}

// applyImpulse pushes A against and B along p.
func (c *contact) applyImpulse(p core.Vec2) {
	if a := c.a; a != nil {
		a.vel = a.vel.Sub(p.Scale(a.invMass))
		a.angVel -= a.invInertia.Mul(c.rA.Cross(p))
	}
	if b := c.b; b != nil {
		b.vel = b.vel.Add(p.Scale(b.invMass))
		b.angVel += b.invInertia.Mul(c.rB.Cross(p))
	}
}

// prepare computes effective masses, the restitution bias and mixed material
// values for every contact that takes part in this step.
func (w *World) prepare(cs []*contact) {
	one := core.ToFixed(1)
	for _, c := range cs {
		if !c.solve {
			continue
		}
		c.a = w.endpoint(c.key.A)
		c.b = w.endpoint(c.key.B)
		c.rA, c.rB = core.Vec2{}, core.Vec2{}
		if c.a != nil {
			c.rA = c.normal.Scale(c.a.def.Radius)
		}
		if c.b != nil {
			c.rB = c.normal.Scale(-c.b.def.Radius)
		}
		c.tangent = c.normal.Perp()

		kn := invMass(c.a) + invMass(c.b)
		kt := kn
		rtA := c.rA.Cross(c.tangent)
		rtB := c.rB.Cross(c.tangent)
		kt += invInertia(c.a).Mul(rtA.Mul(rtA)) + invInertia(c.b).Mul(rtB.Mul(rtB))
		c.normalMass, c.tangentMass = 0, 0
		if kn > 0 {
			c.normalMass = one.Div(kn)
		}
		if kt > 0 {
			c.tangentMass = one.Div(kt)
		}

		var restitution core.Fixed
		switch {
		case c.a != nil && c.b != nil:
			c.friction = core.MinFixed(c.a.def.Friction, c.b.def.Friction)
			restitution = (c.a.def.Restitution + c.b.def.Restitution).DivInt(2)
		case c.b != nil:
			c.friction = c.b.def.Friction
			restitution = c.b.def.Restitution
		default:
			c.friction = c.a.def.Friction
			restitution = c.a.def.Restitution
		}

		c.bias = 0
		if vn := c.relativeVelocity().Dot(c.normal); vn < -w.p.restThreshold {
			c.bias = -restitution.Mul(vn)
		}
	}
}

func (w *World) warmStart(cs []*contact) {
	for _, c := range cs {
		if !c.solve {
			continue
		}
		if c.jn == 0 && c.jt == 0 {
			continue
		}
		c.applyImpulse(c.normal.Scale(c.jn).Add(c.tangent.Scale(c.jt)))
	}
}

// solveVelocities runs one sequential-impulse pass in key order.
func (w *World) solveVelocities(cs []*contact) {
	for _, c := range cs {
		if !c.solve {
			continue
		}

		// friction, bounded by the current normal impulse
		vt := c.relativeVelocity().Dot(c.tangent)
		lambda := -c.tangentMass.Mul(vt)
		maxF := c.friction.Mul(c.jn)
		jt := core.ClampFixed(c.jt+lambda, -maxF, maxF)
		lambda = jt - c.jt
		c.jt = jt
		if lambda != 0 {
			c.applyImpulse(c.tangent.Scale(lambda))
		}

		// non-penetration, accumulated impulse never pulls
		vn := c.relativeVelocity().Dot(c.normal)
		lambda = -c.normalMass.Mul(vn - c.bias)
		jn := core.MaxFixed(c.jn+lambda, 0)
		lambda = jn - c.jn
		c.jn = jn
		if lambda != 0 {
			c.applyImpulse(c.normal.Scale(lambda))
		}
	}
}

// correctPositions pushes penetrating pairs apart by a fraction of the depth
// beyond the allowed slop, split by inverse mass.
func (w *World) correctPositions(cs []*contact) {
	for _, c := range cs {
		if !c.solve || c.depth <= w.p.slop {
			continue
		}
		total := invMass(c.a) + invMass(c.b)
		if total == 0 {
			continue
		}
		corr := (c.depth - w.p.slop).Mul(w.p.baumgarte)
		if corr == 0 {
			continue
		}
		if c.a != nil {
			share := c.a.invMass.Div(total)
			c.a.pos = c.a.pos.Sub(c.normal.Scale(corr.Mul(share)))
		}
		if c.b != nil {
			share := c.b.invMass.Div(total)
			c.b.pos = c.b.pos.Add(c.normal.Scale(corr.Mul(share)))
		}
	}
}
