package physics

import (
	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/snapshot"
	"github.com/vovakirdan/rollphys/internal/static"
)

// BodyDef describes a dynamic circle body. Everything in a BodyDef is fixed
// for the lifetime of the body; only the state fields of snapshot.BodyState
// change from frame to frame.
type BodyDef struct {
	Position core.Vec2
	Angle    core.Fixed
	LinVel   core.Vec2
	AngVel   core.Fixed

	Radius         core.Fixed
	Mass           core.Fixed
	LinearDamping  core.Fixed
	AngularDamping core.Fixed
	Restitution    core.Fixed
	Friction       core.Fixed
	LockRotation   bool
	Groups         static.Filter

	// Swept bodies sub-step their motion so fast movers cannot pass
	// through thin geometry in a single step.
	Swept bool

	// Tag is free for game rules, for example to tell bullets from tanks.
	Tag uint32
}

type body struct {
	id  snapshot.BodyID
	def BodyDef

	invMass    core.Fixed
	invInertia core.Fixed

	pos      core.Vec2
	angle    core.Fixed
	vel      core.Vec2
	angVel   core.Fixed
	sleeping bool
}

func newBody(id snapshot.BodyID, def BodyDef) *body {
	b := &body{
		id:     id,
		def:    def,
		pos:    def.Position,
		angle:  def.Angle,
		vel:    def.LinVel,
		angVel: def.AngVel,
	}
	one := core.ToFixed(1)
	if def.Mass > 0 {
		b.invMass = one.Div(def.Mass)
		if !def.LockRotation && def.Radius > 0 {
			// solid disc: I = m r^2 / 2
			inertia := def.Mass.Mul(def.Radius.Mul(def.Radius)).DivInt(2)
			b.invInertia = one.Div(inertia)
		}
	}
	if def.LockRotation {
		b.angVel = 0
	}
	return b
}

func (b *body) state() snapshot.BodyState {
	return snapshot.BodyState{
		ID:       b.id,
		Position: b.pos,
		Angle:    b.angle,
		LinVel:   b.vel,
		AngVel:   b.angVel,
		Sleeping: b.sleeping,
	}
}

func (b *body) setState(s snapshot.BodyState) {
	b.pos = s.Position
	b.angle = s.Angle
	b.vel = s.LinVel
	b.angVel = s.AngVel
	b.sleeping = s.Sleeping
}

func (b *body) bounds() core.AABB {
	return core.CircleBounds(b.pos, b.def.Radius)
}

func (b *body) wake() {
	b.sleeping = false
}

// retired keeps the definition of a destroyed body so that a restore to a
// frame before its destruction can bring it back.
type retired struct {
	def BodyDef
	at  snapshot.Frame
}
