// Package snapshot defines the per-frame Dynamic State Snapshot: the compact,
// immutable capture of everything in the simulation that can change between
// frames. Static geometry never appears here; it is referenced by id only.
package snapshot

import (
	"fmt"

	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/static"
)

// Frame is a simulation frame number. The world-load state is frame 0.
type Frame int64

// BodyID identifies a dynamic rigid body. Ids start at 1, are never reused
// while the body is alive and stay stable across capture and restore.
type BodyID uint32

// EndpointKind tells which id space an Endpoint refers to.
type EndpointKind uint8

const (
	EndpointStatic EndpointKind = iota + 1
	EndpointDynamic
)

func (k EndpointKind) String() string {
	switch k {
	case EndpointStatic:
		return "static"
	case EndpointDynamic:
		return "body"
	default:
		return "invalid"
	}
}

// Endpoint is one node of the contact graph: a dynamic body or a static collider.
type Endpoint struct {
	Kind EndpointKind
	ID   uint32
}

// Body returns the endpoint for a dynamic body.
func Body(id BodyID) Endpoint {
	return Endpoint{Kind: EndpointDynamic, ID: uint32(id)}
}

// Static returns the endpoint for a static collider.
func Static(id static.ColliderID) Endpoint {
	return Endpoint{Kind: EndpointStatic, ID: uint32(id)}
}

// IsStatic reports whether the endpoint is static geometry.
func (e Endpoint) IsStatic() bool {
	return e.Kind == EndpointStatic
}

// BodyID returns the body id of a dynamic endpoint.
func (e Endpoint) BodyID() BodyID {
	return BodyID(e.ID)
}

// ColliderID returns the collider id of a static endpoint.
func (e Endpoint) ColliderID() static.ColliderID {
	return static.ColliderID(e.ID)
}

// Less orders endpoints by kind, then id.
func (e Endpoint) Less(o Endpoint) bool {
	if e.Kind != o.Kind {
		return e.Kind < o.Kind
	}
	return e.ID < o.ID
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s#%d", e.Kind, e.ID)
}

// ContactKey identifies one persistent contact point: the unordered endpoint
// pair (normalised so A < B) plus the contact-point index within the pair.
type ContactKey struct {
	A, B  Endpoint
	Point uint8
}

// NewContactKey normalises the pair. swapped is true when a and b were
// exchanged, in which case a normal pointing from a to b must be negated.
func NewContactKey(a, b Endpoint, point uint8) (key ContactKey, swapped bool) {
	if b.Less(a) {
		return ContactKey{A: b, B: a, Point: point}, true
	}
	return ContactKey{A: a, B: b, Point: point}, false
}

// Normalized reports whether A sorts strictly before B.
func (k ContactKey) Normalized() bool {
	return k.A.Less(k.B)
}

// Less orders keys by A, then B, then point index.
func (k ContactKey) Less(o ContactKey) bool {
	if k.A != o.A {
		return k.A.Less(o.A)
	}
	if k.B != o.B {
		return k.B.Less(o.B)
	}
	return k.Point < o.Point
}

// Involves reports whether the key touches the given endpoint.
func (k ContactKey) Involves(e Endpoint) bool {
	return k.A == e || k.B == e
}

func (k ContactKey) String() string {
	return fmt.Sprintf("%s-%s/%d", k.A, k.B, k.Point)
}

// BodyState is the mutable state of one dynamic body at one frame.
type BodyState struct {
	ID       BodyID
	Position core.Vec2
	Angle    core.Fixed
	LinVel   core.Vec2
	AngVel   core.Fixed
	Sleeping bool
}

// ContactEdge is one active contact point of the contact graph together with
// the solver accumulators needed to warm-start the next step.
type ContactEdge struct {
	Key            ContactKey
	Normal         core.Vec2 // points from Key.A to Key.B
	Depth          core.Fixed
	NormalImpulse  core.Fixed
	TangentImpulse core.Fixed
}
