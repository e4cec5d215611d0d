// Package static provides the Static World Registry: immutable collision
// geometry that is built once at world load and never appears in per-frame
// snapshots. Colliders are addressed only by their stable ColliderID.
package static

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vovakirdan/rollphys/internal/core"
)

// ErrInvalidID is returned when a lookup uses an id the registry never issued.
var ErrInvalidID = errors.New("static: invalid collider id")

// ErrFrozen is returned by Register after the registry has been sealed.
var ErrFrozen = errors.New("static: registry is frozen")

// ColliderID identifies a static collider. Ids start at 1 and are valid for
// the lifetime of the world.
type ColliderID uint32

// ShapeKind enumerates supported static shapes.
type ShapeKind uint8

const (
	ShapeBox ShapeKind = iota + 1
	ShapeCircle
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeBox:
		return "box"
	case ShapeCircle:
		return "circle"
	default:
		return "unknown"
	}
}

// Shape describes collision geometry in local space. Boxes are axis aligned.
type Shape struct {
	Kind   ShapeKind
	HalfW  core.Fixed // box half width
	HalfH  core.Fixed // box half height
	Radius core.Fixed // circle radius
}

// Box builds an axis-aligned box shape from half extents.
func Box(halfW, halfH core.Fixed) Shape {
	return Shape{Kind: ShapeBox, HalfW: halfW, HalfH: halfH}
}

// Circle builds a circle shape.
func Circle(radius core.Fixed) Shape {
	return Shape{Kind: ShapeCircle, Radius: radius}
}

// Transform places a shape in the world.
type Transform struct {
	Position core.Vec2
}

// Filter holds collision group bits: a pair collides only when each side's
// membership intersects the other's filter.
type Filter struct {
	Memberships uint32
	Filter      uint32
}

// DefaultFilter collides with everything.
var DefaultFilter = Filter{Memberships: ^uint32(0), Filter: ^uint32(0)}

// Accepts reports whether two filters allow a contact.
func (f Filter) Accepts(other Filter) bool {
	return f.Memberships&other.Filter != 0 && other.Memberships&f.Filter != 0
}

// Collider is one registered piece of static geometry.
type Collider struct {
	ID        ColliderID
	Shape     Shape
	Transform Transform
	Groups    Filter
	Bounds    core.AABB
}

// Registry is the append-only store of static colliders.
// It is safe for concurrent readers; several worlds may share one registry.
type Registry struct {
	mu        sync.RWMutex
	colliders []Collider // index = id-1
	frozen    bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds geometry with the default collision filter and returns its id.
func (r *Registry) Register(shape Shape, tf Transform) (ColliderID, error) {
	return r.RegisterFiltered(shape, tf, DefaultFilter)
}

// RegisterFiltered adds geometry with explicit collision groups.
func (r *Registry) RegisterFiltered(shape Shape, tf Transform, groups Filter) (ColliderID, error) {
	var bounds core.AABB
	switch shape.Kind {
	case ShapeBox:
		if shape.HalfW <= 0 || shape.HalfH <= 0 {
			return 0, fmt.Errorf("static: box needs positive half extents, got %s x %s", shape.HalfW, shape.HalfH)
		}
		bounds = core.BoxAround(tf.Position, shape.HalfW, shape.HalfH)
	case ShapeCircle:
		if shape.Radius <= 0 {
			return 0, fmt.Errorf("static: circle needs positive radius, got %s", shape.Radius)
		}
		bounds = core.CircleBounds(tf.Position, shape.Radius)
	default:
		return 0, fmt.Errorf("static: unsupported shape kind %d", shape.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return 0, ErrFrozen
	}

	id := ColliderID(len(r.colliders) + 1)
	r.colliders = append(r.colliders, Collider{
		ID:        id,
		Shape:     shape,
		Transform: tf,
		Groups:    groups,
		Bounds:    bounds,
	})
	return id, nil
}

// Freeze seals the registry at the end of world load.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether the registry has been sealed.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Get returns the collider for id. Collider is a value, so callers cannot
// mutate registry state through it.
func (r *Registry) Get(id ColliderID) (Collider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == 0 || int(id) > len(r.colliders) {
		return Collider{}, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	return r.colliders[id-1], nil
}

// Valid reports whether id was issued by this registry.
func (r *Registry) Valid(id ColliderID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return id != 0 && int(id) <= len(r.colliders)
}

// Len returns the number of registered colliders.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.colliders)
}

// All returns a copy of every collider in id order.
func (r *Registry) All() []Collider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Collider, len(r.colliders))
	copy(out, r.colliders)
	return out
}

// Bounds returns the union of all collider bounds, or a zero box when empty.
func (r *Registry) Bounds() core.AABB {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.colliders) == 0 {
		return core.AABB{}
	}
	b := r.colliders[0].Bounds
	for _, c := range r.colliders[1:] {
		b = b.Union(c.Bounds)
	}
	return b
}
