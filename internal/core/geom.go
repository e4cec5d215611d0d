// Package core provides the fundamental value types shared by the simulation,
// the rollback driver and the viewer: fixed-point math, bounding boxes, input
// frames and a character screen buffer. It has no external dependencies so the
// deterministic parts of the module stay pure and testable.
package core

// AABB is an axis-aligned bounding box in fixed-point world units.
type AABB struct {
	Min, Max Vec2
}

// BoxAround returns the AABB of a box centred on c with the given half extents.
func BoxAround(c Vec2, halfW, halfH Fixed) AABB {
	return AABB{
		Min: Vec2{c.X - halfW, c.Y - halfH},
		Max: Vec2{c.X + halfW, c.Y + halfH},
	}
}

// CircleBounds returns the AABB enclosing a circle.
func CircleBounds(c Vec2, r Fixed) AABB {
	return BoxAround(c, r, r)
}

// Overlaps reports whether two boxes intersect. Touching edges count as overlap
// so resting contacts stay in the contact graph.
func (a AABB) Overlaps(b AABB) bool {
	if a.Max.X < b.Min.X || b.Max.X < a.Min.X {
		return false
	}
	if a.Max.Y < b.Min.Y || b.Max.Y < a.Min.Y {
		return false
	}
	return true
}

// ClampPoint returns the point inside the box closest to p.
func (a AABB) ClampPoint(p Vec2) Vec2 {
	return Vec2{
		X: ClampFixed(p.X, a.Min.X, a.Max.X),
		Y: ClampFixed(p.Y, a.Min.Y, a.Max.Y),
	}
}

// Contains reports whether p lies inside the box (edges inclusive).
func (a AABB) Contains(p Vec2) bool {
	return p.X >= a.Min.X && p.X <= a.Max.X && p.Y >= a.Min.Y && p.Y <= a.Max.Y
}

// Union returns the smallest box containing both.
func (a AABB) Union(b AABB) AABB {
	return AABB{
		Min: Vec2{MinFixed(a.Min.X, b.Min.X), MinFixed(a.Min.Y, b.Min.Y)},
		Max: Vec2{MaxFixed(a.Max.X, b.Max.X), MaxFixed(a.Max.Y, b.Max.Y)},
	}
}

// Rect represents an integer cell rectangle on the screen.
type Rect struct {
	X, Y int // Top-left corner position
	W, H int // Width and height
}

// NewRect creates a new rectangle with the given position and dimensions.
func NewRect(x, y, w, h int) Rect {
	return Rect{X: x, Y: y, W: w, H: h}
}

// Right returns the x-coordinate of the right edge.
func (r Rect) Right() int {
	return r.X + r.W
}

// Bottom returns the y-coordinate of the bottom edge.
func (r Rect) Bottom() int {
	return r.Y + r.H
}

// Contains returns true if the cell (x, y) is inside this rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.Right() && y >= r.Y && y < r.Bottom()
}
