package core

import (
	"fmt"
	"math"
	"math/bits"
)

// Scale is the fixed-point scale factor: 1 world unit = 1000 raw units.
// All simulation math runs on integers so results are bit-identical on
// every platform and every replay.
const Scale = 1000

// Fixed represents a fixed-point number (scaled by Scale).
type Fixed int64

// ToFixed converts a whole unit count to fixed-point.
func ToFixed(n int) Fixed {
	return Fixed(int64(n) * Scale)
}

// Ratio builds num/den as a fixed-point value, truncated toward zero.
func Ratio(num, den int64) Fixed {
	if den == 0 {
		return 0
	}
	return Fixed(mulDiv(num, Scale, den))
}

// Raw returns the underlying scaled integer.
func (f Fixed) Raw() int64 {
	return int64(f)
}

// Int returns the integer part, truncated toward zero.
func (f Fixed) Int() int {
	return int(f / Scale)
}

// Round returns the nearest integer.
func (f Fixed) Round() int {
	if f >= 0 {
		return int((f + Scale/2) / Scale)
	}
	return int((f - Scale/2) / Scale)
}

// Mul multiplies two fixed-point values. Results outside the int64 range
// saturate.
func (f Fixed) Mul(other Fixed) Fixed {
	return Fixed(mulDiv(int64(f), int64(other), Scale))
}

// Div divides two fixed-point values. Division by zero yields zero;
// results outside the int64 range saturate.
func (f Fixed) Div(other Fixed) Fixed {
	if other == 0 {
		return 0
	}
	return Fixed(mulDiv(int64(f), Scale, int64(other)))
}

// mulDiv returns a*b/c truncated toward zero, with a 128-bit intermediate
// product. c must not be zero.
func mulDiv(a, b, c int64) int64 {
	neg := (a < 0) != (b < 0) != (c < 0)
	hi, lo := bits.Mul64(absU64(a), absU64(b))
	uc := absU64(c)
	if hi >= uc {
		return saturate(neg)
	}
	q, _ := bits.Div64(hi, lo, uc)
	if neg {
		if q > 1<<63 {
			return saturate(true)
		}
		return int64(-q)
	}
	if q > math.MaxInt64 {
		return saturate(false)
	}
	return int64(q)
}

func absU64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

func saturate(neg bool) int64 {
	if neg {
		return math.MinInt64
	}
	return math.MaxInt64
}

// MulInt multiplies by a plain integer.
func (f Fixed) MulInt(n int64) Fixed {
	return Fixed(int64(f) * n)
}

// DivInt divides by a plain integer. Division by zero yields zero.
func (f Fixed) DivInt(n int64) Fixed {
	if n == 0 {
		return 0
	}
	return Fixed(int64(f) / n)
}

// Abs returns absolute value.
func (f Fixed) Abs() Fixed {
	if f < 0 {
		return -f
	}
	return f
}

// Sign returns -1, 0, or 1.
func (f Fixed) Sign() int {
	if f < 0 {
		return -1
	}
	if f > 0 {
		return 1
	}
	return 0
}

// Sqrt returns the fixed-point square root. Negative input yields zero.
func (f Fixed) Sqrt() Fixed {
	if f <= 0 {
		return 0
	}
	return Fixed(isqrt(uint64(f) * Scale))
}

func (f Fixed) String() string {
	sign := ""
	v := int64(f)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%03d", sign, v/Scale, v%Scale)
}

// MinFixed returns the smaller value.
func MinFixed(a, b Fixed) Fixed {
	if a < b {
		return a
	}
	return b
}

// MaxFixed returns the larger value.
func MaxFixed(a, b Fixed) Fixed {
	if a > b {
		return a
	}
	return b
}

// ClampFixed restricts a value to [minVal, maxVal].
func ClampFixed(val, minVal, maxVal Fixed) Fixed {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

// isqrt is the integer square root (floor), Newton iteration seeded from the bit length.
func isqrt(n uint64) uint64 {
	if n < 2 {
		return n
	}
	x := uint64(1) << ((bits.Len64(n) + 1) / 2)
	for {
		y := (x + n/x) / 2
		if y >= x {
			return x
		}
		x = y
	}
}

// Vec2 is a 2D vector in fixed-point.
type Vec2 struct {
	X, Y Fixed
}

// V builds a vector from fixed-point components.
func V(x, y Fixed) Vec2 {
	return Vec2{X: x, Y: y}
}

// VI builds a vector from whole units.
func VI(x, y int) Vec2 {
	return Vec2{X: ToFixed(x), Y: ToFixed(y)}
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Neg() Vec2       { return Vec2{-v.X, -v.Y} }

// Scale multiplies both components by a fixed-point scalar.
func (v Vec2) Scale(s Fixed) Vec2 {
	return Vec2{v.X.Mul(s), v.Y.Mul(s)}
}

// Dot returns the dot product.
func (v Vec2) Dot(o Vec2) Fixed {
	return v.X.Mul(o.X) + v.Y.Mul(o.Y)
}

// Cross returns the z component of the 3D cross product.
func (v Vec2) Cross(o Vec2) Fixed {
	return v.X.Mul(o.Y) - v.Y.Mul(o.X)
}

// CrossSV returns s x v for a scalar angular value s.
func CrossSV(s Fixed, v Vec2) Vec2 {
	return Vec2{-s.Mul(v.Y), s.Mul(v.X)}
}

// Perp returns the vector rotated 90 degrees counter-clockwise.
func (v Vec2) Perp() Vec2 {
	return Vec2{-v.Y, v.X}
}

// LenSq returns the squared length.
func (v Vec2) LenSq() Fixed {
	return v.Dot(v)
}

// Len returns the length.
func (v Vec2) Len() Fixed {
	return v.LenSq().Sqrt()
}

// IsZero reports whether both components are zero.
func (v Vec2) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// Normalize returns a unit vector and the original length.
// A zero vector stays zero.
func (v Vec2) Normalize() (Vec2, Fixed) {
	l := v.Len()
	if l == 0 {
		return Vec2{}, 0
	}
	return Vec2{v.X.Div(l), v.Y.Div(l)}, l
}

func (v Vec2) String() string {
	return fmt.Sprintf("(%s, %s)", v.X, v.Y)
}
