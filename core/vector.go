package core

import (
	"fmt"
	"math"
)

// degenerateNorm is the smallest norm Normalize accepts.
const degenerateNorm = 1e-12

// Vec3 is a three-component vector. The frame it is expressed in is tracked by
// the caller; nothing stops you from mixing frames, so don't.
type Vec3 struct {
	X, Y, Z float64
}

// Unit vectors of whatever frame the caller is working in. In the local
// horizon frame these are east, north and up.
var (
	UnitX = Vec3{X: 1}
	UnitY = Vec3{Y: 1}
	UnitZ = Vec3{Z: 1}
)

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v multiplied by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross returns v × other.
func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

// Normalize returns v scaled to unit length. A vector whose norm is below
// degenerateNorm has no direction and yields ErrDegenerateVector instead of NaNs.
func (v Vec3) Normalize() (Vec3, error) {
	n := v.Norm()
	if n < degenerateNorm || math.IsNaN(n) {
		return Vec3{}, fmt.Errorf("%w: norm %.3g", ErrDegenerateVector, n)
	}
	return v.Scale(1 / n), nil
}

// IsFinite reports whether every component is a finite number.
func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// AngleBetween returns the signed angle in radians from v1 to v2, in (-π, π].
// The magnitude comes from the dot product and the sign from the component of
// v1 × v2 along signNormal, so a positive result is a right-handed turn about
// signNormal.
func AngleBetween(v1, v2, signNormal Vec3) float64 {
	cross := v1.Cross(v2)
	// atan2 of |cross| and dot is better conditioned than acos near 0 and π.
	angle := math.Atan2(cross.Norm(), v1.Dot(v2))
	if cross.Dot(signNormal) < 0 {
		angle = -angle
	}
	return angle
}

// WrapToRange wraps angle into [0, period).
func WrapToRange(angle, period float64) float64 {
	w := math.Mod(angle, period)
	if w < 0 {
		w += period
	}
	if w >= period {
		// math.Mod of a tiny negative number plus period can round up to period.
		w = 0
	}
	return w
}

// WrapSigned wraps angle into (-period/2, period/2].
func WrapSigned(angle, period float64) float64 {
	half := period / 2
	w := WrapToRange(angle+half, period) - half
	if w <= -half {
		w += period
	}
	return w
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func deg2rad(d float64) float64 { return d * math.Pi / 180.0 }

func rad2deg(r float64) float64 { return r * 180.0 / math.Pi }
