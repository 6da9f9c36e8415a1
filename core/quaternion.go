package core

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Quaternion is a rotation quaternion with the scalar part last, matching the
// {x, y, z, w} layout on the wire. q and -q describe the same rotation.
type Quaternion struct {
	X, Y, Z, W float64
}

// IdentityQuaternion is the rotation that does nothing.
var IdentityQuaternion = Quaternion{W: 1}

// Number converts q to a gonum quaternion (Real is the scalar part).
func (q Quaternion) Number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

// QuaternionFromNumber converts a gonum quaternion to a Quaternion.
func QuaternionFromNumber(n quat.Number) Quaternion {
	return Quaternion{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}

// Norm returns the Euclidean norm of q.
func (q Quaternion) Norm() float64 {
	return quat.Abs(q.Number())
}

// Normalize returns q scaled to unit norm, or IdentityQuaternion when q is
// too close to zero to carry a direction.
func (q Quaternion) Normalize() Quaternion {
	n := q.Norm()
	if n < degenerateNorm {
		return IdentityQuaternion
	}
	return QuaternionFromNumber(quat.Scale(1/n, q.Number()))
}

// Vector returns the vector part of q.
func (q Quaternion) Vector() Vec3 {
	return Vec3{X: q.X, Y: q.Y, Z: q.Z}
}

// Equivalent reports whether q and other represent the same rotation to
// within tol, accepting either sign.
func (q Quaternion) Equivalent(other Quaternion, tol float64) bool {
	same := math.Abs(q.X-other.X) <= tol && math.Abs(q.Y-other.Y) <= tol &&
		math.Abs(q.Z-other.Z) <= tol && math.Abs(q.W-other.W) <= tol
	flipped := math.Abs(q.X+other.X) <= tol && math.Abs(q.Y+other.Y) <= tol &&
		math.Abs(q.Z+other.Z) <= tol && math.Abs(q.W+other.W) <= tol
	return same || flipped
}

// ComposeQuaternions returns the quaternion of QuaternionToDCM(outer)·QuaternionToDCM(inner).
// With frame-rotation matrices that is the Hamilton product inner·outer.
func ComposeQuaternions(outer, inner Quaternion) Quaternion {
	return QuaternionFromNumber(quat.Mul(inner.Number(), outer.Number()))
}

// QuaternionToDCM returns the frame-rotation matrix of a unit quaternion, in
// the same sense as R1/R2/R3: the quaternion (0, 0, sin θ/2, cos θ/2) maps to R3(θ).
func QuaternionToDCM(q Quaternion) DCM {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	return DCM{
		{x*x - y*y - z*z + w*w, 2 * (x*y + z*w), 2 * (x*z - y*w)},
		{2 * (x*y - z*w), -x*x + y*y - z*z + w*w, 2 * (y*z + x*w)},
		{2 * (x*z + y*w), 2 * (y*z - x*w), -x*x - y*y + z*z + w*w},
	}
}

// DCMToQuaternion is the inverse of QuaternionToDCM.
//
// The conversion picks whichever of the trace and the three diagonal elements
// is largest and divides only by the component it derives from. That
// component is always at least 1/2. The result is then put in the w >= 0
// hemisphere, so nearby matrices give nearby quaternions; the only sign
// change left is across 180° rotations, where w passes through zero.
func DCMToQuaternion(m DCM) Quaternion {
	tr := m[0][0] + m[1][1] + m[2][2]

	var q Quaternion
	switch {
	case tr >= m[0][0] && tr >= m[1][1] && tr >= m[2][2]:
		w := 0.5 * math.Sqrt(1+tr)
		f := 0.25 / w
		q = Quaternion{
			X: (m[1][2] - m[2][1]) * f,
			Y: (m[2][0] - m[0][2]) * f,
			Z: (m[0][1] - m[1][0]) * f,
			W: w,
		}
	case m[0][0] >= m[1][1] && m[0][0] >= m[2][2]:
		x := 0.5 * math.Sqrt(1+2*m[0][0]-tr)
		f := 0.25 / x
		q = Quaternion{
			X: x,
			Y: (m[0][1] + m[1][0]) * f,
			Z: (m[0][2] + m[2][0]) * f,
			W: (m[1][2] - m[2][1]) * f,
		}
	case m[1][1] >= m[2][2]:
		y := 0.5 * math.Sqrt(1+2*m[1][1]-tr)
		f := 0.25 / y
		q = Quaternion{
			X: (m[0][1] + m[1][0]) * f,
			Y: y,
			Z: (m[1][2] + m[2][1]) * f,
			W: (m[2][0] - m[0][2]) * f,
		}
	default:
		z := 0.5 * math.Sqrt(1+2*m[2][2]-tr)
		f := 0.25 / z
		q = Quaternion{
			X: (m[0][2] + m[2][0]) * f,
			Y: (m[1][2] + m[2][1]) * f,
			Z: z,
			W: (m[0][1] - m[1][0]) * f,
		}
	}

	return q.Canonical()
}

// Canonical returns q normalised and moved into the w >= 0 hemisphere.
func (q Quaternion) Canonical() Quaternion {
	if q.W < 0 {
		q = Quaternion{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
	}
	return q.Normalize()
}
