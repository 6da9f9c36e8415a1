package core

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Axis names a principal axis: 1 = X, 2 = Y, 3 = Z.
type Axis int

const (
	Axis1 Axis = 1
	Axis2 Axis = 2
	Axis3 Axis = 3
)

// Valid reports whether a is one of the three principal axes.
func (a Axis) Valid() bool {
	return a >= Axis1 && a <= Axis3
}

// DCM is a direction cosine matrix, stored row-major. A DCM that maps
// coordinates from frame A to frame B is applied to column vectors: v_B = M·v_A.
type DCM [3][3]float64

// Identity is the DCM that does nothing.
var Identity = DCM{
	{1, 0, 0},
	{0, 1, 0},
	{0, 0, 1},
}

// ElementaryRotation returns the frame rotation about a principal axis by
// angle radians, positive by the right-hand rule (the R1/R2/R3 matrices of
// Vallado). It satisfies ElementaryRotation(a, θ)ᵀ = ElementaryRotation(a, -θ).
func ElementaryRotation(axis Axis, angle float64) (DCM, error) {
	s, c := math.Sincos(angle)
	switch axis {
	case Axis1:
		return DCM{
			{1, 0, 0},
			{0, c, s},
			{0, -s, c},
		}, nil
	case Axis2:
		return DCM{
			{c, 0, -s},
			{0, 1, 0},
			{s, 0, c},
		}, nil
	case Axis3:
		return DCM{
			{c, s, 0},
			{-s, c, 0},
			{0, 0, 1},
		}, nil
	default:
		return Identity, fmt.Errorf("%w: %d", ErrInvalidAxis, int(axis))
	}
}

// R1 is the elementary rotation about the first axis.
func R1(angle float64) DCM {
	m, _ := ElementaryRotation(Axis1, angle)
	return m
}

// R2 is the elementary rotation about the second axis.
func R2(angle float64) DCM {
	m, _ := ElementaryRotation(Axis2, angle)
	return m
}

// R3 is the elementary rotation about the third axis.
func R3(angle float64) DCM {
	m, _ := ElementaryRotation(Axis3, angle)
	return m
}

// Mul returns m·other: apply other first, then m.
func (m DCM) Mul(other DCM) DCM {
	var out DCM
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][0]*other[0][j] + m[i][1]*other[1][j] + m[i][2]*other[2][j]
		}
	}
	return out
}

// Compose multiplies the matrices left to right, so the right-most rotation
// is applied first. Compose() is the identity.
func Compose(ms ...DCM) DCM {
	out := Identity
	for _, m := range ms {
		out = out.Mul(m)
	}
	return out
}

// T returns the transpose, which for a rotation is also its inverse.
func (m DCM) T() DCM {
	return DCM{
		{m[0][0], m[1][0], m[2][0]},
		{m[0][1], m[1][1], m[2][1]},
		{m[0][2], m[1][2], m[2][2]},
	}
}

// Apply returns m·v.
func (m DCM) Apply(v Vec3) Vec3 {
	return Vec3{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Column returns column i (0-based): the image of the i-th source axis.
func (m DCM) Column(i int) Vec3 {
	return Vec3{X: m[0][i], Y: m[1][i], Z: m[2][i]}
}

// DCMFromColumns builds the matrix whose columns are x, y and z.
func DCMFromColumns(x, y, z Vec3) DCM {
	return DCM{
		{x.X, y.X, z.X},
		{x.Y, y.Y, z.Y},
		{x.Z, y.Z, z.Z},
	}
}

// Dense copies m into a gonum matrix.
func (m DCM) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

// IsOrthonormal reports whether m is a proper rotation to within tol: mᵀm ≈ I
// element-wise and det(m) ≈ +1.
func (m DCM) IsOrthonormal(tol float64) bool {
	a := m.Dense()
	var gram mat.Dense
	gram.Mul(a.T(), a)
	if !mat.EqualApprox(&gram, mat.NewDiagDense(3, []float64{1, 1, 1}), tol) {
		return false
	}
	return math.Abs(mat.Det(a)-1) <= tol
}

// ApproxEqual reports whether every element of m is within tol of other.
func (m DCM) ApproxEqual(other DCM, tol float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(m[i][j]-other[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// IsFinite reports whether every element is a finite number.
func (m DCM) IsFinite() bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if !isFinite(m[i][j]) {
				return false
			}
		}
	}
	return true
}

// RotationVectorToDCM converts a rotation vector (unit axis scaled by angle in
// radians) into the matrix that rotates vectors about that axis by that angle
// (Rodrigues' formula). A zero vector gives Identity.
//
// Note the sense: this rotates vectors, while R1/R2/R3 rotate frames, so
// RotationVectorToDCM(θ·UnitZ) == R3(-θ).
func RotationVectorToDCM(rv Vec3) DCM {
	theta := rv.Norm()
	if theta < degenerateNorm {
		return Identity
	}
	k := rv.Scale(1 / theta)
	s, c := math.Sincos(theta)
	v := 1 - c

	return DCM{
		{c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s},
		{k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s},
		{k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v},
	}
}
