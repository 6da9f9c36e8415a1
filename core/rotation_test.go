package core

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

const tol = 1e-9

func TestElementaryRotationZeroIsIdentity(t *testing.T) {
	for _, axis := range []Axis{Axis1, Axis2, Axis3} {
		m, err := ElementaryRotation(axis, 0)
		if err != nil {
			t.Fatalf("ElementaryRotation(%d, 0) error: %v", axis, err)
		}
		if !m.ApproxEqual(Identity, 0) {
			t.Fatalf("ElementaryRotation(%d, 0) = %v, want identity", axis, m)
		}
	}
}

func TestElementaryRotationTransposeIsNegativeAngle(t *testing.T) {
	for _, axis := range []Axis{Axis1, Axis2, Axis3} {
		for _, angle := range []float64{0.1, -1.2, math.Pi / 2, 3} {
			pos, _ := ElementaryRotation(axis, angle)
			neg, _ := ElementaryRotation(axis, -angle)
			if !pos.T().ApproxEqual(neg, tol) {
				t.Fatalf("axis %d angle %v: transpose %v != %v", axis, angle, pos.T(), neg)
			}
			if !pos.IsOrthonormal(tol) {
				t.Fatalf("axis %d angle %v: not orthonormal", axis, angle)
			}
		}
	}
}

func TestElementaryRotationInvalidAxis(t *testing.T) {
	for _, axis := range []Axis{0, 4, -1} {
		_, err := ElementaryRotation(axis, 1)
		if !errors.Is(err, ErrInvalidAxis) {
			t.Fatalf("ElementaryRotation(%d) error = %v, want ErrInvalidAxis", axis, err)
		}
	}
}

func TestR3IsFrameRotation(t *testing.T) {
	// Rotating the frame by +90° about Z makes the old X axis point along -Y.
	got := R3(math.Pi / 2).Apply(UnitX)
	want := Vec3{Y: -1}
	if got.Sub(want).Norm() > tol {
		t.Fatalf("R3(90°)·x = %v, want %v", got, want)
	}
}

func TestComposeOrder(t *testing.T) {
	a := R1(0.3)
	b := R3(0.7)
	if got, want := Compose(a, b), a.Mul(b); !got.ApproxEqual(want, 0) {
		t.Fatalf("Compose(a, b) = %v, want a·b = %v", got, want)
	}
	if got := Compose(); !got.ApproxEqual(Identity, 0) {
		t.Fatalf("Compose() = %v, want identity", got)
	}

	v := Vec3{X: 1, Y: 2, Z: 3}
	if got, want := Compose(a, b).Apply(v), a.Apply(b.Apply(v)); got.Sub(want).Norm() > tol {
		t.Fatalf("Compose(a, b)·v = %v, want a·(b·v) = %v", got, want)
	}
}

func TestRotationVectorToDCM(t *testing.T) {
	if got := RotationVectorToDCM(Vec3{}); !got.ApproxEqual(Identity, 0) {
		t.Fatalf("zero rotation vector = %v, want identity", got)
	}

	theta := 0.8
	if got, want := RotationVectorToDCM(UnitZ.Scale(theta)), R3(-theta); !got.ApproxEqual(want, tol) {
		t.Fatalf("RotationVectorToDCM(θz) = %v, want R3(-θ) = %v", got, want)
	}
	if got, want := RotationVectorToDCM(UnitX.Scale(theta)), R1(-theta); !got.ApproxEqual(want, tol) {
		t.Fatalf("RotationVectorToDCM(θx) = %v, want R1(-θ) = %v", got, want)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		rv := Vec3{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
		m := RotationVectorToDCM(rv)
		if !m.IsOrthonormal(tol) {
			t.Fatalf("RotationVectorToDCM(%v) not orthonormal", rv)
		}
		// The axis itself is left where it is.
		if got := m.Apply(rv); got.Sub(rv).Norm() > tol*rv.Norm() {
			t.Fatalf("axis %v moved to %v", rv, got)
		}
	}
}

func TestDCMFromColumns(t *testing.T) {
	m := R2(0.4).Mul(R1(-1.1))
	if got := DCMFromColumns(m.Column(0), m.Column(1), m.Column(2)); !got.ApproxEqual(m, 0) {
		t.Fatalf("DCMFromColumns(columns of m) = %v, want %v", got, m)
	}
}

func TestIsOrthonormalRejectsReflectionAndScale(t *testing.T) {
	reflection := DCM{{1, 0, 0}, {0, 1, 0}, {0, 0, -1}}
	if reflection.IsOrthonormal(tol) {
		t.Fatalf("reflection reported as proper rotation")
	}
	scaled := DCM{{2, 0, 0}, {0, 2, 0}, {0, 0, 2}}
	if scaled.IsOrthonormal(tol) {
		t.Fatalf("scaled matrix reported as rotation")
	}
}
