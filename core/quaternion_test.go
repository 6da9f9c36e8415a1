package core

import (
	"math"
	"math/rand"
	"testing"
)

func randomQuaternion(rng *rand.Rand) Quaternion {
	return Quaternion{
		X: rng.NormFloat64(),
		Y: rng.NormFloat64(),
		Z: rng.NormFloat64(),
		W: rng.NormFloat64(),
	}.Normalize()
}

func TestQuaternionOfR3(t *testing.T) {
	theta := 0.3
	got := DCMToQuaternion(R3(theta))
	want := Quaternion{Z: math.Sin(theta / 2), W: math.Cos(theta / 2)}
	if !got.Equivalent(want, tol) {
		t.Fatalf("DCMToQuaternion(R3(%v)) = %+v, want %+v", theta, got, want)
	}
	if m := QuaternionToDCM(want); !m.ApproxEqual(R3(theta), tol) {
		t.Fatalf("QuaternionToDCM(%+v) = %v, want R3(%v)", want, m, theta)
	}
}

func TestDCMToQuaternionIdentity(t *testing.T) {
	got := DCMToQuaternion(Identity)
	if got != IdentityQuaternion {
		t.Fatalf("DCMToQuaternion(I) = %+v, want %+v", got, IdentityQuaternion)
	}
}

func TestQuaternionRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		q := randomQuaternion(rng)
		m := QuaternionToDCM(q)
		if !m.IsOrthonormal(tol) {
			t.Fatalf("QuaternionToDCM(%+v) not orthonormal", q)
		}
		back := DCMToQuaternion(m)
		if !back.Equivalent(q, tol) {
			t.Fatalf("round trip %+v -> %+v", q, back)
		}
		if back.W < 0 {
			t.Fatalf("DCMToQuaternion returned w < 0: %+v", back)
		}
		if math.Abs(back.Norm()-1) > tol {
			t.Fatalf("DCMToQuaternion returned norm %v", back.Norm())
		}
		if again := QuaternionToDCM(back); !again.ApproxEqual(m, tol) {
			t.Fatalf("DCM round trip %v -> %v", m, again)
		}
	}
}

func TestDCMToQuaternionNearHalfTurns(t *testing.T) {
	// Exercise the diagonal branches: rotations close to 180° about each axis.
	for _, m := range []DCM{R1(math.Pi - 1e-6), R2(math.Pi), R3(-math.Pi + 1e-3), R1(math.Pi).Mul(R2(0.01))} {
		q := DCMToQuaternion(m)
		if got := QuaternionToDCM(q); !got.ApproxEqual(m, tol) {
			t.Fatalf("round trip of %v gave %v", m, got)
		}
	}
}

func TestDCMToQuaternionContinuity(t *testing.T) {
	// Adjacent matrices away from 180° must give adjacent quaternions.
	prev := DCMToQuaternion(R2(0.2).Mul(R3(-3)))
	for a := -3.0; a < 3; a += 0.01 {
		q := DCMToQuaternion(R2(0.2).Mul(R3(a)))
		d := math.Abs(q.X-prev.X) + math.Abs(q.Y-prev.Y) + math.Abs(q.Z-prev.Z) + math.Abs(q.W-prev.W)
		if d > 0.05 {
			t.Fatalf("quaternion jumped at %v: %+v -> %+v", a, prev, q)
		}
		prev = q
	}
}

func TestComposeQuaternionsMatchesDCMProduct(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		p := randomQuaternion(rng)
		q := randomQuaternion(rng)
		want := QuaternionToDCM(p).Mul(QuaternionToDCM(q))
		got := QuaternionToDCM(ComposeQuaternions(p, q))
		if !got.ApproxEqual(want, tol) {
			t.Fatalf("ComposeQuaternions(%+v, %+v) = %v, want %v", p, q, got, want)
		}
	}
}

func TestQuaternionNormalizeDegenerate(t *testing.T) {
	if got := (Quaternion{}).Normalize(); got != IdentityQuaternion {
		t.Fatalf("Normalize(0) = %+v, want identity", got)
	}
}

func TestQuaternionCanonical(t *testing.T) {
	q := Quaternion{X: 0, Y: 0, Z: -2, W: -2}.Canonical()
	want := Quaternion{Z: math.Sqrt2 / 2, W: math.Sqrt2 / 2}
	if !q.Equivalent(want, tol) || q.W < 0 {
		t.Fatalf("Canonical = %+v, want %+v", q, want)
	}

	got := ComposeQuaternions(DCMToQuaternion(R3(3)), DCMToQuaternion(R3(3))).Canonical()
	if got.W < 0 || !QuaternionToDCM(got).ApproxEqual(R3(6), tol) {
		t.Fatalf("composed half-turn-plus = %+v", got)
	}
}
