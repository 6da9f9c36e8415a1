package core

import (
	"errors"
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	v, err := Vec3{X: 3, Y: 4}.Normalize()
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if math.Abs(v.Norm()-1) > tol || math.Abs(v.X-0.6) > tol {
		t.Fatalf("Normalize = %v", v)
	}

	for _, bad := range []Vec3{{}, {X: 1e-13}, {X: math.NaN()}} {
		if _, err := bad.Normalize(); !errors.Is(err, ErrDegenerateVector) {
			t.Fatalf("Normalize(%v) error = %v, want ErrDegenerateVector", bad, err)
		}
	}
}

func TestAngleBetween(t *testing.T) {
	tests := []struct {
		name       string
		v1, v2, n  Vec3
		wantRadian float64
	}{
		{"right-handed quarter", UnitX, UnitY, UnitZ, math.Pi / 2},
		{"left-handed quarter", UnitY, UnitX, UnitZ, -math.Pi / 2},
		{"parallel", UnitX, UnitX.Scale(5), UnitZ, 0},
		{"antiparallel", UnitX, UnitX.Scale(-1), UnitZ, math.Pi},
		{"flipped normal", UnitX, UnitY, UnitZ.Scale(-1), -math.Pi / 2},
		{"oblique", UnitX, Vec3{X: 1, Y: 1}, UnitZ, math.Pi / 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AngleBetween(tt.v1, tt.v2, tt.n)
			if math.Abs(got-tt.wantRadian) > tol {
				t.Fatalf("AngleBetween = %v, want %v", got, tt.wantRadian)
			}
			if got <= -math.Pi || got > math.Pi {
				t.Fatalf("AngleBetween = %v out of (-π, π]", got)
			}
		})
	}
}

func TestWrapToRange(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{360, 0},
		{370, 10},
		{-10, 350},
		{-360, 0},
		{725, 5},
		{-1e-18, 0},
	}
	for _, tt := range tests {
		if got := WrapToRange(tt.in, 360); math.Abs(got-tt.want) > tol {
			t.Fatalf("WrapToRange(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWrapSigned(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{180, 180},
		{-180, 180},
		{190, -170},
		{-190, 170},
		{540, 180},
		{359, -1},
	}
	for _, tt := range tests {
		if got := WrapSigned(tt.in, 360); math.Abs(got-tt.want) > tol {
			t.Fatalf("WrapSigned(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		in   string
		want ReferenceFrame
	}{
		{"enu", FrameLocalHorizon},
		{"ENU", FrameLocalHorizon},
		{" itrf ", FrameEarthFixed},
		{"ecef", FrameEarthFixed},
		{"j2000", FrameInertial},
		{"eci", FrameInertial},
	}
	for _, tt := range tests {
		got, err := ParseFrame(tt.in)
		if err != nil {
			t.Fatalf("ParseFrame(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseFrame(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"ecef_bad", "", "gcrs"} {
		if _, err := ParseFrame(bad); !errors.Is(err, ErrUnknownFrame) {
			t.Fatalf("ParseFrame(%q) error = %v, want ErrUnknownFrame", bad, err)
		}
	}
	if FrameUnknown.Valid() || ReferenceFrame(99).Valid() {
		t.Fatalf("invalid frames reported valid")
	}
}
