package core

import (
	"fmt"
	"time"
)

// Attitude is the payload of an AttitudeResult. It is either a FullAttitude
// or a PointingDirection; switch on the concrete type.
type Attitude interface {
	// Kind names the variant on the wire: "quaternion" or "pointing".
	Kind() string
	isAttitude()
}

// FullAttitude is a complete device orientation: the quaternion of the DCM
// that maps device body coordinates into the output frame.
type FullAttitude struct {
	Q Quaternion
}

func (FullAttitude) Kind() string { return "quaternion" }
func (FullAttitude) isAttitude()  {}

// PointingDirection is the unit direction of the device's top edge in the
// output frame. Roll about that direction is not represented.
type PointingDirection struct {
	Direction Vec3
}

func (PointingDirection) Kind() string { return "pointing" }
func (PointingDirection) isAttitude()  {}

// AttitudeResult is the immutable outcome of one orientation computation.
type AttitudeResult struct {
	Frame    ReferenceFrame
	Attitude Attitude
	Message  string

	// NorthAngleDeg is the heading recovered from the tilt angles alone and
	// AdjustmentDeg the rotation applied to line it up with the compass.
	NorthAngleDeg float64
	AdjustmentDeg float64
	// DeclinationDeg is the declination removed from the compass heading,
	// zero when none was applied.
	DeclinationDeg float64

	ComputedAt time.Time
}

// LegacyQuaternion returns the [x, y, z, w] array older clients expect. A
// pointing direction v is packed as (v, 0).
func (r AttitudeResult) LegacyQuaternion() [4]float64 {
	switch a := r.Attitude.(type) {
	case FullAttitude:
		return [4]float64{a.Q.X, a.Q.Y, a.Q.Z, a.Q.W}
	case PointingDirection:
		return [4]float64{a.Direction.X, a.Direction.Y, a.Direction.Z, 0}
	default:
		return [4]float64{0, 0, 0, 1}
	}
}

func computedMessage(frame ReferenceFrame) string {
	return fmt.Sprintf("Quaternion computed for %s", frame)
}
