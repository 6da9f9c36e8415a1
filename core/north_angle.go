package core

import (
	"fmt"
	"math"
)

// DefaultFlipElevation is the elevation of the device's top edge, in radians,
// below which the pose is flattened towards nadir instead of zenith.
const DefaultFlipElevation = -math.Pi / 4

// NorthAngleEstimator recovers the heading implied by a device orientation
// once its tilt is taken out.
//
// The input DCM maps device body coordinates into local-horizon (east, north,
// up) coordinates, so its columns are the body axes seen from the horizon
// frame. Its rows, the columns of the transpose, would be the horizon axes
// seen from the body and are not used. The top edge of the device (body Y) is swung to vertical about a
// horizontal axis, and the heading is read off the body X axis afterwards.
// Swinging about a horizontal axis never changes the bearing of the vector
// along that axis, which is what keeps the result stable under pitch.
type NorthAngleEstimator struct {
	// FlipElevation selects the flattening branch; see DefaultFlipElevation.
	FlipElevation float64
}

// NewNorthAngleEstimator returns an estimator using DefaultFlipElevation.
func NewNorthAngleEstimator() NorthAngleEstimator {
	return NorthAngleEstimator{FlipElevation: DefaultFlipElevation}
}

// NorthAngle runs the default estimator.
func NorthAngle(deviceToHorizon DCM) (float64, error) {
	return NewNorthAngleEstimator().NorthAngle(deviceToHorizon)
}

// NorthAngle returns the clockwise angle, viewed from above, from geographic
// east to the flattened body X axis, in degrees within (-180, 180].
//
// Poses whose top edge sits below FlipElevation are flattened towards nadir,
// which turns the device over; 180° is added back so the heading still
// refers to the same face. The result therefore jumps by 180° when the top
// edge crosses FlipElevation, and nowhere else.
//
// With the top edge exactly vertical the swing axis is undefined and the
// error wraps ErrDegenerateVector.
func (e NorthAngleEstimator) NorthAngle(deviceToHorizon DCM) (float64, error) {
	if !deviceToHorizon.IsFinite() {
		return 0, fmt.Errorf("%w: orientation matrix is not finite", ErrInvalidSample)
	}

	east, up := UnitX, UnitZ
	top := deviceToHorizon.Column(1)

	elevation := math.Atan2(top.Z, math.Hypot(top.X, top.Y))

	axis, err := top.Cross(up).Normalize()
	if err != nil {
		return 0, fmt.Errorf("north angle undefined, device top edge at elevation %.6f rad: %w", elevation, err)
	}

	flipped := elevation < e.FlipElevation
	correction := axis.Scale(math.Pi/2 - elevation)
	if flipped {
		correction = axis.Scale(-(math.Pi/2 + elevation))
	}

	flat := RotationVectorToDCM(correction).Mul(deviceToHorizon)
	forward := flat.Column(0)

	// Right-handed about up from forward to east is clockwise from east to forward.
	angle := rad2deg(AngleBetween(forward, east, up))
	if flipped {
		angle += 180
	}
	return WrapSigned(angle, 360), nil
}
