package earth

import (
	"time"

	"github.com/signalsfoundry/device-attitude/core"
)

// Model is the WGS-84 / IAU-1976 Earth used by the attitude pipeline. The
// zero value is ready to use.
type Model struct {
	// DisableDeclination makes MagneticDeclination report zero.
	DisableDeclination bool
}

var (
	_ core.EarthModel        = Model{}
	_ core.DeclinationSource = Model{}
)

// PositionToEarthFixed implements core.EarthModel.
func (Model) PositionToEarthFixed(latDeg, lonDeg, altKm float64) core.Vec3 {
	return GeodeticToECEF(latDeg, lonDeg, altKm)
}

// LocalHorizonToEarthFixed implements core.EarthModel.
func (Model) LocalHorizonToEarthFixed(latDeg, lonDeg float64) core.DCM {
	return ENUToECEF(latDeg, lonDeg)
}

// EarthFixedToInertial implements core.EarthModel.
func (Model) EarthFixedToInertial(t time.Time) core.DCM {
	return EarthFixedToJ2000(t)
}

// MagneticDeclination implements core.DeclinationSource with the dipole model.
func (m Model) MagneticDeclination(latDeg, lonDeg float64, t time.Time) (float64, error) {
	if m.DisableDeclination {
		return 0, nil
	}
	return DipoleDeclination(latDeg, lonDeg, t)
}
