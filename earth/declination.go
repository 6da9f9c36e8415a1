package earth

import (
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/device-attitude/core"
)

// WMM2025 degree-1 Gauss coefficients (nT) and their secular variation
// (nT/year).
const (
	wmmEpoch = 2025.0
	g10Base  = -29351.8
	g11Base  = -1410.8
	h11Base  = 4545.4
	g10Dot   = 12.0
	g11Dot   = 9.7
	h11Dot   = -21.5
)

// DipoleAxisECEF returns the unit axis of the centred geomagnetic dipole in
// ECEF, pointing towards the geomagnetic north pole.
func DipoleAxisECEF(t time.Time) core.Vec3 {
	delta := decimalYear(t.UTC()) - wmmEpoch
	g10 := g10Base + g10Dot*delta
	g11 := g11Base + g11Dot*delta
	h11 := h11Base + h11Dot*delta

	v := core.Vec3{X: -g11, Y: -h11, Z: -g10}
	axis, err := v.Normalize()
	if err != nil {
		return core.UnitZ
	}
	return axis
}

// DipoleDeclination returns the magnetic declination, in radians and east
// positive, predicted by the centred dipole at a geodetic point. The
// horizontal field of a centred dipole points along the horizontal
// projection of the north-pointing axis. Real declination differs by up to
// tens of degrees in places; this is the first-order term only.
func DipoleDeclination(latDeg, lonDeg float64, t time.Time) (float64, error) {
	if math.Abs(latDeg) > 90 || math.IsNaN(latDeg) || math.IsNaN(lonDeg) || math.IsInf(lonDeg, 0) {
		return 0, fmt.Errorf("%w: position %v, %v", core.ErrInvalidSample, latDeg, lonDeg)
	}
	enu := ENUToECEF(latDeg, lonDeg)
	east, north := enu.Column(0), enu.Column(1)

	axis := DipoleAxisECEF(t)
	e, n := axis.Dot(east), axis.Dot(north)
	if math.Hypot(e, n) < 1e-9 {
		return 0, fmt.Errorf("declination undefined at geomagnetic pole: %w", core.ErrDegenerateVector)
	}
	return math.Atan2(e, n), nil
}

func decimalYear(t time.Time) float64 {
	y := t.Year()
	start := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(y+1, 1, 1, 0, 0, 0, 0, time.UTC)
	return float64(y) + float64(t.Sub(start))/float64(end.Sub(start))
}
