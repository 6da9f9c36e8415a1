package earth

import (
	"math"
	"time"

	"github.com/signalsfoundry/device-attitude/core"
)

const arcsecToRad = math.Pi / (180 * 3600)

// PrecessionAngles are the IAU-1976 equatorial precession angles ζ, θ and z
// in radians.
type PrecessionAngles struct {
	Zeta, Theta, Z float64
}

// Precession returns the IAU-1976 precession angles from J2000.0 to t.
func Precession(t time.Time) PrecessionAngles {
	tc := JulianCenturies(t)
	t2 := tc * tc
	t3 := t2 * tc
	return PrecessionAngles{
		Zeta:  (2306.2181*tc + 0.30188*t2 + 0.017998*t3) * arcsecToRad,
		Theta: (2004.3109*tc - 0.42665*t2 - 0.041833*t3) * arcsecToRad,
		Z:     (2306.2181*tc + 1.09468*t2 + 0.018203*t3) * arcsecToRad,
	}
}

// MeanOfDateToJ2000 returns the DCM taking mean-of-date equatorial
// coordinates at t back to J2000: R3(ζ)·R2(-θ)·R3(z).
func MeanOfDateToJ2000(t time.Time) core.DCM {
	p := Precession(t)
	return core.Compose(core.R3(p.Zeta), core.R2(-p.Theta), core.R3(p.Z))
}

// EarthFixedToJ2000 returns the DCM mapping Earth-fixed coordinates into J2000
// at t. It rotates by GMST into the mean-of-date frame and removes
// precession; nutation and polar motion are ignored, which leaves errors of
// a few tens of arcseconds.
func EarthFixedToJ2000(t time.Time) core.DCM {
	return MeanOfDateToJ2000(t).Mul(core.R3(-GMST(t)))
}
