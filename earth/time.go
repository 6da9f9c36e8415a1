package earth

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/device-attitude/core"
)

// Reference epochs, as Julian dates.
const (
	J2000JD = 2451545.0
	mjdBase = 2400000.5
)

const secondsPerDay = 86400.0

// JulianDate returns the Julian date of t (UTC, UT1 approximated by UTC),
// keeping the sub-second part that satellite.JDay drops.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	return jd + float64(t.Nanosecond())/1e9/secondsPerDay
}

// ModifiedJulianDate returns JD - 2400000.5.
func ModifiedJulianDate(t time.Time) float64 {
	return JulianDate(t) - mjdBase
}

// JulianCenturies returns Julian centuries since J2000.0.
func JulianCenturies(t time.Time) float64 {
	return (JulianDate(t) - J2000JD) / 36525.0
}

// GMST returns Greenwich mean sidereal time of t in radians, in [0, 2π).
func GMST(t time.Time) float64 {
	return gmstFromJD(JulianDate(t))
}

// ThetaG_JD can go negative for dates before 2000.
func gmstFromJD(jd float64) float64 {
	return core.WrapToRange(satellite.ThetaG_JD(jd), 2*math.Pi)
}

// TimeInfo is the time_update acknowledgment payload.
type TimeInfo struct {
	UTC     time.Time
	JD      float64
	MJD     float64
	GMSTRad float64
}

// Describe computes TimeInfo for t.
func Describe(t time.Time) TimeInfo {
	jd := JulianDate(t)
	return TimeInfo{
		UTC:     t.UTC(),
		JD:      jd,
		MJD:     jd - mjdBase,
		GMSTRad: gmstFromJD(jd),
	}
}
