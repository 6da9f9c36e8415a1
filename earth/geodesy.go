package earth

import (
	"math"

	"github.com/signalsfoundry/device-attitude/core"
)

// WGS-84 ellipsoid parameters.
const (
	WGS84SemiMajorKm = 6378.137                        // semi-major axis (km)
	wgs84F           = 1.0 / 298.257223563             // flattening
	wgs84E2          = wgs84F * (2 - wgs84F)           // first eccentricity squared
	WGS84SemiMinorKm = WGS84SemiMajorKm * (1 - wgs84F) // polar radius (km)
)

// GeodeticToECEF returns the Earth-fixed position, in km, of a point given
// by geodetic latitude and longitude in degrees and altitude in km above the
// WGS-84 ellipsoid.
func GeodeticToECEF(latDeg, lonDeg, altKm float64) core.Vec3 {
	sinLat, cosLat := math.Sincos(latDeg * math.Pi / 180)
	sinLon, cosLon := math.Sincos(lonDeg * math.Pi / 180)

	// Radius of curvature in the prime vertical.
	n := WGS84SemiMajorKm / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return core.Vec3{
		X: (n + altKm) * cosLat * cosLon,
		Y: (n + altKm) * cosLat * sinLon,
		Z: (n*(1-wgs84E2) + altKm) * sinLat,
	}
}

// ENUToECEF returns the DCM that maps east-north-up coordinates at the given
// geodetic point into Earth-fixed coordinates. Its columns are the local
// east, north and up unit vectors expressed in ECEF.
func ENUToECEF(latDeg, lonDeg float64) core.DCM {
	sinLat, cosLat := math.Sincos(latDeg * math.Pi / 180)
	sinLon, cosLon := math.Sincos(lonDeg * math.Pi / 180)

	east := core.Vec3{X: -sinLon, Y: cosLon}
	north := core.Vec3{X: -sinLat * cosLon, Y: -sinLat * sinLon, Z: cosLat}
	up := core.Vec3{X: cosLat * cosLon, Y: cosLat * sinLon, Z: sinLat}
	return core.DCMFromColumns(east, north, up)
}
