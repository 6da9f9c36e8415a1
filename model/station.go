package model

import "time"

// Station is the observer's geodetic position. A session owns one and
// replaces it wholesale on every position update.
type Station struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeKm   float64 // above the WGS-84 ellipsoid; zero when the client omits it

	UpdatedAt time.Time
}

// PositionSample is an inbound position update.
type PositionSample struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeKm   float64

	// Frame is the wire name of the frame the acknowledgment should report
	// the station position in.
	Frame string
}

// Station converts the sample into a Station stamped with at.
func (p PositionSample) Station(at time.Time) Station {
	return Station{
		LatitudeDeg:  p.LatitudeDeg,
		LongitudeDeg: p.LongitudeDeg,
		AltitudeKm:   p.AltitudeKm,
		UpdatedAt:    at,
	}
}
