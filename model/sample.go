package model

import "time"

// OrientationSample is one instantaneous reading from the device: the three
// tilt angles it reports plus its raw, uncorrected compass heading. It is
// consumed by a single computation and never stored.
type OrientationSample struct {
	AlphaDeg float64 // about the device Z axis
	BetaDeg  float64 // about the device X axis
	GammaDeg float64 // about the device Y axis

	CompassHeadingDeg float64

	// ApplyDeclination asks for the magnetic declination at the station to
	// be removed from the compass heading.
	ApplyDeclination bool

	CapturedAt time.Time
}

// TimeSample is a client's clock reading, in milliseconds since the Unix epoch.
type TimeSample struct {
	UnixMillis int64
	ReceivedAt time.Time
}

// Time returns the client instant as UTC.
func (t TimeSample) Time() time.Time {
	return time.UnixMilli(t.UnixMillis).UTC()
}
