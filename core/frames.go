package core

import (
	"fmt"
	"strings"
)

// ReferenceFrame selects the frame an orientation is expressed in.
type ReferenceFrame int

const (
	FrameUnknown ReferenceFrame = iota
	// FrameLocalHorizon is the observer's east-north-up frame.
	FrameLocalHorizon
	// FrameEarthFixed is the Earth-centred, Earth-fixed frame (ITRF).
	FrameEarthFixed
	// FrameInertial is the quasi-inertial celestial frame (J2000).
	FrameInertial
)

var frameNames = map[ReferenceFrame]string{
	FrameLocalHorizon: "enu",
	FrameEarthFixed:   "itrf",
	FrameInertial:     "j2000",
}

// String returns the wire name of the frame.
func (f ReferenceFrame) String() string {
	if name, ok := frameNames[f]; ok {
		return name
	}
	return fmt.Sprintf("frame(%d)", int(f))
}

// Valid reports whether f is one of the supported output frames.
func (f ReferenceFrame) Valid() bool {
	_, ok := frameNames[f]
	return ok
}

// ParseFrame maps a wire name ("enu", "itrf", "j2000", case-insensitive, plus
// a few long-form aliases) to a ReferenceFrame.
func ParseFrame(name string) (ReferenceFrame, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "enu", "local_horizon", "localhorizon":
		return FrameLocalHorizon, nil
	case "itrf", "ecef", "earth_fixed", "earthfixed":
		return FrameEarthFixed, nil
	case "j2000", "eci", "inertial":
		return FrameInertial, nil
	default:
		return FrameUnknown, fmt.Errorf("%w: %q, should be enu, itrf, or j2000", ErrUnknownFrame, name)
	}
}
