package core

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/signalsfoundry/device-attitude/model"
	"github.com/signalsfoundry/device-attitude/timectrl"
)

// EarthModel supplies the Earth-orientation transforms the pipeline needs
// beyond the local horizon.
type EarthModel interface {
	// PositionToEarthFixed returns the Earth-fixed position, in km, of a
	// geodetic point.
	PositionToEarthFixed(latDeg, lonDeg, altKm float64) Vec3
	// LocalHorizonToEarthFixed returns the DCM mapping east-north-up
	// coordinates at the point into Earth-fixed coordinates.
	LocalHorizonToEarthFixed(latDeg, lonDeg float64) DCM
	// EarthFixedToInertial returns the DCM mapping Earth-fixed coordinates
	// into inertial coordinates at t.
	EarthFixedToInertial(t time.Time) DCM
}

// DeclinationSource reports the magnetic declination, in radians, east
// positive.
type DeclinationSource interface {
	MagneticDeclination(latDeg, lonDeg float64, t time.Time) (float64, error)
}

// TiltSequence is the order in which the device's three tilt angles are
// composed into a DCM. Alpha turns about axis 3, beta about axis 1 and gamma
// about axis 2; the sequence lists the axes outermost first, so {2, 1, 3}
// builds R2(γ)·R1(β)·R3(α).
type TiltSequence [3]Axis

// DefaultTiltSequence is R2(γ)·R1(β)·R3(α).
var DefaultTiltSequence = TiltSequence{Axis2, Axis1, Axis3}

// ParseTiltSequence parses "2-1-3", "213" or "2,1,3".
func ParseTiltSequence(s string) (TiltSequence, error) {
	digits := strings.NewReplacer("-", "", ",", "", " ", "").Replace(s)
	if len(digits) != 3 {
		return TiltSequence{}, fmt.Errorf("tilt sequence %q: want three axes", s)
	}
	var seq TiltSequence
	for i, r := range digits {
		if r < '1' || r > '3' {
			return TiltSequence{}, fmt.Errorf("tilt sequence %q: %w", s, ErrInvalidAxis)
		}
		seq[i] = Axis(r - '0')
	}
	if err := seq.Validate(); err != nil {
		return TiltSequence{}, err
	}
	return seq, nil
}

// Validate checks that every axis is used exactly once.
func (s TiltSequence) Validate() error {
	var seen [4]bool
	for _, a := range s {
		if !a.Valid() {
			return fmt.Errorf("tilt sequence %s: %w: %d", s, ErrInvalidAxis, int(a))
		}
		if seen[a] {
			return fmt.Errorf("tilt sequence %s: axis %d repeated", s, int(a))
		}
		seen[a] = true
	}
	return nil
}

// String formats the sequence as "2-1-3".
func (s TiltSequence) String() string {
	return fmt.Sprintf("%d-%d-%d", int(s[0]), int(s[1]), int(s[2]))
}

// DCM composes the sample's tilt angles in sequence order.
func (s TiltSequence) DCM(sample model.OrientationSample) (DCM, error) {
	if err := s.Validate(); err != nil {
		return Identity, err
	}
	angle := map[Axis]float64{
		Axis1: deg2rad(sample.BetaDeg),
		Axis2: deg2rad(sample.GammaDeg),
		Axis3: deg2rad(sample.AlphaDeg),
	}
	out := Identity
	for _, a := range s {
		m, err := ElementaryRotation(a, angle[a])
		if err != nil {
			return Identity, err
		}
		out = out.Mul(m)
	}
	return out, nil
}

// Pipeline turns an orientation sample plus a station into an attitude in the
// requested frame. It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	earth       EarthModel
	declination DeclinationSource
	clock       timectrl.Clock
	sequence    TiltSequence
	north       NorthAngleEstimator
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithTiltSequence overrides DefaultTiltSequence.
func WithTiltSequence(seq TiltSequence) PipelineOption {
	return func(p *Pipeline) {
		p.sequence = seq
	}
}

// WithDeclinationSource lets samples that ask for it have declination
// removed when the caller passes none explicitly.
func WithDeclinationSource(src DeclinationSource) PipelineOption {
	return func(p *Pipeline) {
		p.declination = src
	}
}

// WithClock sets the default time source for the inertial transform.
func WithClock(clock timectrl.Clock) PipelineOption {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithNorthAngleEstimator overrides the default estimator.
func WithNorthAngleEstimator(est NorthAngleEstimator) PipelineOption {
	return func(p *Pipeline) {
		p.north = est
	}
}

// NewPipeline constructs a pipeline over the given Earth model.
func NewPipeline(earth EarthModel, opts ...PipelineOption) (*Pipeline, error) {
	if earth == nil {
		return nil, fmt.Errorf("pipeline: earth model is required")
	}
	p := &Pipeline{
		earth:    earth,
		clock:    timectrl.SystemClock{},
		sequence: DefaultTiltSequence,
		north:    NewNorthAngleEstimator(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.sequence.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// TiltSequence returns the configured sequence.
func (p *Pipeline) TiltSequence() TiltSequence { return p.sequence }

// Request carries one orientation computation.
type Request struct {
	Sample  model.OrientationSample
	Station *model.Station
	Frame   ReferenceFrame

	// DeclinationRad, when set, is removed from the compass heading and
	// takes precedence over the pipeline's DeclinationSource.
	DeclinationRad *float64
	// Clock overrides the pipeline clock for this request.
	Clock timectrl.Clock
}

// ComputeOrientation computes the attitude of a device in frame, using the
// pipeline clock for "now".
func (p *Pipeline) ComputeOrientation(sample model.OrientationSample, station *model.Station, frame ReferenceFrame, declinationRad *float64) (AttitudeResult, error) {
	return p.Compute(Request{
		Sample:         sample,
		Station:        station,
		Frame:          frame,
		DeclinationRad: declinationRad,
	})
}

// Compute runs the full pipeline:
//
//  1. Build the raw device-to-horizon DCM from the tilt angles.
//  2. Recover the north angle the tilt angles imply.
//  3. Rotate about the device Z axis by compass + north - declination, which
//     replaces the arbitrary tilt yaw with the compass heading.
//  4. Express the result in the requested frame.
//
// All inputs are validated before any rotation math or Earth model call.
func (p *Pipeline) Compute(req Request) (AttitudeResult, error) {
	if err := ValidateSample(req.Sample); err != nil {
		return AttitudeResult{}, err
	}
	if req.Station == nil {
		return AttitudeResult{}, ErrMissingStation
	}
	if err := ValidateStation(*req.Station); err != nil {
		return AttitudeResult{}, err
	}
	if !req.Frame.Valid() {
		return AttitudeResult{}, fmt.Errorf("%w: %s", ErrUnknownFrame, req.Frame)
	}
	if req.DeclinationRad != nil && !isFinite(*req.DeclinationRad) {
		return AttitudeResult{}, fmt.Errorf("%w: declination %v", ErrInvalidSample, *req.DeclinationRad)
	}

	clock := p.clock
	if req.Clock != nil {
		clock = req.Clock
	}
	now := clock.Now()
	station := *req.Station

	raw, err := p.sequence.DCM(req.Sample)
	if err != nil {
		return AttitudeResult{}, err
	}
	north, err := p.north.NorthAngle(raw)
	if err != nil {
		return AttitudeResult{}, err
	}

	declDeg, err := p.declinationDeg(req, station, now)
	if err != nil {
		return AttitudeResult{}, err
	}

	adjustment := WrapToRange(req.Sample.CompassHeadingDeg+north-declDeg, 360)
	deviceToHorizon := raw.Mul(R3(-deg2rad(adjustment)))

	result := AttitudeResult{
		Frame:          req.Frame,
		Message:        computedMessage(req.Frame),
		NorthAngleDeg:  north,
		AdjustmentDeg:  adjustment,
		DeclinationDeg: declDeg,
		ComputedAt:     now,
	}

	local := DCMToQuaternion(deviceToHorizon)
	if req.Frame == FrameLocalHorizon {
		result.Attitude = FullAttitude{Q: local}
		return result, nil
	}

	toFixed, err := checkRotation("local horizon to earth-fixed", p.earth.LocalHorizonToEarthFixed(station.LatitudeDeg, station.LongitudeDeg))
	if err != nil {
		return AttitudeResult{}, err
	}
	if req.Frame == FrameEarthFixed {
		q := ComposeQuaternions(DCMToQuaternion(toFixed), local)
		result.Attitude = FullAttitude{Q: q.Canonical()}
		return result, nil
	}

	toInertial, err := checkRotation("earth-fixed to inertial", p.earth.EarthFixedToInertial(now))
	if err != nil {
		return AttitudeResult{}, err
	}
	m := Compose(toInertial, toFixed, deviceToHorizon)
	result.Attitude = PointingDirection{Direction: m.Column(1)}
	return result, nil
}

// rotationTol bounds how far an Earth model matrix may stray from a proper
// rotation.
const rotationTol = 1e-9

func checkRotation(name string, m DCM) (DCM, error) {
	if !m.IsFinite() || !m.IsOrthonormal(rotationTol) {
		return DCM{}, fmt.Errorf("%s: %w", name, ErrNotRotation)
	}
	return m, nil
}

func (p *Pipeline) declinationDeg(req Request, station model.Station, now time.Time) (float64, error) {
	if req.DeclinationRad != nil {
		return rad2deg(*req.DeclinationRad), nil
	}
	if !req.Sample.ApplyDeclination || p.declination == nil {
		return 0, nil
	}
	d, err := p.declination.MagneticDeclination(station.LatitudeDeg, station.LongitudeDeg, now)
	if err != nil {
		return 0, fmt.Errorf("magnetic declination: %w", err)
	}
	if !isFinite(d) {
		return 0, fmt.Errorf("%w: declination %v", ErrInvalidSample, d)
	}
	return rad2deg(d), nil
}

// StationPosition returns the station's position in frame, in km. The local
// horizon frame is centred on the station, so its position there is zero.
func (p *Pipeline) StationPosition(station *model.Station, frame ReferenceFrame) (Vec3, error) {
	return p.StationPositionAt(station, frame, p.clock.Now())
}

// StationPositionAt is StationPosition with an explicit instant for the
// inertial transform.
func (p *Pipeline) StationPositionAt(station *model.Station, frame ReferenceFrame, at time.Time) (Vec3, error) {
	if station == nil {
		return Vec3{}, ErrMissingStation
	}
	if err := ValidateStation(*station); err != nil {
		return Vec3{}, err
	}
	switch frame {
	case FrameLocalHorizon:
		return Vec3{}, nil
	case FrameEarthFixed:
		return p.earth.PositionToEarthFixed(station.LatitudeDeg, station.LongitudeDeg, station.AltitudeKm), nil
	case FrameInertial:
		r := p.earth.PositionToEarthFixed(station.LatitudeDeg, station.LongitudeDeg, station.AltitudeKm)
		toInertial, err := checkRotation("earth-fixed to inertial", p.earth.EarthFixedToInertial(at))
		if err != nil {
			return Vec3{}, err
		}
		return toInertial.Apply(r), nil
	default:
		return Vec3{}, fmt.Errorf("%w: %s", ErrUnknownFrame, frame)
	}
}

// ValidateSample rejects non-finite angles.
func ValidateSample(s model.OrientationSample) error {
	fields := []struct {
		name  string
		value float64
	}{
		{"alpha", s.AlphaDeg},
		{"beta", s.BetaDeg},
		{"gamma", s.GammaDeg},
		{"compass heading", s.CompassHeadingDeg},
	}
	for _, f := range fields {
		if !isFinite(f.value) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidSample, f.name, f.value)
		}
	}
	return nil
}

// ValidateStation rejects non-finite coordinates and latitudes outside
// [-90, 90].
func ValidateStation(s model.Station) error {
	switch {
	case !isFinite(s.LatitudeDeg) || math.Abs(s.LatitudeDeg) > 90:
		return fmt.Errorf("%w: latitude %v", ErrInvalidSample, s.LatitudeDeg)
	case !isFinite(s.LongitudeDeg):
		return fmt.Errorf("%w: longitude %v", ErrInvalidSample, s.LongitudeDeg)
	case !isFinite(s.AltitudeKm):
		return fmt.Errorf("%w: altitude %v", ErrInvalidSample, s.AltitudeKm)
	}
	return nil
}
