package api

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/device-attitude/core"
	"github.com/signalsfoundry/device-attitude/earth"
	"github.com/signalsfoundry/device-attitude/model"
)

// Session event names. Inbound events carry a "data" object; every inbound
// event is answered with exactly one ack.
const (
	EventSessionOpened     = "session_opened"
	EventPositionUpdate    = "position_update"
	EventPositionAck       = "position_ack"
	EventOrientationUpdate = "orientation_update"
	EventOrientationAck    = "orientation_ack"
	EventTimeUpdate        = "time_update"
	EventTimeAck           = "time_ack"
	EventError             = "error"
)

// Envelope is a decoded session message.
type Envelope struct {
	Event string
	Data  *structpb.Struct
}

// DecodeEnvelope splits a session message into its event name and payload.
// A missing "data" key yields an empty payload.
func DecodeEnvelope(msg *structpb.Struct) (Envelope, error) {
	if msg == nil {
		return Envelope{}, fmt.Errorf("%w: empty message", core.ErrInvalidSample)
	}
	fields := msg.GetFields()
	ev := strings.TrimSpace(fields["event"].GetStringValue())
	if ev == "" {
		return Envelope{}, fmt.Errorf("%w: event is required", core.ErrInvalidSample)
	}
	data := fields["data"].GetStructValue()
	if data == nil {
		data = &structpb.Struct{Fields: map[string]*structpb.Value{}}
	}
	return Envelope{Event: ev, Data: data}, nil
}

// EncodeEnvelope builds a session message.
func EncodeEnvelope(event string, data map[string]any) (*structpb.Struct, error) {
	if data == nil {
		data = map[string]any{}
	}
	return structpb.NewStruct(map[string]any{
		"event": event,
		"data":  data,
	})
}

// PositionUpdate builds a position_update payload.
func PositionUpdate(latDeg, lonDeg, altKm float64, frame string) map[string]any {
	return map[string]any{
		"latitude_deg":  latDeg,
		"longitude_deg": lonDeg,
		"altitude_km":   altKm,
		"frame":         frame,
	}
}

// OrientationUpdate builds an orientation_update payload.
func OrientationUpdate(s model.OrientationSample, frame string) map[string]any {
	m := map[string]any{
		"alpha_deg":           s.AlphaDeg,
		"beta_deg":            s.BetaDeg,
		"gamma_deg":           s.GammaDeg,
		"compass_heading_deg": s.CompassHeadingDeg,
		"frame":               frame,
	}
	if s.ApplyDeclination {
		m["apply_declination"] = true
	}
	return m
}

// TimeUpdate builds a time_update payload.
func TimeUpdate(unixMillis int64) map[string]any {
	return map[string]any{"unix_time": float64(unixMillis)}
}

// DecodePosition reads a position_update payload. Latitude and longitude
// are required; altitude defaults to zero and frame to "enu".
func DecodePosition(data *structpb.Struct) (model.PositionSample, error) {
	fields := data.GetFields()
	lat, err := requiredNumber(fields, "latitude_deg")
	if err != nil {
		return model.PositionSample{}, err
	}
	lon, err := requiredNumber(fields, "longitude_deg")
	if err != nil {
		return model.PositionSample{}, err
	}
	alt, _, err := optionalNumber(fields, "altitude_km")
	if err != nil {
		return model.PositionSample{}, err
	}
	frame := fields["frame"].GetStringValue()
	if frame == "" {
		frame = core.FrameLocalHorizon.String()
	}
	return model.PositionSample{
		LatitudeDeg:  lat,
		LongitudeDeg: lon,
		AltitudeKm:   alt,
		Frame:        frame,
	}, nil
}

// OrientationRequest is a decoded orientation_update payload.
type OrientationRequest struct {
	Sample model.OrientationSample
	// FrameName is the raw selector; Frame is FrameUnknown when it does not
	// parse and FrameErr then says why.
	FrameName      string
	Frame          core.ReferenceFrame
	FrameErr       error
	DeclinationRad *float64
}

// DecodeOrientation reads an orientation_update payload. The three tilt
// angles are required, the compass heading defaults to zero.
// apply_declination, when present, overrides applyDefault.
func DecodeOrientation(data *structpb.Struct, applyDefault bool) (OrientationRequest, error) {
	fields := data.GetFields()
	var req OrientationRequest
	var err error
	if req.Sample.AlphaDeg, err = requiredNumber(fields, "alpha_deg"); err != nil {
		return OrientationRequest{}, err
	}
	if req.Sample.BetaDeg, err = requiredNumber(fields, "beta_deg"); err != nil {
		return OrientationRequest{}, err
	}
	if req.Sample.GammaDeg, err = requiredNumber(fields, "gamma_deg"); err != nil {
		return OrientationRequest{}, err
	}
	if req.Sample.CompassHeadingDeg, _, err = optionalNumber(fields, "compass_heading_deg"); err != nil {
		return OrientationRequest{}, err
	}

	req.Sample.ApplyDeclination = applyDefault
	if v, ok := fields["apply_declination"]; ok {
		b, ok := v.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return OrientationRequest{}, fmt.Errorf("%w: apply_declination must be a boolean", core.ErrInvalidSample)
		}
		req.Sample.ApplyDeclination = b.BoolValue
	}

	decl, ok, err := optionalNumber(fields, "declination_rad")
	if err != nil {
		return OrientationRequest{}, err
	}
	if ok {
		req.DeclinationRad = &decl
	}

	req.FrameName = fields["frame"].GetStringValue()
	req.Frame, req.FrameErr = core.ParseFrame(req.FrameName)
	return req, nil
}

// DecodeTime reads a time_update payload.
func DecodeTime(data *structpb.Struct) (model.TimeSample, error) {
	ms, err := requiredNumber(data.GetFields(), "unix_time")
	if err != nil {
		return model.TimeSample{}, err
	}
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return model.TimeSample{}, fmt.Errorf("%w: unix_time is %v", core.ErrInvalidSample, ms)
	}
	if math.Abs(ms) > 1e15 {
		return model.TimeSample{}, fmt.Errorf("%w: unix_time %v out of range", core.ErrInvalidSample, ms)
	}
	return model.TimeSample{UnixMillis: int64(ms)}, nil
}

// DecodeInstant reads an optional unix_time (ms) from a unary request.
func DecodeInstant(data *structpb.Struct) (time.Time, bool, error) {
	if _, ok := data.GetFields()["unix_time"]; !ok {
		return time.Time{}, false, nil
	}
	ts, err := DecodeTime(data)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts.Time(), true, nil
}

// ResultPayload renders an orientation_ack payload. Older clients read "q";
// pointing results also carry "direction".
func ResultPayload(r core.AttitudeResult) map[string]any {
	q := r.LegacyQuaternion()
	m := map[string]any{
		"message":         r.Message,
		"frame":           r.Frame.String(),
		"q":               map[string]any{"x": q[0], "y": q[1], "z": q[2], "w": q[3]},
		"north_angle_deg": r.NorthAngleDeg,
		"adjustment_deg":  r.AdjustmentDeg,
		"declination_deg": r.DeclinationDeg,
		"computed_at":     r.ComputedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.Attitude != nil {
		m["kind"] = r.Attitude.Kind()
	}
	if p, ok := r.Attitude.(core.PointingDirection); ok {
		m["direction"] = vectorPayload(p.Direction)
	}
	return m
}

// PositionPayload renders a position_ack payload.
func PositionPayload(frame core.ReferenceFrame, r core.Vec3, st model.Station) map[string]any {
	return map[string]any{
		"message":       fmt.Sprintf("Position computed in frame %s", frame),
		"frame":         frame.String(),
		"r":             vectorPayload(r),
		"latitude_deg":  st.LatitudeDeg,
		"longitude_deg": st.LongitudeDeg,
		"altitude_km":   st.AltitudeKm,
	}
}

// TimePayload renders a time_ack payload.
func TimePayload(info earth.TimeInfo, offset time.Duration) map[string]any {
	return map[string]any{
		"utc":       info.UTC.Format(time.RFC3339Nano),
		"jd":        info.JD,
		"mjd":       info.MJD,
		"gmst_rad":  info.GMSTRad,
		"offset_ms": float64(offset.Milliseconds()),
	}
}

func vectorPayload(v core.Vec3) map[string]any {
	return map[string]any{"x": v.X, "y": v.Y, "z": v.Z}
}

// DecodeVector reads an {x, y, z} object.
func DecodeVector(v *structpb.Value) (core.Vec3, error) {
	s := v.GetStructValue()
	if s == nil {
		return core.Vec3{}, fmt.Errorf("%w: vector object expected", core.ErrInvalidSample)
	}
	f := s.GetFields()
	var out core.Vec3
	var err error
	if out.X, err = requiredNumber(f, "x"); err != nil {
		return core.Vec3{}, err
	}
	if out.Y, err = requiredNumber(f, "y"); err != nil {
		return core.Vec3{}, err
	}
	if out.Z, err = requiredNumber(f, "z"); err != nil {
		return core.Vec3{}, err
	}
	return out, nil
}

// DecodeQuaternion reads the "q" object of an orientation_ack.
func DecodeQuaternion(v *structpb.Value) (core.Quaternion, error) {
	vec, err := DecodeVector(v)
	if err != nil {
		return core.Quaternion{}, err
	}
	w, err := requiredNumber(v.GetStructValue().GetFields(), "w")
	if err != nil {
		return core.Quaternion{}, err
	}
	return core.Quaternion{X: vec.X, Y: vec.Y, Z: vec.Z, W: w}, nil
}

func requiredNumber(fields map[string]*structpb.Value, key string) (float64, error) {
	v, ok, err := optionalNumber(fields, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", core.ErrInvalidSample, key)
	}
	return v, nil
}

// optionalNumber accepts a JSON number or a numeric string, the way
// browser clients tend to send form values.
func optionalNumber(fields map[string]*structpb.Value, key string) (float64, bool, error) {
	v, ok := fields[key]
	if !ok {
		return 0, false, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return 0, false, nil
	case *structpb.Value_NumberValue:
		return k.NumberValue, true, nil
	case *structpb.Value_StringValue:
		f, err := strconv.ParseFloat(strings.TrimSpace(k.StringValue), 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s %q is not a number", core.ErrInvalidSample, key, k.StringValue)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("%w: %s must be a number", core.ErrInvalidSample, key)
	}
}
