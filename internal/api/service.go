// Package api serves the attitude pipeline over gRPC: a bidirectional
// Session stream per device plus stateless unary helpers and a watch stream
// of every published result.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/device-attitude/core"
	"github.com/signalsfoundry/device-attitude/earth"
	"github.com/signalsfoundry/device-attitude/internal/logging"
	"github.com/signalsfoundry/device-attitude/internal/observability"
	"github.com/signalsfoundry/device-attitude/internal/session"
	"github.com/signalsfoundry/device-attitude/internal/sink"
	"github.com/signalsfoundry/device-attitude/model"
	"github.com/signalsfoundry/device-attitude/timectrl"
)

// Service implements AttitudeServer.
type Service struct {
	pipeline *core.Pipeline
	sessions *session.Registry
	results  *sink.Broadcaster

	log              logging.Logger
	metrics          *observability.AttitudeCollector
	pipelineMetrics  *observability.PipelineCollector
	applyDeclination bool
	clock            timectrl.Clock
}

var _ AttitudeServer = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the fallback logger for calls that arrive without a
// request logger on the context.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records result outcomes.
func WithMetrics(c *observability.AttitudeCollector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithPipelineMetrics records compute latency.
func WithPipelineMetrics(c *observability.PipelineCollector) Option {
	return func(s *Service) { s.pipelineMetrics = c }
}

// WithApplyDeclination sets whether orientation updates remove the magnetic
// declination when they do not say.
func WithApplyDeclination(apply bool) Option {
	return func(s *Service) { s.applyDeclination = apply }
}

// WithServiceClock sets the clock used by the unary helpers when a request
// carries no unix_time.
func WithServiceClock(c timectrl.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewService wires a Service. results may be nil, in which case
// WatchAttitudes reports Unavailable.
func NewService(pipeline *core.Pipeline, sessions *session.Registry, results *sink.Broadcaster, opts ...Option) *Service {
	s := &Service{
		pipeline: pipeline,
		sessions: sessions,
		results:  results,
		log:      logging.Noop(),
		clock:    timectrl.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

// Session runs one device session until the client closes its side or the
// stream fails. Bad events are answered with an error ack; they never end
// the stream.
func (s *Service) Session(stream SessionStream) error {
	sess := s.sessions.Open()
	defer s.sessions.Close(sess.ID())

	ctx := logging.ContextWithSessionID(stream.Context(), sess.ID())
	log := s.logger(ctx)
	log.Info(ctx, "session opened")

	opened, err := EncodeEnvelope(EventSessionOpened, map[string]any{"session_id": sess.ID()})
	if err != nil {
		return status.Error(codeFor(err), err.Error())
	}
	if err := stream.Send(opened); err != nil {
		return err
	}

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Info(ctx, "session closed by client")
			return nil
		}
		if err != nil {
			log.Debug(ctx, "session stream ended", logging.Err(err))
			return err
		}

		reply := s.handleEvent(ctx, sess, msg)
		if err := stream.Send(reply); err != nil {
			return err
		}
	}
}

func (s *Service) handleEvent(ctx context.Context, sess *session.Session, msg *structpb.Struct) *structpb.Struct {
	env, err := DecodeEnvelope(msg)
	if err != nil {
		return s.ack(ctx, EventError, nil, err)
	}

	ctx, span := StartChildSpan(ctx, "Session/"+env.Event, sess.ID(), attribute.String("event", env.Event))
	defer span.End()

	var (
		ackEvent string
		payload  map[string]any
	)
	switch env.Event {
	case EventPositionUpdate:
		ackEvent = EventPositionAck
		payload, err = s.positionUpdate(ctx, sess, env.Data)
	case EventOrientationUpdate:
		ackEvent = EventOrientationAck
		payload, err = s.orientationUpdate(ctx, sess, env.Data)
	case EventTimeUpdate:
		ackEvent = EventTimeAck
		payload, err = s.timeUpdate(ctx, sess, env.Data)
	default:
		ackEvent = EventError
		err = fmt.Errorf("%w: unknown event %q", core.ErrInvalidSample, env.Event)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	return s.ack(ctx, ackEvent, payload, err)
}

func (s *Service) ack(ctx context.Context, event string, payload map[string]any, err error) *structpb.Struct {
	if err != nil {
		s.logger(ctx).Warn(ctx, "event rejected",
			logging.String("ack", event),
			logging.String("code", codeFor(err).String()),
			logging.Err(err),
		)
		payload = errorPayload(err)
	}
	out, encErr := EncodeEnvelope(event, payload)
	if encErr != nil {
		s.logger(ctx).Error(ctx, "encode ack", logging.Err(encErr))
		out, _ = EncodeEnvelope(event, errorPayload(fmt.Errorf("encode %s: %w", event, encErr)))
	}
	return out
}

func (s *Service) positionUpdate(ctx context.Context, sess *session.Session, data *structpb.Struct) (map[string]any, error) {
	pos, err := DecodePosition(data)
	if err != nil {
		return nil, err
	}
	frame, err := core.ParseFrame(pos.Frame)
	if err != nil {
		return nil, err
	}
	st, err := sess.UpdateStation(pos)
	if err != nil {
		return nil, err
	}
	r, err := sess.StationPosition(s.pipeline, frame)
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Debug(ctx, "station updated",
		logging.Float("latitude_deg", st.LatitudeDeg),
		logging.Float("longitude_deg", st.LongitudeDeg),
	)
	return PositionPayload(frame, r, st), nil
}

func (s *Service) orientationUpdate(ctx context.Context, sess *session.Session, data *structpb.Struct) (map[string]any, error) {
	req, err := DecodeOrientation(data, s.applyDeclination)
	if err != nil {
		s.observe(core.FrameUnknown, err)
		return nil, err
	}

	start := time.Now()
	result, err := sess.Orient(s.pipeline, req.Sample, req.Frame, req.DeclinationRad)
	s.pipelineMetrics.ObserveCompute(time.Since(start))
	if err != nil && errors.Is(err, core.ErrUnknownFrame) && req.FrameErr != nil {
		err = req.FrameErr
	}
	s.observe(req.Frame, err)
	if err != nil {
		return nil, err
	}

	s.logger(ctx).Debug(ctx, "orientation computed",
		logging.String("frame", result.Frame.String()),
		logging.Float("north_angle_deg", result.NorthAngleDeg),
		logging.Float("adjustment_deg", result.AdjustmentDeg),
	)
	return ResultPayload(result), nil
}

func (s *Service) timeUpdate(ctx context.Context, sess *session.Session, data *structpb.Struct) (map[string]any, error) {
	ts, err := DecodeTime(data)
	if err != nil {
		return nil, err
	}
	offset := sess.SyncClock(ts)
	s.logger(ctx).Debug(ctx, "clock synced", logging.Duration("offset", offset))
	return TimePayload(earth.Describe(ts.Time()), offset), nil
}

func (s *Service) observe(frame core.ReferenceFrame, err error) {
	name := ""
	if frame.Valid() {
		name = frame.String()
	}
	switch {
	case err == nil:
		s.metrics.ObserveResult(name, observability.OutcomeOK)
	case codeFor(err) == codes.Internal:
		s.metrics.ObserveResult(name, observability.OutcomeError)
	default:
		s.metrics.ObserveResult(name, observability.OutcomeRejected)
	}
}

// ComputeOrientation computes an orientation without a session. The station
// travels in the request under "station"; "unix_time" optionally fixes the
// instant used for the inertial frame.
func (s *Service) ComputeOrientation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := DecodeOrientation(in, s.applyDeclination)
	if err != nil {
		s.observe(core.FrameUnknown, err)
		return nil, ToStatusError(err)
	}
	var station *model.Station
	if v, ok := in.GetFields()["station"]; ok && v.GetStructValue() != nil {
		pos, err := DecodePosition(v.GetStructValue())
		if err != nil {
			return nil, ToStatusError(err)
		}
		st := pos.Station(s.clock.Now())
		station = &st
	}
	at, ok, err := DecodeInstant(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	clock := s.clock
	if ok {
		clock = timectrl.FixedClock(at)
	}

	start := time.Now()
	result, err := s.pipeline.Compute(core.Request{
		Sample:         req.Sample,
		Station:        station,
		Frame:          req.Frame,
		DeclinationRad: req.DeclinationRad,
		Clock:          clock,
	})
	s.pipelineMetrics.ObserveCompute(time.Since(start))
	if err != nil && errors.Is(err, core.ErrUnknownFrame) && req.FrameErr != nil {
		err = req.FrameErr
	}
	s.observe(req.Frame, err)
	if err != nil {
		s.logger(ctx).Debug(ctx, "orientation rejected", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return encodeStruct(ResultPayload(result))
}

// StationPosition returns the position of the station in the request in the
// requested frame.
func (s *Service) StationPosition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	pos, err := DecodePosition(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	frame, err := core.ParseFrame(pos.Frame)
	if err != nil {
		return nil, ToStatusError(err)
	}
	at, ok, err := DecodeInstant(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	if !ok {
		at = s.clock.Now()
	}
	st := pos.Station(at)
	r, err := s.pipeline.StationPositionAt(&st, frame, at)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return encodeStruct(PositionPayload(frame, r, st))
}

// TimeInfo reports JD, MJD and GMST for "unix_time" (ms), or for now when
// it is absent.
func (s *Service) TimeInfo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	at, ok, err := DecodeInstant(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	if !ok {
		at = s.clock.Now()
	}
	return encodeStruct(TimePayload(earth.Describe(at), 0))
}

// WatchAttitudes streams every result published by any session, optionally
// filtered by "session_id", until the client goes away or the server shuts
// the broadcaster down.
func (s *Service) WatchAttitudes(in *structpb.Struct, stream WatchStream) error {
	if s.results == nil {
		return status.Error(codes.Unavailable, "result broadcasting is disabled")
	}
	filter := strings.TrimSpace(in.GetFields()["session_id"].GetStringValue())
	ctx := stream.Context()

	records, cancel := s.results.Subscribe()
	defer cancel()
	s.logger(ctx).Info(ctx, "watch started", logging.String("filter", filter))

	for {
		select {
		case <-ctx.Done():
			return nil
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			if filter != "" && rec.SessionID != filter {
				continue
			}
			msg, err := encodeRecord(rec)
			if err != nil {
				return ToStatusError(err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func encodeRecord(rec sink.Record) (*structpb.Struct, error) {
	payload := ResultPayload(rec.Result)
	payload["sequence"] = float64(rec.Sequence)
	payload["session_id"] = rec.SessionID
	return structpb.NewStruct(payload)
}

func encodeStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}
