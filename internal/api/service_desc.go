package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "attitude.v1.AttitudeService"

const (
	MethodSession            = "/" + ServiceName + "/Session"
	MethodComputeOrientation = "/" + ServiceName + "/ComputeOrientation"
	MethodStationPosition    = "/" + ServiceName + "/StationPosition"
	MethodTimeInfo           = "/" + ServiceName + "/TimeInfo"
	MethodWatchAttitudes     = "/" + ServiceName + "/WatchAttitudes"
)

// AttitudeServer is the server API for the attitude service. Every message
// is a google.protobuf.Struct whose keys follow the session event payloads.
type AttitudeServer interface {
	Session(SessionStream) error
	ComputeOrientation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StationPosition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TimeInfo(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchAttitudes(*structpb.Struct, WatchStream) error
}

// SessionStream is the server side of the bidirectional Session stream.
type SessionStream interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	grpc.ServerStream
}

// WatchStream is the server side of the WatchAttitudes stream.
type WatchStream interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

// RegisterAttitudeServer registers srv with s.
func RegisterAttitudeServer(s grpc.ServiceRegistrar, srv AttitudeServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the attitude service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AttitudeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ComputeOrientation", Handler: computeOrientationHandler},
		{MethodName: "StationPosition", Handler: stationPositionHandler},
		{MethodName: "TimeInfo", Handler: timeInfoHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Session",
			Handler:       sessionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
		{
			StreamName:    "WatchAttitudes",
			Handler:       watchAttitudesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "attitude/v1/attitude.proto",
}

type unaryMethod func(AttitudeServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AttitudeServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(AttitudeServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var (
	computeOrientationHandler = unaryHandler(MethodComputeOrientation, AttitudeServer.ComputeOrientation)
	stationPositionHandler    = unaryHandler(MethodStationPosition, AttitudeServer.StationPosition)
	timeInfoHandler           = unaryHandler(MethodTimeInfo, AttitudeServer.TimeInfo)
)

func sessionHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(AttitudeServer).Session(&sessionServerStream{stream})
}

func watchAttitudesHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(AttitudeServer).WatchAttitudes(in, &watchServerStream{stream})
}

type sessionServerStream struct {
	grpc.ServerStream
}

func (s *sessionServerStream) Send(m *structpb.Struct) error { return s.ServerStream.SendMsg(m) }

func (s *sessionServerStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type watchServerStream struct {
	grpc.ServerStream
}

func (s *watchServerStream) Send(m *structpb.Struct) error { return s.ServerStream.SendMsg(m) }
