package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a thin client for the attitude service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// ComputeOrientation runs a stateless computation.
func (c *Client) ComputeOrientation(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodComputeOrientation, in, opts...)
}

// StationPosition returns a station's position in a frame.
func (c *Client) StationPosition(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodStationPosition, in, opts...)
}

// TimeInfo returns JD, MJD and GMST for an instant.
func (c *Client) TimeInfo(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodTimeInfo, in, opts...)
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionClient is the client side of a Session stream.
type SessionClient struct {
	grpc.ClientStream
}

// Send sends one session message.
func (s *SessionClient) Send(m *structpb.Struct) error { return s.ClientStream.SendMsg(m) }

// SendEvent encodes and sends one event.
func (s *SessionClient) SendEvent(event string, data map[string]any) error {
	msg, err := EncodeEnvelope(event, data)
	if err != nil {
		return err
	}
	return s.Send(msg)
}

// Recv receives one session message.
func (s *SessionClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RecvEnvelope receives and decodes one session message.
func (s *SessionClient) RecvEnvelope() (Envelope, error) {
	m, err := s.Recv()
	if err != nil {
		return Envelope{}, err
	}
	return DecodeEnvelope(m)
}

// Session opens a session stream. The server's first message is
// session_opened.
func (c *Client) Session(ctx context.Context, opts ...grpc.CallOption) (*SessionClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MethodSession, opts...)
	if err != nil {
		return nil, err
	}
	return &SessionClient{stream}, nil
}

// WatchClient is the client side of a WatchAttitudes stream.
type WatchClient struct {
	grpc.ClientStream
}

// Recv receives one published result.
func (w *WatchClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := w.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// WatchAttitudes subscribes to published results. in may carry a
// session_id filter.
func (c *Client) WatchAttitudes(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*WatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[1], MethodWatchAttitudes, opts...)
	if err != nil {
		return nil, err
	}
	if in == nil {
		in = &structpb.Struct{}
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchClient{stream}, nil
}
