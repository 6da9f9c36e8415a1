package api

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/device-attitude/core"
)

// ToStatusError maps attitude errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeFor(err), err.Error())
}

func codeFor(err error) codes.Code {
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	switch {
	case errors.Is(err, core.ErrInvalidSample),
		errors.Is(err, core.ErrUnknownFrame),
		errors.Is(err, core.ErrDegenerateVector),
		errors.Is(err, core.ErrInvalidAxis):
		return codes.InvalidArgument

	case errors.Is(err, core.ErrMissingStation):
		return codes.FailedPrecondition

	default:
		return codes.Internal
	}
}

// errorPayload is the negative acknowledgment sent on a session stream.
// The stream itself stays open.
func errorPayload(err error) map[string]any {
	return map[string]any{
		"error": err.Error(),
		"code":  codeFor(err).String(),
	}
}
