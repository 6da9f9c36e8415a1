package core

import "errors"

var (
	// ErrDegenerateVector indicates a vector too short to normalise, including
	// the singular north-angle pose where the device's top edge is vertical.
	ErrDegenerateVector = errors.New("degenerate vector")
	// ErrMissingStation indicates an orientation was requested before any
	// observer position was established.
	ErrMissingStation = errors.New("need position data for orientation solution")
	// ErrUnknownFrame indicates an unrecognised output frame selector.
	ErrUnknownFrame = errors.New("unknown frame")
	// ErrInvalidSample indicates non-finite or out-of-domain numeric input.
	ErrInvalidSample = errors.New("invalid sample")
	// ErrInvalidAxis indicates an axis outside {1, 2, 3}.
	ErrInvalidAxis = errors.New("invalid rotation axis")
	// ErrNotRotation indicates an Earth model returned a matrix that is not a
	// proper rotation.
	ErrNotRotation = errors.New("not a proper rotation")
)
