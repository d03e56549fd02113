package echonet

import "errors"

// Domain-specific errors for ECHONET Lite operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotInitialised is returned when the client is used before Init.
	ErrNotInitialised = errors.New("echonet: client not initialised")

	// ErrClosed is returned when the client has been closed.
	ErrClosed = errors.New("echonet: client closed")

	// ErrInvalidFrame is returned when a datagram is not a valid format-1 frame.
	ErrInvalidFrame = errors.New("echonet: invalid frame")

	// ErrInvalidEDT is returned when property data cannot be decoded or encoded.
	ErrInvalidEDT = errors.New("echonet: invalid property data")

	// ErrTimeout is returned when a device does not answer within the response timeout.
	ErrTimeout = errors.New("echonet: response timeout")

	// ErrRequestRejected is returned when a device answers with an SNA service code.
	ErrRequestRejected = errors.New("echonet: request rejected by device")

	// ErrPropertyMissing is returned when a response lacks the requested property.
	ErrPropertyMissing = errors.New("echonet: property missing from response")

	// ErrInvalidAddress is returned when a device address cannot be resolved.
	ErrInvalidAddress = errors.New("echonet: invalid device address")
)
