package indi

import "errors"

// Domain errors for the INDI link.
var (
	// ErrNotConnected is returned when a command is sent while the link
	// holds no connection to the INDI server.
	ErrNotConnected = errors.New("indi: not connected to INDI server")

	// ErrConnectionFailed is returned when dialling the INDI server fails.
	ErrConnectionFailed = errors.New("indi: connection to INDI server failed")

	// ErrMalformedStream is returned when the inbound XML stream is not well-formed.
	// The connection is dropped and re-established.
	ErrMalformedStream = errors.New("indi: malformed XML stream")

	// ErrElementTooLarge is returned when a single top-level element exceeds
	// the configured size limit before it completes.
	ErrElementTooLarge = errors.New("indi: element too large")

	// ErrInvalidElement is returned when a complete element cannot be decoded
	// into a property (for example a non-numeric number value).
	ErrInvalidElement = errors.New("indi: invalid element")

	// ErrInvalidCommand is returned when an outbound command has no device,
	// property name or keys.
	ErrInvalidCommand = errors.New("indi: invalid command")
)

// ErrConnectionClosed is returned by a link session when the INDI server
// closes the stream.
var ErrConnectionClosed = errors.New("indi: connection closed by INDI server")
