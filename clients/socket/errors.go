package socket

import "errors"

// Errors surfaced by the client-side API.
var (
	// ErrConnection is returned by Connect when the transport layer
	// refuses the connection.
	ErrConnection = errors.New("connection failed")

	// ErrAlreadyConnected is returned by Connect on a client that is
	// already connected.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrBadNamespace is returned when emitting to a namespace that is
	// not active.
	ErrBadNamespace = errors.New("namespace is not connected")

	// ErrTimeout is returned when an acknowledgement does not arrive
	// within the call timeout.
	ErrTimeout = errors.New("acknowledgement timed out")

	// ErrBinaryNotSupported is returned when emitted data carries
	// binary leaves but the binary option is disabled.
	ErrBinaryNotSupported = errors.New("binary data not supported")

	// ErrUnknownEvent is returned when a handler is registered under
	// an empty event name.
	ErrUnknownEvent = errors.New("invalid event name")

	// ErrInvalidHandler is returned when a handler of the wrong type
	// is registered for an event.
	ErrInvalidHandler = errors.New("invalid handler type for event")

	// ErrNamespaceRegistered is returned when a namespace handler
	// object is registered for a namespace that already has one.
	ErrNamespaceRegistered = errors.New("namespace already registered")
)
