package socket

import (
	"errors"
	"fmt"
)

// Errors surfaced by the server-side API.
var (
	// ErrNotConnected is returned when a room operation targets a
	// session that is not connected to the namespace.
	ErrNotConnected = errors.New("session is not connected to namespace")

	// ErrBroadcastCallback is returned when an acknowledgement
	// callback is supplied for an emit that targets more than one
	// session.
	ErrBroadcastCallback = errors.New("callback is only supported for single-recipient emits")

	// ErrBroadcastCall is returned when Call is invoked without a
	// target session.
	ErrBroadcastCall = errors.New("call cannot broadcast")

	// ErrAsyncHandlersRequired is returned when Call is invoked on a
	// server configured with inline handlers, where waiting for the
	// acknowledgement would block the delivery goroutine.
	ErrAsyncHandlersRequired = errors.New("call requires async handlers")

	// ErrTimeout is returned when an acknowledgement does not arrive
	// within the call timeout.
	ErrTimeout = errors.New("acknowledgement timed out")

	// ErrBinaryNotSupported is returned when emitted data carries
	// binary leaves but the binary option is disabled.
	ErrBinaryNotSupported = errors.New("binary data not supported")

	// ErrUnknownEvent is returned when a handler is registered under
	// an empty event name.
	ErrUnknownEvent = errors.New("invalid event name")

	// ErrNamespaceRegistered is returned when a namespace handler
	// object is registered for a namespace that already has one.
	ErrNamespaceRegistered = errors.New("namespace already registered")

	// ErrInvalidHandler is returned when a handler of the wrong type
	// is registered for an event.
	ErrInvalidHandler = errors.New("invalid handler type for event")
)

// ConnectionRefusedError is returned from a connect handler to refuse
// the connection. Info, if present, is delivered to the peer in the
// ERROR packet payload: a single value rides as a scalar, several as
// an array.
type ConnectionRefusedError struct {
	Info []any
}

// RefuseConnection builds a ConnectionRefusedError with the given
// payload values.
func RefuseConnection(info ...any) *ConnectionRefusedError {
	return &ConnectionRefusedError{Info: info}
}

func (e *ConnectionRefusedError) Error() string {
	if len(e.Info) == 0 {
		return "connection refused"
	}
	if reason, ok := e.Info[0].(string); ok {
		return reason
	}
	return fmt.Sprintf("connection refused: %v", e.Info[0])
}

// ErrorPayload returns the value to send in the ERROR packet, or nil
// for an empty body.
func (e *ConnectionRefusedError) ErrorPayload() any {
	switch len(e.Info) {
	case 0:
		return nil
	case 1:
		return e.Info[0]
	default:
		return []any(e.Info)
	}
}
