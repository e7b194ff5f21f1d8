package socket

import "github.com/sockmesh/socketio/parser/serializer"

// ServerOptions configures a Server. The zero value gives the
// defaults noted on each field.
type ServerOptions struct {
	// Manager supplies the membership/callback table. Defaults to
	// NewMemoryManager; a bus-backed manager slots in here for
	// horizontally scaled deployments.
	Manager Manager

	// AsyncHandlers starts each inbound event handler on its own
	// goroutine instead of invoking it inline on the delivery
	// goroutine. Default false.
	AsyncHandlers bool

	// AlwaysConnect sends the CONNECT packet before the connect
	// handler runs, so rejected clients still observe the negotiated
	// session before the DISCONNECT. Default false.
	AlwaysConnect bool

	// Binary controls whether emitted data may carry binary leaves.
	// Default true.
	Binary *bool

	// JSON overrides the payload serializer of the packet codec.
	// Defaults to the standard JSON implementation.
	JSON serializer.JSONSerializer
}

func (o *ServerOptions) binary() bool {
	if o == nil || o.Binary == nil {
		return true
	}
	return *o.Binary
}
