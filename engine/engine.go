// Package engine defines the contract between the Socket.IO layer and
// the underlying bidirectional transport engine. The Socket.IO state
// machines consume these interfaces; servers/engine and clients/engine
// provide in-tree implementations, but any engine satisfying them can
// carry the protocol.
package engine

import "github.com/sockmesh/socketio/pkg/types"

// ConnectHandler is fired once per raw connection, before any
// Socket.IO traffic. Returning a non-nil error refuses the connection;
// the error text is reported to the transport layer as the rejection
// reason.
type ConnectHandler func(sid string, environ map[string]any) error

// MessageHandler is fired for every frame received on a session.
type MessageHandler func(sid string, frame types.Frame)

// DisconnectHandler is fired when a session goes away, after its last
// frame.
type DisconnectHandler func(sid string)

// Server is the server-side engine consumed by the Socket.IO server.
// Session ids are opaque strings minted by the engine; the Socket.IO
// layer never creates one.
type Server interface {
	// OnConnect, OnMessage and OnDisconnect register the callbacks the
	// engine fires into the state machine.
	OnConnect(ConnectHandler)
	OnMessage(MessageHandler)
	OnDisconnect(DisconnectHandler)

	// Send enqueues one frame on a session.
	Send(sid string, frame types.Frame) error

	// Disconnect terminates a session. With abort set the transport is
	// torn down with no graceful drain.
	Disconnect(sid string, abort bool) error

	// Transport reports the name of the session's underlying transport
	// ("polling" or "websocket").
	Transport(sid string) string

	// GetSession and SaveSession access the per-session key-value
	// store that backs the Socket.IO per-(sid, namespace) session.
	GetSession(sid string) (map[string]any, error)
	SaveSession(sid string, session map[string]any) error
}

// ConnectOptions carries the caller-supplied connection parameters of
// a client engine connect.
type ConnectOptions struct {
	// Headers are sent with the handshake request.
	Headers map[string]string
	// Transports lists the transports the engine may use. Defaults to
	// ["polling", "websocket"].
	Transports []string
	// Path is the engine endpoint path. Defaults to "/engine.io".
	Path string
}

// Client is the client-side engine consumed by the Socket.IO client.
type Client interface {
	OnConnect(func())
	OnMessage(func(frame types.Frame))
	OnDisconnect(func())

	// Connect performs the handshake against url. It returns only
	// after the session is established or refused.
	Connect(url string, opts *ConnectOptions) error

	// Send enqueues one frame.
	Send(frame types.Frame) error

	// Disconnect closes the session.
	Disconnect() error

	// Sid returns the session id assigned by the server, or "" before
	// the handshake completes.
	Sid() string

	// Transport reports the name of the current transport.
	Transport() string
}
