package socket

import "strings"

// Namespace groups the handlers of one namespace prefix into a single
// object. Handlers are attached with explicit registration calls; the
// object is then installed on a server with RegisterNamespace, which
// also gives the convenience emitters their backing server.
type Namespace struct {
	namespace string

	connectHandler    ConnectHandler
	disconnectHandler DisconnectHandler
	handlers          map[string]EventHandler

	server *Server
}

// NewNamespace creates a namespace handler object for the given
// prefix.
func NewNamespace(namespace string) *Namespace {
	if namespace == "" {
		namespace = "/"
	}
	return &Namespace{
		namespace: namespace,
		handlers:  map[string]EventHandler{},
	}
}

func (n *Namespace) valid() bool {
	return strings.HasPrefix(n.namespace, "/")
}

func (n *Namespace) attach(server *Server) {
	n.server = server
}

// Name returns the namespace prefix.
func (n *Namespace) Name() string {
	return n.namespace
}

// OnConnect installs the connect handler.
func (n *Namespace) OnConnect(handler ConnectHandler) {
	n.connectHandler = handler
}

// OnDisconnect installs the disconnect handler.
func (n *Namespace) OnDisconnect(handler DisconnectHandler) {
	n.disconnectHandler = handler
}

// OnEvent installs the handler for one event.
func (n *Namespace) OnEvent(event string, handler EventHandler) {
	n.handlers[event] = handler
}

// Emit sends an event scoped to this namespace.
func (n *Namespace) Emit(event string, data any, opts *EmitOptions) error {
	if opts == nil {
		opts = &EmitOptions{}
	}
	opts.Namespace = n.namespace
	return n.server.Emit(event, data, opts)
}

// Send emits the reserved "message" event scoped to this namespace.
func (n *Namespace) Send(data any, opts *EmitOptions) error {
	return n.Emit("message", data, opts)
}

// EnterRoom adds a session to a room of this namespace.
func (n *Namespace) EnterRoom(sid, room string) error {
	return n.server.EnterRoom(sid, room, n.namespace)
}

// LeaveRoom removes a session from a room of this namespace.
func (n *Namespace) LeaveRoom(sid, room string) {
	n.server.LeaveRoom(sid, room, n.namespace)
}

// CloseRoom removes a room of this namespace.
func (n *Namespace) CloseRoom(room string) {
	n.server.CloseRoom(room, n.namespace)
}

// Rooms returns the rooms a session is in within this namespace.
func (n *Namespace) Rooms(sid string) []string {
	return n.server.Rooms(sid, n.namespace)
}

// Disconnect drops a session from this namespace.
func (n *Namespace) Disconnect(sid string) error {
	return n.server.Disconnect(sid, n.namespace)
}
