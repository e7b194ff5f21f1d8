package socket

import "strings"

// Namespace groups the client-side handlers of one namespace prefix
// into a single object, mirroring the server-side handler object.
type Namespace struct {
	namespace string

	connectHandler      ConnectHandler
	disconnectHandler   DisconnectHandler
	connectErrorHandler ConnectErrorHandler
	handlers            map[string]EventHandler

	client *Client
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

func (n *Namespace) attach(client *Client) {
	n.client = client
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

// OnConnectError installs the connection-error handler.
func (n *Namespace) OnConnectError(handler ConnectErrorHandler) {
	n.connectErrorHandler = handler
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
	return n.client.Emit(event, data, opts)
}

// Send emits the reserved "message" event scoped to this namespace.
func (n *Namespace) Send(data any, opts *EmitOptions) error {
	return n.Emit("message", data, opts)
}

// Call emits an event scoped to this namespace and waits for the
// acknowledgement.
func (n *Namespace) Call(event string, data any, opts *CallOptions) ([]any, error) {
	if opts == nil {
		opts = &CallOptions{}
	}
	opts.Namespace = n.namespace
	return n.client.Call(event, data, opts)
}
