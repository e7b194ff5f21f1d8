package socket

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sockmesh/socketio/engine"
	"github.com/sockmesh/socketio/parser"
	"github.com/sockmesh/socketio/pkg/log"
	"github.com/sockmesh/socketio/pkg/types"
	"github.com/sockmesh/socketio/pkg/utils"
)

var clientLog = log.NewLog("socket.io:client")

// DefaultCallTimeout bounds Call when no timeout is given.
const DefaultCallTimeout = 60 * time.Second

type (
	// ConnectHandler observes a namespace becoming ready.
	ConnectHandler func()

	// DisconnectHandler observes a namespace going away.
	DisconnectHandler func()

	// ConnectErrorHandler receives the payload of an ERROR packet for
	// a namespace.
	ConnectErrorHandler func(args ...any)

	// EventHandler receives an event. The return value is serialized
	// into the acknowledgement when the server asked for one, with
	// the same shaping rules as on the server: Args splats, anything
	// else rides as a single argument.
	EventHandler func(args ...any) any

	// Args holds multiple acknowledgement values.
	Args []any

	// AckCallback receives the arguments of an acknowledgement reply.
	AckCallback func(args ...any)
)

// ConnectOptions carries the per-connection parameters of Connect.
type ConnectOptions struct {
	// Headers are sent with the engine handshake.
	Headers map[string]string
	// Transports lists the transports the engine may use.
	Transports []string
	// Namespaces lists the namespaces to connect. When empty, the
	// list is derived from the namespaces that have registered
	// handlers.
	Namespaces []string
	// Path is the Socket.IO endpoint path. Defaults to "/socket.io".
	Path string
}

// EmitOptions scopes a client emit.
type EmitOptions struct {
	Namespace string
	Callback  AckCallback
}

// CallOptions configures a synchronous Call.
type CallOptions struct {
	Namespace string
	Timeout   time.Duration
}

// Client drives the client side of the protocol: it connects the
// transport engine, negotiates the requested namespaces, dispatches
// incoming packets to handlers, tracks pending acknowledgement
// callbacks, and supervises reconnection with bounded-exponential
// backoff.
type Client struct {
	eio    engine.Client
	config *Config

	codec   parser.Parser
	encoder parser.Encoder
	decoder parser.Decoder

	mu                sync.RWMutex
	handlers          map[string]map[string]any
	namespaceHandlers map[string]*Namespace
	connected         bool
	sid               string
	namespaces        []string // active (confirmed by the server)
	callbacks         map[string]map[uint64]AckCallback
	ackIDs            map[string]uint64

	// remembered connection arguments for the reconnect supervisor
	connectionURL        string
	connectionOpts       ConnectOptions
	connectionNamespaces []string

	backoff        *utils.Backoff
	reconnectAbort chan types.Void
	reconnectTask  chan types.Void // non-nil while the supervisor runs
	engineDone     chan types.Void // closed when the engine drops
}

// NewClient creates a Client bound to the given transport engine.
func NewClient(eio engine.Client, config *Config) *Client {
	if config == nil {
		config = &Config{}
	}

	c := &Client{
		eio:               eio,
		config:            config,
		handlers:          map[string]map[string]any{},
		namespaceHandlers: map[string]*Namespace{},
		callbacks:         map[string]map[uint64]AckCallback{},
		ackIDs:            map[string]uint64{},
		reconnectAbort:    make(chan types.Void),
	}

	c.backoff = utils.NewBackoff(
		utils.WithMin(config.reconnectionDelay()),
		utils.WithMax(config.reconnectionDelayMax()),
		utils.WithJitter(config.randomizationFactor()),
		utils.WithRandom(config.Random),
	)

	c.codec = parser.NewParser(config.JSON)
	c.encoder = c.codec.NewEncoder()
	c.decoder = c.codec.NewDecoder()
	c.decoder.On("decoded", func(args ...any) {
		if pkt, ok := args[0].(*parser.Packet); ok {
			c.dispatchPacket(pkt)
		}
	})

	eio.OnConnect(c.handleEioConnect)
	eio.OnMessage(func(frame types.Frame) {
		if err := c.decoder.Add(frame); err != nil {
			clientLog.Error("message dropped: %v", err)
		}
	})
	eio.OnDisconnect(c.handleEioDisconnect)

	return c
}

// On registers a handler for an event on a namespace (default "/").
// The reserved events "connect", "disconnect" and "connect_error"
// take their dedicated handler types; every other event takes an
// EventHandler.
func (c *Client) On(event string, handler any, namespace ...string) error {
	if event == "" {
		return ErrUnknownEvent
	}
	switch event {
	case "connect":
		if _, ok := handler.(ConnectHandler); !ok {
			return fmt.Errorf("%w: connect wants a ConnectHandler", ErrInvalidHandler)
		}
	case "disconnect":
		if _, ok := handler.(DisconnectHandler); !ok {
			return fmt.Errorf("%w: disconnect wants a DisconnectHandler", ErrInvalidHandler)
		}
	case "connect_error":
		if _, ok := handler.(ConnectErrorHandler); !ok {
			return fmt.Errorf("%w: connect_error wants a ConnectErrorHandler", ErrInvalidHandler)
		}
	default:
		if _, ok := handler.(EventHandler); !ok {
			return fmt.Errorf("%w: %q wants an EventHandler", ErrInvalidHandler, event)
		}
	}

	nsp := defaultNamespace(namespace)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handlers[nsp] == nil {
		c.handlers[nsp] = map[string]any{}
	}
	c.handlers[nsp][event] = handler
	return nil
}

// RegisterNamespace attaches a namespace handler object.
func (c *Client) RegisterNamespace(n *Namespace) error {
	if n == nil || !n.valid() {
		return fmt.Errorf("%w: namespace must start with /", ErrInvalidHandler)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.namespaceHandlers[n.namespace]; exists {
		return ErrNamespaceRegistered
	}
	n.attach(c)
	c.namespaceHandlers[n.namespace] = n
	return nil
}

// Connect establishes the engine connection and requests the
// namespaces from opts (or those with registered handlers). It
// returns once the transport is up; each namespace becomes ready when
// the server confirms it.
func (c *Client) Connect(url string, opts *ConnectOptions) error {
	if opts == nil {
		opts = &ConnectOptions{}
	}

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	namespaces := opts.Namespaces
	if len(namespaces) == 0 {
		namespaces = c.handlerNamespaces()
	}
	c.connectionURL = url
	c.connectionOpts = *opts
	c.connectionNamespaces = namespaces
	c.namespaces = nil
	c.mu.Unlock()

	path := opts.Path
	if path == "" {
		path = "/socket.io"
	}
	err := c.eio.Connect(url, &engine.ConnectOptions{
		Headers:    opts.Headers,
		Transports: opts.Transports,
		Path:       path,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	c.mu.Lock()
	c.connected = true
	c.engineDone = make(chan types.Void)
	c.mu.Unlock()
	return nil
}

// handlerNamespaces derives the namespace list from the registered
// handlers, excluding the default namespace. Called with c.mu held.
func (c *Client) handlerNamespaces() []string {
	seen := types.NewSet[string]()
	for nsp := range c.handlers {
		seen.Add(nsp)
	}
	for nsp := range c.namespaceHandlers {
		seen.Add(nsp)
	}
	seen.Delete("/")
	namespaces := seen.Keys()
	slices.Sort(namespaces)
	return namespaces
}

// Connected reports whether the transport connection is up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connected
}

// Namespaces returns the namespaces confirmed by the server.
func (c *Client) Namespaces() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.namespaces)
}

// Sid returns the session id of the current connection.
func (c *Client) Sid() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.sid
}

// Transport reports the name of the current transport.
func (c *Client) Transport() string {
	return c.eio.Transport()
}

// Emit sends an event. Targets the default namespace unless scoped;
// emitting to a namespace the server has not confirmed fails with
// ErrBadNamespace.
func (c *Client) Emit(event string, data any, opts *EmitOptions) error {
	if opts == nil {
		opts = &EmitOptions{}
	}
	nsp := opts.Namespace
	if nsp == "" {
		nsp = "/"
	}
	if !c.config.binary() && parser.HasBinary(data) {
		return ErrBinaryNotSupported
	}

	c.mu.Lock()
	if nsp != "/" && !slices.Contains(c.namespaces, nsp) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBadNamespace, nsp)
	}
	var id *uint64
	if opts.Callback != nil {
		ackID := c.generateAckID(nsp, opts.Callback)
		id = &ackID
	}
	c.mu.Unlock()

	payload := []any{event}
	switch v := data.(type) {
	case nil:
	case Args:
		payload = append(payload, v...)
	default:
		payload = append(payload, data)
	}
	return c.sendPacket(&parser.Packet{Type: parser.EVENT, Nsp: nsp, Id: id, Data: payload})
}

// Send emits the reserved "message" event.
func (c *Client) Send(data any, opts *EmitOptions) error {
	return c.Emit("message", data, opts)
}

// Call emits an event and waits for the server's acknowledgement,
// returning the reply arguments. Expiration releases the caller only.
// Calling from within an event handler blocks until the timeout and
// fails with ErrTimeout: the reply arrives on the same delivery
// goroutine.
func (c *Client) Call(event string, data any, opts *CallOptions) ([]any, error) {
	if opts == nil {
		opts = &CallOptions{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	reply := make(chan []any, 1)
	err := c.Emit(event, data, &EmitOptions{
		Namespace: opts.Namespace,
		Callback: func(args ...any) {
			select {
			case reply <- args:
			default:
			}
		},
	})
	if err != nil {
		return nil, err
	}

	select {
	case args := <-reply:
		return args, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}

// Disconnect closes the connection deliberately: no reconnect
// supervisor is started.
func (c *Client) Disconnect() error {
	c.abortReconnect()

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	namespaces := slices.Clone(c.namespaces)
	c.connected = false
	c.mu.Unlock()

	for _, nsp := range namespaces {
		c.sendPacket(&parser.Packet{Type: parser.DISCONNECT, Nsp: nsp})
	}
	c.sendPacket(&parser.Packet{Type: parser.DISCONNECT, Nsp: "/"})
	return c.eio.Disconnect()
}

// Wait blocks until the connection is over for good: the transport
// has exited and the reconnect supervisor, if any, has terminated.
func (c *Client) Wait() {
	for {
		c.mu.RLock()
		engineDone := c.engineDone
		c.mu.RUnlock()
		if engineDone != nil {
			<-engineDone
		}

		c.mu.RLock()
		task := c.reconnectTask
		c.mu.RUnlock()
		if task == nil {
			return
		}
		<-task

		if !c.Connected() {
			return
		}
	}
}

func (c *Client) generateAckID(namespace string, callback AckCallback) uint64 {
	c.ackIDs[namespace]++
	id := c.ackIDs[namespace]
	if c.callbacks[namespace] == nil {
		c.callbacks[namespace] = map[uint64]AckCallback{}
	}
	c.callbacks[namespace][id] = callback
	return id
}

func (c *Client) sendPacket(pkt *parser.Packet) error {
	frames, err := c.encoder.Encode(pkt)
	if err != nil {
		return err
	}
	for _, frame := range frames {
		if err := c.eio.Send(frame); err != nil {
			return err
		}
	}
	return nil
}

// ---- engine callbacks ----

func (c *Client) handleEioConnect() {
	clientLog.Debug("engine connection established")
	c.mu.Lock()
	c.sid = c.eio.Sid()
	c.connected = true
	c.mu.Unlock()
}

func (c *Client) handleEioDisconnect() {
	clientLog.Debug("engine connection dropped")

	c.mu.Lock()
	wasConnected := c.connected
	namespaces := c.namespaces
	c.namespaces = nil
	c.connected = false
	c.callbacks = map[string]map[uint64]AckCallback{}
	c.sid = ""
	engineDone := c.engineDone
	c.mu.Unlock()

	if wasConnected {
		for _, nsp := range namespaces {
			c.triggerDisconnect(nsp)
		}
		c.triggerDisconnect("/")
	}

	if wasConnected && c.config.reconnection() {
		c.startReconnect()
	}

	if engineDone != nil {
		close(engineDone)
	}
}

// ---- packet dispatch ----

func (c *Client) dispatchPacket(pkt *parser.Packet) {
	switch pkt.Type {
	case parser.CONNECT:
		c.handleConnect(pkt.Nsp)
	case parser.DISCONNECT:
		c.handleDisconnect(pkt.Nsp)
	case parser.EVENT, parser.BINARY_EVENT:
		c.handleEvent(pkt)
	case parser.ACK, parser.BINARY_ACK:
		c.handleAck(pkt)
	case parser.ERROR:
		c.handleError(pkt.Nsp, pkt.Data)
	}
}

// handleConnect reacts to the server confirming a namespace. The
// default namespace confirmation triggers the CONNECT requests for
// every additional namespace.
func (c *Client) handleConnect(namespace string) {
	clientLog.Debug("namespace %s is connected", namespace)
	if namespace == "/" {
		c.mu.RLock()
		requested := slices.Clone(c.connectionNamespaces)
		c.mu.RUnlock()
		c.triggerConnect("/")
		for _, nsp := range requested {
			if nsp != "/" {
				c.sendPacket(&parser.Packet{Type: parser.CONNECT, Nsp: nsp})
			}
		}
		return
	}

	c.mu.Lock()
	if !slices.Contains(c.namespaces, namespace) {
		c.namespaces = append(c.namespaces, namespace)
	}
	c.mu.Unlock()
	c.triggerConnect(namespace)
}

func (c *Client) handleDisconnect(namespace string) {
	if namespace == "" {
		namespace = "/"
	}
	c.mu.Lock()
	if namespace == "/" {
		c.connected = false
		c.namespaces = nil
	} else if i := slices.Index(c.namespaces, namespace); i != -1 {
		c.namespaces = slices.Delete(c.namespaces, i, i+1)
	}
	c.mu.Unlock()
	c.triggerDisconnect(namespace)
}

func (c *Client) handleEvent(pkt *parser.Packet) {
	data, ok := pkt.Data.([]any)
	if !ok || len(data) == 0 {
		return
	}
	event, ok := data[0].(string)
	if !ok {
		return
	}
	clientLog.Debug("received event %q [%s]", event, pkt.Nsp)

	ret := c.triggerEvent(pkt.Nsp, event, data[1:])
	if pkt.Id == nil {
		return
	}
	var ackData []any
	switch v := ret.(type) {
	case nil:
		ackData = []any{}
	case Args:
		ackData = v
	default:
		ackData = []any{ret}
	}
	c.sendPacket(&parser.Packet{Type: parser.ACK, Nsp: pkt.Nsp, Id: pkt.Id, Data: ackData})
}

func (c *Client) handleAck(pkt *parser.Packet) {
	if pkt.Id == nil {
		return
	}
	c.mu.Lock()
	callback := c.callbacks[pkt.Nsp][*pkt.Id]
	if callback != nil {
		delete(c.callbacks[pkt.Nsp], *pkt.Id)
		if len(c.callbacks[pkt.Nsp]) == 0 {
			delete(c.callbacks, pkt.Nsp)
		}
	}
	c.mu.Unlock()

	if callback == nil {
		clientLog.Debug("unknown ack %d [%s]", *pkt.Id, pkt.Nsp)
		return
	}
	args, _ := pkt.Data.([]any)
	callback(args...)
}

// handleError reacts to an ERROR packet: the namespace leaves the
// active set, and a default-namespace error takes the whole client
// down.
func (c *Client) handleError(namespace string, data any) {
	if namespace == "" {
		namespace = "/"
	}
	clientLog.Debug("connection to namespace %s was rejected", namespace)

	var args []any
	switch v := data.(type) {
	case nil:
	case []any:
		args = v
	default:
		args = []any{v}
	}
	c.triggerConnectError(namespace, args)

	c.mu.Lock()
	if i := slices.Index(c.namespaces, namespace); i != -1 {
		c.namespaces = slices.Delete(c.namespaces, i, i+1)
	}
	if namespace == "/" {
		c.namespaces = nil
		c.connected = false
	}
	c.mu.Unlock()
}

// ---- reconnect supervisor ----

func (c *Client) startReconnect() {
	c.mu.Lock()
	if c.reconnectTask != nil {
		c.mu.Unlock()
		return
	}
	task := make(chan types.Void)
	c.reconnectTask = task
	c.mu.Unlock()

	go c.handleReconnect(task)
}

func (c *Client) handleReconnect(task chan types.Void) {
	defer close(task)

	c.backoff.Reset()
	attempts := 0
	for {
		delay := c.backoff.Duration()
		clientLog.Debug("connection failed, new attempt in %.2f seconds", delay.Seconds())
		if c.waitAbort(delay) {
			clientLog.Debug("reconnect task aborted")
			break
		}
		attempts++

		c.mu.RLock()
		url := c.connectionURL
		opts := c.connectionOpts
		opts.Namespaces = c.connectionNamespaces
		c.mu.RUnlock()

		if err := c.Connect(url, &opts); err == nil {
			clientLog.Debug("reconnection successful")
			break
		}

		if limit := c.config.ReconnectionAttempts; limit > 0 && attempts >= limit {
			clientLog.Debug("maximum reconnection attempts reached, giving up")
			break
		}
	}

	c.mu.Lock()
	c.reconnectTask = nil
	c.mu.Unlock()
}

func (c *Client) waitAbort(delay time.Duration) bool {
	c.mu.RLock()
	abort := c.reconnectAbort
	c.mu.RUnlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-abort:
		return true
	case <-timer.C:
		return false
	}
}

func (c *Client) abortReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.reconnectAbort:
	default:
		close(c.reconnectAbort)
	}
	c.reconnectAbort = make(chan types.Void)
}

// ---- handler triggering ----

func (c *Client) triggerConnect(namespace string) {
	handler, nsObject := c.lookupHandler(namespace, "connect")

	defer func() {
		if r := recover(); r != nil {
			clientLog.Error("connect handler for %s panicked: %v", namespace, r)
		}
	}()

	if h, ok := handler.(ConnectHandler); ok {
		h()
		return
	}
	if nsObject != nil && nsObject.connectHandler != nil {
		nsObject.connectHandler()
	}
}

func (c *Client) triggerDisconnect(namespace string) {
	handler, nsObject := c.lookupHandler(namespace, "disconnect")

	defer func() {
		if r := recover(); r != nil {
			clientLog.Error("disconnect handler for %s panicked: %v", namespace, r)
		}
	}()

	if h, ok := handler.(DisconnectHandler); ok {
		h()
		return
	}
	if nsObject != nil && nsObject.disconnectHandler != nil {
		nsObject.disconnectHandler()
	}
}

func (c *Client) triggerConnectError(namespace string, args []any) {
	handler, nsObject := c.lookupHandler(namespace, "connect_error")

	defer func() {
		if r := recover(); r != nil {
			clientLog.Error("connect_error handler for %s panicked: %v", namespace, r)
		}
	}()

	if h, ok := handler.(ConnectErrorHandler); ok {
		h(args...)
		return
	}
	if nsObject != nil && nsObject.connectErrorHandler != nil {
		nsObject.connectErrorHandler(args...)
	}
}

func (c *Client) triggerEvent(namespace, event string, args []any) (ret any) {
	handler, nsObject := c.lookupHandler(namespace, event)

	defer func() {
		if r := recover(); r != nil {
			// a misbehaving handler must not kill the state machine
			clientLog.Error("handler for %q on %s panicked: %v", event, namespace, r)
			ret = nil
		}
	}()

	if h, ok := handler.(EventHandler); ok {
		return h(args...)
	}
	if nsObject != nil {
		if h := nsObject.handlers[event]; h != nil {
			return h(args...)
		}
	}
	clientLog.Debug("no handler for event %q on %s", event, namespace)
	return nil
}

func (c *Client) lookupHandler(namespace, event string) (any, *Namespace) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var handler any
	if events, ok := c.handlers[namespace]; ok {
		handler = events[event]
	}
	return handler, c.namespaceHandlers[namespace]
}

func defaultNamespace(namespace []string) string {
	if len(namespace) > 0 && namespace[0] != "" {
		return namespace[0]
	}
	return "/"
}
