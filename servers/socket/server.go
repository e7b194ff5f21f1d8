package socket

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sockmesh/socketio/engine"
	"github.com/sockmesh/socketio/parser"
	"github.com/sockmesh/socketio/pkg/log"
	"github.com/sockmesh/socketio/pkg/types"
)

var serverLog = log.NewLog("socket.io:server")

// DefaultCallTimeout bounds Call when no timeout is given.
const DefaultCallTimeout = 60 * time.Second

type (
	// ConnectHandler decides whether to accept a session on a
	// namespace. Returning nil accepts; a *ConnectionRefusedError
	// rejects with its payload in the ERROR packet; any other error
	// rejects with no payload.
	ConnectHandler func(sid string, environ map[string]any) error

	// DisconnectHandler observes a session leaving a namespace.
	DisconnectHandler func(sid string)

	// EventHandler receives an event. The return value is serialized
	// into the acknowledgement when the sender asked for one: nil
	// becomes an empty argument list, an Args value is splatted into
	// multiple arguments, anything else rides as a single argument.
	EventHandler func(sid string, args ...any) any

	// Args holds multiple acknowledgement values.
	Args []any
)

// EmitOptions scopes an emit. The zero value broadcasts on the
// default namespace.
type EmitOptions struct {
	Namespace string
	Room      string
	SkipSid   []string
	Callback  AckCallback
}

// CallOptions configures a synchronous Call.
type CallOptions struct {
	Namespace string
	Timeout   time.Duration
}

// sessionDecoder pairs a per-session packet decoder with the outcome
// of the dispatch its "decoded" event triggered.
type sessionDecoder struct {
	decoder parser.Decoder
	err     error
}

// Server drives Socket.IO sessions over a transport engine: it binds
// the engine's connect/message/disconnect callbacks to the protocol
// state machine, owns the handler registry keyed by (namespace,
// event), and scopes emissions through its Manager.
type Server struct {
	eio     engine.Server
	manager Manager

	mu                sync.RWMutex
	handlers          map[string]map[string]any
	namespaceHandlers map[string]*Namespace

	environ  types.Map[string, map[string]any]
	decoders types.Map[string, *sessionDecoder]

	codec   parser.Parser
	encoder parser.Encoder

	asyncHandlers      bool
	alwaysConnect      bool
	binary             bool
	managerInitialized atomic.Bool
}

// NewServer creates a Server bound to the given transport engine.
func NewServer(eio engine.Server, opts *ServerOptions) *Server {
	if opts == nil {
		opts = &ServerOptions{}
	}

	s := &Server{
		eio:               eio,
		handlers:          map[string]map[string]any{},
		namespaceHandlers: map[string]*Namespace{},
		asyncHandlers:     opts.AsyncHandlers,
		alwaysConnect:     opts.AlwaysConnect,
		binary:            opts.binary(),
	}

	s.manager = opts.Manager
	if s.manager == nil {
		s.manager = NewMemoryManager()
	}
	s.manager.SetHost(s)

	s.codec = parser.NewParser(opts.JSON)
	s.encoder = s.codec.NewEncoder()

	eio.OnConnect(s.handleEioConnect)
	eio.OnMessage(func(sid string, frame types.Frame) {
		if err := s.handleEioMessage(sid, frame); err != nil {
			serverLog.Error("message from %s dropped: %v", sid, err)
		}
	})
	eio.OnDisconnect(s.handleEioDisconnect)

	return s
}

// Manager exposes the membership table, mostly for tests and
// bus-backed deployments.
func (s *Server) Manager() Manager {
	return s.manager
}

// Close detaches the server from its manager so both can be released.
func (s *Server) Close() {
	s.manager.Close()
}

// On registers a handler for an event on a namespace (default "/").
// The reserved events "connect" and "disconnect" take a
// ConnectHandler and a DisconnectHandler; every other event takes an
// EventHandler.
func (s *Server) On(event string, handler any, namespace ...string) error {
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
	default:
		if _, ok := handler.(EventHandler); !ok {
			return fmt.Errorf("%w: %q wants an EventHandler", ErrInvalidHandler, event)
		}
	}

	nsp := defaultNamespace(namespace)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handlers[nsp] == nil {
		s.handlers[nsp] = map[string]any{}
	}
	s.handlers[nsp][event] = handler
	return nil
}

// RegisterNamespace attaches a namespace handler object. Its handler
// table is consulted after the flat registry.
func (s *Server) RegisterNamespace(n *Namespace) error {
	if n == nil || !n.valid() {
		return fmt.Errorf("%w: namespace must start with /", ErrInvalidHandler)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.namespaceHandlers[n.namespace]; exists {
		return ErrNamespaceRegistered
	}
	n.attach(s)
	s.namespaceHandlers[n.namespace] = n
	return nil
}

// Emit sends an event to every session in the target room of the
// target namespace, except those in SkipSid. A Callback may be given
// only when the room resolves to a single session.
func (s *Server) Emit(event string, data any, opts *EmitOptions) error {
	if opts == nil {
		opts = &EmitOptions{}
	}
	if !s.binary && parser.HasBinary(data) {
		return ErrBinaryNotSupported
	}
	nsp := opts.Namespace
	if nsp == "" {
		nsp = "/"
	}
	serverLog.Debug("emitting event %q to %s [%s]", event, opts.Room, nsp)
	return s.manager.Emit(event, data, nsp, opts.Room, opts.SkipSid, opts.Callback)
}

// Send emits the reserved "message" event.
func (s *Server) Send(data any, opts *EmitOptions) error {
	return s.Emit("message", data, opts)
}

// Call emits an event to one session and waits for its
// acknowledgement, returning the reply arguments. Expiration releases
// the caller only; the remote work is not cancelled.
func (s *Server) Call(event string, data any, sid string, opts *CallOptions) ([]any, error) {
	if sid == "" {
		return nil, ErrBroadcastCall
	}
	if !s.asyncHandlers {
		return nil, ErrAsyncHandlersRequired
	}
	if opts == nil {
		opts = &CallOptions{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	reply := make(chan []any, 1)
	err := s.Emit(event, data, &EmitOptions{
		Namespace: opts.Namespace,
		Room:      sid,
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

// EnterRoom adds a session to a room.
func (s *Server) EnterRoom(sid, room string, namespace ...string) error {
	return s.manager.EnterRoom(sid, defaultNamespace(namespace), room)
}

// LeaveRoom removes a session from a room.
func (s *Server) LeaveRoom(sid, room string, namespace ...string) {
	s.manager.LeaveRoom(sid, defaultNamespace(namespace), room)
}

// CloseRoom removes a room and all its members.
func (s *Server) CloseRoom(room string, namespace ...string) {
	s.manager.CloseRoom(room, defaultNamespace(namespace))
}

// Rooms returns the rooms a session is in.
func (s *Server) Rooms(sid string, namespace ...string) []string {
	return s.manager.GetRooms(sid, defaultNamespace(namespace))
}

// Transport reports the session's underlying transport name.
func (s *Server) Transport(sid string) string {
	return s.eio.Transport(sid)
}

// GetSession returns the session dictionary of (sid, namespace),
// creating it on first access. Mutations must be stored back with
// SaveSession.
func (s *Server) GetSession(sid string, namespace ...string) (map[string]any, error) {
	nsp := defaultNamespace(namespace)
	eioSession, err := s.eio.GetSession(sid)
	if err != nil {
		return nil, err
	}
	if session, ok := eioSession[nsp].(map[string]any); ok {
		return session, nil
	}
	return map[string]any{}, nil
}

// SaveSession stores the session dictionary of (sid, namespace).
func (s *Server) SaveSession(sid string, session map[string]any, namespace ...string) error {
	nsp := defaultNamespace(namespace)
	eioSession, err := s.eio.GetSession(sid)
	if err != nil {
		return err
	}
	if eioSession == nil {
		eioSession = map[string]any{}
	}
	eioSession[nsp] = session
	return s.eio.SaveSession(sid, eioSession)
}

// Disconnect drops a session from a namespace. Dropping it from the
// default namespace also closes the underlying transport, with no
// graceful drain guarantee.
func (s *Server) Disconnect(sid string, namespace ...string) error {
	nsp := defaultNamespace(namespace)
	if !s.manager.IsConnected(sid, nsp) {
		return nil
	}
	s.manager.PreDisconnect(sid, nsp)
	if err := s.sendPacket(sid, &parser.Packet{Type: parser.DISCONNECT, Nsp: nsp}); err != nil {
		serverLog.Debug("disconnect packet to %s failed: %v", sid, err)
	}
	s.triggerDisconnect(sid, nsp)
	s.manager.Disconnect(sid, nsp)
	if nsp == "/" {
		return s.eio.Disconnect(sid, true)
	}
	return nil
}

// EmitInternal serializes one event for one session and hands the
// frames to the engine. It is the fanout hook the manager invokes per
// target; data follows the acknowledgement shaping rules (Args splats,
// anything else is a single argument).
func (s *Server) EmitInternal(sid, event string, data any, namespace string, id *uint64) error {
	payload := []any{event}
	switch v := data.(type) {
	case nil:
	case Args:
		payload = append(payload, v...)
	default:
		payload = append(payload, data)
	}
	return s.sendPacket(sid, &parser.Packet{Type: parser.EVENT, Nsp: namespace, Id: id, Data: payload})
}

func (s *Server) sendPacket(sid string, pkt *parser.Packet) error {
	frames, err := s.encoder.Encode(pkt)
	if err != nil {
		return err
	}
	for _, frame := range frames {
		if err := s.eio.Send(sid, frame); err != nil {
			return err
		}
	}
	return nil
}

// ---- engine callbacks ----

func (s *Server) handleEioConnect(sid string, environ map[string]any) error {
	serverLog.Debug("connection %s accepted by engine", sid)
	if s.managerInitialized.CompareAndSwap(false, true) {
		s.manager.Initialize()
	}
	s.environ.Store(sid, environ)
	s.decoderFor(sid)
	return s.handleConnect(sid, "/")
}

func (s *Server) handleEioMessage(sid string, frame types.Frame) error {
	sd, ok := s.decoders.Load(sid)
	if !ok {
		return fmt.Errorf("message for unknown session %s", sid)
	}
	sd.err = nil
	if err := sd.decoder.Add(frame); err != nil {
		return err
	}
	return sd.err
}

func (s *Server) handleEioDisconnect(sid string) {
	serverLog.Debug("connection %s closed by engine", sid)
	for _, nsp := range s.manager.GetNamespaces() {
		if nsp != "/" && s.manager.IsConnected(sid, nsp) {
			s.triggerDisconnect(sid, nsp)
			s.manager.Disconnect(sid, nsp)
		}
	}
	if s.manager.IsConnected(sid, "/") {
		s.triggerDisconnect(sid, "/")
		s.manager.Disconnect(sid, "/")
	}
	s.environ.Delete(sid)
	if sd, ok := s.decoders.LoadAndDelete(sid); ok {
		sd.decoder.Destroy()
	}
}

func (s *Server) decoderFor(sid string) *sessionDecoder {
	if sd, ok := s.decoders.Load(sid); ok {
		return sd
	}
	sd := &sessionDecoder{decoder: s.codec.NewDecoder()}
	sd.decoder.On("decoded", func(args ...any) {
		if pkt, ok := args[0].(*parser.Packet); ok {
			sd.err = s.dispatchPacket(sid, pkt)
		}
	})
	s.decoders.Store(sid, sd)
	return sd
}

// ---- packet dispatch ----

func (s *Server) dispatchPacket(sid string, pkt *parser.Packet) error {
	switch pkt.Type {
	case parser.CONNECT:
		return s.handleConnect(sid, pkt.Nsp)
	case parser.DISCONNECT:
		s.handleDisconnect(sid, pkt.Nsp)
		return nil
	case parser.EVENT, parser.BINARY_EVENT:
		s.handleEvent(sid, pkt)
		return nil
	case parser.ACK, parser.BINARY_ACK:
		s.handleAck(sid, pkt)
		return nil
	case parser.ERROR:
		return fmt.Errorf("unexpected ERROR packet from %s on %s: %v", sid, pkt.Nsp, pkt.Data)
	default:
		return fmt.Errorf("unknown packet type %d from %s", pkt.Type, sid)
	}
}

// handleConnect runs the connect protocol for one namespace. The
// returned error is non-nil only for a rejected default-namespace
// connect, where it carries the refusal reason back to the transport —
// except with alwaysConnect, where the session was already announced
// and the rejection travels as a DISCONNECT packet instead.
func (s *Server) handleConnect(sid, namespace string) error {
	if namespace == "" {
		namespace = "/"
	}
	s.manager.Connect(sid, namespace)
	if s.alwaysConnect {
		s.sendPacket(sid, &parser.Packet{Type: parser.CONNECT, Nsp: namespace})
	}

	err := s.triggerConnect(sid, namespace)
	if err == nil {
		serverLog.Debug("%s connected to %s", sid, namespace)
		if !s.alwaysConnect {
			s.sendPacket(sid, &parser.Packet{Type: parser.CONNECT, Nsp: namespace})
		}
		return nil
	}

	serverLog.Debug("%s rejected on %s: %v", sid, namespace, err)
	var refused *ConnectionRefusedError
	payloadKnown := errors.As(err, &refused)

	if s.alwaysConnect {
		s.manager.PreDisconnect(sid, namespace)
		s.sendPacket(sid, &parser.Packet{Type: parser.DISCONNECT, Nsp: namespace})
	} else if payloadKnown {
		s.sendErrorPacket(sid, namespace, refused.ErrorPayload())
	} else if namespace != "/" {
		s.sendErrorPacket(sid, namespace, nil)
	}
	s.manager.Disconnect(sid, namespace)

	if namespace == "/" {
		s.environ.Delete(sid)
		if s.alwaysConnect {
			// the transport must stay up long enough to deliver the
			// CONNECT/DISCONNECT pair; refusing the raw connection here
			// would discard both before the handshake reaches the client
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) sendErrorPacket(sid, namespace string, payload any) {
	s.sendPacket(sid, &parser.Packet{Type: parser.ERROR, Nsp: namespace, Data: payload})
}

func (s *Server) handleDisconnect(sid, namespace string) {
	if namespace == "" {
		namespace = "/"
	}
	namespaces := []string{namespace}
	if namespace == "/" {
		namespaces = s.manager.GetNamespaces()
	}
	for _, nsp := range namespaces {
		if nsp != "/" && s.manager.IsConnected(sid, nsp) {
			s.triggerDisconnect(sid, nsp)
			s.manager.Disconnect(sid, nsp)
		}
	}
	if namespace == "/" && s.manager.IsConnected(sid, "/") {
		s.triggerDisconnect(sid, "/")
		s.manager.Disconnect(sid, "/")
	}
}

func (s *Server) handleEvent(sid string, pkt *parser.Packet) {
	nsp := pkt.Nsp
	if !s.manager.IsConnected(sid, nsp) {
		serverLog.Debug("event from %s for disconnected namespace %s", sid, nsp)
		return
	}
	data, ok := pkt.Data.([]any)
	if !ok || len(data) == 0 {
		return
	}
	event, ok := data[0].(string)
	if !ok {
		return
	}
	serverLog.Debug("received event %q from %s [%s]", event, sid, nsp)
	if s.asyncHandlers {
		go s.handleEventInternal(sid, nsp, event, data[1:], pkt.Id)
	} else {
		s.handleEventInternal(sid, nsp, event, data[1:], pkt.Id)
	}
}

func (s *Server) handleEventInternal(sid, nsp, event string, args []any, id *uint64) {
	ret := s.triggerEvent(sid, nsp, event, args)
	if id == nil {
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
	s.sendPacket(sid, &parser.Packet{Type: parser.ACK, Nsp: nsp, Id: id, Data: ackData})
}

func (s *Server) handleAck(sid string, pkt *parser.Packet) {
	if pkt.Id == nil {
		return
	}
	args, _ := pkt.Data.([]any)
	serverLog.Debug("received ack %d from %s [%s]", *pkt.Id, sid, pkt.Nsp)
	s.manager.TriggerCallback(sid, pkt.Nsp, *pkt.Id, args)
}

// ---- handler triggering ----

func (s *Server) triggerConnect(sid, namespace string) (err error) {
	handler, nsObject := s.lookupHandler(namespace, "connect")
	environ, _ := s.environ.Load(sid)

	defer func() {
		if r := recover(); r != nil {
			serverLog.Error("connect handler for %s panicked: %v", namespace, r)
			err = fmt.Errorf("connect handler panic: %v", r)
		}
	}()

	if h, ok := handler.(ConnectHandler); ok {
		return h(sid, environ)
	}
	if nsObject != nil && nsObject.connectHandler != nil {
		return nsObject.connectHandler(sid, environ)
	}
	return nil
}

func (s *Server) triggerDisconnect(sid, namespace string) {
	handler, nsObject := s.lookupHandler(namespace, "disconnect")

	defer func() {
		if r := recover(); r != nil {
			serverLog.Error("disconnect handler for %s panicked: %v", namespace, r)
		}
	}()

	if h, ok := handler.(DisconnectHandler); ok {
		h(sid)
		return
	}
	if nsObject != nil && nsObject.disconnectHandler != nil {
		nsObject.disconnectHandler(sid)
	}
}

func (s *Server) triggerEvent(sid, namespace, event string, args []any) (ret any) {
	handler, nsObject := s.lookupHandler(namespace, event)

	defer func() {
		if r := recover(); r != nil {
			// a misbehaving handler must not kill the state machine
			serverLog.Error("handler for %q on %s panicked: %v", event, namespace, r)
			ret = nil
		}
	}()

	if h, ok := handler.(EventHandler); ok {
		return h(sid, args...)
	}
	if nsObject != nil {
		if h := nsObject.handlers[event]; h != nil {
			return h(sid, args...)
		}
	}
	serverLog.Debug("no handler for event %q on %s", event, namespace)
	return nil
}

func (s *Server) lookupHandler(namespace, event string) (any, *Namespace) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var handler any
	if events, ok := s.handlers[namespace]; ok {
		handler = events[event]
	}
	return handler, s.namespaceHandlers[namespace]
}

func defaultNamespace(namespace []string) string {
	if len(namespace) > 0 && namespace[0] != "" {
		return namespace[0]
	}
	return "/"
}
