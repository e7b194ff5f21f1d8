// Package engine provides the in-tree server-side transport engine:
// an Engine.IO v3 endpoint with long-polling and websocket transports
// that satisfies the engine.Server contract consumed by the Socket.IO
// server.
package engine

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	eio "github.com/sockmesh/socketio/engine"
	"github.com/sockmesh/socketio/pkg/log"
	"github.com/sockmesh/socketio/pkg/types"
)

var (
	serverLog  = log.NewLog("engine.io:server")
	sessionLog = log.NewLog("engine.io:session")
)

// Engine server errors.
var (
	ErrUnknownSession = errors.New("unknown session")
	ErrSessionClosed  = errors.New("session is closed")
	ErrWriteTimeout   = errors.New("write timed out")
)

// Server is an http.Handler speaking Engine.IO v3. It mints session
// ids, answers client heartbeats, and fires the registered callbacks
// into the Socket.IO layer.
type Server struct {
	opts *ServerOptions

	sessions types.Map[string, *session]
	upgrader websocket.Upgrader

	connectHandler    eio.ConnectHandler
	messageHandler    eio.MessageHandler
	disconnectHandler eio.DisconnectHandler
}

// NewServer creates an engine server.
func NewServer(opts *ServerOptions) *Server {
	if opts == nil {
		opts = &ServerOptions{}
	}
	return &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) OnConnect(handler eio.ConnectHandler) { s.connectHandler = handler }
func (s *Server) OnMessage(handler eio.MessageHandler) { s.messageHandler = handler }
func (s *Server) OnDisconnect(handler eio.DisconnectHandler) { s.disconnectHandler = handler }

// Send enqueues one frame on a session as a MESSAGE packet.
func (s *Server) Send(sid string, frame types.Frame) error {
	session, ok := s.sessions.Load(sid)
	if !ok {
		return ErrUnknownSession
	}
	return session.enqueue(eio.Packet{Type: eio.MESSAGE, Binary: frame.Binary, Data: frame.Data})
}

// Disconnect terminates a session.
func (s *Server) Disconnect(sid string, abort bool) error {
	session, ok := s.sessions.Load(sid)
	if !ok {
		return ErrUnknownSession
	}
	session.close(abort)
	return nil
}

// Transport reports the session's current transport name.
func (s *Server) Transport(sid string) string {
	if session, ok := s.sessions.Load(sid); ok {
		session.mu.Lock()
		defer session.mu.Unlock()
		return session.transport
	}
	return ""
}

// GetSession returns the session's key-value store.
func (s *Server) GetSession(sid string) (map[string]any, error) {
	session, ok := s.sessions.Load(sid)
	if !ok {
		return nil, ErrUnknownSession
	}
	session.storeMu.RLock()
	defer session.storeMu.RUnlock()
	return session.store, nil
}

// SaveSession replaces the session's key-value store.
func (s *Server) SaveSession(sid string, store map[string]any) error {
	session, ok := s.sessions.Load(sid)
	if !ok {
		return ErrUnknownSession
	}
	session.storeMu.Lock()
	defer session.storeMu.Unlock()
	session.store = store
	return nil
}

// ServeHTTP routes engine traffic: handshakes, polling cycles and
// websocket upgrades.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.opts.path() && r.URL.Path != s.opts.path()+"/" {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()
	sid := query.Get("sid")
	transport := query.Get("transport")

	switch {
	case transport == "websocket":
		s.serveWebsocket(w, r, sid)
	case transport == "polling" && sid == "":
		s.serveHandshake(w, r)
	case transport == "polling" && r.Method == http.MethodGet:
		s.servePollingGet(w, r, sid)
	case transport == "polling" && r.Method == http.MethodPost:
		s.servePollingPost(w, r, sid)
	default:
		http.Error(w, "bad request", http.StatusBadRequest)
	}
}

func (s *Server) serveHandshake(w http.ResponseWriter, r *http.Request) {
	sid := generateSid()
	session := newSession(sid, s, "polling")
	s.sessions.Store(sid, session)

	if err := s.fireConnect(sid, r); err != nil {
		s.sessions.Delete(sid)
		serverLog.Debug("connection %s refused: %v", sid, err)
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	handshake, _ := json.Marshal(eio.Handshake{
		Sid:          sid,
		Upgrades:     []string{"websocket"},
		PingInterval: s.opts.pingInterval().Milliseconds(),
		PingTimeout:  s.opts.pingTimeout().Milliseconds(),
	})
	serverLog.Debug("session %s opened", sid)
	s.writePayload(w, r, []eio.Packet{{Type: eio.OPEN, Data: handshake}})
}

func (s *Server) servePollingGet(w http.ResponseWriter, r *http.Request, sid string) {
	session, ok := s.sessions.Load(sid)
	if !ok {
		http.Error(w, "unknown session", http.StatusBadRequest)
		return
	}
	s.writePayload(w, r, session.drain())
}

func (s *Server) servePollingPost(w http.ResponseWriter, r *http.Request, sid string) {
	session, ok := s.sessions.Load(sid)
	if !ok {
		http.Error(w, "unknown session", http.StatusBadRequest)
		return
	}

	body, err := readBody(r)
	if err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	packets, err := eio.DecodePayload(body)
	if err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	for _, p := range packets {
		s.handlePacket(session, p)
	}
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.Write([]byte("ok"))
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request, sid string) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		serverLog.Debug("websocket upgrade failed: %v", err)
		return
	}

	var session *session
	if sid == "" {
		// websocket-first connection
		sid = generateSid()
		session = newSession(sid, s, "websocket")
		s.sessions.Store(sid, session)

		if err := s.fireConnect(sid, r); err != nil {
			s.sessions.Delete(sid)
			ws.Close()
			return
		}

		handshake, _ := json.Marshal(eio.Handshake{
			Sid:          sid,
			Upgrades:     []string{},
			PingInterval: s.opts.pingInterval().Milliseconds(),
			PingTimeout:  s.opts.pingTimeout().Milliseconds(),
		})
		if err := ws.WriteMessage(websocket.TextMessage, eio.EncodePacket(eio.Packet{Type: eio.OPEN, Data: handshake}).Data); err != nil {
			session.close(true)
			return
		}
		session.upgrade(ws)
	} else {
		// upgrade of an existing polling session
		existing, ok := s.sessions.Load(sid)
		if !ok {
			ws.Close()
			return
		}
		session = existing
	}

	s.readPump(session, ws)
}

// readPump processes inbound websocket traffic until the connection
// drops. For polling sessions it also runs the probe/upgrade dance.
func (s *Server) readPump(session *session, ws *websocket.Conn) {
	defer session.close(true)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		frame := types.Frame{Binary: messageType == websocket.BinaryMessage, Data: data}
		p, err := eio.DecodePacket(frame)
		if err != nil {
			sessionLog.Debug("session %s sent a bad packet: %v", session.id, err)
			continue
		}

		switch p.Type {
		case eio.PING:
			session.heartbeat()
			reply := eio.EncodePacket(eio.Packet{Type: eio.PONG, Data: p.Data})
			if err := ws.WriteMessage(websocket.TextMessage, reply.Data); err != nil {
				return
			}
		case eio.UPGRADE:
			session.enqueueNoop()
			session.upgrade(ws)
			sessionLog.Debug("session %s upgraded to websocket", session.id)
		case eio.MESSAGE:
			s.handlePacket(session, p)
		case eio.CLOSE:
			session.close(false)
			return
		}
	}
}

func (s *Server) handlePacket(session *session, p eio.Packet) {
	switch p.Type {
	case eio.PING:
		session.heartbeat()
		session.enqueue(eio.Packet{Type: eio.PONG, Data: p.Data})
	case eio.MESSAGE:
		if s.messageHandler != nil {
			s.messageHandler(session.id, types.Frame{Binary: p.Binary, Data: p.Data})
		}
	case eio.CLOSE:
		session.close(false)
	}
}

func (s *Server) fireConnect(sid string, r *http.Request) error {
	if s.connectHandler == nil {
		return nil
	}
	environ := map[string]any{
		"REQUEST_METHOD": r.Method,
		"PATH_INFO":      r.URL.Path,
		"QUERY_STRING":   r.URL.RawQuery,
		"REMOTE_ADDR":    r.RemoteAddr,
		"headers":        r.Header,
	}
	return s.connectHandler(sid, environ)
}

func (s *Server) dropSession(session *session) {
	if _, ok := s.sessions.LoadAndDelete(session.id); !ok {
		return
	}
	serverLog.Debug("session %s closed", session.id)
	if s.disconnectHandler != nil {
		s.disconnectHandler(session.id)
	}
}

func generateSid() string {
	b := make([]byte, 15)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
