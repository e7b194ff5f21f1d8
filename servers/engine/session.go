package engine

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	eio "github.com/sockmesh/socketio/engine"
)

// session is one engine connection, from handshake to close. It
// starts on the polling transport unless the handshake itself arrived
// over websocket, and may upgrade once.
type session struct {
	id     string
	server *Server

	mu        sync.Mutex
	transport string
	ws        *websocket.Conn
	out       chan eio.Packet
	closed    bool
	done      chan struct{}

	// deadline guards liveness: armed at handshake, re-armed on every
	// heartbeat from the client.
	deadline *time.Timer

	storeMu sync.RWMutex
	store   map[string]any
}

func newSession(id string, server *Server, transport string) *session {
	s := &session{
		id:        id,
		server:    server,
		transport: transport,
		out:       make(chan eio.Packet, 64),
		done:      make(chan struct{}),
		store:     map[string]any{},
	}
	s.deadline = time.AfterFunc(server.opts.pingInterval()+server.opts.pingTimeout(), func() {
		sessionLog.Debug("session %s timed out", id)
		s.close(true)
	})
	return s
}

func (s *session) heartbeat() {
	s.deadline.Reset(s.server.opts.pingInterval() + s.server.opts.pingTimeout())
}

// enqueue schedules one packet for delivery. Dropped when the session
// is closed or the write buffer is full for too long.
func (s *session) enqueue(p eio.Packet) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.out <- p:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-time.After(s.server.opts.pingTimeout()):
		return ErrWriteTimeout
	}
}

// enqueueNoop releases any polling cycle still parked on the session
// so the upgrade can take over cleanly.
func (s *session) enqueueNoop() {
	select {
	case s.out <- eio.Packet{Type: eio.NOOP}:
	default:
	}
}

// upgrade switches the session onto an established websocket
// connection and starts its write pump.
func (s *session) upgrade(ws *websocket.Conn) {
	s.mu.Lock()
	s.transport = "websocket"
	s.ws = ws
	s.mu.Unlock()

	go s.writePump(ws)
}

func (s *session) writePump(ws *websocket.Conn) {
	for {
		select {
		case p := <-s.out:
			frame := eio.EncodePacket(p)
			messageType := websocket.TextMessage
			if frame.Binary {
				messageType = websocket.BinaryMessage
			}
			if err := ws.WriteMessage(messageType, frame.Data); err != nil {
				sessionLog.Debug("session %s write failed: %v", s.id, err)
				s.close(true)
				return
			}
		case <-s.done:
			ws.Close()
			return
		}
	}
}

// drain collects the packets queued for a polling cycle, blocking up
// to the ping interval for the first one.
func (s *session) drain() []eio.Packet {
	var packets []eio.Packet

	timer := time.NewTimer(s.server.opts.pingInterval())
	defer timer.Stop()
	select {
	case p := <-s.out:
		packets = append(packets, p)
	case <-s.done:
		return []eio.Packet{{Type: eio.CLOSE}}
	case <-timer.C:
		return []eio.Packet{{Type: eio.NOOP}}
	}

	for {
		select {
		case p := <-s.out:
			packets = append(packets, p)
		default:
			return packets
		}
	}
}

func (s *session) close(abort bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ws := s.ws
	s.mu.Unlock()

	s.deadline.Stop()
	if !abort && ws != nil {
		ws.WriteMessage(websocket.TextMessage, eio.EncodePacket(eio.Packet{Type: eio.CLOSE}).Data)
	}
	close(s.done)

	s.server.dropSession(s)
}
