// Package engine provides the in-tree client-side transport engine:
// an Engine.IO v3 client with polling handshake and websocket upgrade
// that satisfies the engine.Client contract consumed by the Socket.IO
// client.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	eio "github.com/sockmesh/socketio/engine"
	"github.com/sockmesh/socketio/pkg/log"
	"github.com/sockmesh/socketio/pkg/types"
)

var clientLog = log.NewLog("engine.io:client")

// Engine client errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrBadHandshake     = errors.New("handshake failed")
)

// Client dials an Engine.IO v3 server. The handshake runs over HTTP
// long-polling unless the caller restricts transports to websocket;
// when the server offers the upgrade and websocket is allowed, the
// connection is upgraded after the probe exchange.
type Client struct {
	mu        sync.Mutex
	connected bool
	sid       string
	transport string

	ws      *websocket.Conn
	writeMu sync.Mutex

	http    *pollingClient
	baseURL string // polling endpoint with query, minus the sid
	headers map[string]string

	pingInterval time.Duration
	pingTimeout  time.Duration
	lastPong     time.Time

	done chan types.Void

	onConnect    func()
	onMessage    func(types.Frame)
	onDisconnect func()
}

// NewClient creates an engine client.
func NewClient() *Client {
	return &Client{http: newPollingClient()}
}

func (c *Client) OnConnect(handler func())            { c.onConnect = handler }
func (c *Client) OnMessage(handler func(types.Frame)) { c.onMessage = handler }
func (c *Client) OnDisconnect(handler func())         { c.onDisconnect = handler }

// Sid returns the session id assigned by the server.
func (c *Client) Sid() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sid
}

// Transport reports the current transport name.
func (c *Client) Transport() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport
}

// Connect performs the handshake and starts the transport goroutines.
func (c *Client) Connect(rawURL string, opts *eio.ConnectOptions) error {
	if opts == nil {
		opts = &eio.ConnectOptions{}
	}

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	transports := opts.Transports
	if len(transports) == 0 {
		transports = []string{"polling", "websocket"}
	}
	path := opts.Path
	if path == "" {
		path = "/engine.io"
	}

	httpURL, wsURL, err := endpointURLs(rawURL, path)
	if err != nil {
		return err
	}

	websocketAllowed := false
	pollingAllowed := false
	for _, t := range transports {
		switch t {
		case "websocket":
			websocketAllowed = true
		case "polling":
			pollingAllowed = true
		}
	}

	if !pollingAllowed {
		return c.connectWebsocket(wsURL, opts.Headers)
	}

	handshake, err := c.pollingHandshake(httpURL, opts.Headers)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.sid = handshake.Sid
	c.transport = "polling"
	c.baseURL = httpURL
	c.headers = opts.Headers
	c.pingInterval = time.Duration(handshake.PingInterval) * time.Millisecond
	c.pingTimeout = time.Duration(handshake.PingTimeout) * time.Millisecond
	c.lastPong = time.Now()
	c.done = make(chan types.Void)
	c.mu.Unlock()

	upgraded := false
	if websocketAllowed {
		for _, u := range handshake.Upgrades {
			if u == "websocket" {
				upgraded = c.upgradeWebsocket(wsURL, handshake.Sid, opts.Headers)
				break
			}
		}
	}

	if upgraded {
		go c.websocketReadLoop(c.ws)
	} else {
		go c.pollingReadLoop(handshake.Sid)
	}
	go c.heartbeatLoop()

	if c.onConnect != nil {
		c.onConnect()
	}
	return nil
}

// connectWebsocket opens a websocket-only session.
func (c *Client) connectWebsocket(wsURL string, headers map[string]string) error {
	ws, err := dialWebsocket(wsURL, headers)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}

	// first packet must be OPEN with the handshake body
	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	p, err := eio.DecodePacket(types.Frame{Data: data})
	if err != nil || p.Type != eio.OPEN {
		ws.Close()
		return ErrBadHandshake
	}
	var handshake eio.Handshake
	if err := json.Unmarshal(p.Data, &handshake); err != nil {
		ws.Close()
		return fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}

	c.mu.Lock()
	c.connected = true
	c.sid = handshake.Sid
	c.transport = "websocket"
	c.ws = ws
	c.pingInterval = time.Duration(handshake.PingInterval) * time.Millisecond
	c.pingTimeout = time.Duration(handshake.PingTimeout) * time.Millisecond
	c.lastPong = time.Now()
	c.done = make(chan types.Void)
	c.mu.Unlock()

	go c.websocketReadLoop(ws)
	go c.heartbeatLoop()

	if c.onConnect != nil {
		c.onConnect()
	}
	return nil
}

// upgradeWebsocket runs the probe dance on a fresh websocket and
// switches the transport over when it succeeds.
func (c *Client) upgradeWebsocket(wsURL, sid string, headers map[string]string) bool {
	ws, err := dialWebsocket(wsURL+"&sid="+url.QueryEscape(sid), headers)
	if err != nil {
		clientLog.Debug("websocket upgrade failed: %v", err)
		return false
	}

	probe := eio.EncodePacket(eio.Packet{Type: eio.PING, Data: []byte("probe")})
	if err := ws.WriteMessage(websocket.TextMessage, probe.Data); err != nil {
		ws.Close()
		return false
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return false
	}
	reply, err := eio.DecodePacket(types.Frame{Data: data})
	if err != nil || reply.Type != eio.PONG || string(reply.Data) != "probe" {
		ws.Close()
		return false
	}
	upgrade := eio.EncodePacket(eio.Packet{Type: eio.UPGRADE})
	if err := ws.WriteMessage(websocket.TextMessage, upgrade.Data); err != nil {
		ws.Close()
		return false
	}

	c.mu.Lock()
	c.ws = ws
	c.transport = "websocket"
	c.mu.Unlock()
	clientLog.Debug("upgraded to websocket")
	return true
}

// Send enqueues one frame as a MESSAGE packet on the current
// transport.
func (c *Client) Send(frame types.Frame) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ws := c.ws
	sid := c.sid
	c.mu.Unlock()

	p := eio.Packet{Type: eio.MESSAGE, Binary: frame.Binary, Data: frame.Data}
	if ws != nil {
		return c.writeWebsocket(ws, p)
	}
	return c.pollingSend(sid, []eio.Packet{p})
}

func (c *Client) writeWebsocket(ws *websocket.Conn, p eio.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	frame := eio.EncodePacket(p)
	messageType := websocket.TextMessage
	if frame.Binary {
		messageType = websocket.BinaryMessage
	}
	return ws.WriteMessage(messageType, frame.Data)
}

// Disconnect closes the session.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	ws := c.ws
	sid := c.sid
	c.mu.Unlock()

	if ws != nil {
		c.writeWebsocket(ws, eio.Packet{Type: eio.CLOSE})
	} else {
		c.pollingSend(sid, []eio.Packet{{Type: eio.CLOSE}})
	}
	c.teardown()
	return nil
}

// teardown closes the transport once and fires the disconnect
// callback.
func (c *Client) teardown() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	ws := c.ws
	c.ws = nil
	c.sid = ""
	c.transport = ""
	done := c.done
	c.mu.Unlock()

	if done != nil {
		close(done)
	}
	if ws != nil {
		ws.Close()
	}
	if c.onDisconnect != nil {
		c.onDisconnect()
	}
}

func (c *Client) websocketReadLoop(ws *websocket.Conn) {
	defer c.teardown()

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		p, err := eio.DecodePacket(types.Frame{Binary: messageType == websocket.BinaryMessage, Data: data})
		if err != nil {
			clientLog.Debug("bad packet: %v", err)
			continue
		}
		if !c.handlePacket(p) {
			return
		}
	}
}

// handlePacket reacts to one inbound packet; false means the session
// is over.
func (c *Client) handlePacket(p eio.Packet) bool {
	switch p.Type {
	case eio.PONG:
		c.mu.Lock()
		c.lastPong = time.Now()
		c.mu.Unlock()
	case eio.MESSAGE:
		if c.onMessage != nil {
			c.onMessage(types.Frame{Binary: p.Binary, Data: p.Data})
		}
	case eio.CLOSE:
		return false
	}
	return true
}

func (c *Client) heartbeatLoop() {
	c.mu.Lock()
	interval := c.pingInterval
	timeout := c.pingTimeout
	done := c.done
	c.mu.Unlock()
	if interval <= 0 {
		interval = 25 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			overdue := timeout > 0 && time.Since(c.lastPong) > interval+timeout
			ws := c.ws
			sid := c.sid
			connected := c.connected
			c.mu.Unlock()
			if !connected {
				return
			}
			if overdue {
				clientLog.Debug("heartbeat timed out")
				c.teardown()
				return
			}
			ping := eio.Packet{Type: eio.PING}
			if ws != nil {
				c.writeWebsocket(ws, ping)
			} else {
				c.pollingSend(sid, []eio.Packet{ping})
			}
		}
	}
}

// endpointURLs derives the polling and websocket endpoints from the
// caller's URL, which may use an http, https, ws or wss scheme.
func endpointURLs(rawURL, path string) (httpURL, wsURL string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	httpScheme, wsScheme := "http", "ws"
	switch u.Scheme {
	case "https", "wss":
		httpScheme, wsScheme = "https", "wss"
	case "http", "ws":
	default:
		return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	base := u.Host + strings.TrimSuffix(path, "/") + "/?EIO=3"
	return httpScheme + "://" + base + "&transport=polling", wsScheme + "://" + base + "&transport=websocket", nil
}

func dialWebsocket(wsURL string, headers map[string]string) (*websocket.Conn, error) {
	header := make(map[string][]string, len(headers))
	for k, v := range headers {
		header[k] = []string{v}
	}
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	return ws, err
}
