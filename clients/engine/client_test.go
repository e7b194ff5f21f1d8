package engine

import (
	"net/http/httptest"
	"testing"
	"time"

	eio "github.com/sockmesh/socketio/engine"
	"github.com/sockmesh/socketio/pkg/types"
	srv "github.com/sockmesh/socketio/servers/engine"
)

func newTestEndpoint(t *testing.T) (*srv.Server, *httptest.Server) {
	t.Helper()
	s := srv.NewServer(&srv.ServerOptions{
		PingInterval: 100 * time.Millisecond,
		PingTimeout:  time.Second,
	})
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts
}

func TestClientPollingConnect(t *testing.T) {
	s, ts := newTestEndpoint(t)
	var serverSid string
	s.OnConnect(func(sid string, environ map[string]any) error {
		serverSid = sid
		return nil
	})

	c := NewClient()
	connected := make(chan struct{})
	c.OnConnect(func() { close(connected) })

	err := c.Connect(ts.URL, &eio.ConnectOptions{Transports: []string{"polling"}})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatalf("Connect callback never fired")
	}
	if c.Sid() == "" || c.Sid() != serverSid {
		t.Errorf("Client sid %q does not match server sid %q", c.Sid(), serverSid)
	}
	if c.Transport() != "polling" {
		t.Errorf("Expected polling transport, got %q", c.Transport())
	}
}

func TestClientPollingMessageRoundTrip(t *testing.T) {
	s, ts := newTestEndpoint(t)
	inbound := make(chan string, 1)
	s.OnMessage(func(sid string, frame types.Frame) {
		inbound <- string(frame.Data)
		s.Send(sid, types.TextFrame("pong:"+string(frame.Data)))
	})

	c := NewClient()
	received := make(chan string, 4)
	c.OnMessage(func(frame types.Frame) { received <- string(frame.Data) })

	err := c.Connect(ts.URL, &eio.ConnectOptions{Transports: []string{"polling"}})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	if err := c.Send(types.TextFrame("hello")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case got := <-inbound:
		if got != "hello" {
			t.Errorf("Server received %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Server never received the message")
	}
	select {
	case got := <-received:
		if got != "pong:hello" {
			t.Errorf("Client received %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Client never received the reply")
	}
}

func TestClientDisconnectFiresCallbacks(t *testing.T) {
	s, ts := newTestEndpoint(t)
	serverGone := make(chan string, 1)
	s.OnDisconnect(func(sid string) { serverGone <- sid })

	c := NewClient()
	clientGone := make(chan struct{})
	c.OnDisconnect(func() { close(clientGone) })

	if err := c.Connect(ts.URL, &eio.ConnectOptions{Transports: []string{"polling"}}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	sid := c.Sid()

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	select {
	case <-clientGone:
	case <-time.After(2 * time.Second):
		t.Fatalf("Client disconnect callback never fired")
	}
	select {
	case got := <-serverGone:
		if got != sid {
			t.Errorf("Server saw %q go away, expected %q", got, sid)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Server disconnect callback never fired")
	}
}

func TestEndpointURLs(t *testing.T) {
	httpURL, wsURL, err := endpointURLs("https://example.test", "/engine.io")
	if err != nil {
		t.Fatalf("endpointURLs failed: %v", err)
	}
	if httpURL != "https://example.test/engine.io/?EIO=3&transport=polling" {
		t.Errorf("Unexpected polling URL %q", httpURL)
	}
	if wsURL != "wss://example.test/engine.io/?EIO=3&transport=websocket" {
		t.Errorf("Unexpected websocket URL %q", wsURL)
	}
	if _, _, err := endpointURLs("ftp://example.test", "/engine.io"); err == nil {
		t.Errorf("Expected an error for an unsupported scheme")
	}
}
