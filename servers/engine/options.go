package engine

import "time"

// ServerOptions configures the engine server. The zero value gives
// the defaults noted on each field.
type ServerOptions struct {
	// PingInterval is the heartbeat interval advertised to clients.
	// Default 25s.
	PingInterval time.Duration

	// PingTimeout is the grace period after a missed heartbeat before
	// the session is dropped. Default 60s.
	PingTimeout time.Duration

	// Path is the HTTP endpoint path. Default "/engine.io".
	Path string

	// Compression enables response compression on the polling
	// transport when the client advertises support. Default true.
	Compression *bool

	// CompressionThreshold is the minimum payload size that gets
	// compressed. Default 1024 bytes.
	CompressionThreshold int
}

func (o *ServerOptions) pingInterval() time.Duration {
	if o == nil || o.PingInterval <= 0 {
		return 25 * time.Second
	}
	return o.PingInterval
}

func (o *ServerOptions) pingTimeout() time.Duration {
	if o == nil || o.PingTimeout <= 0 {
		return 60 * time.Second
	}
	return o.PingTimeout
}

func (o *ServerOptions) path() string {
	if o == nil || o.Path == "" {
		return "/engine.io"
	}
	return o.Path
}

func (o *ServerOptions) compression() bool {
	if o == nil || o.Compression == nil {
		return true
	}
	return *o.Compression
}

func (o *ServerOptions) compressionThreshold() int {
	if o == nil || o.CompressionThreshold <= 0 {
		return 1024
	}
	return o.CompressionThreshold
}
