package socket

import "github.com/sockmesh/socketio/parser/serializer"

// Config configures a Client. The zero value gives the defaults noted
// on each field.
type Config struct {
	// Reconnection enables the reconnect supervisor after an
	// unexpected disconnect. Default true.
	Reconnection *bool

	// ReconnectionAttempts bounds the reconnect attempts; 0 retries
	// forever.
	ReconnectionAttempts int

	// ReconnectionDelay is the initial reconnect delay in seconds.
	// Default 1. The delay doubles on every attempt.
	ReconnectionDelay float64

	// ReconnectionDelayMax caps the reconnect delay in seconds.
	// Default 5.
	ReconnectionDelayMax float64

	// RandomizationFactor shifts each delay by up to ± its value in
	// seconds. Default 0.5.
	RandomizationFactor *float64

	// Binary controls whether emitted data may carry binary leaves.
	// Default true.
	Binary *bool

	// JSON overrides the payload serializer of the packet codec.
	JSON serializer.JSONSerializer

	// Random overrides the randomness source of the reconnect
	// backoff. Must return values in [0, 1].
	Random func() float64
}

func (c *Config) reconnection() bool {
	if c == nil || c.Reconnection == nil {
		return true
	}
	return *c.Reconnection
}

func (c *Config) reconnectionDelay() float64 {
	if c == nil || c.ReconnectionDelay <= 0 {
		return 1
	}
	return c.ReconnectionDelay
}

func (c *Config) reconnectionDelayMax() float64 {
	if c == nil || c.ReconnectionDelayMax <= 0 {
		return 5
	}
	return c.ReconnectionDelayMax
}

func (c *Config) randomizationFactor() float64 {
	if c == nil || c.RandomizationFactor == nil {
		return 0.5
	}
	return *c.RandomizationFactor
}

func (c *Config) binary() bool {
	if c == nil || c.Binary == nil {
		return true
	}
	return *c.Binary
}
