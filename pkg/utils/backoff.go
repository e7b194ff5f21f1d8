package utils

import (
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// Backoff computes bounded-exponential reconnect delays. The base
// delay doubles on every attempt and is capped at the configured
// maximum before jitter is applied; jitter shifts the capped delay by
// up to ±jitter seconds.
type Backoff struct {
	min      atomic.Value
	max      atomic.Value
	jitter   atomic.Value
	random   atomic.Value
	attempts atomic.Uint64
}

type backoffConfig struct {
	min    float64
	max    float64
	jitter float64
	random func() float64
}

type backoffOption = func(*backoffConfig)

// WithMin sets the initial delay in seconds.
func WithMin(min float64) backoffOption {
	return func(c *backoffConfig) {
		c.min = min
	}
}

// WithMax sets the delay cap in seconds.
func WithMax(max float64) backoffOption {
	return func(c *backoffConfig) {
		c.max = max
	}
}

// WithJitter sets the randomization factor. Values outside (0, 1]
// disable jitter.
func WithJitter(jitter float64) backoffOption {
	return func(c *backoffConfig) {
		if jitter > 0 && jitter <= 1 {
			c.jitter = jitter
		} else {
			c.jitter = 0
		}
	}
}

// WithRandom overrides the randomness source. The function must return
// values in [0, 1].
func WithRandom(random func() float64) backoffOption {
	return func(c *backoffConfig) {
		if random != nil {
			c.random = random
		}
	}
}

// NewBackoff creates a new Backoff instance with the given configuration.
func NewBackoff(opts ...backoffOption) *Backoff {
	config := &backoffConfig{
		min:    1,
		max:    5,
		jitter: 0,
		random: rand.Float64,
	}
	for _, f := range opts {
		f(config)
	}

	b := &Backoff{}
	b.min.Store(config.min)
	b.max.Store(config.max)
	b.jitter.Store(config.jitter)
	b.random.Store(config.random)
	b.attempts.Store(0)

	return b
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() uint64 {
	return b.attempts.Load()
}

// Duration returns the next backoff delay.
func (b *Backoff) Duration() time.Duration {
	attempt := b.attempts.Add(1)
	delay := math.Min(b.min.Load().(float64)*math.Pow(2, float64(attempt-1)), b.max.Load().(float64))
	if jitter := b.jitter.Load().(float64); jitter > 0 {
		random := b.random.Load().(func() float64)
		delay += jitter * (2*random() - 1)
	}
	return time.Duration(delay * float64(time.Second))
}

// Reset resets the number of attempts to 0.
func (b *Backoff) Reset() {
	b.attempts.Store(0)
}
