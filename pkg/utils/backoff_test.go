package utils

import (
	"testing"
	"time"
)

func sequence(values ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}
}

func TestBackoffSchedule(t *testing.T) {
	b := NewBackoff(
		WithMin(1),
		WithMax(5),
		WithJitter(0.5),
		WithRandom(sequence(1, 0, 0.5)),
	)

	want := []time.Duration{
		1500 * time.Millisecond,
		1500 * time.Millisecond,
		4000 * time.Millisecond,
	}
	for i, expected := range want {
		if got := b.Duration(); got != expected {
			t.Errorf("Attempt %d: expected %v, got %v", i+1, expected, got)
		}
	}
}

func TestBackoffMaxDelay(t *testing.T) {
	b := NewBackoff(
		WithMin(1),
		WithMax(3),
		WithJitter(0.5),
		WithRandom(sequence(1, 0, 0.5)),
	)

	want := []time.Duration{
		1500 * time.Millisecond,
		1500 * time.Millisecond,
		3000 * time.Millisecond,
	}
	for i, expected := range want {
		if got := b.Duration(); got != expected {
			t.Errorf("Attempt %d: expected %v, got %v", i+1, expected, got)
		}
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(WithMin(1), WithMax(5))
	b.Duration()
	b.Duration()
	if b.Attempts() != 2 {
		t.Errorf("Expected 2 attempts, got %d", b.Attempts())
	}
	b.Reset()
	if b.Attempts() != 0 {
		t.Errorf("Expected 0 attempts after reset, got %d", b.Attempts())
	}
	if got := b.Duration(); got != time.Second {
		t.Errorf("Expected the initial delay after reset, got %v", got)
	}
}

func TestBackoffWithoutJitter(t *testing.T) {
	b := NewBackoff(WithMin(2), WithMax(16))
	want := []time.Duration{2, 4, 8, 16, 16}
	for i, expected := range want {
		if got := b.Duration(); got != expected*time.Second {
			t.Errorf("Attempt %d: expected %v, got %v", i+1, expected*time.Second, got)
		}
	}
}
