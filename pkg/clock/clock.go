// Package clock provides an injectable source of the current time.
//
// Recurrence catch-up compares due dates with "now"; code that makes that
// comparison takes a Clock instead of calling time.Now so tests can pin it.
//
//	fixed := clock.NewFixed(time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC))
//	m := recurrence.NewMaterializer(store, fixed)
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual system time. Use at application entry points.
type RealClock struct{}

// Now returns the current system time in UTC.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// NewReal returns a Clock that uses the real system time.
func NewReal() Clock {
	return RealClock{}
}

// FixedClock always returns a fixed time.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed time.
func (c FixedClock) Now() time.Time {
	return c.T
}

// NewFixed returns a Clock that always returns t.
func NewFixed(t time.Time) Clock {
	return FixedClock{T: t}
}

// ManualClock is a settable clock for tests that move time forward.
type ManualClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewManual returns a ManualClock starting at t.
func NewManual(t time.Time) *ManualClock {
	return &ManualClock{t: t}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
