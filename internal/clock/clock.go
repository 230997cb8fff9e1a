// Package clock provides a wall-clock abstraction so time-dependent logic
// (interaction metrics decay, anti-flood windows, verification recheck
// intervals) can be tested deterministically.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time.
// Implemented by System (production) and Fake (tests).
type Clock interface {
	Now() time.Time
}

// System reads the real wall clock.
//
// Thread-safety: System is stateless and safe for concurrent use.
type System struct{}

// Now returns the current wall-clock time.
func (System) Now() time.Time {
	return time.Now()
}

// Fake returns a controllable time for tests.
//
// Unlike System, Fake never advances on its own: tests move it explicitly
// with Set or Advance, which makes window-based logic (2-second anti-flood
// guard, 7/30-day decay) exactly reproducible.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock frozen at the given time.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to an absolute time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Advance moves the clock forward by d. Negative d moves it backward.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
