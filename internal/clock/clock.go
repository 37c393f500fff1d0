// Package clock provides the service's single authoritative time source.
//
// Check-in spans are computed from server-assigned timestamps, so every
// component that stamps or compares time takes a Clock rather than calling
// time.Now directly. Tests substitute a Fixed clock.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// Monotonic is a process-wide clock whose readings strictly increase.
//
// Two goroutines asking for the time within the same nanosecond (or after a
// wall-clock step backwards) still get distinct, ordered instants: each
// reading is max(wall clock, previous reading + 1ns). Readings are in UTC.
type Monotonic struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewMonotonic returns a Monotonic clock backed by time.Now.
func NewMonotonic() *Monotonic {
	return &Monotonic{now: time.Now}
}

// Now returns the next strictly increasing instant.
func (m *Monotonic) Now() time.Time {
	// Round(0) strips the monotonic reading so values compare and persist
	// the same way after a round trip through storage.
	t := m.now().UTC().Round(0)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !t.After(m.last) {
		t = m.last.Add(time.Nanosecond)
	}
	m.last = t
	return t
}

// Fixed is a manually driven clock for tests.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixed returns a clock frozen at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

// Now returns the frozen instant.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}
