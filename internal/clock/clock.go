// Package clock provides the kernel's monotonic time source. The
// scheduler only ever asks "what is now" and compares the answer against
// stored deadlines; it never reads wall time.
package clock

import (
	"sync"
	"time"

	"github.com/me/gokern/pkg/model"
)

// Clock reads monotonic time since kernel boot.
type Clock interface {
	Now() model.Time
}

// Manual is a deterministic clock advanced explicitly by its owner (the
// simulated CPU per executed tick, and the idle path while halted). Every
// run with the same scenario observes the same timestamps.
type Manual struct {
	mu  sync.Mutex
	now model.Time
}

// NewManual creates a manual clock starting at boot (t = 0).
func NewManual() *Manual {
	return &Manual{}
}

// Now returns the current simulated instant.
func (m *Manual) Now() model.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new instant.
// Negative advances are ignored; time never runs backwards.
func (m *Manual) Advance(d time.Duration) model.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.now = m.now.Add(d)
	}
	return m.now
}

// AdvanceTo moves the clock forward to instant t, if t is in the future.
func (m *Manual) AdvanceTo(t model.Time) model.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t > m.now {
		m.now = t
	}
	return m.now
}

// Wall measures monotonic time since boot using the runtime clock. Used
// for live runs where the inspector observes the kernel in real time.
type Wall struct {
	start time.Time
}

// NewWall creates a wall clock booted at the moment of the call.
func NewWall() *Wall {
	return &Wall{start: time.Now()}
}

// Now returns the monotonic time elapsed since boot.
func (w *Wall) Now() model.Time {
	return model.Time(time.Since(w.start))
}
