package testutil

import "sync"

// DeterministicClock is a resettable logical clock that numbers harness
// trace events. The same scenario always produces the same numbering.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock returns a clock at 0. The first Tick returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Tick advances the clock and returns the new value.
func (c *DeterministicClock) Tick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last value handed out, or 0.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock to 0 so a scenario can run again with identical
// numbering.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
