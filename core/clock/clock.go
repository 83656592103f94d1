// Package clock provides the wall clock used for optimistic message
// timestamps and pending-entry expiry. A frozen clock makes time-dependent
// logic deterministic in tests.
package clock

import (
	"sync"
	"time"
)

// Clock yields timestamps. The zero configuration follows the system
// clock; Fixed returns one pinned to a point in time that only moves via
// Advance.
type Clock struct {
	mu     sync.Mutex
	frozen bool
	now    time.Time
}

// New creates a Clock that uses the system clock.
func New() *Clock {
	return &Clock{}
}

// Fixed creates a Clock pinned at t. It advances only through Advance.
func Fixed(t time.Time) *Clock {
	return &Clock{frozen: true, now: t}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return c.now
	}
	return time.Now()
}

// Advance moves a frozen clock forward by d. It has no effect on a system
// clock.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		c.now = c.now.Add(d)
	}
}
