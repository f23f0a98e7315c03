package utils

import (
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Clock abstracts time so reconnect/renewal/retry loops can be driven by
// virtual time in tests.
// -----------------------------------------------------------------------------

type Clock interface {

	// Now returns the current time.
	Now() time.Time

	// -----------------------------------------------------------------------------

	// After returns a channel that fires once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// -----------------------------------------------------------------------------
// SystemClock
// -----------------------------------------------------------------------------

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// -----------------------------------------------------------------------------
// VirtualClock advances only when told to. Waiters registered via After fire
// when Advance moves the clock past their deadline.
// -----------------------------------------------------------------------------

type VirtualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*virtualWaiter
}

type virtualWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

// -----------------------------------------------------------------------------

func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

// -----------------------------------------------------------------------------

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// -----------------------------------------------------------------------------

func (c *VirtualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	deadline := c.now.Add(d)

	if d <= 0 {
		ch <- c.now
		return ch
	}

	c.waiters = append(c.waiters, &virtualWaiter{deadline: deadline, ch: ch})
	return ch
}

// -----------------------------------------------------------------------------

// Advance moves the clock forward and fires every waiter whose deadline has
// been reached.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now

	var remaining []*virtualWaiter
	var fired []*virtualWaiter
	for _, w := range c.waiters {
		if !w.deadline.After(now) {
			fired = append(fired, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	c.mu.Unlock()

	for _, w := range fired {
		w.ch <- now
	}
}

// -----------------------------------------------------------------------------

// WaiterCount returns how many After callers are currently parked. Tests use
// it to know a loop has reached its next sleep before advancing time.
func (c *VirtualClock) WaiterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
