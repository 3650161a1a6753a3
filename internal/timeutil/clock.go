package timeutil

import (
	"sync"
	"time"
)

// Clock provides time information to the session coordinator and the
// reset scheduler.
// This interface allows time to be mocked in tests.
type Clock interface {
	Now() time.Time
}

// RealClock provides actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// TestClock provides a settable time for testing. It is safe for use from
// multiple goroutines.
type TestClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewTestClock creates a test clock fixed at t.
func NewTestClock(t time.Time) *TestClock {
	return &TestClock{now: t}
}

// Now returns the test time.
func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *TestClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
