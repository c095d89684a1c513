package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually driven clock for tests.
//
// Timers never fire on their own: Advance moves time forward and runs every
// timer that became due, in deadline order, on the caller's goroutine.
// Callbacks run without the clock lock held, so they may create or stop timers.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	seq     uint64
	timers  []*fakeTimer
}

type fakeTimer struct {
	clk     *Fake
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
}

// ReferenceTime is the default start instant for Fake clocks.
func ReferenceTime() time.Time {
	return time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC)
}

// NewFake returns a fake clock set to start. When start is the zero value,
// ReferenceTime is used.
func NewFake(start time.Time) *Fake {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Fake{current: start}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clk: c, at: c.current.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	c := t.clk
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	for i, x := range c.timers {
		if x == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	// Already fired.
	return false
}

// Advance moves the clock forward by d, firing due timers along the way, and
// returns the new time.
func (c *Fake) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		t := c.nextDueLocked(target)
		if t == nil {
			if target.After(c.current) {
				c.current = target
			}
			now := c.current
			c.mu.Unlock()
			return now
		}
		if t.at.After(c.current) {
			c.current = t.at
		}
		c.removeLocked(t)
		t.stopped = true
		c.mu.Unlock()

		t.fn()
	}
}

// Jump moves the clock forward by d without firing any timer. It simulates a
// suspended host (e.g. a backgrounded process) where timers fire late; a
// following Advance(0) delivers the overdue timers at the jumped-to time.
func (c *Fake) Jump(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// Pending reports the number of armed timers.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *Fake) nextDueLocked(target time.Time) *fakeTimer {
	if len(c.timers) == 0 {
		return nil
	}
	sort.SliceStable(c.timers, func(i, j int) bool {
		if !c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].at.Before(c.timers[j].at)
		}
		return c.timers[i].seq < c.timers[j].seq
	})
	t := c.timers[0]
	if t.at.After(target) {
		return nil
	}
	return t
}

func (c *Fake) removeLocked(t *fakeTimer) {
	for i, x := range c.timers {
		if x == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}
