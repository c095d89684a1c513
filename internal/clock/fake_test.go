package clock

import (
	"testing"
	"time"
)

func TestFakeDefaultsToReferenceTime(t *testing.T) {
	t.Parallel()
	c := NewFake(time.Time{})
	if !c.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", c.Now())
	}
}

func TestFakeAdvanceFiresInOrder(t *testing.T) {
	t.Parallel()
	c := NewFake(time.Time{})
	start := c.Now()

	var order []string
	var firedAt []time.Time
	c.AfterFunc(3*time.Second, func() { order = append(order, "c"); firedAt = append(firedAt, c.Now()) })
	c.AfterFunc(time.Second, func() { order = append(order, "a"); firedAt = append(firedAt, c.Now()) })
	c.AfterFunc(2*time.Second, func() { order = append(order, "b"); firedAt = append(firedAt, c.Now()) })

	now := c.Advance(2 * time.Second)
	if got := len(order); got != 2 {
		t.Fatalf("fired %d timers, want 2", got)
	}
	if order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v, want [a b]", order)
	}
	if !firedAt[0].Equal(start.Add(time.Second)) {
		t.Fatalf("first timer saw %v, want %v", firedAt[0], start.Add(time.Second))
	}
	if !now.Equal(start.Add(2 * time.Second)) {
		t.Fatalf("Advance returned %v", now)
	}
	if c.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", c.Pending())
	}
}

func TestFakeStop(t *testing.T) {
	t.Parallel()
	c := NewFake(time.Time{})
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })
	if !tm.Stop() {
		t.Fatal("Stop on armed timer should report true")
	}
	if tm.Stop() {
		t.Fatal("second Stop should report false")
	}
	c.Advance(time.Minute)
	if fired {
		t.Fatal("stopped timer fired")
	}
}

func TestFakeCallbackCanRearm(t *testing.T) {
	t.Parallel()
	c := NewFake(time.Time{})
	n := 0
	var tick func()
	tick = func() {
		n++
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)
	c.Advance(5 * time.Second)
	if n != 5 {
		t.Fatalf("ticks = %d, want 5", n)
	}
}

func TestFakeJumpDelaysFiring(t *testing.T) {
	t.Parallel()
	c := NewFake(time.Time{})
	start := c.Now()
	var seen time.Time
	c.AfterFunc(time.Second, func() { seen = c.Now() })

	c.Jump(time.Hour)
	if !seen.IsZero() {
		t.Fatal("Jump must not fire timers")
	}
	c.Advance(0)
	if !seen.Equal(start.Add(time.Hour)) {
		t.Fatalf("overdue timer saw %v, want %v", seen, start.Add(time.Hour))
	}
}
