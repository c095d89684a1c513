// Package countdown runs per-target "time remaining" timers for live displays.
//
// Countdown timers are independent of each other and of the lifecycle
// scheduler; each owns at most one pending clock timer.
package countdown

import (
	"sync"
	"time"

	"eventpulse/internal/clock"
)

// DefaultInterval is the tick cadence used when none is configured.
const DefaultInterval = time.Second

// Remaining is the time left until the target, broken down for display.
type Remaining struct {
	Days    int           `json:"days"`
	Hours   int           `json:"hours"`
	Minutes int           `json:"minutes"`
	Seconds int           `json:"seconds"`
	Total   time.Duration `json:"total"`
}

// Breakdown splits d into days/hours/minutes/seconds. Negative d yields zero parts.
func Breakdown(d time.Duration) Remaining {
	r := Remaining{Total: d}
	if d <= 0 {
		return r
	}
	secs := int64(d / time.Second)
	r.Days = int(secs / 86400)
	r.Hours = int(secs % 86400 / 3600)
	r.Minutes = int(secs % 3600 / 60)
	r.Seconds = int(secs % 60)
	return r
}

// Option configures a countdown.
type Option func(*timer)

// WithClock sets the time source. Defaults to the wall clock.
func WithClock(c clock.Clock) Option { return func(t *timer) { t.clk = clock.OrReal(c) } }

// WithInterval sets the tick cadence. Non-positive values keep DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(t *timer) {
		if d > 0 {
			t.every = d
		}
	}
}

// StopFunc cancels a countdown. It is idempotent and safe to call from inside
// onTick or onExpire. Once it returns no further tick is armed. It does not
// wait for other goroutines: a tick that already passed its stopped check may
// still deliver that one callback.
type StopFunc func()

type timer struct {
	mu      sync.Mutex
	clk     clock.Clock
	every   time.Duration
	target  time.Time
	onTick  func(Remaining)
	expire  func()
	stopped bool
	pending clock.Timer
}

// Start begins ticking toward target. The first tick is evaluated as soon as
// the clock allows, then every interval. When the target is reached onExpire
// runs exactly once and the countdown stops itself.
//
// The delay before a tick never overshoots the target, so coarse intervals
// still expire on time.
func Start(target time.Time, onTick func(Remaining), onExpire func(), opts ...Option) StopFunc {
	t := &timer{
		clk:    clock.New(),
		every:  DefaultInterval,
		target: target,
		onTick: onTick,
		expire: onExpire,
	}
	for _, o := range opts {
		if o != nil {
			o(t)
		}
	}
	t.mu.Lock()
	t.pending = t.clk.AfterFunc(0, t.tick)
	t.mu.Unlock()
	return t.stop
}

func (t *timer) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

func (t *timer) tick() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	now := t.clk.Now()
	left := t.target.Sub(now)
	if left <= 0 {
		t.stopped = true
		fn := t.expire
		t.mu.Unlock()
		if fn != nil {
			fn()
		}
		return
	}
	fn := t.onTick
	t.mu.Unlock()

	if fn != nil {
		fn(Breakdown(left))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	delay := t.every
	if rest := t.target.Sub(t.clk.Now()); rest < delay {
		delay = rest
	}
	t.pending = t.clk.AfterFunc(delay, t.tick)
}
