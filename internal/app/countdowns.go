package app

import (
	"sort"
	"sync"
	"time"

	"eventpulse/internal/clock"
	"eventpulse/internal/countdown"
	"eventpulse/internal/lifecycle"
	logx "eventpulse/pkg/logx"
)

type runningCountdown struct {
	target time.Time
	every  time.Duration
	stop   countdown.StopFunc
}

// countdowns keeps one live countdown per configured target event, counting
// down to the event start.
type countdowns struct {
	mu      sync.Mutex
	clk     clock.Clock
	log     logx.Logger
	running map[string]runningCountdown
}

func newCountdowns(clk clock.Clock, log logx.Logger) *countdowns {
	return &countdowns{clk: clock.OrReal(clk), log: log, running: map[string]runningCountdown{}}
}

// sync reconciles the running countdowns with targets. Countdowns whose
// target start is unchanged keep running.
func (c *countdowns) sync(events []lifecycle.EventRecord, targets []string, every time.Duration) {
	byID := make(map[string]lifecycle.EventRecord, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}
	now := c.clk.Now()

	want := map[string]lifecycle.EventRecord{}
	for _, id := range targets {
		e, ok := byID[id]
		switch {
		case !ok:
			c.log.Warn("countdown target not found", logx.String("event", id))
		case !e.Schedulable():
			c.log.Debug("countdown target has no schedule", logx.String("event", id))
		case !e.StartTime.After(now):
			c.log.Debug("countdown target already started", logx.String("event", id))
		default:
			want[id] = e
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, rc := range c.running {
		e, ok := want[id]
		if ok && e.StartTime.Equal(rc.target) && rc.every == every {
			delete(want, id)
			continue
		}
		rc.stop()
		delete(c.running, id)
	}

	ids := make([]string, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := want[id]
		c.running[id] = runningCountdown{
			target: e.StartTime,
			every:  every,
			stop:   c.start(e, every),
		}
		c.log.Info("countdown started", logx.String("event", id), logx.Time("start", e.StartTime), logx.Duration("interval", every))
	}
}

func (c *countdowns) start(e lifecycle.EventRecord, every time.Duration) countdown.StopFunc {
	log := c.log.With(logx.String("event", e.ID))
	target := e.StartTime
	return countdown.Start(target,
		func(r countdown.Remaining) {
			if !log.Enabled(logx.LevelDebug) {
				return
			}
			log.Debug("countdown",
				logx.Int("days", r.Days),
				logx.Int("hours", r.Hours),
				logx.Int("minutes", r.Minutes),
				logx.Int("seconds", r.Seconds),
			)
		},
		func() {
			log.Info("countdown finished", logx.String("name", e.Name))
			c.forget(e.ID, target)
		},
		countdown.WithClock(c.clk),
		countdown.WithInterval(every),
	)
}

// forget drops a finished countdown unless it was already replaced.
func (c *countdowns) forget(id string, target time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rc, ok := c.running[id]; ok && rc.target.Equal(target) {
		delete(c.running, id)
	}
}

func (c *countdowns) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.running)
}

func (c *countdowns) stopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, rc := range c.running {
		rc.stop()
		delete(c.running, id)
	}
}
