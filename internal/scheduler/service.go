package scheduler

import (
	"strings"
	"sync"
	"time"

	"eventpulse/internal/clock"
	"eventpulse/internal/lifecycle"
	logx "eventpulse/pkg/logx"
)

func New(opts ...Option) *Service {
	s := &Service{
		clk:       clock.New(),
		events:    map[string]lifecycle.EventRecord{},
		statuses:  map[string]lifecycle.StatusResult{},
		listeners: map[string][]*listenerEntry{},
	}
	s.dcond = sync.NewCond(&s.dmu)
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.cfg = normalize(s.cfg)
	s.loc = loadLocation(s.cfg.Timezone, s.log)
	s.failures = newFailureReporter(s.cfg.ListenerErrorInterval)
	return s
}

func normalize(cfg Config) Config {
	if cfg.PreviewSize <= 0 {
		cfg.PreviewSize = DefaultPreviewSize
	}
	if cfg.ListenerErrorInterval <= 0 {
		cfg.ListenerErrorInterval = DefaultListenerErrorInterval
	}
	cfg.Timezone = strings.TrimSpace(cfg.Timezone)
	return cfg
}

// Apply swaps runtime settings. Tracked state and the armed timer are kept.
func (s *Service) Apply(cfg Config) {
	cfg = normalize(cfg)
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	if old.Timezone != cfg.Timezone {
		s.loc = loadLocation(cfg.Timezone, s.log)
	}
	if old.ListenerErrorInterval != cfg.ListenerErrorInterval {
		s.failures.setInterval(cfg.ListenerErrorInterval)
	}
}

// Start replaces all tracked state with events, plans the trigger queue and
// arms one timer to its head. Calling Start again is a full restart, never
// additive. Registered listeners survive a restart.
//
// Records with a duplicate id replace earlier ones.
func (s *Service) Start(events []lifecycle.EventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelTimerLocked()
	s.gen++
	s.running = true

	now := s.clk.Now()
	s.events = make(map[string]lifecycle.EventRecord, len(events))
	s.statuses = make(map[string]lifecycle.StatusResult, len(events))
	s.order = s.order[:0]
	s.queue = nil

	for _, e := range events {
		if _, dup := s.events[e.ID]; !dup {
			s.order = append(s.order, e.ID)
		} else {
			s.log.Warn("duplicate event id; later record wins", logx.String("event", e.ID))
		}
		s.events[e.ID] = e
	}
	for _, id := range s.order {
		e := s.events[id]
		s.statuses[id] = lifecycle.CalculateStatus(e, now)
		s.queue = append(s.queue, lifecycle.PlanTriggers(e, now)...)
	}
	s.queue = dedupe(s.queue)
	s.armLocked(now)

	s.log.Info("scheduler started",
		logx.Uint64("generation", s.gen),
		logx.Int("events", len(s.events)),
		logx.Int("triggers", len(s.queue)),
	)
}

// Stop cancels the armed timer and clears tracked events, the queue and all
// listeners, including listeners registered before any Start. Stopping a
// stopped scheduler only drops listeners.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ls := range s.listeners {
		for _, l := range ls {
			l.removed = true
		}
	}
	s.listeners = map[string][]*listenerEntry{}
	if !s.running {
		return
	}
	s.cancelTimerLocked()
	s.gen++
	s.running = false
	s.events = map[string]lifecycle.EventRecord{}
	s.statuses = map[string]lifecycle.StatusResult{}
	s.order = nil
	s.queue = nil
	s.log.Info("scheduler stopped")
}

// Running reports whether Start was called without a later Stop.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CurrentStatus returns the last computed status of a tracked event.
func (s *Service) CurrentStatus(eventID string) (lifecycle.StatusResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[eventID]
	return st, ok
}

// BatchProcessEvents computes a one-shot snapshot using the scheduler clock.
// It does not touch tracked state.
func (s *Service) BatchProcessEvents(events []lifecycle.EventRecord, opts lifecycle.BatchOptions) lifecycle.BatchResult {
	return lifecycle.BatchProcess(events, opts, s.clk.Now())
}

func (s *Service) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armedAt = time.Time{}
}

// armLocked points the single timer at the queue head. Call with s.mu held.
func (s *Service) armLocked(now time.Time) {
	s.cancelTimerLocked()
	if !s.running || len(s.queue) == 0 {
		return
	}
	head := s.queue[0].FiresAt
	gen := s.gen
	s.armedAt = head
	s.timer = s.clk.AfterFunc(head.Sub(now), func() { s.fire(gen) })
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
