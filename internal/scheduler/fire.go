package scheduler

import (
	"fmt"
	"runtime/debug"
	"time"

	"eventpulse/internal/eventbus"
	"eventpulse/internal/lifecycle"
	logx "eventpulse/pkg/logx"
)

type delivery struct {
	change    StatusChange
	listeners []*listenerEntry
}

// fire handles one timer expiry. Callbacks from an older generation (a
// previous Start, or a Stop) are ignored.
func (s *Service) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.running {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.armedAt = time.Time{}
	now := s.clk.Now()

	due, rest := popDue(s.queue, now)
	s.queue = rest

	affected := make(map[string]struct{}, len(due))
	var ids []string
	for _, t := range due {
		if _, seen := affected[t.EventID]; seen {
			continue
		}
		affected[t.EventID] = struct{}{}
		ids = append(ids, t.EventID)
	}

	var out []delivery
	for _, id := range ids {
		e, ok := s.events[id]
		if !ok {
			continue
		}
		old := s.statuses[id]
		cur := lifecycle.CalculateStatus(e, now)
		s.statuses[id] = cur
		if cur == old {
			continue
		}
		out = append(out, delivery{
			change:    StatusChange{EventID: id, Old: old, New: cur, At: now},
			listeners: append([]*listenerEntry(nil), s.listeners[id]...),
		})
	}

	// Replan affected events from now; covers boundaries that were skipped
	// by a late firing.
	if len(affected) > 0 {
		s.queue = dropEvents(s.queue, affected)
		for _, id := range ids {
			if e, ok := s.events[id]; ok {
				s.queue = append(s.queue, lifecycle.PlanTriggers(e, now)...)
			}
		}
		s.queue = dedupe(s.queue)
	}
	s.armLocked(now)
	var ticket uint64
	if len(out) > 0 {
		ticket = s.nextTick
		s.nextTick++
	}
	s.mu.Unlock()

	if len(due) > 1 || len(out) > 0 {
		s.log.Debug("triggers fired",
			logx.Int("due", len(due)),
			logx.Int("changes", len(out)),
		)
	}
	if len(out) == 0 {
		return
	}
	s.awaitTurn(ticket)
	defer s.finishTurn()
	for _, d := range out {
		s.deliver(d)
	}
}

// awaitTurn blocks until every earlier firing finished delivering.
func (s *Service) awaitTurn(ticket uint64) {
	s.dmu.Lock()
	for s.delivered != ticket {
		s.dcond.Wait()
	}
	s.dmu.Unlock()
}

func (s *Service) finishTurn() {
	s.dmu.Lock()
	s.delivered++
	s.dcond.Broadcast()
	s.dmu.Unlock()
}

func (s *Service) deliver(d delivery) {
	c := d.change
	s.log.Info("status changed",
		logx.String("event", c.EventID),
		logx.String("from", c.Old.String()),
		logx.String("to", c.New.String()),
	)
	for _, l := range d.listeners {
		if !s.stillSubscribed(l) {
			continue
		}
		s.invoke(c, l)
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TopicStatusChanged, Time: c.At, Data: c})
	}
	if s.rec != nil {
		if err := s.rec.RecordTransition(c); err != nil {
			s.log.Warn("record transition failed", logx.String("event", c.EventID), logx.Err(err))
		}
	}
}

func (s *Service) stillSubscribed(l *listenerEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !l.removed
}

func (s *Service) invoke(c StatusChange, l *listenerEntry) {
	defer func() {
		if r := recover(); r != nil {
			s.reportListenerPanic(c.EventID, l.id.String(), fmt.Errorf("listener panic: %v", r), string(debug.Stack()))
		}
	}()
	l.fn(c)
}
