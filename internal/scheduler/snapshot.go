package scheduler

import (
	"time"

	"eventpulse/internal/lifecycle"
)

// Status returns a snapshot of the queue for diagnostics. It has no side effects.
func (s *Service) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	snap := Snapshot{
		Running:          s.running,
		Generation:       s.gen,
		Timezone:         s.loc.String(),
		TrackedEvents:    len(s.events),
		TriggerCount:     len(s.queue),
		ArmedAt:          s.armedAt,
		Preview:          []QueueEntry{},
		ListenerFailures: s.failures.total.Load(),
	}
	for _, ls := range s.listeners {
		snap.Listeners += len(ls)
	}

	n := s.cfg.PreviewSize
	if n > len(s.queue) {
		n = len(s.queue)
	}
	for _, t := range s.queue[:n] {
		snap.Preview = append(snap.Preview, s.entryLocked(t, now))
	}
	if len(snap.Preview) > 0 {
		next := snap.Preview[0]
		snap.Next = &next
	}
	return snap
}

func (s *Service) entryLocked(t lifecycle.Trigger, now time.Time) QueueEntry {
	return QueueEntry{
		EventID:   t.EventID,
		EventName: s.events[t.EventID].Name,
		Kind:      t.Kind,
		FiresAt:   t.FiresAt.In(s.loc),
		TimeUntil: lifecycle.HumanizeUntil(t.FiresAt, now),
	}
}
