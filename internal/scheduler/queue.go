package scheduler

import (
	"time"

	"eventpulse/internal/lifecycle"
)

type triggerKey struct {
	eventID string
	kind    lifecycle.SubStatus
}

// dedupe sorts ts and keeps one trigger per (event, kind). The later entry in
// ts wins, so a fresh plan appended after an old one replaces it.
func dedupe(ts []lifecycle.Trigger) []lifecycle.Trigger {
	if len(ts) == 0 {
		return nil
	}
	last := make(map[triggerKey]int, len(ts))
	for i, t := range ts {
		last[triggerKey{t.EventID, t.Kind}] = i
	}
	out := make([]lifecycle.Trigger, 0, len(last))
	for i, t := range ts {
		if last[triggerKey{t.EventID, t.Kind}] == i {
			out = append(out, t)
		}
	}
	lifecycle.SortTriggers(out)
	return out
}

// popDue removes the leading triggers that fire at or before now.
// The queue must be sorted.
func popDue(queue []lifecycle.Trigger, now time.Time) (due, rest []lifecycle.Trigger) {
	n := 0
	for n < len(queue) && !queue[n].FiresAt.After(now) {
		n++
	}
	return queue[:n:n], queue[n:]
}

// dropEvents removes every trigger belonging to one of ids.
func dropEvents(queue []lifecycle.Trigger, ids map[string]struct{}) []lifecycle.Trigger {
	out := queue[:0:0]
	for _, t := range queue {
		if _, ok := ids[t.EventID]; !ok {
			out = append(out, t)
		}
	}
	return out
}
