package lifecycle

import (
	"fmt"
	"time"
)

// EventRef identifies one side of a conflict.
type EventRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Conflict reports two events that share a venue during overlapping windows.
type Conflict struct {
	Event1       EventRef  `json:"event1"`
	Event2       EventRef  `json:"event2"`
	Venue        string    `json:"venue"`
	OverlapStart time.Time `json:"overlap_start"`
	OverlapEnd   time.Time `json:"overlap_end"`
	Details      string    `json:"details"`
}

// DetectConflicts reports every unordered pair of events with the same venue
// whose [start, end] windows overlap. Touching endpoints do not overlap.
// Pairs are reported once, with Event1 earlier in the input than Event2.
func DetectConflicts(events []EventRecord) []Conflict {
	var out []Conflict
	for i := 0; i < len(events); i++ {
		a := events[i]
		if a.Venue == "" || a.StartTime.IsZero() {
			continue
		}
		for j := i + 1; j < len(events); j++ {
			b := events[j]
			if b.Venue != a.Venue || b.StartTime.IsZero() {
				continue
			}
			if !overlaps(a, b) {
				continue
			}
			out = append(out, newConflict(a, b))
		}
	}
	return out
}

func overlaps(a, b EventRecord) bool {
	return a.StartTime.Before(b.effectiveEnd()) && b.StartTime.Before(a.effectiveEnd())
}

func newConflict(a, b EventRecord) Conflict {
	from := a.StartTime
	if b.StartTime.After(from) {
		from = b.StartTime
	}
	to := a.effectiveEnd()
	if be := b.effectiveEnd(); be.Before(to) {
		to = be
	}
	return Conflict{
		Event1:       EventRef{ID: a.ID, Name: a.Name},
		Event2:       EventRef{ID: b.ID, Name: b.Name},
		Venue:        a.Venue,
		OverlapStart: from,
		OverlapEnd:   to,
		Details: fmt.Sprintf("%q and %q both use %q between %s and %s (%s)",
			displayName(a), displayName(b), a.Venue,
			from.Format(time.RFC3339), to.Format(time.RFC3339), to.Sub(from)),
	}
}

func displayName(e EventRecord) string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}
