package lifecycle

import (
	"sort"
	"time"
)

// Trigger is a future instant at which an event's status is expected to change.
// Kind is the sub-status the instant activates.
type Trigger struct {
	EventID string    `json:"event_id"`
	FiresAt time.Time `json:"fires_at"`
	Kind    SubStatus `json:"kind"`
}

// Boundaries returns the five lifecycle boundaries of e tagged with the
// sub-status each one activates, in lifecycle order.
func Boundaries(e EventRecord) []Trigger {
	return []Trigger{
		{EventID: e.ID, FiresAt: e.RegistrationStart, Kind: RegistrationOpen},
		{EventID: e.ID, FiresAt: e.RegistrationEnd, Kind: RegistrationClosed},
		{EventID: e.ID, FiresAt: e.StartTime, Kind: EventStarted},
		{EventID: e.ID, FiresAt: e.effectiveEnd(), Kind: EventEnded},
		{EventID: e.ID, FiresAt: e.CertificateTime(), Kind: CertificateAvailable},
	}
}

// PlanTriggers returns the boundaries of e strictly after now, sorted by
// FiresAt. Draft or unschedulable records plan nothing.
func PlanTriggers(e EventRecord, now time.Time) []Trigger {
	if !e.Schedulable() {
		return nil
	}
	var out []Trigger
	for _, t := range Boundaries(e) {
		if t.FiresAt.IsZero() || !t.FiresAt.After(now) {
			continue
		}
		out = append(out, t)
	}
	SortTriggers(out)
	return out
}

// SortTriggers orders triggers ascending by FiresAt, breaking ties by event id
// and then lifecycle order so the result is deterministic.
func SortTriggers(ts []Trigger) {
	sort.SliceStable(ts, func(i, j int) bool {
		if !ts[i].FiresAt.Equal(ts[j].FiresAt) {
			return ts[i].FiresAt.Before(ts[j].FiresAt)
		}
		if ts[i].EventID != ts[j].EventID {
			return ts[i].EventID < ts[j].EventID
		}
		return ts[i].Kind < ts[j].Kind
	})
}

// NextTrigger returns the earliest planned trigger of e after now.
func NextTrigger(e EventRecord, now time.Time) (Trigger, bool) {
	ts := PlanTriggers(e, now)
	if len(ts) == 0 {
		return Trigger{}, false
	}
	return ts[0], true
}
