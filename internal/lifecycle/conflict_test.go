package lifecycle

import (
	"strings"
	"testing"
	"time"
)

func clockAt(hour, minute int) time.Time {
	return time.Date(2024, time.May, 2, hour, minute, 0, 0, time.UTC)
}

func session(id, venue string, from, to time.Time) EventRecord {
	return EventRecord{ID: id, Name: "session " + id, Venue: venue, StartTime: from, EndTime: to}
}

func TestDetectConflictsSharedHall(t *testing.T) {
	t.Parallel()
	events := []EventRecord{
		session("e1", "Hall A", clockAt(10, 0), clockAt(12, 0)),
		session("e2", "Hall A", clockAt(11, 0), clockAt(13, 0)),
		session("e3", "Hall B", clockAt(10, 0), clockAt(12, 0)),
	}
	got := DetectConflicts(events)
	if len(got) != 1 {
		t.Fatalf("got %d conflicts, want 1: %+v", len(got), got)
	}
	c := got[0]
	if c.Event1.ID != "e1" || c.Event2.ID != "e2" {
		t.Fatalf("pair = (%s,%s), want (e1,e2)", c.Event1.ID, c.Event2.ID)
	}
	if !c.OverlapStart.Equal(clockAt(11, 0)) || !c.OverlapEnd.Equal(clockAt(12, 0)) {
		t.Fatalf("overlap = [%v,%v]", c.OverlapStart, c.OverlapEnd)
	}
	if !strings.Contains(c.Details, "Hall A") {
		t.Fatalf("details should name the venue: %q", c.Details)
	}
}

func TestDetectConflictsEdgeCases(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		events []EventRecord
		want   int
	}{
		{"touching endpoints", []EventRecord{
			session("a", "Hall A", clockAt(10, 0), clockAt(11, 0)),
			session("b", "Hall A", clockAt(11, 0), clockAt(12, 0)),
		}, 0},
		{"contained", []EventRecord{
			session("a", "Hall A", clockAt(9, 0), clockAt(17, 0)),
			session("b", "Hall A", clockAt(10, 0), clockAt(11, 0)),
		}, 1},
		{"venue match is exact", []EventRecord{
			session("a", "Hall A", clockAt(10, 0), clockAt(12, 0)),
			session("b", "hall a", clockAt(10, 0), clockAt(12, 0)),
		}, 0},
		{"empty venue never conflicts", []EventRecord{
			session("a", "", clockAt(10, 0), clockAt(12, 0)),
			session("b", "", clockAt(10, 0), clockAt(12, 0)),
		}, 0},
		{"three way", []EventRecord{
			session("a", "Hall A", clockAt(10, 0), clockAt(12, 0)),
			session("b", "Hall A", clockAt(10, 30), clockAt(12, 0)),
			session("c", "Hall A", clockAt(11, 0), clockAt(11, 30)),
		}, 3},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectConflicts(tt.events); len(got) != tt.want {
				t.Fatalf("got %d conflicts, want %d: %+v", len(got), tt.want, got)
			}
		})
	}
}

func TestDetectConflictsSymmetricAndDeduplicated(t *testing.T) {
	t.Parallel()
	events := []EventRecord{
		session("a", "Hall A", clockAt(10, 0), clockAt(12, 0)),
		session("b", "Hall A", clockAt(11, 0), clockAt(13, 0)),
		session("c", "Hall A", clockAt(12, 30), clockAt(14, 0)),
		session("d", "Hall B", clockAt(10, 0), clockAt(14, 0)),
	}
	seen := map[[2]string]int{}
	for _, c := range DetectConflicts(events) {
		key := [2]string{c.Event1.ID, c.Event2.ID}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		seen[key]++
	}
	for i := range events {
		for j := i + 1; j < len(events); j++ {
			key := [2]string{events[i].ID, events[j].ID}
			want := 0
			if events[i].Venue == events[j].Venue && overlaps(events[i], events[j]) {
				want = 1
			}
			if seen[key] != want {
				t.Fatalf("pair %v reported %d times, want %d", key, seen[key], want)
			}
		}
	}
}
