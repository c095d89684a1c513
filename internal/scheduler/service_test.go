package scheduler

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"eventpulse/internal/clock"
	"eventpulse/internal/eventbus"
	"eventpulse/internal/lifecycle"
	logx "eventpulse/pkg/logx"
)

// talk is an event whose registration closes in 5s, starts in 1h and ends in 2h.
func talk(id string, now time.Time) lifecycle.EventRecord {
	return lifecycle.EventRecord{
		ID:                id,
		Name:              "Talk " + id,
		Venue:             "Hall A",
		RegistrationStart: now.Add(-time.Hour),
		RegistrationEnd:   now.Add(5 * time.Second),
		StartTime:         now.Add(time.Hour),
		EndTime:           now.Add(2 * time.Hour),
	}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Time{})
	return New(append([]Option{WithClock(clk)}, opts...)...), clk
}

type changeLog struct {
	mu  sync.Mutex
	got []StatusChange
}

func (c *changeLog) add(sc StatusChange) {
	c.mu.Lock()
	c.got = append(c.got, sc)
	c.mu.Unlock()
}

func (c *changeLog) all() []StatusChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]StatusChange(nil), c.got...)
}

func TestRegistrationCloseFiresOnce(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	s.Start([]lifecycle.EventRecord{talk("e1", clk.Now())})

	var log changeLog
	s.OnStatusChange("e1", log.add)

	clk.Advance(6 * time.Second)

	got := log.all()
	if len(got) != 1 {
		t.Fatalf("got %d changes, want 1: %+v", len(got), got)
	}
	if got[0].Old.Sub != lifecycle.RegistrationOpen || got[0].New.Sub != lifecycle.RegistrationClosed {
		t.Fatalf("change = %s -> %s, want registration_open -> registration_closed", got[0].Old, got[0].New)
	}
	if got[0].EventID != "e1" {
		t.Fatalf("event id = %q", got[0].EventID)
	}
}

func TestFullLifecycleSequence(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	now := clk.Now()
	e := talk("e1", now)
	e.RegistrationStart = now.Add(time.Second)
	cert := e.EndTime.Add(time.Hour)
	e.CertificateAvailableFrom = &cert
	s.Start([]lifecycle.EventRecord{e})

	var log changeLog
	s.OnStatusChange("e1", log.add)
	clk.Advance(4 * time.Hour)

	want := []lifecycle.SubStatus{
		lifecycle.RegistrationOpen,
		lifecycle.RegistrationClosed,
		lifecycle.EventStarted,
		lifecycle.EventEnded,
		lifecycle.CertificateAvailable,
	}
	got := log.all()
	if len(got) != len(want) {
		t.Fatalf("got %d changes, want %d: %+v", len(got), len(want), got)
	}
	prev := lifecycle.RegistrationNotStarted
	for i, c := range got {
		if c.New.Sub != want[i] || c.Old.Sub != prev {
			t.Fatalf("change %d = %s -> %s, want %s -> %s", i, c.Old.Sub, c.New.Sub, prev, want[i])
		}
		if c.New.Main != lifecycle.MainFor(c.New.Sub) {
			t.Fatalf("change %d main status %s does not match %s", i, c.New.Main, c.New.Sub)
		}
		prev = c.New.Sub
	}
	if st := s.Status(); st.TriggerCount != 0 || st.Next != nil {
		t.Fatalf("queue not drained: %+v", st)
	}
	if clk.Pending() != 0 {
		t.Fatalf("timer still armed with empty queue")
	}
}

func TestLateFiringProcessesAllDueTriggers(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	s.Start([]lifecycle.EventRecord{talk("e1", clk.Now()), talk("e2", clk.Now())})

	var log changeLog
	s.OnStatusChange("e1", log.add)
	s.OnStatusChange("e2", log.add)

	// Host suspended past every boundary, then the overdue timer fires once.
	clk.Jump(3 * time.Hour)
	clk.Advance(0)

	got := log.all()
	if len(got) != 2 {
		t.Fatalf("got %d changes, want one per event: %+v", len(got), got)
	}
	for _, c := range got {
		if c.Old.Sub != lifecycle.RegistrationOpen || c.New.Sub != lifecycle.CertificateAvailable {
			t.Fatalf("%s: %s -> %s, want registration_open -> certificate_available", c.EventID, c.Old, c.New)
		}
	}
	if n := s.Status().TriggerCount; n != 0 {
		t.Fatalf("TriggerCount = %d, want 0", n)
	}
}

func TestFaultyListenerIsIsolated(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s, clk := newTestService(t, WithLogger(logx.NewWriter(&buf, "info")))
	now := clk.Now()
	e := talk("e1", now)
	e.StartTime = now.Add(6 * time.Second)
	e.EndTime = now.Add(7 * time.Second)
	s.Start([]lifecycle.EventRecord{e, talk("e2", now)})

	s.OnStatusChange("e1", func(StatusChange) { panic("boom") })
	var e1, e2 changeLog
	s.OnStatusChange("e1", e1.add)
	s.OnStatusChange("e2", e2.add)

	clk.Advance(10 * time.Second)

	if got := len(e1.all()); got != 3 {
		t.Fatalf("healthy e1 listener got %d changes, want 3", got)
	}
	if got := len(e2.all()); got != 1 {
		t.Fatalf("e2 listener got %d changes, want 1", got)
	}
	if got := s.Status().ListenerFailures; got != 3 {
		t.Fatalf("ListenerFailures = %d, want 3", got)
	}
	if got := strings.Count(buf.String(), "status listener failed"); got != 1 {
		t.Fatalf("logged %d listener failures within the throttle window, want 1", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	s.Stop()
	s.Start([]lifecycle.EventRecord{talk("e1", clk.Now())})
	s.OnStatusChange("e1", func(StatusChange) { t.Error("listener called after Stop") })
	s.Stop()
	s.Stop()

	if s.Running() {
		t.Fatal("Running() = true after Stop")
	}
	if clk.Pending() != 0 {
		t.Fatalf("Stop left %d timers armed", clk.Pending())
	}
	st := s.Status()
	if st.TrackedEvents != 0 || st.TriggerCount != 0 || st.Listeners != 0 {
		t.Fatalf("state not cleared: %+v", st)
	}
	clk.Advance(time.Minute)
}

func TestStartReplacesState(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	now := clk.Now()
	s.Start([]lifecycle.EventRecord{talk("old", now)})

	var oldLog, newLog changeLog
	s.OnStatusChange("old", oldLog.add)
	s.OnStatusChange("new", newLog.add)

	fresh := talk("new", now)
	fresh.RegistrationEnd = now.Add(20 * time.Second)
	s.Start([]lifecycle.EventRecord{fresh})

	st := s.Status()
	if st.TrackedEvents != 1 || st.Next == nil || st.Next.EventID != "new" {
		t.Fatalf("unexpected snapshot after restart: %+v", st)
	}
	if clk.Pending() != 1 {
		t.Fatalf("Pending() = %d, want exactly one armed timer", clk.Pending())
	}
	clk.Advance(30 * time.Second)
	if len(oldLog.all()) != 0 {
		t.Fatal("event from previous Start still fired")
	}
	if len(newLog.all()) != 1 {
		t.Fatalf("new event changes = %d, want 1", len(newLog.all()))
	}
}

func TestDuplicateRecordKeepsLatestPlan(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	now := clk.Now()
	first := talk("e1", now)
	second := talk("e1", now)
	second.RegistrationEnd = now.Add(30 * time.Second)
	s.Start([]lifecycle.EventRecord{first, second})

	st := s.Status()
	if st.TrackedEvents != 1 || st.TriggerCount != 4 {
		t.Fatalf("tracked=%d triggers=%d, want 1/4", st.TrackedEvents, st.TriggerCount)
	}
	if !st.Next.FiresAt.Equal(second.RegistrationEnd) {
		t.Fatalf("next fires at %v, want %v", st.Next.FiresAt, second.RegistrationEnd)
	}
}

func TestOffStatusChangeRemovesOnlyItsHandle(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	s.Start([]lifecycle.EventRecord{talk("e1", clk.Now())})

	calls := 0
	fn := func(StatusChange) { calls++ }
	a := s.OnStatusChange("e1", fn)
	s.OnStatusChange("e1", fn)

	if !s.OffStatusChange(a) {
		t.Fatal("OffStatusChange returned false for a live handle")
	}
	if s.OffStatusChange(a) {
		t.Fatal("OffStatusChange returned true twice")
	}
	clk.Advance(6 * time.Second)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestOffFromInsideListener(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	s.Start([]lifecycle.EventRecord{talk("e1", clk.Now())})

	var second Subscription
	secondCalls := 0
	s.OnStatusChange("e1", func(StatusChange) { s.OffStatusChange(second) })
	second = s.OnStatusChange("e1", func(StatusChange) { secondCalls++ })

	clk.Advance(3 * time.Hour)
	if secondCalls != 0 {
		t.Fatalf("removed listener called %d times", secondCalls)
	}
}

func TestStopFromInsideListener(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	s.Start([]lifecycle.EventRecord{talk("e1", clk.Now())})

	calls := 0
	s.OnStatusChange("e1", func(StatusChange) {
		calls++
		s.Stop()
	})
	clk.Advance(3 * time.Hour)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if clk.Pending() != 0 {
		t.Fatalf("timer re-armed after Stop from listener")
	}
}

func TestStaleTimerCallbackIgnored(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	s.Start([]lifecycle.EventRecord{talk("e1", clk.Now())})
	stale := s.gen
	s.Start([]lifecycle.EventRecord{talk("e1", clk.Now())})

	calls := 0
	s.OnStatusChange("e1", func(StatusChange) { calls++ })
	clk.Jump(10 * time.Second)
	s.fire(stale)

	if calls != 0 {
		t.Fatalf("stale callback delivered %d changes", calls)
	}
	if n := s.Status().TriggerCount; n != 4 {
		t.Fatalf("stale callback consumed triggers: %d left, want 4", n)
	}
}

func TestEmptyQueueArmsNothing(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	past := talk("done", clk.Now().Add(-5*time.Hour))
	s.Start([]lifecycle.EventRecord{past, {ID: "draft", Draft: true}})

	if clk.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", clk.Pending())
	}
	st, ok := s.CurrentStatus("draft")
	if !ok || st.Main != lifecycle.Draft {
		t.Fatalf("draft status = %v (%v)", st, ok)
	}
	if st, _ := s.CurrentStatus("done"); st.Sub != lifecycle.CertificateAvailable {
		t.Fatalf("past event status = %v", st)
	}
}

func TestStatusSnapshot(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t, WithPreviewSize(2), WithConfig(Config{Timezone: "UTC"}))
	before := s.Status()
	if before.Running || before.Next != nil || len(before.Preview) != 0 {
		t.Fatalf("unexpected snapshot before Start: %+v", before)
	}

	s.Start([]lifecycle.EventRecord{talk("e1", clk.Now())})
	s.OnStatusChange("e1", func(StatusChange) {})
	st := s.Status()

	if !st.Running || st.TrackedEvents != 1 || st.TriggerCount != 4 || st.Listeners != 1 {
		t.Fatalf("unexpected counts: %+v", st)
	}
	if len(st.Preview) != 2 {
		t.Fatalf("preview len = %d, want 2", len(st.Preview))
	}
	if st.Next == nil || st.Next.Kind != lifecycle.RegistrationClosed || st.Next.EventName != "Talk e1" {
		t.Fatalf("next = %+v", st.Next)
	}
	if st.Next.TimeUntil != "5 seconds from now" {
		t.Fatalf("TimeUntil = %q", st.Next.TimeUntil)
	}
	if st.Timezone != "UTC" {
		t.Fatalf("Timezone = %q", st.Timezone)
	}
	if again := s.Status(); again.TriggerCount != st.TriggerCount || clk.Pending() != 1 {
		t.Fatal("Status() changed scheduler state")
	}
}

type fakeRecorder struct {
	got []StatusChange
	err error
}

func (r *fakeRecorder) RecordTransition(c StatusChange) error {
	r.got = append(r.got, c)
	return r.err
}

func TestBusAndRecorderReceiveChanges(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4, eventbus.TopicStatusChanged)
	defer unsub()
	rec := &fakeRecorder{err: errors.New("disk full")}

	s, clk := newTestService(t, WithBus(bus), WithRecorder(rec))
	s.Start([]lifecycle.EventRecord{talk("e1", clk.Now())})
	clk.Advance(6 * time.Second)

	if len(rec.got) != 1 {
		t.Fatalf("recorder got %d changes, want 1", len(rec.got))
	}
	select {
	case ev := <-ch:
		sc, ok := ev.Data.(StatusChange)
		if !ok || sc.New.Sub != lifecycle.RegistrationClosed {
			t.Fatalf("bus event data = %#v", ev.Data)
		}
	default:
		t.Fatal("no status change published on the bus")
	}
}

func TestBatchProcessEventsUsesSchedulerClock(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	res := s.BatchProcessEvents([]lifecycle.EventRecord{talk("e1", clk.Now())}, lifecycle.AllComputations())
	if !res.GeneratedAt.Equal(clk.Now()) {
		t.Fatalf("GeneratedAt = %v, want %v", res.GeneratedAt, clk.Now())
	}
	if res.Processed != 1 || len(res.StatusUpdates) != 1 || !res.StatusUpdates[0].Status.IsRegistrationOpen() {
		t.Fatalf("unexpected batch result: %+v", res)
	}
	if s.Running() {
		t.Fatal("BatchProcessEvents started the scheduler")
	}
}

func TestOptionsComposeInAnyOrder(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		opts []Option
		want int
	}{
		{"preview then config", []Option{WithPreviewSize(2), WithConfig(Config{Timezone: "UTC"})}, 2},
		{"config then preview", []Option{WithConfig(Config{Timezone: "UTC"}), WithPreviewSize(2)}, 2},
		{"config overrides earlier preview", []Option{WithPreviewSize(2), WithConfig(Config{PreviewSize: 3})}, 3},
		{"defaults", nil, DefaultPreviewSize},
	}
	for _, tt := range tests {
		s, clk := newTestService(t, tt.opts...)
		// Two events give 8 triggers, more than any preview size above.
		s.Start([]lifecycle.EventRecord{talk("a", clk.Now()), talk("b", clk.Now())})
		if got := len(s.Status().Preview); got != tt.want {
			t.Fatalf("%s: preview len = %d, want %d", tt.name, got, tt.want)
		}
	}

	s, _ := newTestService(t, WithListenerErrorInterval(time.Minute), WithConfig(Config{Timezone: "UTC"}))
	if s.cfg.ListenerErrorInterval != time.Minute || s.cfg.Timezone != "UTC" {
		t.Fatalf("cfg = %+v, want 1m interval and UTC", s.cfg)
	}
}

func TestStopClearsListenersRegisteredBeforeStart(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	calls := 0
	s.OnStatusChange("e1", func(StatusChange) { calls++ })

	s.Stop()
	if n := s.Status().Listeners; n != 0 {
		t.Fatalf("listeners after Stop = %d, want 0", n)
	}

	s.Start([]lifecycle.EventRecord{talk("e1", clk.Now())})
	clk.Advance(6 * time.Second)
	if calls != 0 {
		t.Fatalf("listener registered before Stop was called %d times", calls)
	}
}

func TestDeliveriesFollowFiringOrder(t *testing.T) {
	t.Parallel()
	s := New(WithLogger(logx.Nop()))
	defer s.Stop()

	now := time.Now()
	closesAt := func(id string, d time.Duration) lifecycle.EventRecord {
		return lifecycle.EventRecord{
			ID:                id,
			Venue:             "Hall " + id,
			RegistrationStart: now.Add(-time.Hour),
			RegistrationEnd:   now.Add(d),
			StartTime:         now.Add(time.Hour),
			EndTime:           now.Add(2 * time.Hour),
		}
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	secondCalled := make(chan struct{})
	s.OnStatusChange("first", func(StatusChange) {
		close(entered)
		<-release
	})
	s.OnStatusChange("second", func(StatusChange) { close(secondCalled) })
	s.Start([]lifecycle.EventRecord{closesAt("first", 20*time.Millisecond), closesAt("second", 40*time.Millisecond)})

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first listener never called")
	}
	// The second boundary passes while the first delivery is still running.
	time.Sleep(150 * time.Millisecond)
	select {
	case <-secondCalled:
		t.Fatal("second change delivered before the first delivery finished")
	default:
	}

	close(release)
	select {
	case <-secondCalled:
	case <-time.After(2 * time.Second):
		t.Fatal("second listener never called")
	}
}
