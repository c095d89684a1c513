package countdown

import (
	"testing"
	"time"

	"eventpulse/internal/clock"
)

func TestBreakdown(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   time.Duration
		want Remaining
	}{
		{90 * time.Second, Remaining{Minutes: 1, Seconds: 30}},
		{26*time.Hour + 3*time.Minute + 4*time.Second + 500*time.Millisecond, Remaining{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}},
		{-time.Second, Remaining{}},
	}
	for _, tt := range tests {
		got := Breakdown(tt.in)
		tt.want.Total = tt.in
		if got != tt.want {
			t.Fatalf("Breakdown(%v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestCountdownTicksThenExpiresOnce(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(time.Time{})
	target := clk.Now().Add(3 * time.Second)

	var ticks []Remaining
	expired := 0
	Start(target, func(r Remaining) { ticks = append(ticks, r) }, func() { expired++ }, WithClock(clk))

	clk.Advance(10 * time.Second)

	if len(ticks) != 3 {
		t.Fatalf("ticks = %d, want 3 (%+v)", len(ticks), ticks)
	}
	if ticks[0].Seconds != 3 || ticks[2].Seconds != 1 {
		t.Fatalf("unexpected remaining values: %+v", ticks)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}
	if clk.Pending() != 0 {
		t.Fatalf("countdown left %d timers armed after expiry", clk.Pending())
	}
}

func TestCountdownStopPreventsFurtherCallbacks(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(time.Time{})
	target := clk.Now().Add(time.Minute)

	ticks, expired := 0, 0
	stop := Start(target, func(Remaining) { ticks++ }, func() { expired++ }, WithClock(clk))

	clk.Advance(2 * time.Second)
	before := ticks
	stop()
	stop() // idempotent

	clk.Advance(5 * time.Minute)
	if ticks != before {
		t.Fatalf("ticks after stop: %d -> %d", before, ticks)
	}
	if expired != 0 {
		t.Fatalf("onExpire ran after stop")
	}
}

func TestCountdownStopDisarmsPendingTick(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(time.Time{})
	stop := Start(clk.Now().Add(time.Hour), func(Remaining) {}, func() {}, WithClock(clk))

	clk.Advance(0)
	if n := clk.Pending(); n != 1 {
		t.Fatalf("pending before stop = %d, want 1", n)
	}
	stop()
	if n := clk.Pending(); n != 0 {
		t.Fatalf("pending after stop = %d, want 0", n)
	}
}

func TestCountdownStopFromInsideTick(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(time.Time{})
	target := clk.Now().Add(time.Hour)

	var stop StopFunc
	ticks := 0
	stop = Start(target, func(Remaining) {
		ticks++
		if ticks == 2 {
			stop()
		}
	}, nil, WithClock(clk))

	clk.Advance(time.Minute)
	if ticks != 2 {
		t.Fatalf("ticks = %d, want 2", ticks)
	}
}

func TestCountdownCoarseIntervalExpiresOnTime(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(time.Time{})
	start := clk.Now()
	target := start.Add(45 * time.Second)

	var expiredAt time.Time
	ticks := 0
	Start(target, func(Remaining) { ticks++ }, func() { expiredAt = clk.Now() },
		WithClock(clk), WithInterval(30*time.Second))

	clk.Advance(2 * time.Minute)
	if ticks != 2 {
		t.Fatalf("ticks = %d, want 2 (t=0s, t=30s)", ticks)
	}
	if !expiredAt.Equal(target) {
		t.Fatalf("expired at %v, want %v", expiredAt, target)
	}
}

func TestCountdownPastTargetExpiresImmediately(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(time.Time{})
	ticks, expired := 0, 0
	Start(clk.Now().Add(-time.Minute), func(Remaining) { ticks++ }, func() { expired++ }, WithClock(clk))
	clk.Advance(0)
	if ticks != 0 || expired != 1 {
		t.Fatalf("ticks=%d expired=%d, want 0/1", ticks, expired)
	}
}

func TestIndependentCountdowns(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(time.Time{})
	now := clk.Now()
	var aExp, bExp bool
	stopA := Start(now.Add(2*time.Second), nil, func() { aExp = true }, WithClock(clk))
	Start(now.Add(2*time.Second), nil, func() { bExp = true }, WithClock(clk))
	stopA()
	clk.Advance(5 * time.Second)
	if aExp || !bExp {
		t.Fatalf("aExpired=%v bExpired=%v, want false/true", aExp, bExp)
	}
}
