package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	logx "eventpulse/pkg/logx"
)

// failureReporter throttles listener failure logs per event. Failures that
// are not logged are counted and reported with the next logged one.
type failureReporter struct {
	mu         sync.Mutex
	interval   time.Duration
	limiters   map[string]*rate.Limiter
	suppressed map[string]int
	total      atomic.Uint64
}

func newFailureReporter(interval time.Duration) *failureReporter {
	return &failureReporter{
		interval:   interval,
		limiters:   map[string]*rate.Limiter{},
		suppressed: map[string]int{},
	}
}

func (r *failureReporter) setInterval(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interval = d
	for _, l := range r.limiters {
		l.SetLimit(rate.Every(d))
	}
}

// allow reports whether a failure for eventID should be logged at now, and
// how many failures were swallowed since the last logged one.
func (r *failureReporter) allow(eventID string, now time.Time) (bool, int) {
	r.total.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.limiters[eventID]
	if l == nil {
		l = rate.NewLimiter(rate.Every(r.interval), 1)
		r.limiters[eventID] = l
	}
	if !l.AllowN(now, 1) {
		r.suppressed[eventID]++
		return false, 0
	}
	n := r.suppressed[eventID]
	delete(r.suppressed, eventID)
	return true, n
}

func (s *Service) reportListenerPanic(eventID, listenerID string, err error, stack string) {
	ok, suppressed := s.failures.allow(eventID, s.clk.Now())
	if !ok {
		return
	}
	fields := []logx.Field{
		logx.String("event", eventID),
		logx.String("listener", listenerID),
		logx.Err(err),
	}
	if suppressed > 0 {
		fields = append(fields, logx.Int("suppressed", suppressed))
	}
	if s.log.Enabled(logx.LevelDebug) {
		fields = append(fields, logx.Stack(stack))
	}
	s.log.Error("status listener failed", fields...)
}
