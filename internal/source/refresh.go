package source

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "eventpulse/pkg/logx"
)

// RefreshParser accepts 5-field and 6-field (with seconds) specs and descriptors.
var RefreshParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseRefresh normalizes a refresh setting into a cron spec.
//
// Accepted forms:
//   - cron: "*/10 * * * *", "@hourly", "@every 5m" (optionally prefixed "cron:")
//   - duration: "15m", "2h30m" (becomes "@every 15m")
//   - HH:MM interval: "01:30" (every 1h30m)
func ParseRefresh(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("refresh schedule required")
	}
	if strings.HasPrefix(strings.ToLower(s), "cron:") {
		s = strings.TrimSpace(s[len("cron:"):])
		return s, checkCron(s)
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return s, checkCron(s)
	}
	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return "", fmt.Errorf("invalid minutes in %q", raw)
		}
		return every(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return "", fmt.Errorf("invalid refresh %q (use cron like '*/10 * * * *', HH:MM like '01:30', or duration like '15m')", raw)
	}
	return every(d)
}

func every(d time.Duration) (string, error) {
	if d <= 0 {
		return "", fmt.Errorf("refresh interval must be > 0")
	}
	return "@every " + d.String(), nil
}

func checkCron(spec string) error {
	if _, err := RefreshParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// Refresher runs a reload function on a cron schedule. Apply swaps the
// schedule at runtime; an empty schedule disables it.
type Refresher struct {
	mu   sync.Mutex
	log  logx.Logger
	loc  *time.Location
	run  func()
	c    *cron.Cron
	spec string
}

func NewRefresher(run func(), loc *time.Location, log logx.Logger) *Refresher {
	if loc == nil {
		loc = time.Local
	}
	return &Refresher{run: run, loc: loc, log: log}
}

// Apply (re)installs the schedule. The previous cron is stopped first.
func (r *Refresher) Apply(raw string) error {
	spec := ""
	if strings.TrimSpace(raw) != "" {
		var err error
		if spec, err = ParseRefresh(raw); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if spec == r.spec && (r.c != nil) == (spec != "") {
		return nil
	}
	r.stopLocked()
	r.spec = spec
	if spec == "" {
		r.log.Debug("source refresh disabled")
		return nil
	}
	c := cron.New(cron.WithParser(RefreshParser), cron.WithLocation(r.loc))
	if _, err := c.AddFunc(spec, r.run); err != nil {
		r.spec = ""
		return err
	}
	c.Start()
	r.c = c
	r.log.Info("source refresh scheduled", logx.String("spec", spec), logx.Time("next", r.nextLocked(time.Now())))
	return nil
}

// Next reports the next scheduled refresh, or zero when disabled.
func (r *Refresher) Next() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextLocked(time.Now())
}

func (r *Refresher) nextLocked(now time.Time) time.Time {
	if r.c == nil || r.spec == "" {
		return time.Time{}
	}
	sched, err := RefreshParser.Parse(r.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(now.In(r.loc))
}

// Stop halts the schedule and waits for a running reload to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	r.spec = ""
}

func (r *Refresher) stopLocked() {
	if r.c == nil {
		return
	}
	<-r.c.Stop().Done()
	r.c = nil
}
