package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"eventpulse/internal/config"
	"eventpulse/internal/lifecycle"
	logx "eventpulse/pkg/logx"
)

// Custom VEVENT properties carrying the registration window and the
// certificate boundary. Values use the DATE-TIME format of DTSTART.
const (
	PropRegistrationStart    = "X-REGISTRATION-START"
	PropRegistrationEnd      = "X-REGISTRATION-END"
	PropCertificateAvailable = "X-CERTIFICATE-AVAILABLE"
)

const fetchTimeout = 30 * time.Second

// ICalSource reads VEVENTs from a local .ics file or an http(s) URL.
//
// Mapping: UID->id, SUMMARY->name, LOCATION->venue, DTSTART/DTEND->start/end,
// CATEGORIES->audience. CLASS:PRIVATE or STATUS:TENTATIVE marks a draft and
// STATUS:CANCELLED events are skipped.
type ICalSource struct {
	path   string
	log    logx.Logger
	client *http.Client
}

func NewICal(path string, log logx.Logger) *ICalSource {
	return &ICalSource{path: path, log: log, client: &http.Client{Timeout: fetchTimeout}}
}

func (s *ICalSource) Name() string { return "ical:" + s.path }

func (s *ICalSource) remote() bool {
	p := strings.ToLower(s.path)
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

func (s *ICalSource) Load(ctx context.Context) ([]lifecycle.EventRecord, error) {
	r, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	events, skipped, err := parseCalendar(r, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if skipped > 0 {
		s.log.Debug("cancelled events skipped", logx.Int("count", skipped))
	}
	return events, nil
}

// Watch reports changes of a local calendar file. Remote feeds rely on the
// refresh schedule instead and return immediately.
func (s *ICalSource) Watch(ctx context.Context, onChange func()) error {
	if s.remote() {
		return nil
	}
	return config.WatchFile(ctx, s.path, s.log, onChange)
}

func (s *ICalSource) open(ctx context.Context) (io.ReadCloser, error) {
	if !s.remote() {
		return os.Open(s.path)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch calendar: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch calendar: unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

func parseCalendar(r io.Reader, loc *time.Location) ([]lifecycle.EventRecord, int, error) {
	dec := ical.NewDecoder(r)
	var (
		out     []lifecycle.EventRecord
		skipped int
	)
	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("decode calendar: %w", err)
		}
		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			if strings.EqualFold(propText(comp, ical.PropStatus), "CANCELLED") {
				skipped++
				continue
			}
			out = append(out, eventFromComponent(comp, loc))
		}
	}
	return out, skipped, nil
}

func eventFromComponent(comp *ical.Component, loc *time.Location) lifecycle.EventRecord {
	e := lifecycle.EventRecord{
		ID:                propText(comp, ical.PropUID),
		Name:              propText(comp, ical.PropSummary),
		Venue:             propText(comp, ical.PropLocation),
		StartTime:         propTime(comp, ical.PropDateTimeStart, loc),
		EndTime:           propTime(comp, ical.PropDateTimeEnd, loc),
		RegistrationStart: propTime(comp, PropRegistrationStart, loc),
		RegistrationEnd:   propTime(comp, PropRegistrationEnd, loc),
	}
	if t := propTime(comp, PropCertificateAvailable, loc); !t.IsZero() {
		e.CertificateAvailableFrom = &t
	}
	if cats := propText(comp, ical.PropCategories); cats != "" {
		for _, c := range strings.Split(cats, ",") {
			if c = strings.TrimSpace(c); c != "" {
				e.Audience = append(e.Audience, c)
			}
		}
	}
	e.Draft = strings.EqualFold(propText(comp, ical.PropClass), "PRIVATE") ||
		strings.EqualFold(propText(comp, ical.PropStatus), "TENTATIVE")

	// Without a UID fall back to a deterministic id.
	if e.ID == "" && !e.StartTime.IsZero() {
		e.ID = e.StartTime.UTC().Format(time.RFC3339) + "-" + e.Name
	}
	// An open-ended registration closes when the event starts.
	if e.RegistrationEnd.IsZero() && !e.RegistrationStart.IsZero() {
		e.RegistrationEnd = e.StartTime
	}
	return e
}

func propText(comp *ical.Component, name string) string {
	p := comp.Props.Get(name)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

// propTime parses a DATE-TIME property. Custom X- properties carry no
// default value type, so their raw value is parsed as a fallback.
func propTime(comp *ical.Component, name string, loc *time.Location) time.Time {
	p := comp.Props.Get(name)
	if p == nil {
		return time.Time{}
	}
	if t, err := p.DateTime(loc); err == nil {
		return t
	}
	if tz := p.Params.Get(ical.ParamTimezoneID); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	v := strings.TrimSpace(p.Value)
	for _, layout := range []string{"20060102T150405Z", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	for _, layout := range []string{"20060102T150405", "2006-01-02T15:04:05", "20060102"} {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}
