package lifecycle

import (
	"time"

	"github.com/dustin/go-humanize"
)

// TimeInfo is the per-event timing summary used by the batch snapshot.
// Durations are signed: negative values are already in the past.
type TimeInfo struct {
	UntilRegistrationStart time.Duration `json:"until_registration_start"`
	UntilRegistrationEnd   time.Duration `json:"until_registration_end"`
	UntilStart             time.Duration `json:"until_start"`
	UntilEnd               time.Duration `json:"until_end"`
	UntilCertificates      time.Duration `json:"until_certificates"`
	Duration               time.Duration `json:"duration"`

	// NextBoundary is nil when the event needs no further scheduling.
	NextBoundary   *Trigger `json:"next_boundary,omitempty"`
	NextBoundaryIn string   `json:"next_boundary_in,omitempty"`
}

// CalculateTimeInfo derives the timing summary of e at now.
func CalculateTimeInfo(e EventRecord, now time.Time) TimeInfo {
	ti := TimeInfo{
		UntilRegistrationStart: since(e.RegistrationStart, now),
		UntilRegistrationEnd:   since(e.RegistrationEnd, now),
		UntilStart:             since(e.StartTime, now),
		UntilEnd:               since(e.effectiveEnd(), now),
		UntilCertificates:      since(e.CertificateTime(), now),
	}
	if !e.StartTime.IsZero() {
		ti.Duration = e.effectiveEnd().Sub(e.StartTime)
	}
	if next, ok := NextTrigger(e, now); ok {
		ti.NextBoundary = &next
		ti.NextBoundaryIn = HumanizeUntil(next.FiresAt, now)
	}
	return ti
}

func since(t, now time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	return t.Sub(now)
}

// HumanizeUntil renders the distance from now to target,
// e.g. "3 hours from now" or "2 minutes ago".
func HumanizeUntil(target, now time.Time) string {
	return humanize.RelTime(target, now, "ago", "from now")
}
