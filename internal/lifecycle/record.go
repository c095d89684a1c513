package lifecycle

import (
	"strings"
	"time"
)

// EventRecord is the externally supplied event definition.
// The scheduler treats it as read-only.
type EventRecord struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Venue             string    `json:"venue"`
	RegistrationStart time.Time `json:"registration_start"`
	RegistrationEnd   time.Time `json:"registration_end"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	// CertificateAvailableFrom defaults to EndTime when nil.
	CertificateAvailableFrom *time.Time `json:"certificate_available_from,omitempty"`
	// Draft marks an unpublished event; it never leaves the Draft status.
	Draft    bool     `json:"draft,omitempty"`
	Audience []string `json:"audience,omitempty"`
}

// CertificateTime returns the effective certificate boundary.
func (e EventRecord) CertificateTime() time.Time {
	if e.CertificateAvailableFrom != nil && !e.CertificateAvailableFrom.IsZero() {
		return *e.CertificateAvailableFrom
	}
	return e.effectiveEnd()
}

// effectiveEnd treats a missing end time as an instantaneous event.
func (e EventRecord) effectiveEnd() time.Time {
	if e.EndTime.IsZero() {
		return e.StartTime
	}
	return e.EndTime
}

// Schedulable reports whether the record carries enough data to leave Draft.
func (e EventRecord) Schedulable() bool {
	return !e.Draft && !e.StartTime.IsZero()
}

// Warnings lists data-quality issues. They never make a record unusable.
func (e EventRecord) Warnings() []string {
	var out []string
	if strings.TrimSpace(e.ID) == "" {
		out = append(out, "missing id")
	}
	if e.StartTime.IsZero() {
		out = append(out, "missing start_time")
	}
	if e.EndTime.IsZero() {
		out = append(out, "missing end_time")
	}
	if !e.RegistrationStart.IsZero() && !e.RegistrationEnd.IsZero() && e.RegistrationEnd.Before(e.RegistrationStart) {
		out = append(out, "registration_end before registration_start")
	}
	if !e.StartTime.IsZero() && !e.EndTime.IsZero() && e.EndTime.Before(e.StartTime) {
		out = append(out, "end_time before start_time")
	}
	if !e.RegistrationEnd.IsZero() && !e.StartTime.IsZero() && e.RegistrationEnd.After(e.StartTime) {
		out = append(out, "registration_end after start_time")
	}
	if e.CertificateAvailableFrom != nil && !e.EndTime.IsZero() && e.CertificateAvailableFrom.Before(e.EndTime) {
		out = append(out, "certificate_available_from before end_time")
	}
	return out
}
