package lifecycle

import "time"

// CalculateStatus derives the status of e at now.
//
// Rules are evaluated top to bottom and the first match wins, so an empty
// window (e.g. registration_start == registration_end) is simply skipped.
func CalculateStatus(e EventRecord, now time.Time) StatusResult {
	if !e.Schedulable() {
		return draftResult()
	}
	end := e.effectiveEnd()
	switch {
	case now.Before(e.RegistrationStart):
		return newResult(RegistrationNotStarted)
	case now.Before(e.RegistrationEnd):
		return newResult(RegistrationOpen)
	case now.Before(e.StartTime):
		return newResult(RegistrationClosed)
	case now.Before(end):
		return newResult(EventStarted)
	case now.Before(e.CertificateTime()):
		return newResult(EventEnded)
	default:
		return newResult(CertificateAvailable)
	}
}

// CalculateStatusNow is CalculateStatus against the wall clock.
func CalculateStatusNow(e EventRecord) StatusResult {
	return CalculateStatus(e, time.Now())
}
