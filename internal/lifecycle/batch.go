package lifecycle

import "time"

// BatchOptions selects which computations BatchProcess runs.
type BatchOptions struct {
	IncludeStatusCalculation bool `json:"include_status_calculation"`
	IncludeTimeCalculations  bool `json:"include_time_calculations"`
	IncludeConflictDetection bool `json:"include_conflict_detection"`
}

// AllComputations enables every batch computation.
func AllComputations() BatchOptions {
	return BatchOptions{
		IncludeStatusCalculation: true,
		IncludeTimeCalculations:  true,
		IncludeConflictDetection: true,
	}
}

// EnrichedEvent is an input record plus the fields computed for it.
type EnrichedEvent struct {
	EventRecord
	Status   *StatusResult `json:"status,omitempty"`
	TimeInfo *TimeInfo     `json:"time_info,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}

// StatusUpdate is one entry of BatchResult.StatusUpdates.
type StatusUpdate struct {
	EventID string       `json:"event_id"`
	Status  StatusResult `json:"status"`
}

// BatchResult is a one-shot snapshot. It is never kept in sync afterwards.
type BatchResult struct {
	GeneratedAt   time.Time       `json:"generated_at"`
	Events        []EnrichedEvent `json:"events"`
	Conflicts     []Conflict      `json:"conflicts"`
	Processed     int             `json:"processed"`
	StatusUpdates []StatusUpdate  `json:"status_updates"`
}

// BatchProcess runs the selected computations synchronously over events.
func BatchProcess(events []EventRecord, opts BatchOptions, now time.Time) BatchResult {
	res := BatchResult{
		GeneratedAt:   now,
		Events:        make([]EnrichedEvent, 0, len(events)),
		Conflicts:     []Conflict{},
		StatusUpdates: []StatusUpdate{},
	}
	for _, e := range events {
		ee := EnrichedEvent{EventRecord: e, Warnings: e.Warnings()}
		if opts.IncludeStatusCalculation {
			st := CalculateStatus(e, now)
			ee.Status = &st
			res.StatusUpdates = append(res.StatusUpdates, StatusUpdate{EventID: e.ID, Status: st})
		}
		if opts.IncludeTimeCalculations {
			ti := CalculateTimeInfo(e, now)
			ee.TimeInfo = &ti
		}
		res.Events = append(res.Events, ee)
	}
	if opts.IncludeConflictDetection {
		if c := DetectConflicts(events); c != nil {
			res.Conflicts = c
		}
	}
	res.Processed = len(res.Events)
	return res
}
