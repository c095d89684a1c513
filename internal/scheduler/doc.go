// Package scheduler keeps the lifecycle status of tracked events current.
//
// The service owns a merged trigger queue across all tracked events and a
// single armed timer aimed at the queue head. When the timer fires it:
//   - pops every trigger that is due
//   - recomputes the status of the affected events
//   - notifies per-event listeners of real changes
//   - replans the affected events and re-arms
//
// State is guarded by a mutex; listeners always run without it held, so Stop
// and OffStatusChange may be called from inside a listener.
package scheduler
