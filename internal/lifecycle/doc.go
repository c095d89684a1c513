// Package lifecycle holds the pure, timer-free part of event scheduling:
// status calculation, trigger planning, venue conflict detection and the
// one-shot batch snapshot used for first paint.
//
// Every function takes the reference time explicitly; nothing in this package
// reads the wall clock except the *Now convenience wrappers.
package lifecycle
