// Package storage persists event records and the status transition audit trail.
//
// Drivers:
//   - file: JSON snapshot for events plus an append-only JSON Lines transition log
//   - sqlite: a single SQLite database (modernc.org/sqlite, no cgo)
package storage
