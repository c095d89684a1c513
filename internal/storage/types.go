package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventpulse/internal/lifecycle"
)

var (
	ErrDisabled      = errors.New("storage: disabled")
	ErrClosed        = errors.New("storage: closed")
	ErrPathRequired  = errors.New("storage: path is required")
	ErrUnknownDriver = errors.New("storage: unknown driver")
)

// Config configures storage. An empty Driver or "none" disables it.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Transition is one recorded status change of an event.
type Transition struct {
	ID      string                 `json:"id"`
	EventID string                 `json:"event_id"`
	From    lifecycle.StatusResult `json:"from"`
	To      lifecycle.StatusResult `json:"to"`
	At      time.Time              `json:"at"`
}

// Store is the persistence API used by the daemon.
type Store interface {
	// LoadEvents returns the saved records in the order they were saved.
	LoadEvents(ctx context.Context) ([]lifecycle.EventRecord, error)
	// SaveEvents replaces all saved records.
	SaveEvents(ctx context.Context, events []lifecycle.EventRecord) error
	AppendTransition(ctx context.Context, t Transition) error
	// Transitions returns recorded transitions, oldest first. An empty eventID
	// matches all events; limit <= 0 means no limit (most recent kept).
	Transitions(ctx context.Context, eventID string, limit int) ([]Transition, error)
	Close() error
}

// prepare fills the generated fields of t.
func (t Transition) prepare() Transition {
	if strings.TrimSpace(t.ID) == "" {
		t.ID = uuid.NewString()
	}
	if t.At.IsZero() {
		t.At = time.Now()
	}
	return t
}

// tail keeps the last limit items of ts.
func tail(ts []Transition, limit int) []Transition {
	if limit > 0 && len(ts) > limit {
		return ts[len(ts)-limit:]
	}
	return ts
}
