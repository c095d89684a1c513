// Package source loads event records for the scheduler from a file, an
// iCalendar feed or the configured store.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"eventpulse/internal/config"
	"eventpulse/internal/lifecycle"
	"eventpulse/internal/storage"
	logx "eventpulse/pkg/logx"
)

var ErrNoStore = errors.New("source: storage driver selected but no store is open")

// Source produces the full current set of event records.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]lifecycle.EventRecord, error)
}

// Watcher is implemented by sources that can report changes themselves.
type Watcher interface {
	// Watch calls onChange after the underlying data changed, until ctx is done.
	Watch(ctx context.Context, onChange func()) error
}

// Open builds the source selected by cfg. store is only used by the storage
// driver and may be nil otherwise.
func Open(cfg config.SourceConfig, store storage.Store, log logx.Logger) (Source, error) {
	log = log.With(logx.String("comp", "source"), logx.String("driver", cfg.Driver))
	switch strings.TrimSpace(cfg.Driver) {
	case config.SourceFile:
		return NewFile(cfg.Path, log), nil
	case config.SourceICal:
		return NewICal(cfg.Path, log), nil
	case config.SourceStorage:
		if store == nil {
			return nil, ErrNoStore
		}
		return NewStore(store), nil
	default:
		return nil, fmt.Errorf("%w %q", config.ErrUnknownSourceDriver, cfg.Driver)
	}
}

// StoreSource reads the events saved in a storage.Store.
type StoreSource struct {
	store storage.Store
}

func NewStore(st storage.Store) *StoreSource { return &StoreSource{store: st} }

func (s *StoreSource) Name() string { return "storage" }

func (s *StoreSource) Load(ctx context.Context) ([]lifecycle.EventRecord, error) {
	return s.store.LoadEvents(ctx)
}
