package app

import (
	"context"
	"time"

	"eventpulse/internal/scheduler"
	"eventpulse/internal/storage"
)

const recordTimeout = 2 * time.Second

// storeRecorder writes scheduler status changes to the transition log.
type storeRecorder struct {
	store storage.Store
}

func (r storeRecorder) RecordTransition(c scheduler.StatusChange) error {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	return r.store.AppendTransition(ctx, storage.Transition{
		EventID: c.EventID,
		From:    c.Old,
		To:      c.New,
		At:      c.At,
	})
}
