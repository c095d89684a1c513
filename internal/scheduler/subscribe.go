package scheduler

import (
	"github.com/google/uuid"
)

// OnStatusChange registers fn for status changes of eventID. Listeners of one
// event run in registration order. The returned handle removes exactly this
// registration, even if fn was registered more than once.
func (s *Service) OnStatusChange(eventID string, fn Listener) Subscription {
	sub := Subscription{EventID: eventID, ID: uuid.New()}
	if fn == nil {
		return sub
	}
	s.mu.Lock()
	s.listeners[eventID] = append(s.listeners[eventID], &listenerEntry{id: sub.ID, fn: fn})
	s.mu.Unlock()
	return sub
}

// OffStatusChange removes the registration behind sub. It reports whether the
// registration was still present. A listener removed during a delivery is not
// called for the remainder of it. Removal does not wait for a call that
// another goroutine already started.
func (s *Service) OffStatusChange(sub Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.listeners[sub.EventID]
	for i, l := range ls {
		if l.id != sub.ID {
			continue
		}
		l.removed = true
		ls = append(ls[:i:i], ls[i+1:]...)
		if len(ls) == 0 {
			delete(s.listeners, sub.EventID)
		} else {
			s.listeners[sub.EventID] = ls
		}
		return true
	}
	return false
}
