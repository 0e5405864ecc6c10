package booking

import (
	"context"
	"sync"

	"github.com/iliyamo/ticket-booking-core/internal/apperr"
	"github.com/iliyamo/ticket-booking-core/internal/model"
)

// MemoryEvents is an in-process EventDirectory.
type MemoryEvents struct {
	mu     sync.RWMutex
	events map[string]model.Event
}

func NewMemoryEvents(events ...model.Event) *MemoryEvents {
	m := &MemoryEvents{events: make(map[string]model.Event, len(events))}
	for _, ev := range events {
		m.events[ev.ID] = ev
	}
	return m
}

// Put adds or replaces an event.
func (m *MemoryEvents) Put(ev model.Event) {
	m.mu.Lock()
	m.events[ev.ID] = ev
	m.mu.Unlock()
}

func (m *MemoryEvents) Event(_ context.Context, id string) (model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	if !ok {
		return model.Event{}, apperr.ErrEventNotFound
	}
	return ev, nil
}
