package inventory

import (
	"context"
	"sync"

	"github.com/iliyamo/ticket-booking-core/internal/model"
)

// MemoryStore keeps seat maps in process memory. It is used by tests and by
// single-process development setups.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string][]model.SeatSlot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]model.SeatSlot)}
}

func (m *MemoryStore) Seats(_ context.Context, eventID string) ([]model.SeatSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SeatSlot(nil), m.events[eventID]...), nil
}

func (m *MemoryStore) ReplaceSeats(_ context.Context, eventID string, seats []model.SeatSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[eventID] = append([]model.SeatSlot(nil), seats...)
	return nil
}

func (m *MemoryStore) UpdateSeats(_ context.Context, eventID string, seats []model.SeatSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.events[eventID]
	index := make(map[string]int, len(current))
	for i, s := range current {
		index[s.SeatID] = i
	}
	for _, s := range seats {
		if i, ok := index[s.SeatID]; ok {
			current[i].Occupied = s.Occupied
			current[i].Holder = s.Holder
		}
	}
	return nil
}

func (m *MemoryStore) ClaimSeats(_ context.Context, eventID, holderID string, seatIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.events[eventID]
	index := make(map[string]int, len(current))
	for i, s := range current {
		index[s.SeatID] = i
	}
	for _, id := range seatIDs {
		if i, ok := index[id]; !ok || current[i].Occupied {
			return ErrSeatTaken
		}
	}
	for _, id := range seatIDs {
		i := index[id]
		current[i].Occupied = true
		current[i].Holder = holderID
	}
	return nil
}
