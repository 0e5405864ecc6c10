package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/iliyamo/ticket-booking-core/internal/apperr"
	"github.com/iliyamo/ticket-booking-core/internal/model"
)

// ErrStale is returned by Store.Update when the stored ticket is no longer in
// the expected status.
var ErrStale = errors.New("ledger: ticket changed concurrently")

// Store persists tickets. CreateBatch writes a booking's tickets as one
// unit and returns how many were durably written. Update replaces a ticket
// only while its stored status still equals expected.
type Store interface {
	CreateBatch(ctx context.Context, tickets []model.Ticket) (int, error)
	Get(ctx context.Context, id string) (model.Ticket, error)
	Update(ctx context.Context, t model.Ticket, expected model.TicketStatus) error
	ListByHolder(ctx context.Context, holderID string) ([]model.Ticket, error)
	HasActive(ctx context.Context, eventID, holderID string) (bool, error)
	ActiveSeatHolders(ctx context.Context, eventID string) (map[string]string, error)
	SetVerificationPayload(ctx context.Context, id, payload string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]model.Ticket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string]model.Ticket)}
}

func (m *MemoryStore) CreateBatch(_ context.Context, tickets []model.Ticket) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tickets {
		if _, ok := m.tickets[t.ID]; ok {
			return 0, errors.New("ledger: duplicate ticket id " + t.ID)
		}
	}
	for _, t := range tickets {
		m.tickets[t.ID] = t
	}
	return len(tickets), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (model.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[id]
	if !ok {
		return model.Ticket{}, apperr.ErrTicketNotFound
	}
	return t, nil
}

func (m *MemoryStore) Update(_ context.Context, t model.Ticket, expected model.TicketStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tickets[t.ID]
	if !ok {
		return apperr.ErrTicketNotFound
	}
	if cur.Status != expected {
		return ErrStale
	}
	m.tickets[t.ID] = t
	return nil
}

func (m *MemoryStore) ListByHolder(_ context.Context, holderID string) ([]model.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Ticket
	for _, t := range m.tickets {
		if t.HolderID == holderID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SeatID < out[j].SeatID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) HasActive(_ context.Context, eventID, holderID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tickets {
		if t.EventID == eventID && t.HolderID == holderID && t.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ActiveSeatHolders(_ context.Context, eventID string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string)
	for _, t := range m.tickets {
		if t.EventID == eventID && t.Status.Active() {
			out[t.SeatID] = t.HolderID
		}
	}
	return out, nil
}

func (m *MemoryStore) SetVerificationPayload(_ context.Context, id, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return apperr.ErrTicketNotFound
	}
	if t.VerificationPayload == "" {
		t.VerificationPayload = payload
		m.tickets[id] = t
	}
	return nil
}
