// Package inventory owns the seat map of each event. All mutations of an
// event's seats run under that event's lock, so finding a free seat and
// marking it occupied is one indivisible step for every caller.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-booking-core/internal/apperr"
	"github.com/iliyamo/ticket-booking-core/internal/lock"
	"github.com/iliyamo/ticket-booking-core/internal/model"
)

// Store persists seat slots. Seats returns slots ordered by position and an
// empty slice when the event has no inventory yet. UpdateSeats writes the
// occupancy of the given slots, matched by seat id, as one unit.
//
// ClaimSeats marks seatIDs occupied by holderID only if every one of them is
// still free, in one atomic step. When any seat is occupied or unknown it
// writes nothing and returns ErrSeatTaken. It is the store-level guard that
// keeps a seat from being sold twice even when the event lock does not
// exclude another writer.
type Store interface {
	Seats(ctx context.Context, eventID string) ([]model.SeatSlot, error)
	ReplaceSeats(ctx context.Context, eventID string, seats []model.SeatSlot) error
	UpdateSeats(ctx context.Context, eventID string, seats []model.SeatSlot) error
	ClaimSeats(ctx context.Context, eventID, holderID string, seatIDs []string) error
}

// ErrSeatTaken is returned by Store.ClaimSeats when a seat was no longer
// free at write time.
var ErrSeatTaken = errors.New("inventory: seat already taken")

// claimAttempts bounds how often ReserveSeats re-reads the seat map after
// losing a race for automatically picked seats.
const claimAttempts = 3

// HolderSource reports which seats are held by active tickets, keyed by
// seat id. It is used to rebuild a damaged inventory.
type HolderSource interface {
	ActiveSeatHolders(ctx context.Context, eventID string) (map[string]string, error)
}

// Inventory serializes seat mutations per event.
type Inventory struct {
	store   Store
	holders HolderSource
	locker  lock.Locker
	log     logrus.FieldLogger
}

// New returns an Inventory. All dependencies must be non-nil.
func New(store Store, holders HolderSource, locker lock.Locker, log logrus.FieldLogger) *Inventory {
	if store == nil || holders == nil || locker == nil || log == nil {
		panic("nil dependency passed to inventory.New")
	}
	return &Inventory{store: store, holders: holders, locker: locker, log: log}
}

func lockKey(eventID string) string { return "inventory:" + eventID }

// EnsureInventory makes sure eventID has totalSeats well-formed slots. An
// intact inventory is returned untouched. A missing or malformed one is
// regenerated with labels S001… and every seat that was occupied, either in
// the old slots or by an active ticket, stays occupied by its holder.
func (inv *Inventory) EnsureInventory(ctx context.Context, eventID string, totalSeats int) (model.SeatInventory, error) {
	if totalSeats < 0 {
		return model.SeatInventory{}, apperr.New(apperr.KindInvalidRequest, "total seats must not be negative")
	}
	unlock, err := inv.locker.Lock(ctx, lockKey(eventID))
	if err != nil {
		return model.SeatInventory{}, fmt.Errorf("inventory: lock %s: %w", eventID, err)
	}
	defer unlock()

	seats, err := inv.store.Seats(ctx, eventID)
	if err != nil {
		return model.SeatInventory{}, fmt.Errorf("inventory: load %s: %w", eventID, err)
	}
	current := model.SeatInventory{EventID: eventID, TotalSeats: totalSeats, Seats: seats}
	if current.Intact() {
		return current, nil
	}

	holders, err := inv.holders.ActiveSeatHolders(ctx, eventID)
	if err != nil {
		return model.SeatInventory{}, fmt.Errorf("inventory: load seat holders %s: %w", eventID, err)
	}
	fresh := regenerate(totalSeats, seats, holders)
	for seatID := range holders {
		if _, ok := fresh.index[seatID]; !ok {
			inv.log.WithFields(logrus.Fields{"event_id": eventID, "seat_id": seatID}).
				Warn("active ticket references a seat outside the event capacity")
		}
	}
	if err := inv.store.ReplaceSeats(ctx, eventID, fresh.seats); err != nil {
		return model.SeatInventory{}, fmt.Errorf("inventory: replace %s: %w", eventID, err)
	}
	inv.log.WithFields(logrus.Fields{
		"event_id":    eventID,
		"total_seats": totalSeats,
		"found_slots": len(seats),
	}).Info("seat inventory regenerated")
	return model.SeatInventory{EventID: eventID, TotalSeats: totalSeats, Seats: fresh.seats}, nil
}

type generated struct {
	seats []model.SeatSlot
	index map[string]int
}

func regenerate(total int, old []model.SeatSlot, holders map[string]string) generated {
	g := generated{seats: make([]model.SeatSlot, total), index: make(map[string]int, total)}
	for i := range g.seats {
		id := model.SeatLabel(i)
		g.seats[i] = model.SeatSlot{SeatID: id, Position: i}
		g.index[id] = i
	}
	for _, s := range old {
		if i, ok := g.index[s.SeatID]; ok && s.Occupied && s.Holder != "" {
			g.seats[i].Occupied = true
			g.seats[i].Holder = s.Holder
		}
	}
	// Tickets are the durable record; they win over whatever the old slots said.
	for seatID, holder := range holders {
		if i, ok := g.index[seatID]; ok {
			g.seats[i].Occupied = true
			g.seats[i].Holder = holder
		}
	}
	return g
}

// ReserveSeat marks one seat occupied by holderID. With a seat id it takes
// exactly that seat or fails with SeatUnavailable; with an empty seat id it
// takes the lowest-ordered free seat or fails with NoSeatsAvailable.
func (inv *Inventory) ReserveSeat(ctx context.Context, eventID, seatID, holderID string) (model.SeatSlot, error) {
	var preferred []string
	if seatID != "" {
		preferred = []string{seatID}
	}
	slots, err := inv.ReserveSeats(ctx, eventID, 1, preferred, holderID)
	if err != nil {
		return model.SeatSlot{}, err
	}
	return slots[0], nil
}

// ReserveSeats reserves count seats for holderID as one group: either all
// of them are held when it returns or none are. Preferred seats are taken
// first and must all be free; the remainder is filled with the
// lowest-ordered free seats.
func (inv *Inventory) ReserveSeats(ctx context.Context, eventID string, count int, preferred []string, holderID string) ([]model.SeatSlot, error) {
	if holderID == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "holder is required")
	}
	if count < 1 {
		return nil, apperr.New(apperr.KindInvalidRequest, "seat count must be at least 1")
	}
	preferred = dedupe(preferred)
	if len(preferred) > count {
		return nil, apperr.New(apperr.KindInvalidRequest, "more preferred seats than requested seats")
	}

	unlock, err := inv.locker.Lock(ctx, lockKey(eventID))
	if err != nil {
		return nil, fmt.Errorf("inventory: lock %s: %w", eventID, err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		slots, err := inv.tryReserve(ctx, eventID, count, preferred, holderID)
		if !errors.Is(err, ErrSeatTaken) {
			return slots, err
		}
		// Another writer got there first. Preferred seats cannot be
		// substituted; automatic picks are retried on a fresh seat map.
		if len(preferred) > 0 || attempt == claimAttempts {
			inv.log.WithFields(logrus.Fields{"event_id": eventID, "attempt": attempt}).Warn("seat claim lost to a concurrent writer")
			return nil, apperr.New(apperr.KindSeatUnavailable, "requested seats were taken concurrently")
		}
	}
}

// tryReserve picks seats from the current seat map and claims them. It
// returns ErrSeatTaken when the claim loses a race.
func (inv *Inventory) tryReserve(ctx context.Context, eventID string, count int, preferred []string, holderID string) ([]model.SeatSlot, error) {
	seats, err := inv.store.Seats(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("inventory: load %s: %w", eventID, err)
	}
	index := make(map[string]int, len(seats))
	for i, s := range seats {
		index[s.SeatID] = i
	}

	picked := make([]int, 0, count)
	taken := make(map[int]bool, count)
	for _, id := range preferred {
		i, ok := index[id]
		if !ok || seats[i].Occupied {
			return nil, apperr.New(apperr.KindSeatUnavailable, "seat %s is not available", id)
		}
		picked = append(picked, i)
		taken[i] = true
	}
	for i := 0; i < len(seats) && len(picked) < count; i++ {
		if !seats[i].Occupied && !taken[i] {
			picked = append(picked, i)
			taken[i] = true
		}
	}
	if len(picked) < count {
		return nil, apperr.New(apperr.KindNoSeatsAvailable, "requested %d seats but only %d are available", count, len(picked))
	}

	ids := make([]string, 0, count)
	after := make([]model.SeatSlot, 0, count)
	for _, i := range picked {
		s := seats[i]
		s.Occupied = true
		s.Holder = holderID
		ids = append(ids, s.SeatID)
		after = append(after, s)
	}
	if err := inv.store.ClaimSeats(ctx, eventID, holderID, ids); err != nil {
		if errors.Is(err, ErrSeatTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("inventory: reserve %s: %w", eventID, err)
	}
	return after, nil
}

// ReleaseSeat frees one seat. Releasing a free or unknown seat is a no-op.
func (inv *Inventory) ReleaseSeat(ctx context.Context, eventID, seatID string) error {
	return inv.ReleaseSeats(ctx, eventID, "", []string{seatID})
}

// ReleaseSeats frees the given seats. When holderID is non-empty only seats
// currently held by that holder are touched.
func (inv *Inventory) ReleaseSeats(ctx context.Context, eventID, holderID string, seatIDs []string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	unlock, err := inv.locker.Lock(ctx, lockKey(eventID))
	if err != nil {
		return fmt.Errorf("inventory: lock %s: %w", eventID, err)
	}
	defer unlock()

	seats, err := inv.store.Seats(ctx, eventID)
	if err != nil {
		return fmt.Errorf("inventory: load %s: %w", eventID, err)
	}
	want := make(map[string]bool, len(seatIDs))
	for _, id := range seatIDs {
		want[id] = true
	}
	var freed []model.SeatSlot
	for _, s := range seats {
		if !want[s.SeatID] || !s.Occupied {
			continue
		}
		if holderID != "" && s.Holder != holderID {
			continue
		}
		s.Occupied = false
		s.Holder = ""
		freed = append(freed, s)
	}
	if len(freed) == 0 {
		return nil
	}
	if err := inv.store.UpdateSeats(ctx, eventID, freed); err != nil {
		return fmt.Errorf("inventory: release %s: %w", eventID, err)
	}
	return nil
}

// Snapshot returns the current seat map of eventID.
func (inv *Inventory) Snapshot(ctx context.Context, eventID string) (model.SeatInventory, error) {
	seats, err := inv.store.Seats(ctx, eventID)
	if err != nil {
		return model.SeatInventory{}, fmt.Errorf("inventory: load %s: %w", eventID, err)
	}
	return model.SeatInventory{EventID: eventID, TotalSeats: len(seats), Seats: seats}, nil
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
