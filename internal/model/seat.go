package model

import "fmt"

// SeatSlot is one bookable unit of an event's capacity. Slots are ordered by
// Position; the lowest-positioned free slot is allocated first when the
// caller has no preference.
type SeatSlot struct {
	SeatID   string // event_seats.seat_id, unique within the event
	Position int    // event_seats.position, zero-based
	Occupied bool   // event_seats.occupied
	Holder   string // event_seats.holder_id, empty when free
}

// SeatInventory is the occupancy state of one event.
type SeatInventory struct {
	EventID    string
	TotalSeats int
	Seats      []SeatSlot
}

// Available counts the unoccupied slots.
func (inv SeatInventory) Available() int {
	n := 0
	for _, s := range inv.Seats {
		if !s.Occupied {
			n++
		}
	}
	return n
}

// Intact reports whether the inventory has exactly TotalSeats slots with
// unique, non-empty seat ids and consistent holder fields.
func (inv SeatInventory) Intact() bool {
	if len(inv.Seats) != inv.TotalSeats {
		return false
	}
	seen := make(map[string]struct{}, len(inv.Seats))
	for _, s := range inv.Seats {
		if s.SeatID == "" {
			return false
		}
		if _, dup := seen[s.SeatID]; dup {
			return false
		}
		seen[s.SeatID] = struct{}{}
		if s.Occupied != (s.Holder != "") {
			return false
		}
	}
	return true
}

// SeatLabel returns the deterministic label of the seat at zero-based
// position i: S001, S002, …
func SeatLabel(i int) string {
	return fmt.Sprintf("S%03d", i+1)
}
