package model

import "time"

// TicketStatus is the single source of truth for a ticket's lifecycle.
//
//	reserved  -> confirmed -> checked_in
//	reserved  -> cancelled
//	confirmed -> cancelled
//
// expired is never stored; it is derived for confirmed tickets whose event
// has passed.
type TicketStatus string

const (
	TicketReserved  TicketStatus = "reserved"
	TicketConfirmed TicketStatus = "confirmed"
	TicketCancelled TicketStatus = "cancelled"
	TicketCheckedIn TicketStatus = "checked_in"
	TicketExpired   TicketStatus = "expired"
)

// Active reports whether a ticket in this status holds its seat.
func (s TicketStatus) Active() bool {
	return s == TicketReserved || s == TicketConfirmed || s == TicketCheckedIn
}

// PaymentStatus tracks the money side of a ticket.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Payment is the payment sub-state of a ticket.
type Payment struct {
	AmountCents    int64         `json:"amount_cents"`
	Currency       string        `json:"currency"`
	Method         string        `json:"method"`
	ProofReference string        `json:"proof_reference,omitempty"`
	Status         PaymentStatus `json:"status"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
}

// CheckIn records admission at the venue.
type CheckIn struct {
	Done bool       `json:"done"`
	At   *time.Time `json:"at,omitempty"`
	By   string     `json:"by,omitempty"`
}

// Ticket binds one holder to one seat of one event. Tickets are never
// deleted; cancellation is a status transition.
//
// Fields:
//
//	ID                  – opaque unique identifier.
//	EventID             – event the seat belongs to.
//	HolderID            – user holding the seat.
//	SeatID              – seat slot in the event's inventory.
//	Status              – lifecycle state.
//	Payment             – payment sub-state.
//	CheckIn             – admission sub-state.
//	IssuedAt            – confirmation time; input of the verification payload.
//	VerificationPayload – scannable payload, derived once at confirmation.
//	CreatedAt/UpdatedAt – bookkeeping timestamps.
type Ticket struct {
	ID                  string       `json:"id"`
	EventID             string       `json:"event_id"`
	HolderID            string       `json:"holder_id"`
	SeatID              string       `json:"seat_id"`
	Status              TicketStatus `json:"status"`
	Payment             Payment      `json:"payment"`
	CheckIn             CheckIn      `json:"check_in"`
	IssuedAt            *time.Time   `json:"issued_at,omitempty"`
	VerificationPayload string       `json:"verification_payload,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// EffectiveStatus is the status presented to callers: a confirmed ticket
// whose event has started reads as expired.
func (t Ticket) EffectiveStatus(eventStartsAt, now time.Time) TicketStatus {
	if t.Status == TicketConfirmed && !eventStartsAt.After(now) {
		return TicketExpired
	}
	return t.Status
}
