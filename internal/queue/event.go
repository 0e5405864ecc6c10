// Package queue defines the ticket events exchanged over the message broker
// and the background consumer that records them.
package queue

import "time"

// Event types. With RabbitMQ each type is its own durable queue.
const (
	TypeBookingConfirmed = "booking.confirmed"
	TypeTicketCancelled  = "ticket.cancelled"
	TypeTicketCheckedIn  = "ticket.checked_in"
)

// Types lists every event type the service publishes.
var Types = []string{TypeBookingConfirmed, TypeTicketCancelled, TypeTicketCheckedIn}

// TicketEvent is published after a ticket changes state. It carries enough
// for downstream consumers to log, notify or feed analytics without
// querying the primary database.
type TicketEvent struct {
	Type        string   `json:"type"`
	EventID     string   `json:"event_id"`
	HolderID    string   `json:"holder_id"`
	TicketIDs   []string `json:"ticket_ids"`
	SeatIDs     []string `json:"seats"`
	AmountCents int64    `json:"amount_cents,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	StaffID     string   `json:"staff_id,omitempty"`
	OccurredAt  string   `json:"occurred_at"`
}

// Stamp sets OccurredAt to t in RFC3339.
func (e *TicketEvent) Stamp(t time.Time) {
	e.OccurredAt = t.UTC().Format(time.RFC3339)
}
