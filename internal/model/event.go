package model

import "time"

// EventStatus is the publication state of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
)

// Event is the slice of event metadata the booking core needs. Title,
// venue and other descriptive fields are managed elsewhere and are not
// carried here.
//
// Fields:
//
//	ID         – opaque event identifier.
//	Status     – publication state; only published events are bookable.
//	StartsAt   – when the event begins (UTC).
//	Capacity   – total number of bookable seats.
//	PriceCents – price of one seat in minor units; zero means free.
//	Currency   – ISO 4217 code for PriceCents.
type Event struct {
	ID         string      // events.id
	Status     EventStatus // events.status
	StartsAt   time.Time   // events.starts_at
	Capacity   int         // events.capacity
	PriceCents int64       // events.price_cents
	Currency   string      // events.currency
}

// Bookable reports whether seats may be booked at now.
func (e Event) Bookable(now time.Time) bool {
	return e.Status == EventPublished && e.StartsAt.After(now)
}

// Free reports whether the event charges nothing for a seat.
func (e Event) Free() bool { return e.PriceCents == 0 }

// Past reports whether the event date has passed at now.
func (e Event) Past(now time.Time) bool { return !e.StartsAt.After(now) }
