// Package publisher fans ticket events out to a message broker. Publishing
// is best effort: callers log failures and carry on, the booking itself is
// already durable when an event is sent.
package publisher

import (
	"context"

	"github.com/iliyamo/ticket-booking-core/internal/queue"
)

// Publisher sends ticket events.
type Publisher interface {
	Publish(ctx context.Context, ev queue.TicketEvent) error
	Close() error
}

// Noop drops every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, queue.TicketEvent) error { return nil }
func (Noop) Close() error { return nil }
