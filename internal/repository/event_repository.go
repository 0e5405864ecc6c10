package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/ticket-booking-core/internal/apperr"
	"github.com/iliyamo/ticket-booking-core/internal/model"
)

// EventRepo reads the events table. Event metadata is owned by another
// service; the booking core only needs status, date, capacity and price.
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Event returns the event with id or apperr.ErrEventNotFound.
func (r *EventRepo) Event(ctx context.Context, id string) (model.Event, error) {
	const q = `SELECT id, status, starts_at, capacity, price_cents, currency FROM events WHERE id = ?`
	var ev model.Event
	err := r.db.QueryRowContext(ctx, q, id).Scan(&ev.ID, &ev.Status, &ev.StartsAt, &ev.Capacity, &ev.PriceCents, &ev.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, apperr.ErrEventNotFound
	}
	if err != nil {
		return model.Event{}, err
	}
	ev.StartsAt = ev.StartsAt.UTC()
	return ev, nil
}

// Upsert inserts ev or updates the stored row with the same id. It is used
// to seed development databases.
func (r *EventRepo) Upsert(ctx context.Context, ev model.Event) error {
	const q = `INSERT INTO events (id, status, starts_at, capacity, price_cents, currency)
               VALUES (?, ?, ?, ?, ?, ?)
               ON DUPLICATE KEY UPDATE status = VALUES(status), starts_at = VALUES(starts_at),
                   capacity = VALUES(capacity), price_cents = VALUES(price_cents), currency = VALUES(currency)`
	_, err := r.db.ExecContext(ctx, q, ev.ID, ev.Status, ev.StartsAt.UTC(), ev.Capacity, ev.PriceCents, ev.Currency)
	return err
}
