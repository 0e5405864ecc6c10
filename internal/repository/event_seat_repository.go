package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/ticket-booking-core/internal/inventory"
	"github.com/iliyamo/ticket-booking-core/internal/model"
)

// EventSeatRepo stores seat slots in the event_seats table. Callers
// serialize writes per event; ClaimSeats additionally refuses seats that
// are no longer free, so exclusion does not rest on the lock alone.
type EventSeatRepo struct {
	db *sql.DB
}

func NewEventSeatRepo(db *sql.DB) *EventSeatRepo { return &EventSeatRepo{db: db} }

func (r *EventSeatRepo) Seats(ctx context.Context, eventID string) ([]model.SeatSlot, error) {
	const q = `SELECT seat_id, position, occupied, holder_id FROM event_seats WHERE event_id = ? ORDER BY position`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SeatSlot
	for rows.Next() {
		var s model.SeatSlot
		var holder sql.NullString
		if err := rows.Scan(&s.SeatID, &s.Position, &s.Occupied, &holder); err != nil {
			return nil, err
		}
		s.Holder = holder.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReplaceSeats swaps the whole seat map of eventID in one transaction.
func (r *EventSeatRepo) ReplaceSeats(ctx context.Context, eventID string, seats []model.SeatSlot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM event_seats WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("clear seats: %w", err)
	}
	// Insert in chunks to stay well under max_allowed_packet for large venues.
	const chunk = 500
	for lo := 0; lo < len(seats); lo += chunk {
		hi := lo + chunk
		if hi > len(seats) {
			hi = len(seats)
		}
		part := seats[lo:hi]
		query := `INSERT INTO event_seats (event_id, seat_id, position, occupied, holder_id) VALUES ` + placeholders(len(part), 5)
		args := make([]interface{}, 0, len(part)*5)
		for _, s := range part {
			args = append(args, eventID, s.SeatID, s.Position, s.Occupied, nullable(s.Holder))
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert seats: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// UpdateSeats writes the occupancy of the given slots in one transaction.
func (r *EventSeatRepo) UpdateSeats(ctx context.Context, eventID string, seats []model.SeatSlot) error {
	if len(seats) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, `UPDATE event_seats SET occupied = ?, holder_id = ? WHERE event_id = ? AND seat_id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, s := range seats {
		if _, err := stmt.ExecContext(ctx, s.Occupied, nullable(s.Holder), eventID, s.SeatID); err != nil {
			return fmt.Errorf("update seat %s: %w", s.SeatID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ClaimSeats marks seatIDs occupied by holderID in one transaction. The
// update only matches free seats, so a seat taken by another writer leaves
// zero rows affected and the whole claim is rolled back.
func (r *EventSeatRepo) ClaimSeats(ctx context.Context, eventID, holderID string, seatIDs []string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, `UPDATE event_seats SET occupied = TRUE, holder_id = ? WHERE event_id = ? AND seat_id = ? AND occupied = FALSE`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range seatIDs {
		res, err := stmt.ExecContext(ctx, holderID, eventID, id)
		if err != nil {
			return fmt.Errorf("claim seat %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim seat %s: %w", id, err)
		}
		if n != 1 {
			return inventory.ErrSeatTaken
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
