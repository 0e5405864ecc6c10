package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/ticket-booking-core/internal/apperr"
	"github.com/iliyamo/ticket-booking-core/internal/ledger"
	"github.com/iliyamo/ticket-booking-core/internal/model"
)

// TicketRepo is the MySQL ledger.Store.
type TicketRepo struct {
	db *sql.DB
}

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `id, event_id, holder_id, seat_id, status,
       amount_cents, currency, payment_method, proof_reference, payment_status, paid_at,
       checked_in, checked_in_at, checked_in_by, issued_at, verification_payload,
       created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row rowScanner) (model.Ticket, error) {
	var (
		t                           model.Ticket
		proofRef, checkedBy, payld  sql.NullString
		paidAt, checkedAt, issuedAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.EventID, &t.HolderID, &t.SeatID, &t.Status,
		&t.Payment.AmountCents, &t.Payment.Currency, &t.Payment.Method, &proofRef, &t.Payment.Status, &paidAt,
		&t.CheckIn.Done, &checkedAt, &checkedBy, &issuedAt, &payld,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return model.Ticket{}, err
	}
	t.Payment.ProofReference = proofRef.String
	t.Payment.PaidAt = timePtr(paidAt)
	t.CheckIn.At = timePtr(checkedAt)
	t.CheckIn.By = checkedBy.String
	t.IssuedAt = timePtr(issuedAt)
	t.VerificationPayload = payld.String
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// CreateBatch inserts all tickets in one transaction. On failure nothing is
// written and 0 is returned.
func (r *TicketRepo) CreateBatch(ctx context.Context, tickets []model.Ticket) (int, error) {
	if len(tickets) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	query := `INSERT INTO tickets (` + ticketColumns + `) VALUES ` + placeholders(len(tickets), 18)
	args := make([]interface{}, 0, len(tickets)*18)
	for _, t := range tickets {
		args = append(args,
			t.ID, t.EventID, t.HolderID, t.SeatID, t.Status,
			t.Payment.AmountCents, t.Payment.Currency, t.Payment.Method, nullable(t.Payment.ProofReference), t.Payment.Status, nullTime(t.Payment.PaidAt),
			t.CheckIn.Done, nullTime(t.CheckIn.At), nullable(t.CheckIn.By), nullTime(t.IssuedAt), nullable(t.VerificationPayload),
			t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
		)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKey(err) {
			return 0, fmt.Errorf("tickets: duplicate id in batch: %w", err)
		}
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return len(tickets), nil
}

func (r *TicketRepo) Get(ctx context.Context, id string) (model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ticket{}, apperr.ErrTicketNotFound
	}
	return t, err
}

// Update rewrites the mutable columns of t while the stored status still
// equals expected.
func (r *TicketRepo) Update(ctx context.Context, t model.Ticket, expected model.TicketStatus) error {
	const q = `UPDATE tickets SET status = ?, proof_reference = ?, payment_status = ?, paid_at = ?,
                   checked_in = ?, checked_in_at = ?, checked_in_by = ?, issued_at = ?, updated_at = ?
               WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q,
		t.Status, nullable(t.Payment.ProofReference), t.Payment.Status, nullTime(t.Payment.PaidAt),
		t.CheckIn.Done, nullTime(t.CheckIn.At), nullable(t.CheckIn.By), nullTime(t.IssuedAt), t.UpdatedAt.UTC(),
		t.ID, expected,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM tickets WHERE id = ?`, t.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrTicketNotFound
	}
	if err != nil {
		return err
	}
	return ledger.ErrStale
}

func (r *TicketRepo) ListByHolder(ctx context.Context, holderID string) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE holder_id = ? ORDER BY created_at DESC, seat_id`, holderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TicketRepo) HasActive(ctx context.Context, eventID, holderID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM tickets WHERE event_id = ? AND holder_id = ? AND status IN (?, ?, ?))`
	var ok bool
	err := r.db.QueryRowContext(ctx, q, eventID, holderID,
		model.TicketReserved, model.TicketConfirmed, model.TicketCheckedIn).Scan(&ok)
	return ok, err
}

func (r *TicketRepo) ActiveSeatHolders(ctx context.Context, eventID string) (map[string]string, error) {
	const q = `SELECT seat_id, holder_id FROM tickets WHERE event_id = ? AND status IN (?, ?, ?)`
	rows, err := r.db.QueryContext(ctx, q, eventID, model.TicketReserved, model.TicketConfirmed, model.TicketCheckedIn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var seat, holder string
		if err := rows.Scan(&seat, &holder); err != nil {
			return nil, err
		}
		out[seat] = holder
	}
	return out, rows.Err()
}

// SetVerificationPayload stores payload unless one is stored already.
func (r *TicketRepo) SetVerificationPayload(ctx context.Context, id, payload string) error {
	const q = `UPDATE tickets SET verification_payload = ?
               WHERE id = ? AND (verification_payload IS NULL OR verification_payload = '')`
	res, err := r.db.ExecContext(ctx, q, payload, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	_, err = r.Get(ctx, id)
	return err
}
