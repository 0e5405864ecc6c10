// Package ledger is the durable record of issued tickets and the owner of
// the ticket state machine. Cancelling a ticket hands its seat back to the
// inventory as part of the same operation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-booking-core/internal/apperr"
	"github.com/iliyamo/ticket-booking-core/internal/model"
)

// SeatReleaser frees seats held by holderID.
type SeatReleaser interface {
	ReleaseSeats(ctx context.Context, eventID, holderID string, seatIDs []string) error
}

// Ledger applies lifecycle transitions to stored tickets.
type Ledger struct {
	store Store
	seats SeatReleaser
	log   logrus.FieldLogger
	now   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(store Store, seats SeatReleaser, log logrus.FieldLogger, opts ...Option) *Ledger {
	if store == nil || seats == nil || log == nil {
		panic("nil dependency passed to ledger.New")
	}
	l := &Ledger{store: store, seats: seats, log: log, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store exposes the underlying ticket store.
func (l *Ledger) Store() Store { return l.store }

// Record writes a booking's tickets as one batch.
func (l *Ledger) Record(ctx context.Context, tickets []model.Ticket) (int, error) {
	n, err := l.store.CreateBatch(ctx, tickets)
	if err != nil {
		return n, fmt.Errorf("ledger: record %d tickets: %w", len(tickets), err)
	}
	return n, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (model.Ticket, error) {
	return l.store.Get(ctx, id)
}

// HasActive reports whether holderID holds a non-cancelled ticket for eventID.
func (l *Ledger) HasActive(ctx context.Context, eventID, holderID string) (bool, error) {
	return l.store.HasActive(ctx, eventID, holderID)
}

func (l *Ledger) ListByHolder(ctx context.Context, holderID string) ([]model.Ticket, error) {
	return l.store.ListByHolder(ctx, holderID)
}

// AttachPayload stores the verification payload of a confirmed ticket. A
// payload that is already stored is kept.
func (l *Ledger) AttachPayload(ctx context.Context, id, payload string) error {
	return l.store.SetVerificationPayload(ctx, id, payload)
}

// Settlement describes a completed payment for Confirm.
type Settlement struct {
	ProofReference string
	PaidAt         time.Time
}

// Confirm moves a reserved ticket to confirmed and marks its payment
// completed. The caller must have verified payment first.
func (l *Ledger) Confirm(ctx context.Context, id string, s Settlement) (model.Ticket, error) {
	t, err := l.store.Get(ctx, id)
	if err != nil {
		return model.Ticket{}, err
	}
	if t.Status != model.TicketReserved {
		return model.Ticket{}, apperr.New(apperr.KindInvalidStateForConfirm, "ticket is %s, only reserved tickets can be confirmed", t.Status)
	}
	now := l.now().UTC().Truncate(time.Second)
	paidAt := s.PaidAt.UTC().Truncate(time.Second)
	t.Status = model.TicketConfirmed
	t.Payment.Status = model.PaymentCompleted
	t.Payment.ProofReference = s.ProofReference
	t.Payment.PaidAt = &paidAt
	t.IssuedAt = &now
	t.UpdatedAt = now
	if err := l.store.Update(ctx, t, model.TicketReserved); err != nil {
		if errors.Is(err, ErrStale) {
			return model.Ticket{}, apperr.ErrInvalidStateForConfirm
		}
		return model.Ticket{}, fmt.Errorf("ledger: confirm %s: %w", id, err)
	}
	return t, nil
}

// CheckIn admits a confirmed ticket.
func (l *Ledger) CheckIn(ctx context.Context, id, staffID string) (model.Ticket, error) {
	for attempt := 0; attempt < 3; attempt++ {
		t, err := l.store.Get(ctx, id)
		if err != nil {
			return model.Ticket{}, err
		}
		switch t.Status {
		case model.TicketCheckedIn:
			return model.Ticket{}, apperr.ErrAlreadyCheckedIn
		case model.TicketConfirmed:
		default:
			return model.Ticket{}, apperr.New(apperr.KindInvalidStateForCheckIn, "ticket is %s and cannot be checked in", t.Status)
		}
		now := l.now().UTC().Truncate(time.Second)
		t.Status = model.TicketCheckedIn
		t.CheckIn = model.CheckIn{Done: true, At: &now, By: staffID}
		t.UpdatedAt = now
		err = l.store.Update(ctx, t, model.TicketConfirmed)
		if errors.Is(err, ErrStale) {
			continue
		}
		if err != nil {
			return model.Ticket{}, fmt.Errorf("ledger: check in %s: %w", id, err)
		}
		return t, nil
	}
	return model.Ticket{}, apperr.ErrInvalidStateForCheckIn
}

// Cancel cancels a reserved or confirmed ticket on behalf of its holder and
// frees its seat. If the seat cannot be freed the ticket is restored to its
// previous status and the error is returned, so a cancelled ticket never
// leaves its seat occupied.
func (l *Ledger) Cancel(ctx context.Context, id, requesterID string, eventStartsAt time.Time) (model.Ticket, error) {
	for attempt := 0; attempt < 3; attempt++ {
		orig, err := l.store.Get(ctx, id)
		if err != nil {
			return model.Ticket{}, err
		}
		if orig.HolderID != requesterID {
			return model.Ticket{}, apperr.ErrNotTicketHolder
		}
		switch orig.Status {
		case model.TicketCheckedIn:
			return model.Ticket{}, apperr.ErrCannotCancelUsedTicket
		case model.TicketCancelled:
			return model.Ticket{}, apperr.ErrAlreadyCancelled
		}
		now := l.now().UTC().Truncate(time.Second)
		if !eventStartsAt.After(now) {
			return model.Ticket{}, apperr.ErrCannotCancelPastEvent
		}

		t := orig
		t.Status = model.TicketCancelled
		if t.Payment.Status == model.PaymentCompleted {
			t.Payment.Status = model.PaymentRefunded
		}
		t.UpdatedAt = now
		err = l.store.Update(ctx, t, orig.Status)
		if errors.Is(err, ErrStale) {
			// status moved underneath us; the next read decides
			continue
		}
		if err != nil {
			return model.Ticket{}, fmt.Errorf("ledger: cancel %s: %w", id, err)
		}

		if err := l.seats.ReleaseSeats(ctx, t.EventID, t.HolderID, []string{t.SeatID}); err != nil {
			fields := logrus.Fields{"ticket_id": id, "event_id": t.EventID, "seat_id": t.SeatID}
			if rerr := l.store.Update(context.WithoutCancel(ctx), orig, model.TicketCancelled); rerr != nil {
				l.log.WithError(rerr).WithFields(fields).Error("restoring ticket after failed seat release")
			}
			return model.Ticket{}, fmt.Errorf("ledger: release seat for %s: %w", id, err)
		}
		l.log.WithFields(logrus.Fields{"ticket_id": id, "event_id": t.EventID, "seat_id": t.SeatID}).Info("ticket cancelled")
		return t, nil
	}
	return model.Ticket{}, apperr.New(apperr.KindInvalidRequest, "ticket changed while cancelling, retry")
}
