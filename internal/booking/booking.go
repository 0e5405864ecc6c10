// Package booking turns booking intents into tickets. It is the only place
// where the seat inventory, payment proofs, the ticket ledger and the
// issuer meet, and it owns the rollback that keeps a failed booking from
// leaving seats held.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-booking-core/internal/apperr"
	"github.com/iliyamo/ticket-booking-core/internal/inventory"
	"github.com/iliyamo/ticket-booking-core/internal/issuer"
	"github.com/iliyamo/ticket-booking-core/internal/ledger"
	"github.com/iliyamo/ticket-booking-core/internal/lock"
	"github.com/iliyamo/ticket-booking-core/internal/metrics"
	"github.com/iliyamo/ticket-booking-core/internal/model"
	"github.com/iliyamo/ticket-booking-core/internal/payment"
	"github.com/iliyamo/ticket-booking-core/internal/publisher"
	"github.com/iliyamo/ticket-booking-core/internal/queue"
)

// MaxSeatsPerBooking caps the seat count of a single request.
const MaxSeatsPerBooking = 10

// EventDirectory looks up event metadata. It returns apperr.ErrEventNotFound
// for unknown ids.
type EventDirectory interface {
	Event(ctx context.Context, id string) (model.Event, error)
}

// ProofVerifier checks payment proof tokens.
type ProofVerifier interface {
	Verify(token, expectedHolderID, expectedTransactionID, expectedEventID string) (model.PaymentProof, error)
}

// Deps are the collaborators of a Service. All fields are required.
type Deps struct {
	Events    EventDirectory
	Inventory *inventory.Inventory
	Verifier  ProofVerifier
	Claims    payment.ClaimStore
	Ledger    *ledger.Ledger
	Issuer    *issuer.Issuer
	Publisher publisher.Publisher
	Locker    lock.Locker
	Log       logrus.FieldLogger
}

// Service orchestrates booking, confirmation, cancellation and check-in.
type Service struct {
	events    EventDirectory
	inventory *inventory.Inventory
	verifier  ProofVerifier
	claims    payment.ClaimStore
	ledger    *ledger.Ledger
	issuer    *issuer.Issuer
	publisher publisher.Publisher
	locker    lock.Locker
	log       logrus.FieldLogger

	now            func() time.Time
	newID          func() string
	publishTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs overrides ticket id generation.
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func New(d Deps, opts ...Option) *Service {
	if d.Events == nil || d.Inventory == nil || d.Verifier == nil || d.Claims == nil ||
		d.Ledger == nil || d.Issuer == nil || d.Publisher == nil || d.Locker == nil || d.Log == nil {
		panic("nil dependency passed to booking.New")
	}
	s := &Service{
		events:         d.Events,
		inventory:      d.Inventory,
		verifier:       d.Verifier,
		claims:         d.Claims,
		ledger:         d.Ledger,
		issuer:         d.Issuer,
		publisher:      d.Publisher,
		locker:         d.Locker,
		log:            d.Log,
		now:            time.Now,
		newID:          uuid.NewString,
		publishTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProofInput is a payment proof as presented by the caller.
type ProofInput struct {
	Token         string `json:"token"`
	TransactionID string `json:"transaction_id"`
}

// BookRequest is a booking intent. Proof is optional; without it a paid
// event yields reserved tickets awaiting confirmation.
type BookRequest struct {
	EventID          string
	HolderID         string
	Count            int
	PreferredSeatIDs []string
	PaymentMethod    string
	Proof            *ProofInput
}

// IssuedTicket is a ticket as presented to its holder.
type IssuedTicket struct {
	model.Ticket
	EffectiveStatus model.TicketStatus `json:"effective_status"`
	ImageAvailable  bool               `json:"image_available"`
	Image           []byte             `json:"-"`
}

// BookResult is the outcome of a successful Book. Warnings carry soft
// failures, such as an image that could not be rendered.
type BookResult struct {
	Tickets  []IssuedTicket `json:"tickets"`
	Warnings []string       `json:"warnings,omitempty"`
}

func holderLockKey(eventID, holderID string) string {
	return "booking:" + eventID + ":" + holderID
}

func (r BookRequest) validate() error {
	switch {
	case strings.TrimSpace(r.EventID) == "":
		return apperr.New(apperr.KindInvalidRequest, "event id is required")
	case strings.TrimSpace(r.HolderID) == "":
		return apperr.New(apperr.KindInvalidRequest, "holder id is required")
	case r.Count < 1:
		return apperr.New(apperr.KindInvalidRequest, "seat count must be at least 1")
	case r.Count > MaxSeatsPerBooking:
		return apperr.New(apperr.KindInvalidRequest, "at most %d seats can be booked at once", MaxSeatsPerBooking)
	case r.Proof != nil && (r.Proof.Token == "" || r.Proof.TransactionID == ""):
		return apperr.New(apperr.KindInvalidRequest, "payment proof needs both token and transaction id")
	}
	return nil
}

// Book reserves seats and records one ticket per seat. It either returns
// Count tickets with their seats held or an error with the inventory as it
// was before the call.
func (s *Service) Book(ctx context.Context, req BookRequest) (BookResult, error) {
	res, err := s.book(ctx, req)
	if err != nil {
		metrics.Operation("book", string(apperr.KindOf(err)))
		return BookResult{}, err
	}
	metrics.Operation("book", "success")
	metrics.SeatsReserved.Add(float64(len(res.Tickets)))
	return res, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (BookResult, error) {
	if err := req.validate(); err != nil {
		return BookResult{}, err
	}
	log := s.log.WithFields(logrus.Fields{"event_id": req.EventID, "holder_id": req.HolderID})

	ev, err := s.events.Event(ctx, req.EventID)
	if err != nil {
		return BookResult{}, err
	}
	now := s.now().UTC()
	if !ev.Bookable(now) {
		return BookResult{}, apperr.ErrEventNotBookable
	}

	// The duplicate check and the ledger write run under one holder lock, so
	// two simultaneous first bookings by the same holder cannot both pass.
	// The lock is dropped as soon as the tickets are recorded.
	unlock, err := s.locker.Lock(ctx, holderLockKey(req.EventID, req.HolderID))
	if err != nil {
		return BookResult{}, fmt.Errorf("booking: lock holder: %w", err)
	}
	var unlockOnce sync.Once
	release := func() { unlockOnce.Do(unlock) }
	defer release()

	active, err := s.ledger.HasActive(ctx, req.EventID, req.HolderID)
	if err != nil {
		return BookResult{}, fmt.Errorf("booking: check active tickets: %w", err)
	}
	if active {
		return BookResult{}, apperr.ErrDuplicateBooking
	}

	if _, err := s.inventory.EnsureInventory(ctx, req.EventID, ev.Capacity); err != nil {
		return BookResult{}, err
	}
	slots, err := s.inventory.ReserveSeats(ctx, req.EventID, req.Count, req.PreferredSeatIDs, req.HolderID)
	if err != nil {
		return BookResult{}, err
	}
	seatIDs := make([]string, len(slots))
	for i, sl := range slots {
		seatIDs[i] = sl.SeatID
	}
	log = log.WithField("seat_ids", seatIDs)

	var proof *model.PaymentProof
	if req.Proof != nil {
		p, err := s.acceptProof(ctx, *req.Proof, req.HolderID, req.EventID)
		if err != nil {
			s.rollback(ctx, log, req.EventID, req.HolderID, seatIDs, "payment_proof")
			return BookResult{}, err
		}
		proof = &p
	}

	tickets := s.buildTickets(ev, req, seatIDs, proof, now)
	n, err := s.ledger.Record(ctx, tickets)
	if err != nil {
		log.WithError(err).WithField("written", n).Error("recording tickets failed")
		s.discard(ctx, log, tickets[:n])
		s.rollback(ctx, log, req.EventID, req.HolderID, seatIDs, "persistence")
		if proof != nil {
			s.releaseClaim(ctx, log, proof.TransactionID)
		}
		return BookResult{}, apperr.ErrBookingPersistenceFailed
	}
	release()

	out := BookResult{Tickets: make([]IssuedTicket, 0, len(tickets))}
	for _, t := range tickets {
		it, warn := s.present(ctx, log, t, ev.StartsAt, now)
		if warn != "" {
			out.Warnings = append(out.Warnings, warn)
		}
		out.Tickets = append(out.Tickets, it)
	}

	if tickets[0].Status == model.TicketConfirmed {
		s.publish(ctx, log, confirmedEvent(ev, tickets, now))
	}
	log.WithField("status", tickets[0].Status).Info("booking recorded")
	return out, nil
}

// acceptProof verifies a proof and claims its transaction so it cannot pay
// for a second booking.
func (s *Service) acceptProof(ctx context.Context, in ProofInput, holderID, eventID string) (model.PaymentProof, error) {
	p, err := s.verifier.Verify(in.Token, holderID, in.TransactionID, eventID)
	if err != nil {
		return model.PaymentProof{}, err
	}
	ok, err := s.claims.Claim(ctx, p.TransactionID, p.ExpiresAt)
	if err != nil {
		return model.PaymentProof{}, fmt.Errorf("booking: claim payment proof: %w", err)
	}
	if !ok {
		return model.PaymentProof{}, apperr.New(apperr.KindInvalidPaymentProof, "payment proof was already used")
	}
	return p, nil
}

func (s *Service) buildTickets(ev model.Event, req BookRequest, seatIDs []string, proof *model.PaymentProof, now time.Time) []model.Ticket {
	method := req.PaymentMethod
	if method == "" && ev.Free() {
		method = "free"
	}
	confirmed := ev.Free() || proof != nil
	// stored times keep whole seconds so a re-read ticket derives the same payload
	now = now.Truncate(time.Second)
	tickets := make([]model.Ticket, len(seatIDs))
	for i, seatID := range seatIDs {
		t := model.Ticket{
			ID:       s.newID(),
			EventID:  ev.ID,
			HolderID: req.HolderID,
			SeatID:   seatID,
			Status:   model.TicketReserved,
			Payment: model.Payment{
				AmountCents: ev.PriceCents,
				Currency:    ev.Currency,
				Method:      method,
				Status:      model.PaymentPending,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if confirmed {
			issued, paid := now, now
			t.Status = model.TicketConfirmed
			t.Payment.Status = model.PaymentCompleted
			t.Payment.PaidAt = &paid
			t.IssuedAt = &issued
			if proof != nil {
				t.Payment.ProofReference = proof.TransactionID
			}
		}
		tickets[i] = t
	}
	return tickets
}

// present issues the verification payload of a confirmed ticket, stores it
// on first issue and renders its image. Failures here never undo the
// booking; they come back as a warning.
func (s *Service) present(ctx context.Context, log logrus.FieldLogger, t model.Ticket, startsAt, now time.Time) (IssuedTicket, string) {
	it := IssuedTicket{Ticket: t, EffectiveStatus: t.EffectiveStatus(startsAt, now)}
	if t.IssuedAt == nil {
		return it, ""
	}
	issued, err := s.issuer.Issue(t)
	if err != nil {
		log.WithError(err).WithField("ticket_id", t.ID).Warn("issuing verification payload failed")
		return it, fmt.Sprintf("ticket %s: verification code unavailable", t.ID)
	}
	if t.VerificationPayload == "" {
		if err := s.ledger.AttachPayload(ctx, t.ID, issued.Payload); err != nil {
			log.WithError(err).WithField("ticket_id", t.ID).Warn("storing verification payload failed")
		}
	}
	it.VerificationPayload = issued.Payload
	if issued.ImageErr != nil {
		log.WithError(issued.ImageErr).WithField("ticket_id", t.ID).Warn("rendering ticket image failed")
		return it, fmt.Sprintf("ticket %s: image temporarily unavailable", t.ID)
	}
	it.Image = issued.Image
	it.ImageAvailable = true
	return it, ""
}

// rollback frees seats reserved by a booking that did not complete. It runs
// even when ctx is already cancelled.
func (s *Service) rollback(ctx context.Context, log logrus.FieldLogger, eventID, holderID string, seatIDs []string, reason string) {
	metrics.Rollback(reason)
	if err := s.inventory.ReleaseSeats(context.WithoutCancel(ctx), eventID, holderID, seatIDs); err != nil {
		log.WithError(err).Error("releasing seats of failed booking")
		return
	}
	log.WithField("reason", reason).Warn("booking rolled back")
}

// discard cancels tickets a failed batch write managed to store, so the
// ledger does not keep tickets whose seats are about to be freed.
func (s *Service) discard(ctx context.Context, log logrus.FieldLogger, written []model.Ticket) {
	ctx = context.WithoutCancel(ctx)
	for _, t := range written {
		orig := t.Status
		t.Status = model.TicketCancelled
		t.UpdatedAt = s.now().UTC()
		if err := s.ledger.Store().Update(ctx, t, orig); err != nil {
			log.WithError(err).WithField("ticket_id", t.ID).Error("cancelling partially written ticket")
		}
	}
}

func (s *Service) releaseClaim(ctx context.Context, log logrus.FieldLogger, transactionID string) {
	if err := s.claims.Release(context.WithoutCancel(ctx), transactionID); err != nil {
		log.WithError(err).WithField("transaction_id", transactionID).Warn("releasing payment proof claim failed")
	}
}

func (s *Service) publish(ctx context.Context, log logrus.FieldLogger, ev queue.TicketEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	err := s.publisher.Publish(ctx, ev)
	metrics.Published(ev.Type, err == nil)
	if err != nil {
		log.WithError(err).WithField("type", ev.Type).Warn("publishing ticket event failed")
	}
}

func confirmedEvent(ev model.Event, tickets []model.Ticket, now time.Time) queue.TicketEvent {
	out := queue.TicketEvent{
		Type:     queue.TypeBookingConfirmed,
		EventID:  ev.ID,
		HolderID: tickets[0].HolderID,
		Currency: ev.Currency,
	}
	for _, t := range tickets {
		out.TicketIDs = append(out.TicketIDs, t.ID)
		out.SeatIDs = append(out.SeatIDs, t.SeatID)
		out.AmountCents += t.Payment.AmountCents
	}
	out.Stamp(now)
	return out
}

func ticketEvent(typ string, t model.Ticket, staffID string, now time.Time) queue.TicketEvent {
	out := queue.TicketEvent{
		Type:      typ,
		EventID:   t.EventID,
		HolderID:  t.HolderID,
		TicketIDs: []string{t.ID},
		SeatIDs:   []string{t.SeatID},
		StaffID:   staffID,
	}
	out.Stamp(now)
	return out
}

// Confirm settles a reserved ticket with a payment proof and issues its
// verification payload.
func (s *Service) Confirm(ctx context.Context, ticketID, holderID string, in ProofInput) (IssuedTicket, error) {
	it, err := s.confirm(ctx, ticketID, holderID, in)
	if err != nil {
		metrics.Operation("confirm", string(apperr.KindOf(err)))
		return IssuedTicket{}, err
	}
	metrics.Operation("confirm", "success")
	return it, nil
}

func (s *Service) confirm(ctx context.Context, ticketID, holderID string, in ProofInput) (IssuedTicket, error) {
	if in.Token == "" || in.TransactionID == "" {
		return IssuedTicket{}, apperr.New(apperr.KindInvalidRequest, "payment proof needs both token and transaction id")
	}
	t, err := s.ledger.Get(ctx, ticketID)
	if err != nil {
		return IssuedTicket{}, err
	}
	if t.HolderID != holderID {
		return IssuedTicket{}, apperr.ErrNotTicketHolder
	}
	if t.Status != model.TicketReserved {
		return IssuedTicket{}, apperr.New(apperr.KindInvalidStateForConfirm, "ticket is %s, only reserved tickets can be confirmed", t.Status)
	}
	ev, err := s.events.Event(ctx, t.EventID)
	if err != nil {
		return IssuedTicket{}, err
	}
	now := s.now().UTC()
	if ev.Past(now) {
		return IssuedTicket{}, apperr.New(apperr.KindEventNotBookable, "event has already started")
	}
	log := s.log.WithFields(logrus.Fields{"event_id": t.EventID, "holder_id": holderID, "ticket_id": ticketID})

	proof, err := s.acceptProof(ctx, in, holderID, t.EventID)
	if err != nil {
		return IssuedTicket{}, err
	}
	confirmed, err := s.ledger.Confirm(ctx, ticketID, ledger.Settlement{ProofReference: proof.TransactionID, PaidAt: now})
	if err != nil {
		s.releaseClaim(ctx, log, proof.TransactionID)
		return IssuedTicket{}, err
	}
	it, warn := s.present(ctx, log, confirmed, ev.StartsAt, now)
	if warn != "" {
		log.Warn(warn)
	}
	s.publish(ctx, log, confirmedEvent(ev, []model.Ticket{confirmed}, now))
	log.Info("ticket confirmed")
	return it, nil
}

// Cancel cancels a ticket on behalf of its holder and frees its seat.
func (s *Service) Cancel(ctx context.Context, ticketID, requesterID string) (IssuedTicket, error) {
	t, err := s.cancel(ctx, ticketID, requesterID)
	if err != nil {
		metrics.Operation("cancel", string(apperr.KindOf(err)))
		return IssuedTicket{}, err
	}
	metrics.Operation("cancel", "success")
	return t, nil
}

func (s *Service) cancel(ctx context.Context, ticketID, requesterID string) (IssuedTicket, error) {
	t, err := s.ledger.Get(ctx, ticketID)
	if err != nil {
		return IssuedTicket{}, err
	}
	if t.HolderID != requesterID {
		return IssuedTicket{}, apperr.ErrNotTicketHolder
	}
	ev, err := s.events.Event(ctx, t.EventID)
	if err != nil {
		return IssuedTicket{}, err
	}
	cancelled, err := s.ledger.Cancel(ctx, ticketID, requesterID, ev.StartsAt)
	if err != nil {
		return IssuedTicket{}, err
	}
	now := s.now().UTC()
	log := s.log.WithFields(logrus.Fields{"event_id": t.EventID, "ticket_id": ticketID})
	s.publish(ctx, log, ticketEvent(queue.TypeTicketCancelled, cancelled, "", now))
	return IssuedTicket{Ticket: cancelled, EffectiveStatus: cancelled.Status}, nil
}

// CheckIn admits a confirmed ticket. Authorization of staffID happens
// upstream.
func (s *Service) CheckIn(ctx context.Context, ticketID, staffID string) (IssuedTicket, error) {
	t, err := s.ledger.CheckIn(ctx, ticketID, staffID)
	if err != nil {
		metrics.Operation("check_in", string(apperr.KindOf(err)))
		return IssuedTicket{}, err
	}
	metrics.Operation("check_in", "success")
	now := s.now().UTC()
	log := s.log.WithFields(logrus.Fields{"event_id": t.EventID, "ticket_id": ticketID, "staff_id": staffID})
	s.publish(ctx, log, ticketEvent(queue.TypeTicketCheckedIn, t, staffID, now))
	log.Info("ticket checked in")
	return IssuedTicket{Ticket: t, EffectiveStatus: t.Status}, nil
}

// CheckInScanned checks in the ticket a scanned verification payload points
// to. The payload must carry a valid MAC and match the one stored on the
// ticket.
func (s *Service) CheckInScanned(ctx context.Context, payload, staffID string) (IssuedTicket, error) {
	claims, err := s.issuer.Verify(payload)
	if err != nil {
		metrics.Operation("check_in", string(apperr.KindInvalidRequest))
		if errors.Is(err, issuer.ErrBadPayload) {
			return IssuedTicket{}, apperr.New(apperr.KindInvalidRequest, "ticket code is not valid")
		}
		return IssuedTicket{}, err
	}
	t, err := s.ledger.Get(ctx, claims.TicketID)
	if err != nil {
		return IssuedTicket{}, err
	}
	if t.VerificationPayload != "" && t.VerificationPayload != payload {
		metrics.Operation("check_in", string(apperr.KindInvalidRequest))
		return IssuedTicket{}, apperr.New(apperr.KindInvalidRequest, "ticket code does not match the issued ticket")
	}
	if t.EventID != claims.EventID || t.SeatID != claims.SeatID || t.HolderID != claims.HolderID {
		metrics.Operation("check_in", string(apperr.KindInvalidRequest))
		return IssuedTicket{}, apperr.New(apperr.KindInvalidRequest, "ticket code does not match the issued ticket")
	}
	return s.CheckIn(ctx, t.ID, staffID)
}

// Ticket returns one of the requester's tickets.
func (s *Service) Ticket(ctx context.Context, ticketID, requesterID string) (IssuedTicket, error) {
	t, err := s.ledger.Get(ctx, ticketID)
	if err != nil {
		return IssuedTicket{}, err
	}
	if t.HolderID != requesterID {
		return IssuedTicket{}, apperr.ErrNotTicketHolder
	}
	ev, err := s.events.Event(ctx, t.EventID)
	if err != nil {
		return IssuedTicket{}, err
	}
	return s.view(t, ev.StartsAt), nil
}

// TicketsForHolder lists a holder's tickets, newest first.
func (s *Service) TicketsForHolder(ctx context.Context, holderID string) ([]IssuedTicket, error) {
	tickets, err := s.ledger.ListByHolder(ctx, holderID)
	if err != nil {
		return nil, err
	}
	starts := make(map[string]time.Time)
	out := make([]IssuedTicket, 0, len(tickets))
	for _, t := range tickets {
		at, ok := starts[t.EventID]
		if !ok {
			ev, err := s.events.Event(ctx, t.EventID)
			if err != nil {
				return nil, err
			}
			at = ev.StartsAt
			starts[t.EventID] = at
		}
		out = append(out, s.view(t, at))
	}
	return out, nil
}

// TicketImage renders the QR image of a confirmed ticket from its stored
// payload.
func (s *Service) TicketImage(ctx context.Context, ticketID, requesterID string) ([]byte, error) {
	t, err := s.ledger.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.HolderID != requesterID {
		return nil, apperr.ErrNotTicketHolder
	}
	if t.IssuedAt == nil || t.Status == model.TicketCancelled {
		return nil, apperr.New(apperr.KindInvalidRequest, "ticket %s has no scannable code", t.Status)
	}
	issued, err := s.issuer.Issue(t)
	if err != nil {
		return nil, fmt.Errorf("booking: issue %s: %w", ticketID, err)
	}
	if issued.ImageErr != nil {
		s.log.WithError(issued.ImageErr).WithField("ticket_id", ticketID).Warn("rendering ticket image failed")
		return nil, apperr.ErrImageUnavailable
	}
	return issued.Image, nil
}

func (s *Service) view(t model.Ticket, startsAt time.Time) IssuedTicket {
	return IssuedTicket{
		Ticket:          t,
		EffectiveStatus: t.EffectiveStatus(startsAt, s.now().UTC()),
		ImageAvailable:  t.VerificationPayload != "",
	}
}

// Seats returns the seat map of an event, creating it on first access.
func (s *Service) Seats(ctx context.Context, eventID string) (model.SeatInventory, error) {
	ev, err := s.events.Event(ctx, eventID)
	if err != nil {
		return model.SeatInventory{}, err
	}
	return s.inventory.EnsureInventory(ctx, eventID, ev.Capacity)
}
