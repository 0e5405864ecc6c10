package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-booking-core/internal/apperr"
	"github.com/iliyamo/ticket-booking-core/internal/inventory"
	"github.com/iliyamo/ticket-booking-core/internal/issuer"
	"github.com/iliyamo/ticket-booking-core/internal/ledger"
	"github.com/iliyamo/ticket-booking-core/internal/lock"
	"github.com/iliyamo/ticket-booking-core/internal/model"
	"github.com/iliyamo/ticket-booking-core/internal/payment"
	"github.com/iliyamo/ticket-booking-core/internal/queue"
)

const proofSecret = "proof-secret"

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu        sync.Mutex
	events    []queue.TicketEvent
	onPublish func()
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.TicketEvent) error {
	if p.onPublish != nil {
		p.onPublish()
	}
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

// flakyStore reports a failed batch write after storing only its first
// ticket.
type flakyStore struct {
	*ledger.MemoryStore
	failBatch bool
}

func (f *flakyStore) CreateBatch(ctx context.Context, tickets []model.Ticket) (int, error) {
	if !f.failBatch {
		return f.MemoryStore.CreateBatch(ctx, tickets)
	}
	n, _ := f.MemoryStore.CreateBatch(ctx, tickets[:1])
	return n, errors.New("connection reset by peer")
}

type harness struct {
	svc     *Service
	inv     *inventory.Inventory
	tickets ledger.Store
	events  *MemoryEvents
	pub     *recordingPublisher
	locker  lock.Locker
	signer  *payment.Signer
	hook    *test.Hook
	at      time.Time
}

type harnessConfig struct {
	store  ledger.Store
	encode issuer.Encoder
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	if cfg.store == nil {
		cfg.store = ledger.NewMemoryStore()
	}
	h := &harness{
		tickets: cfg.store,
		pub:     &recordingPublisher{},
		signer:  payment.NewSigner(proofSecret, ""),
		hook:    hook,
		at:      start,
	}
	clock := func() time.Time { return h.at }
	locker := lock.NewLocal()
	h.locker = locker
	h.inv = inventory.New(inventory.NewMemoryStore(), cfg.store, locker, log)
	h.events = NewMemoryEvents(
		model.Event{ID: "concert", Status: model.EventPublished, StartsAt: start.Add(7 * 24 * time.Hour), Capacity: 10, PriceCents: 2500, Currency: "EUR"},
		model.Event{ID: "meetup", Status: model.EventPublished, StartsAt: start.Add(48 * time.Hour), Capacity: 20, Currency: "EUR"},
		model.Event{ID: "draft", Status: model.EventDraft, StartsAt: start.Add(48 * time.Hour), Capacity: 5},
		model.Event{ID: "yesterday", Status: model.EventPublished, StartsAt: start.Add(-24 * time.Hour), Capacity: 5},
	)
	h.svc = New(Deps{
		Events:    h.events,
		Inventory: h.inv,
		Verifier:  payment.NewVerifier(proofSecret, ""),
		Claims:    payment.NewMemoryClaims(),
		Ledger:    ledger.New(cfg.store, h.inv, log, ledger.WithClock(clock)),
		Issuer:    issuer.New("ticket-secret", cfg.encode),
		Publisher: h.pub,
		Locker:    locker,
		Log:       log,
	}, WithClock(clock))
	return h
}

func (h *harness) available(t *testing.T, eventID string) int {
	t.Helper()
	snap, err := h.inv.Snapshot(context.Background(), eventID)
	require.NoError(t, err)
	return snap.Available()
}

func (h *harness) proof(t *testing.T, txn, holder, eventID string) *ProofInput {
	t.Helper()
	token, _, err := h.signer.Sign(txn, holder, eventID, 10*time.Minute)
	require.NoError(t, err)
	return &ProofInput{Token: token, TransactionID: txn}
}

func TestBookFreeEventConfirmsAndIssues(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	res, err := h.svc.Book(context.Background(), BookRequest{EventID: "meetup", HolderID: "alice", Count: 2})
	require.NoError(t, err)
	require.Len(t, res.Tickets, 2)
	assert.Empty(t, res.Warnings)

	for _, it := range res.Tickets {
		assert.Equal(t, model.TicketConfirmed, it.Status)
		assert.Equal(t, model.PaymentCompleted, it.Payment.Status)
		assert.Equal(t, "free", it.Payment.Method)
		assert.NotEmpty(t, it.VerificationPayload)
		assert.True(t, it.ImageAvailable)

		stored, err := h.tickets.Get(context.Background(), it.ID)
		require.NoError(t, err)
		assert.Equal(t, it.VerificationPayload, stored.VerificationPayload)
	}
	assert.Equal(t, []string{"S001", "S002"}, []string{res.Tickets[0].SeatID, res.Tickets[1].SeatID})
	assert.Equal(t, 18, h.available(t, "meetup"))
	assert.Equal(t, []string{queue.TypeBookingConfirmed}, h.pub.types())
}

func TestIssuedPayloadSurvivesStoredTimestamps(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.at = start.Add(750 * time.Millisecond)
	ctx := context.Background()
	res, err := h.svc.Book(ctx, BookRequest{EventID: "meetup", HolderID: "alice", Count: 1})
	require.NoError(t, err)
	it := res.Tickets[0]
	require.NotNil(t, it.IssuedAt)
	require.NotNil(t, it.Payment.PaidAt)
	assert.Zero(t, it.IssuedAt.Nanosecond())
	assert.Zero(t, it.Payment.PaidAt.Nanosecond())
	assert.Zero(t, it.CreatedAt.Nanosecond())

	stored, err := h.tickets.Get(ctx, it.ID)
	require.NoError(t, err)
	again, err := issuer.New("ticket-secret", nil).Payload(stored)
	require.NoError(t, err)
	assert.Equal(t, it.VerificationPayload, again)
}

func TestHolderLockIsFreeBeforePublishing(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	var lockErr error
	h.pub.onPublish = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		unlock, err := h.locker.Lock(ctx, holderLockKey("meetup", "alice"))
		lockErr = err
		if err == nil {
			unlock()
		}
	}

	_, err := h.svc.Book(context.Background(), BookRequest{EventID: "meetup", HolderID: "alice", Count: 1})
	require.NoError(t, err)
	require.Equal(t, []string{queue.TypeBookingConfirmed}, h.pub.types())
	assert.NoError(t, lockErr)

	// the deferred release must not unlock a lock taken by someone else
	unlock, err := h.locker.Lock(context.Background(), holderLockKey("meetup", "alice"))
	require.NoError(t, err)
	unlock()
}

func TestBookPaidEventWithoutProofReserves(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()
	res, err := h.svc.Book(ctx, BookRequest{EventID: "concert", HolderID: "alice", Count: 1, PaymentMethod: "card"})
	require.NoError(t, err)
	tk := res.Tickets[0]
	assert.Equal(t, model.TicketReserved, tk.Status)
	assert.Equal(t, model.PaymentPending, tk.Payment.Status)
	assert.Equal(t, int64(2500), tk.Payment.AmountCents)
	assert.Empty(t, tk.VerificationPayload)
	assert.Empty(t, h.pub.types())

	_, err = h.svc.TicketImage(ctx, tk.ID, "alice")
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	_, err = h.svc.Confirm(ctx, tk.ID, "bob", *h.proof(t, "txn-1", "bob", "concert"))
	assert.ErrorIs(t, err, apperr.ErrNotTicketHolder)

	confirmed, err := h.svc.Confirm(ctx, tk.ID, "alice", *h.proof(t, "txn-1", "alice", "concert"))
	require.NoError(t, err)
	assert.Equal(t, model.TicketConfirmed, confirmed.Status)
	assert.Equal(t, "txn-1", confirmed.Payment.ProofReference)
	assert.NotEmpty(t, confirmed.VerificationPayload)
	assert.Equal(t, []string{queue.TypeBookingConfirmed}, h.pub.types())

	_, err = h.svc.Confirm(ctx, tk.ID, "alice", *h.proof(t, "txn-2", "alice", "concert"))
	assert.ErrorIs(t, err, apperr.ErrInvalidStateForConfirm)

	img, err := h.svc.TicketImage(ctx, tk.ID, "alice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(img), "\x89PNG"))
}

func TestBookWithValidProofConfirms(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	res, err := h.svc.Book(context.Background(), BookRequest{
		EventID: "concert", HolderID: "alice", Count: 3, PaymentMethod: "card",
		Proof: h.proof(t, "txn-9", "alice", "concert"),
	})
	require.NoError(t, err)
	require.Len(t, res.Tickets, 3)
	for _, it := range res.Tickets {
		assert.Equal(t, model.TicketConfirmed, it.Status)
		assert.Equal(t, "txn-9", it.Payment.ProofReference)
	}
	assert.Equal(t, 7, h.available(t, "concert"))
}

func TestBookRejectsUnbookableEvents(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()

	_, err := h.svc.Book(ctx, BookRequest{EventID: "draft", HolderID: "alice", Count: 1})
	assert.ErrorIs(t, err, apperr.ErrEventNotBookable)
	_, err = h.svc.Book(ctx, BookRequest{EventID: "yesterday", HolderID: "alice", Count: 1})
	assert.ErrorIs(t, err, apperr.ErrEventNotBookable)
	_, err = h.svc.Book(ctx, BookRequest{EventID: "nope", HolderID: "alice", Count: 1})
	assert.ErrorIs(t, err, apperr.ErrEventNotFound)
	_, err = h.svc.Book(ctx, BookRequest{EventID: "meetup", HolderID: "alice", Count: 0})
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
	_, err = h.svc.Book(ctx, BookRequest{EventID: "meetup", HolderID: "alice", Count: 1, Proof: &ProofInput{Token: "x"}})
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}

func TestConcurrentSingleSeatBookingsNeverOversell(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	const seats = 20

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sold     = map[string]string{}
		failures []error
	)
	for i := 0; i < seats+1; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			holder := fmt.Sprintf("holder-%02d", i)
			res, err := h.svc.Book(context.Background(), BookRequest{EventID: "meetup", HolderID: holder, Count: 1})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			seat := res.Tickets[0].SeatID
			_, dup := sold[seat]
			assert.False(t, dup, "seat %s sold twice", seat)
			sold[seat] = holder
		}(i)
	}
	wg.Wait()

	assert.Len(t, sold, seats)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], apperr.ErrNoSeatsAvailable)
	assert.Equal(t, 0, h.available(t, "meetup"))
}

func TestMultiSeatBookingIsAllOrNothing(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()
	for _, holder := range []string{"a", "b", "c", "d", "e", "f"} {
		_, err := h.svc.Book(ctx, BookRequest{EventID: "concert", HolderID: holder, Count: 1, PaymentMethod: "card"})
		require.NoError(t, err)
	}
	require.Equal(t, 4, h.available(t, "concert"))

	_, err := h.svc.Book(ctx, BookRequest{EventID: "concert", HolderID: "zed", Count: 5, PaymentMethod: "card"})
	assert.ErrorIs(t, err, apperr.ErrNoSeatsAvailable)
	assert.Equal(t, 4, h.available(t, "concert"))
}

func TestInvalidProofReleasesSeats(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()
	require.Equal(t, 0, h.available(t, "concert"), "no inventory before the first booking")

	cases := map[string]*ProofInput{
		"garbage token":     {Token: "not-a-jwt", TransactionID: "txn-1"},
		"other holder":      h.proof(t, "txn-1", "bob", "concert"),
		"other event":       h.proof(t, "txn-1", "alice", "meetup"),
		"wrong transaction": {Token: h.proof(t, "txn-1", "alice", "concert").Token, TransactionID: "txn-2"},
	}
	for name, proof := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.Book(ctx, BookRequest{EventID: "concert", HolderID: "alice", Count: 2, Proof: proof})
			assert.ErrorIs(t, err, apperr.ErrInvalidPaymentProof)
			assert.Equal(t, 10, h.available(t, "concert"))
		})
	}
	active, err := h.tickets.HasActive(ctx, "concert", "alice")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestProofIsSingleUse(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()
	proof := h.proof(t, "txn-1", "alice", "concert")

	res, err := h.svc.Book(ctx, BookRequest{EventID: "concert", HolderID: "alice", Count: 1, Proof: proof})
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, res.Tickets[0].ID, "alice")
	require.NoError(t, err)

	_, err = h.svc.Book(ctx, BookRequest{EventID: "concert", HolderID: "alice", Count: 1, Proof: proof})
	assert.ErrorIs(t, err, apperr.ErrInvalidPaymentProof)
	assert.Equal(t, 10, h.available(t, "concert"))
}

func TestDuplicateBookingLeavesInventoryUnchanged(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()
	_, err := h.svc.Book(ctx, BookRequest{EventID: "meetup", HolderID: "alice", Count: 1})
	require.NoError(t, err)
	before := h.available(t, "meetup")

	_, err = h.svc.Book(ctx, BookRequest{EventID: "meetup", HolderID: "alice", Count: 1})
	assert.ErrorIs(t, err, apperr.ErrDuplicateBooking)
	assert.Equal(t, before, h.available(t, "meetup"))
}

func TestConcurrentFirstBookingsBySameHolder(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Book(context.Background(), BookRequest{EventID: "meetup", HolderID: "alice", Count: 1})
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrDuplicateBooking)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 19, h.available(t, "meetup"))
}

func TestPersistenceFailureRollsBack(t *testing.T) {
	store := &flakyStore{MemoryStore: ledger.NewMemoryStore()}
	h := newHarness(t, harnessConfig{store: store})
	ctx := context.Background()
	_, err := h.svc.Seats(ctx, "concert")
	require.NoError(t, err)

	store.failBatch = true
	proof := h.proof(t, "txn-1", "alice", "concert")
	_, err = h.svc.Book(ctx, BookRequest{EventID: "concert", HolderID: "alice", Count: 3, Proof: proof})
	assert.ErrorIs(t, err, apperr.ErrBookingPersistenceFailed)
	assert.NotContains(t, err.Error(), "connection reset")
	assert.Equal(t, 10, h.available(t, "concert"))

	active, err := store.HasActive(ctx, "concert", "alice")
	require.NoError(t, err)
	assert.False(t, active, "partially written tickets must not stay active")

	// The claim was released, so the same proof pays for the retry.
	store.failBatch = false
	res, err := h.svc.Book(ctx, BookRequest{EventID: "concert", HolderID: "alice", Count: 3, Proof: proof})
	require.NoError(t, err)
	assert.Len(t, res.Tickets, 3)
}

func TestCancelFreesSeatForNextBooking(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()
	_, err := h.svc.Seats(ctx, "meetup")
	require.NoError(t, err)
	before := h.available(t, "meetup")

	res, err := h.svc.Book(ctx, BookRequest{EventID: "meetup", HolderID: "alice", Count: 1, PreferredSeatIDs: []string{"S007"}})
	require.NoError(t, err)
	seat := res.Tickets[0].SeatID
	require.Equal(t, "S007", seat)

	_, err = h.svc.Cancel(ctx, res.Tickets[0].ID, "bob")
	assert.ErrorIs(t, err, apperr.ErrNotTicketHolder)

	cancelled, err := h.svc.Cancel(ctx, res.Tickets[0].ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TicketCancelled, cancelled.Status)
	assert.Equal(t, before, h.available(t, "meetup"))

	again, err := h.svc.Book(ctx, BookRequest{EventID: "meetup", HolderID: "bob", Count: 1, PreferredSeatIDs: []string{seat}})
	require.NoError(t, err)
	assert.Equal(t, seat, again.Tickets[0].SeatID)
	assert.Equal(t, []string{queue.TypeBookingConfirmed, queue.TypeTicketCancelled, queue.TypeBookingConfirmed}, h.pub.types())
}

func TestCheckInScanned(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()
	res, err := h.svc.Book(ctx, BookRequest{EventID: "meetup", HolderID: "alice", Count: 1})
	require.NoError(t, err)
	payload := res.Tickets[0].VerificationPayload

	_, err = h.svc.CheckInScanned(ctx, payload[:len(payload)-2]+"xx", "gate-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	got, err := h.svc.CheckInScanned(ctx, payload, "gate-1")
	require.NoError(t, err)
	assert.Equal(t, model.TicketCheckedIn, got.Status)
	assert.Equal(t, "gate-1", got.CheckIn.By)

	_, err = h.svc.CheckInScanned(ctx, payload, "gate-1")
	assert.ErrorIs(t, err, apperr.ErrAlreadyCheckedIn)

	_, err = h.svc.Cancel(ctx, got.ID, "alice")
	assert.ErrorIs(t, err, apperr.ErrCannotCancelUsedTicket)
}

func TestCheckInRejectsCancelledTicket(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()
	res, err := h.svc.Book(ctx, BookRequest{EventID: "meetup", HolderID: "alice", Count: 1})
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, res.Tickets[0].ID, "alice")
	require.NoError(t, err)

	_, err = h.svc.CheckIn(ctx, res.Tickets[0].ID, "gate-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidStateForCheckIn)
}

func TestImageFailureIsASoftWarning(t *testing.T) {
	broken := func(string) ([]byte, error) { return nil, errors.New("encoder offline") }
	h := newHarness(t, harnessConfig{encode: broken})
	ctx := context.Background()

	res, err := h.svc.Book(ctx, BookRequest{EventID: "meetup", HolderID: "alice", Count: 1})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	tk := res.Tickets[0]
	assert.Equal(t, model.TicketConfirmed, tk.Status)
	assert.NotEmpty(t, tk.VerificationPayload)
	assert.False(t, tk.ImageAvailable)

	warned := false
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "rendering ticket image failed" {
			warned = true
		}
	}
	assert.True(t, warned)

	_, err = h.svc.TicketImage(ctx, tk.ID, "alice")
	assert.ErrorIs(t, err, apperr.ErrImageUnavailable)
}

func TestTicketViewsDeriveExpiry(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()
	res, err := h.svc.Book(ctx, BookRequest{EventID: "meetup", HolderID: "alice", Count: 1})
	require.NoError(t, err)
	id := res.Tickets[0].ID
	payload := res.Tickets[0].VerificationPayload

	view, err := h.svc.Ticket(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TicketConfirmed, view.EffectiveStatus)

	_, err = h.svc.Ticket(ctx, id, "bob")
	assert.ErrorIs(t, err, apperr.ErrNotTicketHolder)

	h.at = start.Add(72 * time.Hour)
	list, err := h.svc.TicketsForHolder(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.TicketExpired, list[0].EffectiveStatus)
	assert.Equal(t, model.TicketConfirmed, list[0].Status)
	assert.Equal(t, payload, list[0].VerificationPayload)

	_, err = h.svc.Cancel(ctx, id, "alice")
	assert.ErrorIs(t, err, apperr.ErrCannotCancelPastEvent)
}
