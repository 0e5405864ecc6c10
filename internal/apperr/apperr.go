// Package apperr defines the caller-visible error taxonomy of the booking
// core. Every error carries a stable machine-readable Kind and a human
// readable message. Handlers translate kinds into HTTP status codes; the
// message is safe to show to the caller and never contains lock details or
// raw persistence errors.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the stable identifier of an error class.
type Kind string

const (
	KindSeatUnavailable          Kind = "seat_unavailable"
	KindNoSeatsAvailable         Kind = "no_seats_available"
	KindEventNotBookable         Kind = "event_not_bookable"
	KindEventNotFound            Kind = "event_not_found"
	KindDuplicateBooking         Kind = "duplicate_booking"
	KindInvalidPaymentProof      Kind = "invalid_payment_proof"
	KindAlreadyCheckedIn         Kind = "already_checked_in"
	KindInvalidStateForCheckIn   Kind = "invalid_state_for_check_in"
	KindInvalidStateForConfirm   Kind = "invalid_state_for_confirm"
	KindCannotCancelUsedTicket   Kind = "cannot_cancel_used_ticket"
	KindCannotCancelPastEvent    Kind = "cannot_cancel_past_event"
	KindAlreadyCancelled         Kind = "already_cancelled"
	KindTicketNotFound           Kind = "ticket_not_found"
	KindNotTicketHolder          Kind = "not_ticket_holder"
	KindInvalidRequest           Kind = "invalid_request"
	KindBookingPersistenceFailed Kind = "booking_persistence_failed"
	KindImageUnavailable         Kind = "image_unavailable"
	KindInternal                 Kind = "internal"
)

// Error is a classified error. Two *Error values match under errors.Is when
// their kinds are equal, so a sentinel matches any annotated copy of itself.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels. Use errors.Is(err, apperr.ErrX) to test for a class.
var (
	ErrSeatUnavailable          = &Error{KindSeatUnavailable, "requested seat is not available"}
	ErrNoSeatsAvailable         = &Error{KindNoSeatsAvailable, "not enough seats available"}
	ErrEventNotBookable         = &Error{KindEventNotBookable, "event is not open for booking"}
	ErrEventNotFound            = &Error{KindEventNotFound, "event not found"}
	ErrDuplicateBooking         = &Error{KindDuplicateBooking, "holder already has an active ticket for this event"}
	ErrInvalidPaymentProof      = &Error{KindInvalidPaymentProof, "payment proof is invalid"}
	ErrAlreadyCheckedIn         = &Error{KindAlreadyCheckedIn, "ticket is already checked in"}
	ErrInvalidStateForCheckIn   = &Error{KindInvalidStateForCheckIn, "ticket cannot be checked in"}
	ErrInvalidStateForConfirm   = &Error{KindInvalidStateForConfirm, "ticket cannot be confirmed"}
	ErrCannotCancelUsedTicket   = &Error{KindCannotCancelUsedTicket, "checked-in ticket cannot be cancelled"}
	ErrCannotCancelPastEvent    = &Error{KindCannotCancelPastEvent, "tickets for past events cannot be cancelled"}
	ErrAlreadyCancelled         = &Error{KindAlreadyCancelled, "ticket is already cancelled"}
	ErrTicketNotFound           = &Error{KindTicketNotFound, "ticket not found"}
	ErrNotTicketHolder          = &Error{KindNotTicketHolder, "ticket belongs to another holder"}
	ErrInvalidRequest           = &Error{KindInvalidRequest, "invalid request"}
	ErrBookingPersistenceFailed = &Error{KindBookingPersistenceFailed, "booking could not be saved"}
	ErrImageUnavailable         = &Error{KindImageUnavailable, "ticket image is temporarily unavailable"}
	ErrInternal                 = &Error{KindInternal, "internal error"}
)

// New returns an error of the given kind with a specific message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Public returns the caller-safe form of err: the first *Error in the chain,
// or ErrInternal for anything unclassified.
func Public(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}
