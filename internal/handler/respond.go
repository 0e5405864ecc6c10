package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-booking-core/internal/apperr"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindSeatUnavailable:          http.StatusConflict,
	apperr.KindNoSeatsAvailable:         http.StatusConflict,
	apperr.KindEventNotBookable:         http.StatusUnprocessableEntity,
	apperr.KindEventNotFound:            http.StatusNotFound,
	apperr.KindDuplicateBooking:         http.StatusConflict,
	apperr.KindInvalidPaymentProof:      http.StatusPaymentRequired,
	apperr.KindAlreadyCheckedIn:         http.StatusConflict,
	apperr.KindInvalidStateForCheckIn:   http.StatusConflict,
	apperr.KindInvalidStateForConfirm:   http.StatusConflict,
	apperr.KindCannotCancelUsedTicket:   http.StatusConflict,
	apperr.KindCannotCancelPastEvent:    http.StatusConflict,
	apperr.KindAlreadyCancelled:         http.StatusConflict,
	apperr.KindTicketNotFound:           http.StatusNotFound,
	apperr.KindNotTicketHolder:          http.StatusForbidden,
	apperr.KindInvalidRequest:           http.StatusBadRequest,
	apperr.KindBookingPersistenceFailed: http.StatusServiceUnavailable,
	apperr.KindImageUnavailable:         http.StatusServiceUnavailable,
	apperr.KindInternal:                 http.StatusInternalServerError,
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	if s, ok := statusByKind[apperr.KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": message, "kind": kind}. Unclassified errors
// are logged and reported as a generic internal error.
func fail(c echo.Context, err error) error {
	pub := apperr.Public(err)
	if pub.Kind == apperr.KindInternal {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(StatusOf(err), echo.Map{"error": pub.Message, "kind": pub.Kind})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "kind": apperr.KindInvalidRequest})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}
