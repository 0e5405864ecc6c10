package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-booking-core/internal/booking"
	"github.com/iliyamo/ticket-booking-core/internal/middleware"
)

// StaffHandler serves venue check-in. Routes require the STAFF role.
type StaffHandler struct {
	svc *booking.Service
}

func NewStaffHandler(svc *booking.Service) *StaffHandler {
	if svc == nil {
		panic("nil service passed to NewStaffHandler")
	}
	return &StaffHandler{svc: svc}
}

// CheckIn handles POST /v1/tickets/:id/check-in.
func (h *StaffHandler) CheckIn(c echo.Context) error {
	staff := middleware.UserID(c)
	if staff == "" {
		return unauthorized(c)
	}
	it, err := h.svc.CheckIn(c.Request().Context(), c.Param("id"), staff)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": it})
}

// Scan handles POST /v1/check-in/scan with {"payload": "..."} as read from
// the ticket's QR code.
func (h *StaffHandler) Scan(c echo.Context) error {
	staff := middleware.UserID(c)
	if staff == "" {
		return unauthorized(c)
	}
	var body struct {
		Payload string `json:"payload"`
	}
	if err := c.Bind(&body); err != nil || strings.TrimSpace(body.Payload) == "" {
		return badRequest(c, "payload is required")
	}
	it, err := h.svc.CheckInScanned(c.Request().Context(), strings.TrimSpace(body.Payload), staff)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": it})
}
