package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-booking-core/internal/booking"
	"github.com/iliyamo/ticket-booking-core/internal/middleware"
)

// BookingHandler exposes booking and ticket endpoints to customers. JWT
// authentication and the CUSTOMER role are enforced by middleware; the
// holder id is always the token subject.
type BookingHandler struct {
	svc *booking.Service
}

func NewBookingHandler(svc *booking.Service) *BookingHandler {
	if svc == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{svc: svc}
}

type bookBody struct {
	Count         int                 `json:"count"`
	SeatIDs       []string            `json:"seat_ids"`
	PaymentMethod string              `json:"payment_method"`
	PaymentProof  *booking.ProofInput `json:"payment_proof"`
}

// Book handles POST /v1/events/:id/bookings. Count defaults to the number
// of requested seat ids, or one.
func (h *BookingHandler) Book(c echo.Context) error {
	holder := middleware.UserID(c)
	if holder == "" {
		return unauthorized(c)
	}
	var body bookBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Count == 0 {
		body.Count = len(body.SeatIDs)
		if body.Count == 0 {
			body.Count = 1
		}
	}
	res, err := h.svc.Book(c.Request().Context(), booking.BookRequest{
		EventID:          c.Param("id"),
		HolderID:         holder,
		Count:            body.Count,
		PreferredSeatIDs: body.SeatIDs,
		PaymentMethod:    body.PaymentMethod,
		Proof:            body.PaymentProof,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Confirm handles POST /v1/tickets/:id/confirm with a payment proof body.
func (h *BookingHandler) Confirm(c echo.Context) error {
	holder := middleware.UserID(c)
	if holder == "" {
		return unauthorized(c)
	}
	var proof booking.ProofInput
	if err := c.Bind(&proof); err != nil {
		return badRequest(c, "invalid request body")
	}
	it, err := h.svc.Confirm(c.Request().Context(), c.Param("id"), holder, proof)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": it})
}

// Cancel handles DELETE /v1/tickets/:id.
func (h *BookingHandler) Cancel(c echo.Context) error {
	holder := middleware.UserID(c)
	if holder == "" {
		return unauthorized(c)
	}
	it, err := h.svc.Cancel(c.Request().Context(), c.Param("id"), holder)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": it})
}

// Get handles GET /v1/tickets/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	holder := middleware.UserID(c)
	if holder == "" {
		return unauthorized(c)
	}
	it, err := h.svc.Ticket(c.Request().Context(), c.Param("id"), holder)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": it})
}

// QR handles GET /v1/tickets/:id/qr and returns the PNG image.
func (h *BookingHandler) QR(c echo.Context) error {
	holder := middleware.UserID(c)
	if holder == "" {
		return unauthorized(c)
	}
	img, err := h.svc.TicketImage(c.Request().Context(), c.Param("id"), holder)
	if err != nil {
		return fail(c, err)
	}
	c.Response().Header().Set("Cache-Control", "private, max-age=300")
	return c.Blob(http.StatusOK, "image/png", img)
}

// ListMine handles GET /v1/my-tickets.
func (h *BookingHandler) ListMine(c echo.Context) error {
	holder := middleware.UserID(c)
	if holder == "" {
		return unauthorized(c)
	}
	items, err := h.svc.TicketsForHolder(c.Request().Context(), holder)
	if err != nil {
		return fail(c, err)
	}
	if items == nil {
		items = []booking.IssuedTicket{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
