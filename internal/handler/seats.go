package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-booking-core/internal/booking"
)

// SeatHandler serves public seat maps.
type SeatHandler struct {
	svc *booking.Service
}

func NewSeatHandler(svc *booking.Service) *SeatHandler {
	if svc == nil {
		panic("nil service passed to NewSeatHandler")
	}
	return &SeatHandler{svc: svc}
}

type publicSeat struct {
	SeatID   string `json:"seat_id"`
	Position int    `json:"position"`
	Status   string `json:"status"`
}

// SeatMap handles GET /v1/events/:id/seats. Holders are never exposed.
func (h *SeatHandler) SeatMap(c echo.Context) error {
	inv, err := h.svc.Seats(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	seats := make([]publicSeat, len(inv.Seats))
	for i, s := range inv.Seats {
		status := "FREE"
		if s.Occupied {
			status = "TAKEN"
		}
		seats[i] = publicSeat{SeatID: s.SeatID, Position: s.Position, Status: status}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event_id":  inv.EventID,
		"total":     inv.TotalSeats,
		"available": inv.Available(),
		"seats":     seats,
	})
}
