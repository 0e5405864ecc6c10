package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-booking-core/internal/handler"
	"github.com/iliyamo/ticket-booking-core/internal/middleware"
)

// RegisterCustomer registers customer-scoped endpoints under /v1. All routes
// require a valid JWT and the CUSTOMER role; handlers act on behalf of the
// token subject only.
func RegisterCustomer(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, mw ...echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer),
	)
	g.Use(mw...)

	g.POST("/events/:id/bookings", h.Book)
	g.POST("/tickets/:id/confirm", h.Confirm)
	g.DELETE("/tickets/:id", h.Cancel)
	g.GET("/tickets/:id", h.Get)
	g.GET("/tickets/:id/qr", h.QR)
	g.GET("/my-tickets", h.ListMine)
}

// RegisterPaymentSimulation mounts the development payment authority. It is
// only registered when simulation is enabled.
func RegisterPaymentSimulation(e *echo.Echo, h *handler.PaymentSimHandler, jwtSecret string) {
	g := e.Group(
		"/v1/payments",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer),
	)
	g.POST("/simulate", h.Simulate)
}
