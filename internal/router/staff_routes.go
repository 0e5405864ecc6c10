package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-booking-core/internal/handler"
	"github.com/iliyamo/ticket-booking-core/internal/middleware"
)

// RegisterStaff registers venue staff endpoints. All routes require a valid
// JWT and the STAFF role.
func RegisterStaff(e *echo.Echo, h *handler.StaffHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleStaff),
	)
	g.POST("/tickets/:id/check-in", h.CheckIn)
	g.POST("/check-in/scan", h.Scan)
}
