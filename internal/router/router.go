package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-booking-core/internal/handler"
	"github.com/iliyamo/ticket-booking-core/internal/metrics"
)

// RegisterRoutes registers operational endpoints that do not require
// authentication: the health check used by load balancers and the
// Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, checks map[string]handler.Check) {
	e.GET("/healthz", handler.Health(checks))
	e.GET("/metrics", metrics.Handler())
}

// RegisterPublic registers guest endpoints. The seat map carries no holder
// ids, so it is safe to serve from the shared response cache.
func RegisterPublic(e *echo.Echo, s *handler.SeatHandler, mw ...echo.MiddlewareFunc) {
	g := e.Group("/v1", mw...)
	g.GET("/events/:id/seats", s.SeatMap)
}
