// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const service = "ticket-booking-core"

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status", "service"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "service"},
	)

	// TicketOperations counts lifecycle operations by outcome. Failed
	// outcomes are labelled with the error kind.
	TicketOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_operations_total",
			Help: "Total number of ticket operations",
		},
		[]string{"operation", "outcome", "service"},
	)

	SeatsReserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seats_reserved_total",
		Help: "Seats handed out by successful bookings",
	})

	// Rollbacks counts bookings that released their seats after a later step
	// failed.
	Rollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_rollbacks_total",
			Help: "Bookings rolled back after seats were reserved",
		},
		[]string{"reason", "service"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_events_published_total",
			Help: "Ticket events sent to the broker",
		},
		[]string{"type", "status", "service"},
	)
)

// Operation records one ticket operation outcome.
func Operation(op, outcome string) {
	TicketOperations.WithLabelValues(op, outcome, service).Inc()
}

func Rollback(reason string) {
	Rollbacks.WithLabelValues(reason, service).Inc()
}

func Published(eventType string, ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	EventsPublished.WithLabelValues(eventType, status, service).Inc()
}

// Middleware records request count and latency per route template.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			path := c.Path()
			RequestsTotal.WithLabelValues(c.Request().Method, path, strconv.Itoa(c.Response().Status), service).Inc()
			RequestDuration.WithLabelValues(c.Request().Method, path, service).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler serves the default registry.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
