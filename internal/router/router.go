// Package router wires the HTTP surface: health, public browse, seat
// grid and the booking endpoints.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/cinebook/cinebook/internal/handler"
)

// Handlers bundles everything the router registers.
type Handlers struct {
	Browse       *handler.BrowseHandler
	SeatGrid     *handler.SeatGridHandler
	Holds        *handler.HoldHandler
	Reservations *handler.ReservationHandler
}

// Middlewares carries the cross-cutting middleware the routes use.
// Cache applies only to the browse listing and detail routes; the
// seat grid stays uncached so clients always see live hold state.
// Limit protects the write endpoints.
type Middlewares struct {
	Auth  echo.MiddlewareFunc
	Cache echo.MiddlewareFunc
	Limit echo.MiddlewareFunc
}

// Register mounts every route on the Echo instance.
func Register(e *echo.Echo, h Handlers, mw Middlewares) {
	e.GET("/healthz", handler.Health)

	v1 := e.Group("/v1", mw.Auth)

	// Public browse. No auth required; auth only enriches identity.
	v1.GET("/screenings", h.Browse.List, mw.Cache)
	v1.GET("/screenings/:id", h.Browse.Get, mw.Cache)
	v1.GET("/screenings/:id/seats", h.SeatGrid.Get)

	// Hold lifecycle.
	v1.POST("/screenings/:id/holds", h.Holds.Create, mw.Limit)
	v1.POST("/holds/:id/extend", h.Holds.Extend, mw.Limit)
	v1.DELETE("/holds/:id", h.Holds.Release)

	// Checkout and reservation transitions.
	v1.POST("/screenings/:id/checkout", h.Reservations.Checkout, mw.Limit)
	v1.POST("/reservations/:id/confirm", h.Reservations.Confirm)
	v1.POST("/reservations/:id/cancel", h.Reservations.Cancel)
	v1.POST("/reservations/:id/ticket", h.Reservations.IssueTicket)
}
