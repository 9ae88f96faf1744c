package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cinebook/cinebook/internal/middleware"
	"github.com/cinebook/cinebook/internal/model"
	"github.com/cinebook/cinebook/internal/service"
)

// ReservationHandler exposes checkout and the reservation state
// transitions. Checkout converts the caller's live holds into pending
// reservations; confirm, cancel and ticket issuance drive the status
// machine from there.
type ReservationHandler struct {
	Reservations *service.ReservationService
}

func NewReservationHandler(reservations *service.ReservationService) *ReservationHandler {
	return &ReservationHandler{Reservations: reservations}
}

type reservationView struct {
	ID        uint64                  `json:"id"`
	SeatID    uint64                  `json:"seat_id"`
	Status    model.ReservationStatus `json:"status"`
	ExpiresAt time.Time               `json:"expires_at"`
}

func viewReservation(r *model.Reservation) reservationView {
	return reservationView{
		ID:        r.ID,
		SeatID:    r.SeatID,
		Status:    r.Status,
		ExpiresAt: r.ExpiresAt.UTC(),
	}
}

// Checkout handles POST /v1/screenings/:id/checkout. All live holds
// under the caller's client token become PENDING reservations in one
// transaction; the holds themselves are consumed.
func (h *ReservationHandler) Checkout(c echo.Context) error {
	screeningID, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
	}
	token := middleware.ClientToken(c)
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing " + middleware.ClientTokenHeader + " header"})
	}

	created, err := h.Reservations.Checkout(c.Request().Context(), screeningID, token, middleware.UserID(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	views := make([]reservationView, 0, len(created))
	for i := range created {
		views = append(views, viewReservation(&created[i]))
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"screening_id": screeningID,
		"reservations": views,
	})
}

// Confirm handles POST /v1/reservations/:id/confirm.
func (h *ReservationHandler) Confirm(c echo.Context) error {
	return h.transition(c, h.Reservations.Confirm)
}

// Cancel handles POST /v1/reservations/:id/cancel.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	return h.transition(c, h.Reservations.Cancel)
}

// IssueTicket handles POST /v1/reservations/:id/ticket. The
// reservation must be CONFIRMED; it moves to COMPLETED and the ticket
// code comes back to the caller exactly once.
func (h *ReservationHandler) IssueTicket(c echo.Context) error {
	reservationID, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ticket, err := h.Reservations.IssueTicket(c.Request().Context(), reservationID)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"ticket_id":      ticket.ID,
		"reservation_id": ticket.ReservationID,
		"seat_id":        ticket.SeatID,
		"code":           ticket.Code,
		"issued_at":      ticket.IssuedAt,
	})
}

func (h *ReservationHandler) transition(c echo.Context, op func(ctx context.Context, id uint64) (*model.Reservation, error)) error {
	reservationID, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, err := op(c.Request().Context(), reservationID)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, viewReservation(res))
}
