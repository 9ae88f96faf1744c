package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cinebook/cinebook/internal/service"
)

// SeatGridHandler serves the live per-seat availability view of a
// screening. The grid is computed fresh on every request from holds,
// reservations and tickets.
type SeatGridHandler struct {
	Projector *service.SeatStatusProjector
}

func NewSeatGridHandler(projector *service.SeatStatusProjector) *SeatGridHandler {
	return &SeatGridHandler{Projector: projector}
}

// Get handles GET /v1/screenings/:id/seats.
func (h *SeatGridHandler) Get(c echo.Context) error {
	screeningID, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
	}
	grid, err := h.Projector.SeatGrid(c.Request().Context(), screeningID)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, grid)
}
