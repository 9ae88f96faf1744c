package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/cinebook/cinebook/internal/service"
)

// writeServiceError maps the service error taxonomy onto HTTP
// responses. Anything unrecognized is a 500 with a generic body; the
// real cause goes to the log, not the client.
func writeServiceError(c echo.Context, err error) error {
	var conflict *service.ConflictError
	if errors.As(err, &conflict) {
		seatIDs := conflict.SeatIDs
		if seatIDs == nil {
			// Not every conflict can name the seats, e.g. a claim
			// landing mid-checkout; the payload stays a list.
			seatIDs = []uint64{}
		}
		return c.JSON(http.StatusConflict, echo.Map{
			"error":    "seats_unavailable",
			"seat_ids": seatIDs,
		})
	}
	var invalid *service.ValidationError
	if errors.As(err, &invalid) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": invalid.Msg})
	}
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrStateConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	c.Logger().Errorf("internal error: %v", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// pathID parses the :id path parameter as a positive integer.
func pathID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id != 0
}
