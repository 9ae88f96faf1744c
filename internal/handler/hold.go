package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cinebook/cinebook/internal/middleware"
	"github.com/cinebook/cinebook/internal/model"
	"github.com/cinebook/cinebook/internal/service"
)

// HoldHandler exposes the seat hold lifecycle: create a batch of
// holds, heartbeat-extend one, release one. Every operation requires
// the caller's client token; a bearer token is optional and only adds
// the user ID as a secondary owner key.
type HoldHandler struct {
	Holds *service.SeatHoldService
}

func NewHoldHandler(holds *service.SeatHoldService) *HoldHandler {
	return &HoldHandler{Holds: holds}
}

type holdView struct {
	ID        uint64    `json:"id"`
	SeatID    uint64    `json:"seat_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func viewHolds(holds []model.SeatHold) []holdView {
	out := make([]holdView, 0, len(holds))
	for _, h := range holds {
		out = append(out, holdView{ID: h.ID, SeatID: h.SeatID, ExpiresAt: h.ExpiresAt})
	}
	return out
}

// Create handles POST /v1/screenings/:id/holds. The body carries the
// seat IDs and an optional TTL in seconds; all seats are held together
// or none are.
func (h *HoldHandler) Create(c echo.Context) error {
	screeningID, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
	}
	token := middleware.ClientToken(c)
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing " + middleware.ClientTokenHeader + " header"})
	}

	var body struct {
		SeatIDs    []uint64 `json:"seat_ids"`
		TTLSeconds int64    `json:"ttl_seconds"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	ttl := time.Duration(body.TTLSeconds) * time.Second
	holds, err := h.Holds.CreateHolds(c.Request().Context(), screeningID, body.SeatIDs, token, middleware.UserID(c), ttl)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"screening_id": screeningID,
		"holds":        viewHolds(holds),
		"expires_at":   holds[0].ExpiresAt,
	})
}

// Extend handles POST /v1/holds/:id/extend. The heartbeat resets the
// hold's expiry to now plus its original TTL; extending an expired or
// foreign hold fails.
func (h *HoldHandler) Extend(c echo.Context) error {
	holdID, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hold id"})
	}
	token := middleware.ClientToken(c)
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing " + middleware.ClientTokenHeader + " header"})
	}

	hold, err := h.Holds.ExtendHold(c.Request().Context(), holdID, token, middleware.UserID(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":         hold.ID,
		"seat_id":    hold.SeatID,
		"expires_at": hold.ExpiresAt,
	})
}

// Release handles DELETE /v1/holds/:id. Releasing a hold that is
// already gone succeeds, so clients can fire-and-forget on teardown.
func (h *HoldHandler) Release(c echo.Context) error {
	holdID, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hold id"})
	}
	token := middleware.ClientToken(c)
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing " + middleware.ClientTokenHeader + " header"})
	}

	if err := h.Holds.ReleaseHold(c.Request().Context(), holdID, token, middleware.UserID(c)); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
