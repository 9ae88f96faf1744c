// This file defines the unauthenticated browse endpoints. They are
// read-only, sit behind the response cache, and expose only the fields
// a booking client needs.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/cinebook/cinebook/internal/repository"
)

const defaultBrowseLimit = 50

// BrowseHandler serves the screening listing and detail endpoints.
type BrowseHandler struct {
	Screenings *repository.ScreeningRepo
	Halls      *repository.HallRepo
	Clock      clockwork.Clock
}

func NewBrowseHandler(screenings *repository.ScreeningRepo, halls *repository.HallRepo, clock clockwork.Clock) *BrowseHandler {
	return &BrowseHandler{Screenings: screenings, Halls: halls, Clock: clock}
}

type screeningView struct {
	ID       uint64    `json:"id"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type hallView struct {
	ID       uint64  `json:"id"`
	Name     string  `json:"name"`
	SeatRows *uint32 `json:"seat_rows,omitempty"`
	SeatCols *uint32 `json:"seat_cols,omitempty"`
}

// List handles GET /v1/screenings. An optional limit query parameter
// caps the result; it defaults to 50 and is clamped to [1, 200].
func (h *BrowseHandler) List(c echo.Context) error {
	limit := defaultBrowseLimit
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}

	screenings, err := h.Screenings.ListUpcoming(c.Request().Context(), h.Clock.Now().UTC(), limit)
	if err != nil {
		c.Logger().Errorf("list screenings: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	views := make([]screeningView, 0, len(screenings))
	for _, s := range screenings {
		views = append(views, screeningView{ID: s.ID, Title: s.Title, StartsAt: s.StartsAt, EndsAt: s.EndsAt})
	}
	return c.JSON(http.StatusOK, echo.Map{"screenings": views})
}

// Get handles GET /v1/screenings/:id and includes the hall when it
// can be loaded.
func (h *BrowseHandler) Get(c echo.Context) error {
	screeningID, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
	}
	s, err := h.Screenings.GetByID(c.Request().Context(), screeningID)
	if err != nil {
		if err == repository.ErrScreeningNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "screening not found"})
		}
		c.Logger().Errorf("get screening %d: %v", screeningID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	resp := echo.Map{
		"id":        s.ID,
		"title":     s.Title,
		"starts_at": s.StartsAt,
		"ends_at":   s.EndsAt,
		"status":    s.Status,
	}
	if hall, err := h.Halls.GetByID(c.Request().Context(), s.HallID); err == nil {
		resp["hall"] = hallView{ID: hall.ID, Name: hall.Name, SeatRows: hall.SeatRows, SeatCols: hall.SeatCols}
	}
	return c.JSON(http.StatusOK, resp)
}
