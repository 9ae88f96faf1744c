package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jonboulle/clockwork"

	"github.com/cinebook/cinebook/internal/repository"
)

// SeatState is the derived availability of one seat for one screening.
// It is computed at query time and never persisted, so there is no
// denormalized status column to drift out of sync.
type SeatState string

const (
	SeatAvailable SeatState = "available"
	SeatHeld      SeatState = "held"
	SeatReserved  SeatState = "reserved"
	SeatSold      SeatState = "sold"
)

// GridSeat is one cell of the seat grid.
type GridSeat struct {
	SeatID uint64    `json:"seat_id"`
	Row    string    `json:"row"`
	Col    uint32    `json:"col"`
	Label  string    `json:"label"`
	State  SeatState `json:"state"`
}

// SeatGrid is the complete per-seat view of a screening, ordered by
// row then column for deterministic rendering.
type SeatGrid struct {
	ScreeningID uint64     `json:"screening_id"`
	HallID      uint64     `json:"hall_id"`
	Seats       []GridSeat `json:"seats"`
}

// SeatStatusProjector merges holds, reservations and tickets into the
// seat grid.  Classification priority per seat, highest wins:
// sold > reserved > held > available.  A sale is the only irreversible
// fact; a reservation is a firmer commitment than a hold; a hold is
// the most ephemeral and never visually overrides either.
type SeatStatusProjector struct {
	holds        HoldReader
	reservations ReservationReader
	tickets      TicketReader
	screenings   ScreeningReader
	seats        SeatReader
	clock        clockwork.Clock
}

// NewSeatStatusProjector constructs a SeatStatusProjector.
func NewSeatStatusProjector(holds HoldReader, reservations ReservationReader, tickets TicketReader, screenings ScreeningReader, seats SeatReader, clock clockwork.Clock) *SeatStatusProjector {
	return &SeatStatusProjector{
		holds:        holds,
		reservations: reservations,
		tickets:      tickets,
		screenings:   screenings,
		seats:        seats,
		clock:        clock,
	}
}

// SeatGrid computes the current grid for a screening.  Hold liveness
// is evaluated against the clock at call time, so an expired hold
// stops contributing even before the sweep removes its row; likewise
// an EXPIRED reservation stops contributing the moment the sweep (or
// a manual transition) flips its status.
func (p *SeatStatusProjector) SeatGrid(ctx context.Context, screeningID uint64) (*SeatGrid, error) {
	scr, err := p.screenings.GetByID(ctx, screeningID)
	if err != nil {
		if errors.Is(err, repository.ErrScreeningNotFound) {
			return nil, fmt.Errorf("screening %d: %w", screeningID, ErrNotFound)
		}
		return nil, err
	}
	layout, err := p.seats.ListByHall(ctx, scr.HallID)
	if err != nil {
		return nil, err
	}

	now := p.clock.Now().UTC()
	sold, err := asSet(p.tickets.SoldSeatIDs(ctx, screeningID))
	if err != nil {
		return nil, err
	}
	reserved, err := asSet(p.reservations.ActiveSeatIDs(ctx, screeningID))
	if err != nil {
		return nil, err
	}
	held, err := asSet(p.holds.ActiveSeatIDs(ctx, screeningID, now))
	if err != nil {
		return nil, err
	}

	grid := &SeatGrid{
		ScreeningID: screeningID,
		HallID:      scr.HallID,
		Seats:       make([]GridSeat, 0, len(layout)),
	}
	for i := range layout {
		seat := &layout[i]
		state := SeatAvailable
		switch {
		case sold[seat.ID]:
			state = SeatSold
		case reserved[seat.ID]:
			state = SeatReserved
		case held[seat.ID]:
			state = SeatHeld
		}
		grid.Seats = append(grid.Seats, GridSeat{
			SeatID: seat.ID,
			Row:    seat.RowLabel,
			Col:    seat.SeatNumber,
			Label:  seat.Label(),
			State:  state,
		})
	}
	sort.Slice(grid.Seats, func(i, j int) bool {
		a, b := &grid.Seats[i], &grid.Seats[j]
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})
	return grid, nil
}

func asSet(ids []uint64, err error) (map[uint64]bool, error) {
	if err != nil {
		return nil, err
	}
	set := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
