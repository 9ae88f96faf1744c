package service

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinebook/cinebook/internal/model"
)

type gridFixture struct {
	projector    *SeatStatusProjector
	holds        *fakeHoldStore
	reservations *fakeReservationStore
	tickets      *fakeTicketStore
	clock        *clockwork.FakeClock
}

func newGridFixture(t *testing.T) *gridFixture {
	t.Helper()
	holds, reservations, tickets := newFakeStores()
	screenings := &fakeScreenings{screenings: map[uint64]model.Screening{
		1: {ID: 1, HallID: 10, Title: "Ikiru", StartsAt: testStart.Add(4 * time.Hour), EndsAt: testStart.Add(6 * time.Hour), Status: "SCHEDULED"},
	}}
	seats := &fakeSeats{byHall: map[uint64][]model.Seat{
		10: {
			// Deliberately unordered to exercise the sort.
			{ID: 203, HallID: 10, RowLabel: "B", SeatNumber: 1, IsActive: true},
			{ID: 202, HallID: 10, RowLabel: "A", SeatNumber: 2, IsActive: true},
			{ID: 201, HallID: 10, RowLabel: "A", SeatNumber: 1, IsActive: true},
			{ID: 204, HallID: 10, RowLabel: "B", SeatNumber: 2, IsActive: true},
		},
	}}
	clock := clockwork.NewFakeClockAt(testStart)
	return &gridFixture{
		projector:    NewSeatStatusProjector(holds, reservations, tickets, screenings, seats, clock),
		holds:        holds,
		reservations: reservations,
		tickets:      tickets,
		clock:        clock,
	}
}

func (f *gridFixture) addHold(seatID uint64, expiresAt time.Time) {
	f.holds.seed(model.SeatHold{
		ScreeningID: 1, SeatID: seatID, ClientToken: "tok",
		CreatedAt: testStart, LastHeartbeatAt: testStart, ExpiresAt: expiresAt,
	})
}

func (f *gridFixture) stateOf(t *testing.T, grid *SeatGrid, seatID uint64) SeatState {
	t.Helper()
	for _, s := range grid.Seats {
		if s.SeatID == seatID {
			return s.State
		}
	}
	t.Fatalf("seat %d not in grid", seatID)
	return ""
}

func TestSeatGridOrderingAndLabels(t *testing.T) {
	f := newGridFixture(t)

	grid, err := f.projector.SeatGrid(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, grid.Seats, 4)
	assert.Equal(t, uint64(1), grid.ScreeningID)
	assert.Equal(t, uint64(10), grid.HallID)

	var labels []string
	for _, s := range grid.Seats {
		labels = append(labels, s.Label)
		assert.Equal(t, SeatAvailable, s.State)
	}
	assert.Equal(t, []string{"A1", "A2", "B1", "B2"}, labels)
}

func TestSeatGridMergesAllSources(t *testing.T) {
	f := newGridFixture(t)
	ctx := context.Background()

	f.addHold(201, testStart.Add(5*time.Minute))
	f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 202, Status: model.ReservationPending,
		ExpiresAt: testStart.Add(time.Hour),
	})
	confirmed := f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 203, Status: model.ReservationConfirmed,
		ExpiresAt: testStart.Add(time.Hour),
	})
	_, err := f.tickets.Issue(ctx, confirmed.ID, "code", testStart)
	require.NoError(t, err)

	grid, err := f.projector.SeatGrid(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, SeatHeld, f.stateOf(t, grid, 201))
	assert.Equal(t, SeatReserved, f.stateOf(t, grid, 202))
	assert.Equal(t, SeatSold, f.stateOf(t, grid, 203))
	assert.Equal(t, SeatAvailable, f.stateOf(t, grid, 204))
}

func TestSeatGridPriority(t *testing.T) {
	f := newGridFixture(t)
	ctx := context.Background()

	// Seat 201 carries a ticket, a blocking reservation and a live
	// hold at once; the sale wins.
	sold := f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 201, Status: model.ReservationConfirmed,
		ExpiresAt: testStart.Add(time.Hour),
	})
	_, err := f.tickets.Issue(ctx, sold.ID, "code", testStart)
	require.NoError(t, err)
	f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 201, Status: model.ReservationPending,
		ExpiresAt: testStart.Add(time.Hour),
	})
	f.addHold(201, testStart.Add(5*time.Minute))

	// Seat 202: reservation outranks hold.
	f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 202, Status: model.ReservationPending,
		ExpiresAt: testStart.Add(time.Hour),
	})
	f.addHold(202, testStart.Add(5*time.Minute))

	grid, err := f.projector.SeatGrid(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, SeatSold, f.stateOf(t, grid, 201))
	assert.Equal(t, SeatReserved, f.stateOf(t, grid, 202))
}

func TestSeatGridExpiredClaimsStopCounting(t *testing.T) {
	f := newGridFixture(t)
	ctx := context.Background()

	f.addHold(201, testStart.Add(5*time.Minute))
	f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 202, Status: model.ReservationExpired,
		ExpiresAt: testStart.Add(-time.Minute),
	})
	f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 203, Status: model.ReservationCanceled,
		ExpiresAt: testStart.Add(time.Hour),
	})

	// The hold lapses without any sweep having run; the projector
	// evaluates liveness itself.
	f.clock.Advance(6 * time.Minute)

	grid, err := f.projector.SeatGrid(ctx, 1)
	require.NoError(t, err)
	for _, seatID := range []uint64{201, 202, 203, 204} {
		assert.Equal(t, SeatAvailable, f.stateOf(t, grid, seatID))
	}
}

func TestSeatGridUnknownScreening(t *testing.T) {
	f := newGridFixture(t)

	_, err := f.projector.SeatGrid(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}
