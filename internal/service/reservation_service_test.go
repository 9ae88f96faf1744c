package service

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinebook/cinebook/internal/model"
	"github.com/cinebook/cinebook/internal/queue"
)

type reservationFixture struct {
	svc          *ReservationService
	holdSvc      *SeatHoldService
	holds        *fakeHoldStore
	reservations *fakeReservationStore
	tickets      *fakeTicketStore
	clock        *clockwork.FakeClock
	audit        *recordingAudit
}

func newReservationFixture(t *testing.T, policy ExpiryPolicy) *reservationFixture {
	t.Helper()
	holds, reservations, tickets := newFakeStores()
	screenings := &fakeScreenings{screenings: map[uint64]model.Screening{
		1: {ID: 1, HallID: 10, Title: "Stalker", StartsAt: testStart.Add(2 * time.Hour), EndsAt: testStart.Add(5 * time.Hour), Status: "SCHEDULED"},
	}}
	seats := &fakeSeats{byHall: map[uint64][]model.Seat{
		10: {
			{ID: 101, HallID: 10, RowLabel: "A", SeatNumber: 1, IsActive: true},
			{ID: 102, HallID: 10, RowLabel: "A", SeatNumber: 2, IsActive: true},
		},
	}}
	clock := clockwork.NewFakeClockAt(testStart)
	audit := &recordingAudit{}
	holdSvc := NewSeatHoldService(holds, reservations, tickets, screenings, seats,
		HoldPolicy{DefaultTTL: 5 * time.Minute, MaxTTL: time.Hour, MaxBatch: 10},
		clock, audit)
	svc := NewReservationService(reservations, tickets, screenings, policy, clock, audit)
	return &reservationFixture{
		svc: svc, holdSvc: holdSvc,
		holds: holds, reservations: reservations, tickets: tickets,
		clock: clock, audit: audit,
	}
}

func beforeStartPolicy() ExpiryPolicy {
	return ExpiryPolicy{Mode: ExpiryBeforeStart, BeforeStart: 30 * time.Minute, PendingTTL: 15 * time.Minute}
}

func TestExpiryPolicyDeadline(t *testing.T) {
	startsAt := testStart.Add(2 * time.Hour)

	t.Run("before start with room to spare", func(t *testing.T) {
		p := beforeStartPolicy()
		assert.Equal(t, startsAt.Add(-30*time.Minute), p.Deadline(testStart, startsAt))
	})

	t.Run("before start too close falls back to pending ttl", func(t *testing.T) {
		p := beforeStartPolicy()
		now := startsAt.Add(-20 * time.Minute)
		assert.Equal(t, now.Add(15*time.Minute), p.Deadline(now, startsAt))
	})

	t.Run("fallback never passes the screening start", func(t *testing.T) {
		p := beforeStartPolicy()
		now := startsAt.Add(-10 * time.Minute)
		assert.Equal(t, startsAt, p.Deadline(now, startsAt))
	})

	t.Run("fixed mode ignores the start offset", func(t *testing.T) {
		p := ExpiryPolicy{Mode: ExpiryFixed, PendingTTL: 15 * time.Minute}
		assert.Equal(t, testStart.Add(15*time.Minute), p.Deadline(testStart, startsAt))
	})
}

func TestCheckoutConvertsHoldsToPending(t *testing.T) {
	f := newReservationFixture(t, beforeStartPolicy())
	ctx := context.Background()

	_, err := f.holdSvc.CreateHolds(ctx, 1, []uint64{101, 102}, "tok", nil, 0)
	require.NoError(t, err)

	created, err := f.svc.Checkout(ctx, 1, "tok", nil)
	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, r := range created {
		assert.Equal(t, model.ReservationPending, r.Status)
		assert.Equal(t, testStart.Add(90*time.Minute), r.ExpiresAt)
	}

	// The holds are consumed; the seats stay blocked by the
	// reservations instead.
	assert.Zero(t, f.holds.count())
	blocked, err := f.reservations.ActiveSeatIDs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, blocked, 2)
	assert.Contains(t, f.audit.kinds(), queue.KindReservationCreated)
}

func TestCheckoutWithoutHolds(t *testing.T) {
	f := newReservationFixture(t, beforeStartPolicy())
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, 1, "tok", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Checkout(ctx, 99, "tok", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Checkout(ctx, 1, "", nil)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCheckoutIgnoresExpiredHolds(t *testing.T) {
	f := newReservationFixture(t, beforeStartPolicy())
	ctx := context.Background()

	_, err := f.holdSvc.CreateHolds(ctx, 1, []uint64{101}, "tok", nil, 0)
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	_, err = f.svc.Checkout(ctx, 1, "tok", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckoutRefusesSeatClaimedSinceHold(t *testing.T) {
	f := newReservationFixture(t, beforeStartPolicy())
	ctx := context.Background()

	_, err := f.holdSvc.CreateHolds(ctx, 1, []uint64{101}, "tok-a", nil, 0)
	require.NoError(t, err)

	// A blocking reservation lands on the held seat, the state left
	// behind when two claims both passed their availability checks.
	// The conversion must refuse rather than create a second one.
	f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 101, Status: model.ReservationPending,
		ExpiresAt: testStart.Add(time.Hour),
		CreatedAt: testStart, UpdatedAt: testStart,
	})

	_, err = f.svc.Checkout(ctx, 1, "tok-a", nil)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	// The conversion rolled back; the hold is untouched.
	assert.Equal(t, 1, f.holds.count())
	seatIDs, err := f.reservations.ActiveSeatIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{101}, seatIDs)
}

func TestConfirmPendingReservation(t *testing.T) {
	f := newReservationFixture(t, beforeStartPolicy())
	ctx := context.Background()

	r := f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 101, Status: model.ReservationPending,
		ExpiresAt: testStart.Add(90 * time.Minute),
	})

	confirmed, err := f.svc.Confirm(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationConfirmed, confirmed.Status)
	assert.Contains(t, f.audit.kinds(), queue.KindReservationChanged)
}

func TestConfirmAfterDeadline(t *testing.T) {
	f := newReservationFixture(t, beforeStartPolicy())
	ctx := context.Background()

	r := f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 101, Status: model.ReservationPending,
		ExpiresAt: testStart.Add(90 * time.Minute),
	})

	// Past the deadline the confirmation is refused even before the
	// sweep has flipped the row to EXPIRED.
	f.clock.Advance(91 * time.Minute)
	_, err := f.svc.Confirm(ctx, r.ID)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestConfirmWrongState(t *testing.T) {
	f := newReservationFixture(t, beforeStartPolicy())
	ctx := context.Background()

	r := f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 101, Status: model.ReservationCanceled,
		ExpiresAt: testStart.Add(90 * time.Minute),
	})

	_, err := f.svc.Confirm(ctx, r.ID)
	assert.ErrorIs(t, err, ErrStateConflict)

	_, err = f.svc.Confirm(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelFromPendingAndConfirmed(t *testing.T) {
	f := newReservationFixture(t, beforeStartPolicy())
	ctx := context.Background()

	pending := f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 101, Status: model.ReservationPending,
		ExpiresAt: testStart.Add(90 * time.Minute),
	})
	confirmed := f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 102, Status: model.ReservationConfirmed,
		ExpiresAt: testStart.Add(90 * time.Minute),
	})

	for _, id := range []uint64{pending.ID, confirmed.ID} {
		r, err := f.svc.Cancel(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.ReservationCanceled, r.Status)
	}

	// Canceling again is a state conflict, not an idempotent no-op:
	// the row is terminal.
	_, err := f.svc.Cancel(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrStateConflict)

	// Canceled seats stop blocking immediately.
	blocked, err := f.reservations.ActiveSeatIDs(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, blocked)
}

func TestIssueTicketCompletesReservation(t *testing.T) {
	f := newReservationFixture(t, beforeStartPolicy())
	ctx := context.Background()

	r := f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 101, Status: model.ReservationConfirmed,
		ExpiresAt: testStart.Add(90 * time.Minute),
	})

	ticket, err := f.svc.IssueTicket(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, ticket.ReservationID)
	assert.Equal(t, uint64(101), ticket.SeatID)
	assert.Len(t, ticket.Code, 32)

	cur, err := f.reservations.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCompleted, cur.Status)

	sold, err := f.tickets.SoldSeatIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{101}, sold)

	// Issue is one-shot; the second attempt hits a completed row.
	_, err = f.svc.IssueTicket(ctx, r.ID)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestIssueTicketGuards(t *testing.T) {
	f := newReservationFixture(t, beforeStartPolicy())
	ctx := context.Background()

	_, err := f.svc.IssueTicket(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	pending := f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 101, Status: model.ReservationPending,
		ExpiresAt: testStart.Add(90 * time.Minute),
	})
	_, err = f.svc.IssueTicket(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestExpireOverdueTouchesOnlyLapsedPending(t *testing.T) {
	f := newReservationFixture(t, beforeStartPolicy())
	ctx := context.Background()

	overdue := f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 101, Status: model.ReservationPending,
		ExpiresAt: testStart.Add(10 * time.Minute),
	})
	fresh := f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 102, Status: model.ReservationPending,
		ExpiresAt: testStart.Add(90 * time.Minute),
	})
	confirmed := f.reservations.put(model.Reservation{
		ScreeningID: 1, SeatID: 103, Status: model.ReservationConfirmed,
		ExpiresAt: testStart.Add(10 * time.Minute),
	})

	f.clock.Advance(11 * time.Minute)
	n, err := f.svc.ExpireOverdue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	for id, want := range map[uint64]model.ReservationStatus{
		overdue.ID:   model.ReservationExpired,
		fresh.ID:     model.ReservationPending,
		confirmed.ID: model.ReservationConfirmed,
	} {
		cur, err := f.reservations.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, cur.Status)
	}

	// Idempotent: a second pass finds nothing.
	n, err = f.svc.ExpireOverdue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}
