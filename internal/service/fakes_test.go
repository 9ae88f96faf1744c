package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cinebook/cinebook/internal/model"
	"github.com/cinebook/cinebook/internal/queue"
	"github.com/cinebook/cinebook/internal/repository"
)

// In-memory stores mirroring the SQL repositories' contracts, mutex
// guarded so the concurrency tests can hammer them from goroutines.

type fakeHoldStore struct {
	mu     sync.Mutex
	nextID uint64
	holds  map[uint64]model.SeatHold

	// Cross-table guards, wired by newFakeStores the way the SQL
	// repository reads the reservations and tickets tables inside its
	// insert transaction.
	reservations *fakeReservationStore
	tickets      *fakeTicketStore

	// Test hooks.  beforeCreate runs ahead of the transaction, where a
	// concurrent commit would land; failInsert is consulted per row
	// with the number of rows already written.
	beforeCreate func()
	failInsert   func(inserted int) error
}

func newFakeHoldStore() *fakeHoldStore {
	return &fakeHoldStore{holds: make(map[uint64]model.SeatHold)}
}

// newFakeStores builds the three stores with their cross-table guards
// wired together.
func newFakeStores() (*fakeHoldStore, *fakeReservationStore, *fakeTicketStore) {
	holds := newFakeHoldStore()
	reservations := newFakeReservationStore(holds)
	tickets := newFakeTicketStore(reservations)
	holds.reservations = reservations
	holds.tickets = tickets
	reservations.tickets = tickets
	return holds, reservations, tickets
}

func (f *fakeHoldStore) CreateBatch(ctx context.Context, holds []model.SeatHold, now time.Time) ([]model.SeatHold, error) {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	// Purge expired rows on the requested seats, then reject if any
	// live hold remains, exactly like the unique key does.
	for _, h := range holds {
		for id, existing := range f.holds {
			if existing.ScreeningID != h.ScreeningID || existing.SeatID != h.SeatID {
				continue
			}
			if existing.Active(now) {
				return nil, repository.ErrSeatTaken
			}
			delete(f.holds, id)
		}
	}
	// The repository re-checks reservations and tickets with locking
	// reads inside the same transaction; mirror that here.
	if len(holds) > 0 {
		blocked := make(map[uint64]struct{})
		if f.reservations != nil {
			ids, _ := f.reservations.ActiveSeatIDs(ctx, holds[0].ScreeningID)
			for _, id := range ids {
				blocked[id] = struct{}{}
			}
		}
		if f.tickets != nil {
			ids, _ := f.tickets.SoldSeatIDs(ctx, holds[0].ScreeningID)
			for _, id := range ids {
				blocked[id] = struct{}{}
			}
		}
		for _, h := range holds {
			if _, ok := blocked[h.SeatID]; ok {
				return nil, repository.ErrSeatTaken
			}
		}
	}
	out := make([]model.SeatHold, 0, len(holds))
	for _, h := range holds {
		if f.failInsert != nil {
			if err := f.failInsert(len(out)); err != nil {
				for _, inserted := range out {
					delete(f.holds, inserted.ID)
				}
				return nil, err
			}
		}
		f.nextID++
		h.ID = f.nextID
		f.holds[h.ID] = h
		out = append(out, h)
	}
	return out, nil
}

// seed plants a hold row directly, bypassing arbitration, for tests
// that need a specific starting state.
func (f *fakeHoldStore) seed(h model.SeatHold) model.SeatHold {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	h.ID = f.nextID
	f.holds[h.ID] = h
	return h
}

func (f *fakeHoldStore) GetByID(_ context.Context, id uint64) (*model.SeatHold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holds[id]
	if !ok {
		return nil, repository.ErrHoldNotFound
	}
	return &h, nil
}

func (f *fakeHoldStore) Extend(_ context.Context, id uint64, heartbeatAt, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holds[id]
	if !ok || !h.ExpiresAt.After(heartbeatAt) {
		return false, nil
	}
	h.LastHeartbeatAt = heartbeatAt
	h.ExpiresAt = expiresAt
	f.holds[id] = h
	return true, nil
}

func (f *fakeHoldStore) Delete(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.holds, id)
	return nil
}

func (f *fakeHoldStore) ActiveSeatIDs(_ context.Context, screeningID uint64, now time.Time) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uint64
	for _, h := range f.holds {
		if h.ScreeningID == screeningID && h.Active(now) {
			out = append(out, h.SeatID)
		}
	}
	return out, nil
}

func (f *fakeHoldStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, h := range f.holds {
		if !h.Active(now) {
			delete(f.holds, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeHoldStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.holds)
}

type fakeReservationStore struct {
	mu           sync.Mutex
	nextID       uint64
	reservations map[uint64]model.Reservation
	holdStore    *fakeHoldStore
	tickets      *fakeTicketStore
}

func newFakeReservationStore(holds *fakeHoldStore) *fakeReservationStore {
	return &fakeReservationStore{
		reservations: make(map[uint64]model.Reservation),
		holdStore:    holds,
	}
}

func (f *fakeReservationStore) put(r model.Reservation) model.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == 0 {
		f.nextID++
		r.ID = f.nextID
	} else if r.ID > f.nextID {
		f.nextID = r.ID
	}
	f.reservations[r.ID] = r
	return r
}

func (f *fakeReservationStore) ActiveSeatIDs(_ context.Context, screeningID uint64) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uint64
	for _, r := range f.reservations {
		if r.ScreeningID == screeningID && r.Status.Blocking() {
			out = append(out, r.SeatID)
		}
	}
	return out, nil
}

func (f *fakeReservationStore) ConvertHolds(ctx context.Context, screeningID uint64, clientToken string, memberID *uint64, now, expiresAt time.Time) ([]model.Reservation, error) {
	f.holdStore.mu.Lock()
	var matched []model.SeatHold
	for _, h := range f.holdStore.holds {
		if h.ScreeningID == screeningID && h.ClientToken == clientToken && h.Active(now) {
			matched = append(matched, h)
		}
	}
	if len(matched) == 0 {
		f.holdStore.mu.Unlock()
		return nil, repository.ErrNoActiveHolds
	}
	// Like the repository, refuse to convert while any held seat
	// carries a blocking reservation or a sold ticket; the holds are
	// left untouched.
	if taken := f.anySeatClaimed(ctx, screeningID, matched); taken {
		f.holdStore.mu.Unlock()
		return nil, repository.ErrSeatTaken
	}
	for _, h := range matched {
		delete(f.holdStore.holds, h.ID)
	}
	f.holdStore.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].SeatID < matched[j].SeatID })
	out := make([]model.Reservation, 0, len(matched))
	for _, h := range matched {
		out = append(out, f.put(model.Reservation{
			ScreeningID: screeningID,
			SeatID:      h.SeatID,
			MemberID:    memberID,
			Status:      model.ReservationPending,
			ExpiresAt:   expiresAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}))
	}
	return out, nil
}

func (f *fakeReservationStore) anySeatClaimed(ctx context.Context, screeningID uint64, held []model.SeatHold) bool {
	claimed := make(map[uint64]struct{})
	reserved, _ := f.ActiveSeatIDs(ctx, screeningID)
	for _, id := range reserved {
		claimed[id] = struct{}{}
	}
	if f.tickets != nil {
		sold, _ := f.tickets.SoldSeatIDs(ctx, screeningID)
		for _, id := range sold {
			claimed[id] = struct{}{}
		}
	}
	for _, h := range held {
		if _, ok := claimed[h.SeatID]; ok {
			return true
		}
	}
	return false
}

func (f *fakeReservationStore) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	return &r, nil
}

func (f *fakeReservationStore) UpdateStatus(_ context.Context, id uint64, from []model.ReservationStatus, to model.ReservationStatus, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, s := range from {
		if r.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = now
	f.reservations[id] = r
	return true, nil
}

func (f *fakeReservationStore) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, r := range f.reservations {
		if r.Status == model.ReservationPending && !r.ExpiresAt.After(now) {
			r.Status = model.ReservationExpired
			r.UpdatedAt = now
			f.reservations[id] = r
			n++
		}
	}
	return n, nil
}

type fakeTicketStore struct {
	mu           sync.Mutex
	nextID       uint64
	tickets      map[uint64]model.Ticket
	reservations *fakeReservationStore
}

func newFakeTicketStore(reservations *fakeReservationStore) *fakeTicketStore {
	return &fakeTicketStore{
		tickets:      make(map[uint64]model.Ticket),
		reservations: reservations,
	}
}

func (f *fakeTicketStore) SoldSeatIDs(_ context.Context, screeningID uint64) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uint64
	for _, t := range f.tickets {
		if t.ScreeningID == screeningID {
			out = append(out, t.SeatID)
		}
	}
	return out, nil
}

func (f *fakeTicketStore) Issue(ctx context.Context, reservationID uint64, code string, now time.Time) (*model.Ticket, error) {
	f.reservations.mu.Lock()
	r, ok := f.reservations.reservations[reservationID]
	if !ok {
		f.reservations.mu.Unlock()
		return nil, repository.ErrReservationNotFound
	}
	if r.Status != model.ReservationConfirmed {
		f.reservations.mu.Unlock()
		return nil, repository.ErrNotConfirmed
	}
	r.Status = model.ReservationCompleted
	r.UpdatedAt = now
	f.reservations.reservations[reservationID] = r
	f.reservations.mu.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t := model.Ticket{
		ID:            f.nextID,
		ReservationID: reservationID,
		ScreeningID:   r.ScreeningID,
		SeatID:        r.SeatID,
		Code:          code,
		IssuedAt:      now,
	}
	f.tickets[t.ID] = t
	return &t, nil
}

type fakeScreenings struct {
	screenings map[uint64]model.Screening
}

func (f *fakeScreenings) GetByID(_ context.Context, id uint64) (*model.Screening, error) {
	s, ok := f.screenings[id]
	if !ok {
		return nil, repository.ErrScreeningNotFound
	}
	return &s, nil
}

type fakeSeats struct {
	byHall map[uint64][]model.Seat
}

func (f *fakeSeats) ListByHall(_ context.Context, hallID uint64) ([]model.Seat, error) {
	return f.byHall[hallID], nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []queue.AuditEvent
}

func (a *recordingAudit) Record(_ context.Context, event queue.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *recordingAudit) kinds() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Kind)
	}
	return out
}
