package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cinebook/cinebook/internal/model"
	"github.com/cinebook/cinebook/internal/queue"
	"github.com/cinebook/cinebook/internal/repository"
)

// HoldReader is the read side of the hold store, enough for the seat
// status projector.
type HoldReader interface {
	ActiveSeatIDs(ctx context.Context, screeningID uint64, now time.Time) ([]uint64, error)
}

// HoldStore is the persistence contract for seat holds.  CreateBatch
// must be all-or-nothing and must fail with repository.ErrSeatTaken
// when any requested seat already carries a competing claim (active
// hold, blocking reservation or sold ticket), with the check and the
// insert atomic against concurrent claims; Extend must re-check
// liveness at update time so it cannot race the sweep.
type HoldStore interface {
	HoldReader
	CreateBatch(ctx context.Context, holds []model.SeatHold, now time.Time) ([]model.SeatHold, error)
	GetByID(ctx context.Context, id uint64) (*model.SeatHold, error)
	Extend(ctx context.Context, id uint64, heartbeatAt, expiresAt time.Time) (bool, error)
	Delete(ctx context.Context, id uint64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ReservationReader exposes which seats are blocked by a PENDING or
// CONFIRMED reservation.
type ReservationReader interface {
	ActiveSeatIDs(ctx context.Context, screeningID uint64) ([]uint64, error)
}

// TicketReader exposes which seats are sold.
type TicketReader interface {
	SoldSeatIDs(ctx context.Context, screeningID uint64) ([]uint64, error)
}

// ScreeningReader resolves screenings; missing screenings surface as
// repository.ErrScreeningNotFound.
type ScreeningReader interface {
	GetByID(ctx context.Context, id uint64) (*model.Screening, error)
}

// SeatReader lists the seats of a hall.
type SeatReader interface {
	ListByHall(ctx context.Context, hallID uint64) ([]model.Seat, error)
}

// HoldPolicy bundles the tunables of the hold lifecycle.
type HoldPolicy struct {
	DefaultTTL time.Duration // applied when the request carries no TTL
	MaxTTL     time.Duration // hard cap on per-request TTL overrides
	MaxBatch   int           // max seats per hold request
}

// createAttempts bounds the retry loop around storage-level conflicts
// before the failure is surfaced as a Conflict.
const createAttempts = 3

// SeatHoldService enforces hold invariants on top of the store: seat
// exclusivity, caller ownership, TTL bounds and the all-or-nothing
// batch contract.  It is the single authority on whether a seat is
// claimable right now.  Correctness under concurrent requests comes
// from the store's atomic compare-and-insert, not from any in-process
// lock.
type SeatHoldService struct {
	holds        HoldStore
	reservations ReservationReader
	tickets      TicketReader
	screenings   ScreeningReader
	seats        SeatReader
	policy       HoldPolicy
	clock        clockwork.Clock
	audit        AuditRecorder
}

// NewSeatHoldService constructs a SeatHoldService.  audit may be nil.
func NewSeatHoldService(holds HoldStore, reservations ReservationReader, tickets TicketReader, screenings ScreeningReader, seats SeatReader, policy HoldPolicy, clock clockwork.Clock, audit AuditRecorder) *SeatHoldService {
	if audit == nil {
		audit = nopAudit{}
	}
	return &SeatHoldService{
		holds:        holds,
		reservations: reservations,
		tickets:      tickets,
		screenings:   screenings,
		seats:        seats,
		policy:       policy,
		clock:        clock,
		audit:        audit,
	}
}

// CreateHolds claims every requested seat for the caller or none of
// them.  TTL falls back to the policy default and is capped at the
// policy maximum.  When a storage-level conflict fires (two requests
// racing for the same seat), the attempt is retried a bounded number
// of times before a ConflictError naming the unavailable seats is
// returned.
func (s *SeatHoldService) CreateHolds(ctx context.Context, screeningID uint64, seatIDs []uint64, clientToken string, ownerUserID *uint64, ttl time.Duration) ([]model.SeatHold, error) {
	if clientToken == "" {
		return nil, &ValidationError{Msg: "client token is required"}
	}
	seatIDs = dedupe(seatIDs)
	if len(seatIDs) == 0 {
		return nil, &ValidationError{Msg: "seat_ids is required"}
	}
	if len(seatIDs) > s.policy.MaxBatch {
		return nil, validationf("at most %d seats per hold request", s.policy.MaxBatch)
	}
	switch {
	case ttl == 0:
		ttl = s.policy.DefaultTTL
	case ttl < 0:
		return nil, &ValidationError{Msg: "ttl must be positive"}
	case ttl > s.policy.MaxTTL:
		return nil, validationf("ttl exceeds the maximum of %s", s.policy.MaxTTL)
	}

	scr, err := s.screenings.GetByID(ctx, screeningID)
	if err != nil {
		if errors.Is(err, repository.ErrScreeningNotFound) {
			return nil, fmt.Errorf("screening %d: %w", screeningID, ErrNotFound)
		}
		return nil, err
	}
	layout, err := s.seats.ListByHall(ctx, scr.HallID)
	if err != nil {
		return nil, err
	}
	known := make(map[uint64]struct{}, len(layout))
	for _, seat := range layout {
		known[seat.ID] = struct{}{}
	}
	for _, id := range seatIDs {
		if _, ok := known[id]; !ok {
			return nil, fmt.Errorf("seat %d: %w", id, ErrNotFound)
		}
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		now := s.clock.Now().UTC()
		unavailable, err := s.unavailableSeats(ctx, screeningID, seatIDs, now)
		if err != nil {
			return nil, err
		}
		if len(unavailable) > 0 {
			return nil, &ConflictError{SeatIDs: unavailable}
		}
		holds := make([]model.SeatHold, 0, len(seatIDs))
		for _, id := range seatIDs {
			holds = append(holds, model.SeatHold{
				ScreeningID:     screeningID,
				SeatID:          id,
				ClientToken:     clientToken,
				OwnerUserID:     ownerUserID,
				CreatedAt:       now,
				LastHeartbeatAt: now,
				ExpiresAt:       now.Add(ttl),
			})
		}
		created, err := s.holds.CreateBatch(ctx, holds, now)
		if err == nil {
			s.audit.Record(ctx, queue.AuditEvent{
				Kind:        queue.KindHoldCreated,
				ScreeningID: screeningID,
				SeatIDs:     seatIDs,
				Actor:       clientToken,
			})
			return created, nil
		}
		if !errors.Is(err, repository.ErrSeatTaken) {
			return nil, err
		}
		// Lost the compare-and-insert race; loop to recompute
		// availability and either name the winner or try again.
	}
	now := s.clock.Now().UTC()
	unavailable, uerr := s.unavailableSeats(ctx, screeningID, seatIDs, now)
	if uerr != nil || len(unavailable) == 0 {
		unavailable = seatIDs
	}
	return nil, &ConflictError{SeatIDs: unavailable}
}

// ExtendHold is the client heartbeat: it resets LastHeartbeatAt to now
// and ExpiresAt to now plus the hold's own TTL.  Time is never
// accumulated across heartbeats.  Only the recorded owner may extend.
func (s *SeatHoldService) ExtendHold(ctx context.Context, holdID uint64, clientToken string, ownerUserID *uint64) (*model.SeatHold, error) {
	h, err := s.holds.GetByID(ctx, holdID)
	if err != nil {
		if errors.Is(err, repository.ErrHoldNotFound) {
			return nil, fmt.Errorf("hold %d: %w", holdID, ErrNotFound)
		}
		return nil, err
	}
	now := s.clock.Now().UTC()
	if !h.Active(now) {
		// An expired hold is as good as gone even before the sweep
		// removes the row.
		return nil, fmt.Errorf("hold %d: %w", holdID, ErrNotFound)
	}
	if !h.OwnedBy(clientToken, ownerUserID) {
		return nil, ErrForbidden
	}
	ttl := h.TTL()
	expiresAt := now.Add(ttl)
	ok, err := s.holds.Extend(ctx, holdID, now, expiresAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The hold expired between our read and the update; the
		// conditioned update refused to resurrect it.
		return nil, fmt.Errorf("hold %d: %w", holdID, ErrNotFound)
	}
	h.LastHeartbeatAt = now
	h.ExpiresAt = expiresAt
	return h, nil
}

// ReleaseHold removes the caller's hold.  Releasing a hold that is
// already gone or already expired succeeds: the end state the caller
// asked for is in place either way.  Forbidden is only possible while
// the hold is still alive and owned by someone else.
func (s *SeatHoldService) ReleaseHold(ctx context.Context, holdID uint64, clientToken string, ownerUserID *uint64) error {
	h, err := s.holds.GetByID(ctx, holdID)
	if err != nil {
		if errors.Is(err, repository.ErrHoldNotFound) {
			return nil
		}
		return err
	}
	now := s.clock.Now().UTC()
	if h.Active(now) && !h.OwnedBy(clientToken, ownerUserID) {
		return ErrForbidden
	}
	if err := s.holds.Delete(ctx, holdID); err != nil {
		return err
	}
	s.audit.Record(ctx, queue.AuditEvent{
		Kind:        queue.KindHoldReleased,
		ScreeningID: h.ScreeningID,
		SeatIDs:     []uint64{h.SeatID},
		HoldID:      holdID,
		Actor:       clientToken,
	})
	return nil
}

// SweepExpired removes every hold whose TTL lapsed as of now and
// returns how many were removed.  Safe to invoke concurrently with
// itself and with client operations: the store's delete re-checks the
// expiry at delete time, so a concurrently extended hold survives.
func (s *SeatHoldService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.holds.DeleteExpired(ctx, now.UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("hold sweep: removed %d expired holds", n)
		s.audit.Record(ctx, queue.AuditEvent{Kind: queue.KindHoldSweep, Count: n})
	}
	return n, nil
}

// unavailableSeats intersects the requested seats with everything that
// blocks a claim: active holds, blocking reservations and sold
// tickets.  The result is sorted for deterministic error payloads.
func (s *SeatHoldService) unavailableSeats(ctx context.Context, screeningID uint64, seatIDs []uint64, now time.Time) ([]uint64, error) {
	blocked := make(map[uint64]struct{})
	held, err := s.holds.ActiveSeatIDs(ctx, screeningID, now)
	if err != nil {
		return nil, err
	}
	for _, id := range held {
		blocked[id] = struct{}{}
	}
	reserved, err := s.reservations.ActiveSeatIDs(ctx, screeningID)
	if err != nil {
		return nil, err
	}
	for _, id := range reserved {
		blocked[id] = struct{}{}
	}
	sold, err := s.tickets.SoldSeatIDs(ctx, screeningID)
	if err != nil {
		return nil, err
	}
	for _, id := range sold {
		blocked[id] = struct{}{}
	}
	var out []uint64
	for _, id := range seatIDs {
		if _, ok := blocked[id]; ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// dedupe drops zero and repeated seat IDs while keeping request order.
func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
