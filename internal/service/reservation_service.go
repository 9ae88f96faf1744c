package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cinebook/cinebook/internal/model"
	"github.com/cinebook/cinebook/internal/queue"
	"github.com/cinebook/cinebook/internal/repository"
)

// ReservationStore is the persistence contract for reservations.
// ConvertHolds must be atomic: holds locked, held seats verified free
// of competing claims, reservations inserted, holds removed, all in
// one unit or none of it.  A competing claim surfaces as
// repository.ErrSeatTaken.
type ReservationStore interface {
	ReservationReader
	ConvertHolds(ctx context.Context, screeningID uint64, clientToken string, memberID *uint64, now, expiresAt time.Time) ([]model.Reservation, error)
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	UpdateStatus(ctx context.Context, id uint64, from []model.ReservationStatus, to model.ReservationStatus, now time.Time) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// TicketStore extends the ticket read side with the atomic issue
// transaction (reservation CONFIRMED -> COMPLETED plus ticket insert).
type TicketStore interface {
	TicketReader
	Issue(ctx context.Context, reservationID uint64, code string, now time.Time) (*model.Ticket, error)
}

// Expiry policy modes.  BeforeStart anchors the payment deadline a
// fixed offset before the screening starts; Fixed anchors it an
// absolute duration after checkout.
const (
	ExpiryBeforeStart = "before_start"
	ExpiryFixed       = "fixed"
)

// ExpiryPolicy decides the payment deadline written on new PENDING
// reservations.
type ExpiryPolicy struct {
	Mode        string
	BeforeStart time.Duration // offset for the before_start mode
	PendingTTL  time.Duration // timeout for the fixed mode, and the fallback
}

// Deadline computes the expiry for a reservation created at now for a
// screening starting at startsAt.  In before_start mode a deadline
// that would already be in the past (checkout close to the screening)
// falls back to now plus the pending TTL, capped at the start itself.
func (p ExpiryPolicy) Deadline(now, startsAt time.Time) time.Time {
	if p.Mode != ExpiryFixed {
		d := startsAt.Add(-p.BeforeStart)
		if d.After(now) {
			return d
		}
	}
	d := now.Add(p.PendingTTL)
	if startsAt.After(now) && d.After(startsAt) {
		d = startsAt
	}
	return d
}

// ReservationService owns the reservation state machine: checkout
// (hold conversion), payment confirmation, cancellation, ticket issue
// and the expiry sweep.
type ReservationService struct {
	reservations ReservationStore
	tickets      TicketStore
	screenings   ScreeningReader
	policy       ExpiryPolicy
	clock        clockwork.Clock
	audit        AuditRecorder
}

// NewReservationService constructs a ReservationService.  audit may be nil.
func NewReservationService(reservations ReservationStore, tickets TicketStore, screenings ScreeningReader, policy ExpiryPolicy, clock clockwork.Clock, audit AuditRecorder) *ReservationService {
	if audit == nil {
		audit = nopAudit{}
	}
	return &ReservationService{
		reservations: reservations,
		tickets:      tickets,
		screenings:   screenings,
		policy:       policy,
		clock:        clock,
		audit:        audit,
	}
}

// Checkout converts the caller's active holds on a screening into
// PENDING reservations carrying the policy deadline.  The holds are
// consumed; the seats stay blocked, now by the firmer claim.
func (s *ReservationService) Checkout(ctx context.Context, screeningID uint64, clientToken string, memberID *uint64) ([]model.Reservation, error) {
	if clientToken == "" {
		return nil, &ValidationError{Msg: "client token is required"}
	}
	scr, err := s.screenings.GetByID(ctx, screeningID)
	if err != nil {
		if errors.Is(err, repository.ErrScreeningNotFound) {
			return nil, fmt.Errorf("screening %d: %w", screeningID, ErrNotFound)
		}
		return nil, err
	}
	now := s.clock.Now().UTC()
	deadline := s.policy.Deadline(now, scr.StartsAt)
	created, err := s.reservations.ConvertHolds(ctx, screeningID, clientToken, memberID, now, deadline)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveHolds) {
			return nil, fmt.Errorf("active holds for screening %d: %w", screeningID, ErrNotFound)
		}
		if errors.Is(err, repository.ErrSeatTaken) {
			// A competing claim landed on a held seat before the
			// conversion could commit; nothing was converted.
			return nil, &ConflictError{}
		}
		return nil, err
	}
	seatIDs := make([]uint64, 0, len(created))
	for _, r := range created {
		seatIDs = append(seatIDs, r.SeatID)
	}
	s.audit.Record(ctx, queue.AuditEvent{
		Kind:        queue.KindReservationCreated,
		ScreeningID: screeningID,
		SeatIDs:     seatIDs,
		Actor:       clientToken,
	})
	return created, nil
}

// Confirm moves a reservation PENDING -> CONFIRMED on payment
// success.  A pending reservation whose deadline already passed is
// treated as expired even if the sweep has not visited it yet.
func (s *ReservationService) Confirm(ctx context.Context, reservationID uint64) (*model.Reservation, error) {
	res, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	if res.Status == model.ReservationPending && !res.ExpiresAt.After(now) {
		return nil, fmt.Errorf("reservation %d expired: %w", reservationID, ErrStateConflict)
	}
	return s.transition(ctx, res, []model.ReservationStatus{model.ReservationPending}, model.ReservationConfirmed, now)
}

// Cancel moves a PENDING or CONFIRMED reservation to CANCELED.
func (s *ReservationService) Cancel(ctx context.Context, reservationID uint64) (*model.Reservation, error) {
	res, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	return s.transition(ctx, res,
		[]model.ReservationStatus{model.ReservationPending, model.ReservationConfirmed},
		model.ReservationCanceled, now)
}

// IssueTicket cuts the permanent ticket for a confirmed reservation
// and completes it.  The seat reports "sold" from the next status
// query on.
func (s *ReservationService) IssueTicket(ctx context.Context, reservationID uint64) (*model.Ticket, error) {
	code, err := ticketCode()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	t, err := s.tickets.Issue(ctx, reservationID, code, now)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return nil, fmt.Errorf("reservation %d: %w", reservationID, ErrNotFound)
		}
		if errors.Is(err, repository.ErrNotConfirmed) {
			return nil, fmt.Errorf("reservation %d: %w", reservationID, ErrStateConflict)
		}
		return nil, err
	}
	s.audit.Record(ctx, queue.AuditEvent{
		Kind:          queue.KindTicketIssued,
		ScreeningID:   t.ScreeningID,
		SeatIDs:       []uint64{t.SeatID},
		ReservationID: reservationID,
	})
	return t, nil
}

// ExpireOverdue transitions every PENDING reservation past its
// deadline to EXPIRED and returns the count.  Idempotent and safe
// under overlapping invocations; rows in other states are never
// touched.  Seat status picks the change up on the next query without
// any explicit write.
func (s *ReservationService) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.reservations.ExpireOverdue(ctx, now.UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("reservation sweep: expired %d overdue reservations", n)
		s.audit.Record(ctx, queue.AuditEvent{Kind: queue.KindReservationSweep, Count: n})
	}
	return n, nil
}

func (s *ReservationService) getReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return nil, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return res, nil
}

// transition applies a guarded status change and reports the updated
// row.  The store enforces the source-state check atomically; a false
// result means some concurrent transition won, which surfaces as a
// state conflict naming the current status.
func (s *ReservationService) transition(ctx context.Context, res *model.Reservation, from []model.ReservationStatus, to model.ReservationStatus, now time.Time) (*model.Reservation, error) {
	ok, err := s.reservations.UpdateStatus(ctx, res.ID, from, to, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, curErr := s.getReservation(ctx, res.ID)
		if curErr != nil {
			return nil, curErr
		}
		return nil, fmt.Errorf("reservation %d is %s: %w", res.ID, cur.Status, ErrStateConflict)
	}
	res.Status = to
	res.UpdatedAt = now
	s.audit.Record(ctx, queue.AuditEvent{
		Kind:          queue.KindReservationChanged,
		ScreeningID:   res.ScreeningID,
		ReservationID: res.ID,
		Status:        string(to),
	})
	return res, nil
}

// ticketCode generates a random hexadecimal ticket reference.
func ticketCode() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
