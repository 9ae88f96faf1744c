package model

import "time"

// ReservationStatus enumerates the lifecycle states of a reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"   // awaiting payment, subject to the expiry sweep
	ReservationConfirmed ReservationStatus = "CONFIRMED" // payment succeeded, awaiting ticket issue
	ReservationExpired   ReservationStatus = "EXPIRED"   // deadline passed without payment (terminal)
	ReservationCanceled  ReservationStatus = "CANCELED"  // manually canceled (terminal)
	ReservationCompleted ReservationStatus = "COMPLETED" // ticket issued (terminal)
)

// Blocking reports whether a reservation in this status keeps its seat
// away from other customers.  Only PENDING and CONFIRMED rows count;
// terminal states stop contributing to seat status on the next query.
func (s ReservationStatus) Blocking() bool {
	return s == ReservationPending || s == ReservationConfirmed
}

// Reservation is a per-seat commitment that outlives a hold, pending
// payment.  One row covers exactly one seat of one screening, so the
// exclusivity invariant stays per (ScreeningID, SeatID): at most one
// row in a blocking status at a time.
//
// ExpiresAt carries the payment deadline.  Depending on configuration
// it is either a fixed offset before the screening start (the default,
// 30 minutes) or an absolute timeout from creation.
type Reservation struct {
	ID          uint64            // reservations.id
	ScreeningID uint64            // reservations.screening_id
	SeatID      uint64            // reservations.seat_id
	MemberID    *uint64           // reservations.member_id (nullable, guests allowed)
	Status      ReservationStatus // reservations.status
	ExpiresAt   time.Time         // reservations.expires_at, payment deadline for PENDING rows
	CreatedAt   time.Time         // reservations.created_at
	UpdatedAt   time.Time         // reservations.updated_at
}
