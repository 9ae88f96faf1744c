package model

import "time"

// Ticket is the permanent record of a sold seat.  It is derived from a
// completed reservation and never mutated after issue; a seat with a
// ticket reports "sold" in seat status regardless of any other record.
type Ticket struct {
	ID            uint64    // tickets.id
	ReservationID uint64    // tickets.reservation_id
	ScreeningID   uint64    // tickets.screening_id
	SeatID        uint64    // tickets.seat_id
	Code          string    // tickets.code, opaque reference printed on the ticket
	IssuedAt      time.Time // tickets.issued_at
}
