package model

import "strconv"

// Seat describes a physical seat in a hall.  Seats are uniquely placed
// by their hall, row label and number within the row.  IsActive is a
// layout flag (broken or removed seats), not a reservation state.
type Seat struct {
	ID         uint64 // seats.id
	HallID     uint64 // seats.hall_id
	RowLabel   string // seats.row_label, e.g. A, B, AA
	SeatNumber uint32 // seats.seat_number, 1-based position in the row
	SeatType   string // seats.seat_type (STANDARD, VIP, ACCESSIBLE)
	IsActive   bool   // seats.is_active
}

// Label renders the human-readable seat name, e.g. "A12".
func (s *Seat) Label() string {
	return s.RowLabel + strconv.FormatUint(uint64(s.SeatNumber), 10)
}
