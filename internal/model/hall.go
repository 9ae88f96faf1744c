package model

// Hall is the room a screening takes place in.  The core reads halls
// only to resolve a screening's seat layout.
type Hall struct {
	ID       uint64  // halls.id
	Name     string  // halls.name
	SeatRows *uint32 // halls.seat_rows (nullable, advisory layout hint)
	SeatCols *uint32 // halls.seat_cols (nullable, advisory layout hint)
}
