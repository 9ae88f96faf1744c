// Package repository contains the MySQL data access layer.  This file
// defines sentinel errors shared across repositories so that the
// service layer can distinguish failure scenarios with errors.Is
// instead of inspecting driver errors.
package repository

import "errors"

// ErrSeatTaken signals that claiming a seat lost to a competing
// claim: an active hold (the unique key on (screening_id, seat_id)),
// a blocking reservation or a sold ticket.  The enclosing transaction
// is rolled back in full when this is returned.
var ErrSeatTaken = errors.New("seat already claimed")

// ErrHoldNotFound is returned when a hold lookup yields no row.  An
// expired hold that the sweep already removed reports the same error;
// callers treat the two identically.
var ErrHoldNotFound = errors.New("hold not found")

// ErrNoActiveHolds is returned by ConvertHolds when the caller has no
// unexpired holds on the screening to convert.
var ErrNoActiveHolds = errors.New("no active holds")

// ErrReservationNotFound is returned when a reservation lookup yields
// no row.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrScreeningNotFound indicates that a screening does not exist.
var ErrScreeningNotFound = errors.New("screening not found")

// ErrHallNotFound indicates that a hall does not exist.
var ErrHallNotFound = errors.New("hall not found")

// dbTimeLayout is how DATETIME(6) values are written to MySQL.  The
// columns carry microseconds so a stored expiry matches the value
// handed back to clients instead of losing up to a second to
// truncation.  Reads come back as time.Time thanks to parseTime=true
// in the DSN.
const dbTimeLayout = "2006-01-02 15:04:05.000000"
