package model

import "time"

// Screening is a scheduled showing of a movie in a particular hall.
// The seat concurrency core only reads screenings: existence checks,
// the hall reference for seat lookups, and StartsAt for the
// reservation deadline.
//
// Fields:
//
//	ID       screenings.id
//	HallID   screenings.hall_id
//	Title    screenings.title
//	StartsAt screenings.starts_at (UTC)
//	EndsAt   screenings.ends_at (UTC)
//	Status   screenings.status (SCHEDULED, CANCELLED, FINISHED)
type Screening struct {
	ID       uint64
	HallID   uint64
	Title    string
	StartsAt time.Time
	EndsAt   time.Time
	Status   string
}
