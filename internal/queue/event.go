// Package queue defines the audit events exchanged over the message
// broker and the publisher/consumer that move them.
package queue

import "time"

// Audit event kinds.  Sweep events carry a count instead of seat IDs.
const (
	KindHoldCreated        = "hold.created"
	KindHoldReleased       = "hold.released"
	KindHoldSweep          = "hold.sweep"
	KindReservationCreated = "reservation.created"
	KindReservationChanged = "reservation.status_changed"
	KindReservationSweep   = "reservation.sweep"
	KindTicketIssued       = "ticket.issued"
)

// AuditEvent is a fire-and-forget record of who did what and when.
// It contains enough information for downstream consumers to log or
// feed analytics without querying the primary database.  EventID is
// assigned by the publisher when empty.
type AuditEvent struct {
	EventID       string    `json:"event_id"`
	Kind          string    `json:"kind"`
	ScreeningID   uint64    `json:"screening_id,omitempty"`
	SeatIDs       []uint64  `json:"seat_ids,omitempty"`
	HoldID        uint64    `json:"hold_id,omitempty"`
	ReservationID uint64    `json:"reservation_id,omitempty"`
	Status        string    `json:"status,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	Count         int64     `json:"count,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
