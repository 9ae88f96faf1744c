package model

import "time"

// SeatHold is a temporary, client-owned claim on a single seat for a
// screening.  Holds keep concurrent checkouts from grabbing the same
// seat while a user picks seats and pays.  A hold is alive until its
// ExpiresAt passes; heartbeats push ExpiresAt forward, a release or a
// sweep removes the row entirely.
//
// At most one unexpired hold may exist per (ScreeningID, SeatID); the
// storage layer enforces this with a unique key.
type SeatHold struct {
	ID              uint64    // seat_holds.id
	ScreeningID     uint64    // seat_holds.screening_id
	SeatID          uint64    // seat_holds.seat_id
	ClientToken     string    // seat_holds.client_token, opaque browser/session identity
	OwnerUserID     *uint64   // seat_holds.owner_user_id (nullable, set for authenticated users)
	CreatedAt       time.Time // seat_holds.created_at
	LastHeartbeatAt time.Time // seat_holds.last_heartbeat_at
	ExpiresAt       time.Time // seat_holds.expires_at, always last_heartbeat_at + TTL
}

// Active reports whether the hold is still alive at the given instant.
func (h *SeatHold) Active(now time.Time) bool {
	return h.ExpiresAt.After(now)
}

// TTL returns the lease duration the hold was created (or last
// extended) with.  Extending a hold reuses this duration rather than
// accumulating time.
func (h *SeatHold) TTL() time.Duration {
	return h.ExpiresAt.Sub(h.LastHeartbeatAt)
}

// OwnedBy reports whether the caller identified by clientToken and an
// optional user ID is the hold's owner.  A matching client token wins
// unless both sides carry different user IDs; a matching user ID alone
// is enough when the same authenticated user comes back from another
// browser session.
func (h *SeatHold) OwnedBy(clientToken string, userID *uint64) bool {
	if clientToken != "" && h.ClientToken == clientToken {
		if h.OwnerUserID != nil && userID != nil && *h.OwnerUserID != *userID {
			return false
		}
		return true
	}
	return h.OwnerUserID != nil && userID != nil && *h.OwnerUserID == *userID
}
