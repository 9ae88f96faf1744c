// Package service implements the seat concurrency core: hold
// lifecycle, reservation expiry and the live seat-status projection.
// This file defines the error taxonomy handlers branch on.  Business
// failures are explicit values, never panics, so callers and tests can
// compare with errors.Is / errors.As.
package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotFound is wrapped by every missing-entity failure (screening,
// hold, reservation, seat).  Handlers translate it into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller's client token or user ID
// does not match the recorded owner of a hold.  Never retried.
var ErrForbidden = errors.New("forbidden")

// ErrStateConflict is wrapped when a reservation transition is asked
// of a row whose current status does not allow it, e.g. confirming a
// canceled reservation.
var ErrStateConflict = errors.New("invalid state transition")

// ConflictError reports the seats that blocked a hold request so the
// client can adjust its selection and retry.  The slice is sorted.
// It may be empty when the losing operation cannot name the seats,
// as with a claim landing mid-checkout.
type ConflictError struct {
	SeatIDs []uint64
}

func (e *ConflictError) Error() string {
	if len(e.SeatIDs) == 0 {
		return "seats unavailable"
	}
	parts := make([]string, 0, len(e.SeatIDs))
	for _, id := range e.SeatIDs {
		parts = append(parts, strconv.FormatUint(id, 10))
	}
	return "seats unavailable: " + strings.Join(parts, ", ")
}

// ValidationError reports malformed input rejected before any storage
// access: empty seat list, oversized batch, bad TTL.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
