package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cinebook/cinebook/internal/model"
)

// TicketRepo provides data access to the tickets table.  Tickets are
// immutable once issued: the repo exposes only the issue transaction
// and read queries.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// ErrNotConfirmed is returned by Issue when the reservation exists but
// is not in CONFIRMED state, so no ticket may be cut for it.
var ErrNotConfirmed = errors.New("reservation not confirmed")

// SoldSeatIDs returns the seat IDs with an issued ticket for the
// screening.  A ticket is the terminal "sold" fact in seat status.
func (r *TicketRepo) SoldSeatIDs(ctx context.Context, screeningID uint64) ([]uint64, error) {
	const q = `SELECT seat_id FROM tickets WHERE screening_id = ?`
	rows, err := r.db.QueryContext(ctx, q, screeningID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Issue cuts a ticket for a confirmed reservation.  In one transaction
// it moves the reservation CONFIRMED -> COMPLETED (guarded inside the
// UPDATE, so two concurrent issues cannot both succeed) and inserts
// the ticket row.  It returns ErrReservationNotFound when the
// reservation does not exist and ErrNotConfirmed when it is in any
// other state.
func (r *TicketRepo) Issue(ctx context.Context, reservationID uint64, code string, now time.Time) (*model.Ticket, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const upd = `UPDATE reservations SET status = 'COMPLETED', updated_at = ? WHERE id = ? AND status = 'CONFIRMED'`
	res, err := tx.ExecContext(ctx, upd, now.UTC().Format(dbTimeLayout), reservationID)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Disambiguate missing row from wrong state.
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM reservations WHERE id = ?`, reservationID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrNotConfirmed
	}

	var screeningID, seatID uint64
	if err := tx.QueryRowContext(ctx,
		`SELECT screening_id, seat_id FROM reservations WHERE id = ?`, reservationID,
	).Scan(&screeningID, &seatID); err != nil {
		return nil, err
	}

	ins, err := tx.ExecContext(ctx,
		`INSERT INTO tickets (reservation_id, screening_id, seat_id, code, issued_at) VALUES (?, ?, ?, ?, ?)`,
		reservationID, screeningID, seatID, code, now.UTC().Format(dbTimeLayout))
	if err != nil {
		return nil, err
	}
	id, err := ins.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return &model.Ticket{
		ID:            uint64(id),
		ReservationID: reservationID,
		ScreeningID:   screeningID,
		SeatID:        seatID,
		Code:          code,
		IssuedAt:      now.UTC(),
	}, nil
}
