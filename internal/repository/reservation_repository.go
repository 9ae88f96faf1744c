package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cinebook/cinebook/internal/model"
)

// ReservationRepo provides data access to the reservations table.  A
// reservation covers exactly one seat of one screening; a multi-seat
// checkout creates one row per seat so that seat exclusivity stays a
// per-seat fact.  All timestamps are UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, screening_id, seat_id, member_id, status, expires_at, created_at, updated_at`

func scanReservation(row interface{ Scan(dest ...any) error }) (*model.Reservation, error) {
	var res model.Reservation
	var member sql.NullInt64
	var status string
	if err := row.Scan(&res.ID, &res.ScreeningID, &res.SeatID, &member, &status,
		&res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	if member.Valid {
		v := uint64(member.Int64)
		res.MemberID = &v
	}
	res.Status = model.ReservationStatus(status)
	return &res, nil
}

// GetByID loads a single reservation, returning ErrReservationNotFound
// when no row exists.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	res, err := scanReservation(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return res, nil
}

// ActiveSeatIDs returns the seat IDs with a PENDING or CONFIRMED
// reservation for the screening.  A reservation blocks its seat until
// the sweep or a manual transition moves it to a terminal state, so
// status alone decides membership here.
func (r *ReservationRepo) ActiveSeatIDs(ctx context.Context, screeningID uint64) ([]uint64, error) {
	const q = `SELECT seat_id FROM reservations WHERE screening_id = ? AND status IN ('PENDING', 'CONFIRMED')`
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

// ConvertHolds turns the caller's active holds on a screening into
// PENDING reservations within a single transaction: the holds are
// locked, the held seats are verified free of blocking reservations
// and sold tickets, one reservation row is inserted per held seat,
// and the holds are deleted.  The hold rows are selected FOR UPDATE
// so two concurrent checkouts by the same client cannot
// double-convert, and the seat verification uses locking reads so the
// at-most-one-blocking-reservation-per-seat rule holds even against a
// claim committing concurrently.  It returns ErrNoActiveHolds when
// the caller holds nothing unexpired and ErrSeatTaken when a held
// seat is already claimed.
func (r *ReservationRepo) ConvertHolds(ctx context.Context, screeningID uint64, clientToken string, memberID *uint64, now, expiresAt time.Time) ([]model.Reservation, error) {
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

	const sel = `SELECT id, seat_id FROM seat_holds
	             WHERE screening_id = ? AND client_token = ? AND expires_at > ?
	             FOR UPDATE`
	rows, err := tx.QueryContext(ctx, sel, screeningID, clientToken, now.UTC().Format(dbTimeLayout))
	if err != nil {
		return nil, err
	}
	var holdIDs, seatIDs []uint64
	for rows.Next() {
		var hid, sid uint64
		if scanErr := rows.Scan(&hid, &sid); scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		holdIDs = append(holdIDs, hid)
		seatIDs = append(seatIDs, sid)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(holdIDs) == 0 {
		return nil, ErrNoActiveHolds
	}

	guardArgs := make([]any, 0, len(seatIDs)+1)
	guardArgs = append(guardArgs, screeningID)
	for _, sid := range seatIDs {
		guardArgs = append(guardArgs, sid)
	}
	resGuard := `SELECT seat_id FROM reservations WHERE screening_id = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `) AND status IN ('PENDING', 'CONFIRMED') FOR UPDATE`
	if taken, gErr := seatsClaimed(ctx, tx, resGuard, guardArgs...); gErr != nil {
		return nil, gErr
	} else if taken {
		return nil, ErrSeatTaken
	}
	ticketGuard := `SELECT seat_id FROM tickets WHERE screening_id = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `) FOR UPDATE`
	if taken, gErr := seatsClaimed(ctx, tx, ticketGuard, guardArgs...); gErr != nil {
		return nil, gErr
	} else if taken {
		return nil, ErrSeatTaken
	}

	var member any
	if memberID != nil {
		member = *memberID
	}
	created := make([]model.Reservation, 0, len(seatIDs))
	const ins = `INSERT INTO reservations (screening_id, seat_id, member_id, status, expires_at, created_at, updated_at)
	             VALUES (?, ?, ?, 'PENDING', ?, ?, ?)`
	for _, sid := range seatIDs {
		res, insErr := tx.ExecContext(ctx, ins, screeningID, sid, member,
			expiresAt.UTC().Format(dbTimeLayout),
			now.UTC().Format(dbTimeLayout),
			now.UTC().Format(dbTimeLayout))
		if insErr != nil {
			return nil, insErr
		}
		id, idErr := res.LastInsertId()
		if idErr != nil {
			return nil, idErr
		}
		created = append(created, model.Reservation{
			ID:          uint64(id),
			ScreeningID: screeningID,
			SeatID:      sid,
			MemberID:    memberID,
			Status:      model.ReservationPending,
			ExpiresAt:   expiresAt.UTC(),
			CreatedAt:   now.UTC(),
			UpdatedAt:   now.UTC(),
		})
	}

	del := `DELETE FROM seat_holds WHERE id IN (` + placeholders(len(holdIDs)) + `)`
	delArgs := make([]any, 0, len(holdIDs))
	for _, hid := range holdIDs {
		delArgs = append(delArgs, hid)
	}
	if _, err := tx.ExecContext(ctx, del, delArgs...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return created, nil
}

// UpdateStatus transitions a reservation from any of the listed states
// to the target state.  The state check happens inside the UPDATE so
// concurrent transitions cannot both win.  It returns false when the
// row was not in an allowed source state (or does not exist); callers
// disambiguate with GetByID.
func (r *ReservationRepo) UpdateStatus(ctx context.Context, id uint64, from []model.ReservationStatus, to model.ReservationStatus, now time.Time) (bool, error) {
	q := `UPDATE reservations SET status = ?, updated_at = ? WHERE id = ? AND status IN (` + placeholders(len(from)) + `)`
	args := []any{string(to), now.UTC().Format(dbTimeLayout), id}
	for _, s := range from {
		args = append(args, string(s))
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ExpireOverdue transitions every PENDING reservation whose deadline
// has passed to EXPIRED and returns the number of rows touched.  Rows
// in any other status are never affected, and re-running the statement
// at the same instant is a no-op, so overlapping sweeps are safe.
func (r *ReservationRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	const q = `UPDATE reservations SET status = 'EXPIRED', updated_at = ? WHERE status = 'PENDING' AND expires_at <= ?`
	ts := now.UTC().Format(dbTimeLayout)
	res, err := r.db.ExecContext(ctx, q, ts, ts)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
