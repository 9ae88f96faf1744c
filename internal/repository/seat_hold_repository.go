package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/cinebook/cinebook/internal/model"
)

// SeatHoldRepo provides data access to the seat_holds table.  The
// table carries a unique key on (screening_id, seat_id) covering all
// rows; CreateBatch purges expired rows for the requested seats inside
// the same transaction, so a duplicate-key failure always means a
// concurrent, still-active hold.  All timestamps are UTC.
type SeatHoldRepo struct {
	db *sql.DB
}

// NewSeatHoldRepo returns a new SeatHoldRepo bound to the provided database.
func NewSeatHoldRepo(db *sql.DB) *SeatHoldRepo { return &SeatHoldRepo{db: db} }

const holdColumns = `id, screening_id, seat_id, client_token, owner_user_id, created_at, last_heartbeat_at, expires_at`

// scanHold reads one seat_holds row from a row scanner.
func scanHold(row interface{ Scan(dest ...any) error }) (*model.SeatHold, error) {
	var h model.SeatHold
	var owner sql.NullInt64
	if err := row.Scan(&h.ID, &h.ScreeningID, &h.SeatID, &h.ClientToken, &owner,
		&h.CreatedAt, &h.LastHeartbeatAt, &h.ExpiresAt); err != nil {
		return nil, err
	}
	if owner.Valid {
		v := uint64(owner.Int64)
		h.OwnerUserID = &v
	}
	return &h, nil
}

// isDuplicateKey reports whether err is a MySQL duplicate-entry error
// (1062), which here can only come from the active-hold unique key.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// placeholders returns "?, ?, ..." with n entries for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// seatsClaimed runs a locking read inside tx and reports whether it
// returned any row.  The write transactions use it to arbitrate
// against the reservations and tickets tables: FOR UPDATE waits out a
// concurrent transaction's uncommitted rows instead of reading around
// them, so the check and the subsequent insert commit as one unit.
func seatsClaimed(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	if rows.Next() {
		return true, nil
	}
	return false, rows.Err()
}

// CreateBatch inserts holds for every seat in the batch or none at
// all.  All holds must target the same screening and share the same
// client token.  Within one transaction it deletes expired holds for
// exactly the requested seats (the re-check that keeps the unique key
// honest), takes locking reads over reservations and tickets for
// those seats, then bulk-inserts the new rows.  The unique key
// arbitrates hold-vs-hold; the locking reads arbitrate against a
// checkout or sale committing concurrently, which the service-level
// availability check alone cannot see.  Any competing claim rolls
// everything back and surfaces as ErrSeatTaken.  On success it
// returns the created holds with their generated IDs.
func (r *SeatHoldRepo) CreateBatch(ctx context.Context, holds []model.SeatHold, now time.Time) ([]model.SeatHold, error) {
	if len(holds) == 0 {
		return nil, nil
	}
	screeningID := holds[0].ScreeningID
	clientToken := holds[0].ClientToken
	seatArgs := make([]any, 0, len(holds))
	for _, h := range holds {
		seatArgs = append(seatArgs, h.SeatID)
	}

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

	// Purge expired holds occupying any of the requested seats so the
	// unique key only collides with genuinely active holds.
	purge := `DELETE FROM seat_holds WHERE screening_id = ? AND seat_id IN (` + placeholders(len(seatArgs)) + `) AND expires_at <= ?`
	purgeArgs := append([]any{screeningID}, seatArgs...)
	purgeArgs = append(purgeArgs, now.UTC().Format(dbTimeLayout))
	if _, err := tx.ExecContext(ctx, purge, purgeArgs...); err != nil {
		return nil, err
	}

	// A seat is only claimable with no blocking reservation and no
	// sold ticket on it.  Checked again here, under locks, inside the
	// same transaction as the insert.
	guardArgs := append([]any{screeningID}, seatArgs...)
	resGuard := `SELECT seat_id FROM reservations WHERE screening_id = ? AND seat_id IN (` + placeholders(len(seatArgs)) + `) AND status IN ('PENDING', 'CONFIRMED') FOR UPDATE`
	if taken, err := seatsClaimed(ctx, tx, resGuard, guardArgs...); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrSeatTaken
	}
	ticketGuard := `SELECT seat_id FROM tickets WHERE screening_id = ? AND seat_id IN (` + placeholders(len(seatArgs)) + `) FOR UPDATE`
	if taken, err := seatsClaimed(ctx, tx, ticketGuard, guardArgs...); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrSeatTaken
	}

	insert := `INSERT INTO seat_holds (screening_id, seat_id, client_token, owner_user_id, created_at, last_heartbeat_at, expires_at) VALUES `
	args := make([]any, 0, len(holds)*7)
	for i, h := range holds {
		if i > 0 {
			insert += ","
		}
		insert += "(?, ?, ?, ?, ?, ?, ?)"
		var owner any
		if h.OwnerUserID != nil {
			owner = *h.OwnerUserID
		}
		args = append(args, h.ScreeningID, h.SeatID, h.ClientToken, owner,
			h.CreatedAt.UTC().Format(dbTimeLayout),
			h.LastHeartbeatAt.UTC().Format(dbTimeLayout),
			h.ExpiresAt.UTC().Format(dbTimeLayout))
	}
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		if isDuplicateKey(err) {
			return nil, ErrSeatTaken
		}
		return nil, err
	}

	// Read the rows back to pick up the generated IDs.
	sel := `SELECT ` + holdColumns + ` FROM seat_holds WHERE screening_id = ? AND client_token = ? AND seat_id IN (` + placeholders(len(seatArgs)) + `)`
	selArgs := append([]any{screeningID, clientToken}, seatArgs...)
	rows, err := tx.QueryContext(ctx, sel, selArgs...)
	if err != nil {
		return nil, err
	}
	created := make([]model.SeatHold, 0, len(holds))
	for rows.Next() {
		h, scanErr := scanHold(rows)
		if scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		created = append(created, *h)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return created, nil
}

// GetByID loads a single hold.  It returns ErrHoldNotFound when the
// row does not exist, including holds already removed by the sweep.
func (r *SeatHoldRepo) GetByID(ctx context.Context, id uint64) (*model.SeatHold, error) {
	const q = `SELECT ` + holdColumns + ` FROM seat_holds WHERE id = ?`
	h, err := scanHold(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHoldNotFound
		}
		return nil, err
	}
	return h, nil
}

// Extend pushes a hold's heartbeat and expiry forward.  The update is
// conditioned on the hold still being alive at heartbeatAt, so the
// hold cannot silently vanish under a concurrent sweep: either the
// extend wins and the row lives on with the new expiry, or the row was
// already past its expiry and the extend reports false.
func (r *SeatHoldRepo) Extend(ctx context.Context, id uint64, heartbeatAt, expiresAt time.Time) (bool, error) {
	const q = `UPDATE seat_holds SET last_heartbeat_at = ?, expires_at = ? WHERE id = ? AND expires_at > ?`
	res, err := r.db.ExecContext(ctx, q,
		heartbeatAt.UTC().Format(dbTimeLayout),
		expiresAt.UTC().Format(dbTimeLayout),
		id,
		heartbeatAt.UTC().Format(dbTimeLayout))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes a hold by ID.  Deleting a missing row is not an
// error; release is idempotent all the way down.
func (r *SeatHoldRepo) Delete(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM seat_holds WHERE id = ?`, id)
	return err
}

// ActiveSeatIDs returns the seat IDs with an unexpired hold for the
// screening at the given instant.
func (r *SeatHoldRepo) ActiveSeatIDs(ctx context.Context, screeningID uint64, now time.Time) ([]uint64, error) {
	const q = `SELECT seat_id FROM seat_holds WHERE screening_id = ? AND expires_at > ?`
	rows, err := r.db.QueryContext(ctx, q, screeningID, now.UTC().Format(dbTimeLayout))
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

// DeleteExpired removes every hold whose expiry has passed and returns
// the number of rows removed.  The expiry comparison happens at delete
// time inside the statement, so a hold extended concurrently with the
// sweep survives.
func (r *SeatHoldRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM seat_holds WHERE expires_at <= ?`,
		now.UTC().Format(dbTimeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
