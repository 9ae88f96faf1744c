package repository // repository defines data access for seats

import (
	"context"
	"database/sql"

	"github.com/cinebook/cinebook/internal/model"
)

// SeatRepo provides read access to the seats of a hall.  Seat CRUD is
// an admin concern handled elsewhere; the concurrency core only ever
// needs the layout of the hall a screening plays in.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// ListByHall returns every active seat of a hall ordered by row label
// then seat number, the same deterministic order the seat grid is
// rendered in.
func (r *SeatRepo) ListByHall(ctx context.Context, hallID uint64) ([]model.Seat, error) {
	const q = `SELECT id, hall_id, row_label, seat_number, seat_type, is_active
	           FROM seats
	           WHERE hall_id = ? AND is_active = 1
	           ORDER BY row_label, seat_number`
	rows, err := r.db.QueryContext(ctx, q, hallID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.HallID, &s.RowLabel, &s.SeatNumber, &s.SeatType, &s.IsActive); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}
