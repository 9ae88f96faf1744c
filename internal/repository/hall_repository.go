package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cinebook/cinebook/internal/model"
)

// HallRepo provides read access to halls for the browse endpoints.
type HallRepo struct {
	db *sql.DB
}

// NewHallRepo constructs a HallRepo with the given DB handle.
func NewHallRepo(db *sql.DB) *HallRepo { return &HallRepo{db: db} }

// GetByID loads a hall, returning ErrHallNotFound when it does not exist.
func (r *HallRepo) GetByID(ctx context.Context, id uint64) (*model.Hall, error) {
	const q = `SELECT id, name, seat_rows, seat_cols FROM halls WHERE id = ?`
	var h model.Hall
	var rowsN, colsN sql.NullInt32
	err := r.db.QueryRowContext(ctx, q, id).Scan(&h.ID, &h.Name, &rowsN, &colsN)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHallNotFound
		}
		return nil, err
	}
	if rowsN.Valid {
		v := uint32(rowsN.Int32)
		h.SeatRows = &v
	}
	if colsN.Valid {
		v := uint32(colsN.Int32)
		h.SeatCols = &v
	}
	return &h, nil
}
