package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cinebook/cinebook/internal/model"
)

// ScreeningRepo is the read-only view of screenings the concurrency
// core needs: existence checks, the hall reference and the start time
// that anchors the reservation deadline.  Screening CRUD lives outside
// this service.
type ScreeningRepo struct {
	db *sql.DB
}

// NewScreeningRepo constructs a ScreeningRepo with the given DB handle.
func NewScreeningRepo(db *sql.DB) *ScreeningRepo {
	return &ScreeningRepo{db: db}
}

// GetByID loads a screening, returning ErrScreeningNotFound when it
// does not exist.
func (r *ScreeningRepo) GetByID(ctx context.Context, id uint64) (*model.Screening, error) {
	const q = `SELECT id, hall_id, title, starts_at, ends_at, status FROM screenings WHERE id = ?`
	var s model.Screening
	err := r.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.HallID, &s.Title, &s.StartsAt, &s.EndsAt, &s.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScreeningNotFound
		}
		return nil, err
	}
	s.StartsAt = s.StartsAt.UTC()
	s.EndsAt = s.EndsAt.UTC()
	return &s, nil
}

// ListUpcoming returns scheduled screenings starting after the given
// instant, soonest first, capped at limit.  Used by the public browse
// endpoints.
func (r *ScreeningRepo) ListUpcoming(ctx context.Context, now time.Time, limit int) ([]model.Screening, error) {
	const q = `SELECT id, hall_id, title, starts_at, ends_at, status
	           FROM screenings
	           WHERE status = 'SCHEDULED' AND starts_at > ?
	           ORDER BY starts_at ASC
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, now.UTC().Format(dbTimeLayout), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Screening, 0, limit)
	for rows.Next() {
		var s model.Screening
		if err := rows.Scan(&s.ID, &s.HallID, &s.Title, &s.StartsAt, &s.EndsAt, &s.Status); err != nil {
			return nil, err
		}
		s.StartsAt = s.StartsAt.UTC()
		s.EndsAt = s.EndsAt.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}
