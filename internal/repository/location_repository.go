package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/krushi/krushi-api/internal/database"
	"github.com/krushi/krushi-api/internal/model"
)

// LocationRepo stores admin managed (district, taluka) points.
type LocationRepo struct{ DB database.DBTX }

func NewLocationRepo(db database.DBTX) *LocationRepo { return &LocationRepo{DB: db} }

// Create inserts l and sets l.ID. A repeated district+taluka pair yields
// ErrDuplicate.
func (r *LocationRepo) Create(ctx context.Context, l *model.Location) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO locations (district, taluka, longitude, latitude, created_by) VALUES (?,?,?,?,?)",
		l.District, l.Taluka, l.Longitude, l.Latitude, l.CreatedBy)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert location: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert location: %w", err)
	}
	l.ID = uint64(id)
	return nil
}

// List returns all locations ordered by district then taluka.
func (r *LocationRepo) List(ctx context.Context) ([]model.Location, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,district,taluka,longitude,latitude,created_by,created_at FROM locations ORDER BY district, taluka")
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var out []model.Location
	for rows.Next() {
		var l model.Location
		var by sql.NullInt64
		if err := rows.Scan(&l.ID, &l.District, &l.Taluka, &l.Longitude, &l.Latitude, &by, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		l.CreatedBy = nullUint(by)
		out = append(out, l)
	}
	return out, rows.Err()
}
