package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/krushi/krushi-api/internal/database"
	"github.com/krushi/krushi-api/internal/model"
)

const cropColumns = "id,farmer_id,crop_name,crop_variety,planting_date,area_value,area_unit,created_at"

// CropRepo handles farmer owned crops. Reads and deletes are scoped by
// farmer so another farmer's crop looks like a missing one.
type CropRepo struct{ DB database.DBTX }

func NewCropRepo(db database.DBTX) *CropRepo { return &CropRepo{DB: db} }

// Create inserts c and sets c.ID.
func (r *CropRepo) Create(ctx context.Context, c *model.Crop) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO crops (farmer_id, crop_name, crop_variety, planting_date, area_value, area_unit) VALUES (?,?,?,?,?,?)",
		c.FarmerID, c.CropName, c.CropVariety, c.PlantingDate, c.Area.Value, c.Area.Unit)
	if err != nil {
		return fmt.Errorf("insert crop: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert crop: %w", err)
	}
	c.ID = uint64(id)
	return nil
}

// GetOwned fetches crop id if it belongs to farmerID.
func (r *CropRepo) GetOwned(ctx context.Context, id, farmerID uint64) (model.Crop, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+cropColumns+" FROM crops WHERE id=? AND farmer_id=? LIMIT 1", id, farmerID)
	c, err := scanCrop(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Crop{}, ErrNotFound
	}
	if err != nil {
		return model.Crop{}, fmt.Errorf("get crop: %w", err)
	}
	return c, nil
}

// ListByFarmer returns the farmer's crops, newest first.
func (r *CropRepo) ListByFarmer(ctx context.Context, farmerID uint64) ([]model.Crop, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+cropColumns+" FROM crops WHERE farmer_id=? ORDER BY created_at DESC, id DESC", farmerID)
	if err != nil {
		return nil, fmt.Errorf("list crops: %w", err)
	}
	defer rows.Close()

	var out []model.Crop
	for rows.Next() {
		c, err := scanCrop(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crop: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes crop id owned by farmerID.
func (r *CropRepo) Delete(ctx context.Context, id, farmerID uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM crops WHERE id=? AND farmer_id=?", id, farmerID)
	if err != nil {
		return fmt.Errorf("delete crop: %w", err)
	}
	return expectOne(res)
}

func scanCrop(s rowScanner) (model.Crop, error) {
	var c model.Crop
	var planted sql.NullTime
	if err := s.Scan(&c.ID, &c.FarmerID, &c.CropName, &c.CropVariety, &planted,
		&c.Area.Value, &c.Area.Unit, &c.CreatedAt); err != nil {
		return model.Crop{}, err
	}
	if planted.Valid {
		t := planted.Time
		c.PlantingDate = &t
	}
	return c, nil
}
