package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/krushi/krushi-api/internal/database"
	"github.com/krushi/krushi-api/internal/model"
)

// MediaRepo persists uploaded file metadata.
type MediaRepo struct{ DB database.DBTX }

func NewMediaRepo(db database.DBTX) *MediaRepo { return &MediaRepo{DB: db} }

// Create inserts m and sets m.ID.
func (r *MediaRepo) Create(ctx context.Context, m *model.Media) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO media (owner_id, url, public_id, content_type, size_bytes) VALUES (?,?,?,?,?)",
		m.OwnerID, m.URL, m.PublicID, m.ContentType, m.SizeBytes)
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	m.ID = uint64(id)
	return nil
}

// GetByID fetches a media row.
func (r *MediaRepo) GetByID(ctx context.Context, id uint64) (model.Media, error) {
	var m model.Media
	var owner sql.NullInt64
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,owner_id,url,public_id,content_type,size_bytes,created_at FROM media WHERE id=? LIMIT 1",
		id).Scan(&m.ID, &owner, &m.URL, &m.PublicID, &m.ContentType, &m.SizeBytes, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Media{}, ErrNotFound
	}
	if err != nil {
		return model.Media{}, fmt.Errorf("get media: %w", err)
	}
	m.OwnerID = nullUint(owner)
	return m, nil
}

// ListByOwner returns every media row owned by userID.
func (r *MediaRepo) ListByOwner(ctx context.Context, userID uint64) ([]model.Media, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,owner_id,url,public_id,content_type,size_bytes,created_at FROM media WHERE owner_id=? ORDER BY id",
		userID)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var out []model.Media
	for rows.Next() {
		var m model.Media
		var owner sql.NullInt64
		if err := rows.Scan(&m.ID, &owner, &m.URL, &m.PublicID, &m.ContentType, &m.SizeBytes, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		m.OwnerID = nullUint(owner)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete removes a media row. Deleting a missing row is not an error.
func (r *MediaRepo) Delete(ctx context.Context, id uint64) error {
	if _, err := r.DB.ExecContext(ctx, "DELETE FROM media WHERE id=?", id); err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	return nil
}

// DeleteByOwner removes all media rows owned by userID.
func (r *MediaRepo) DeleteByOwner(ctx context.Context, userID uint64) error {
	if _, err := r.DB.ExecContext(ctx, "DELETE FROM media WHERE owner_id=?", userID); err != nil {
		return fmt.Errorf("delete media by owner: %w", err)
	}
	return nil
}

func nullUint(v sql.NullInt64) *uint64 {
	if !v.Valid {
		return nil
	}
	u := uint64(v.Int64)
	return &u
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
