package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/krushi/krushi-api/internal/database"
	"github.com/krushi/krushi-api/internal/model"
)

const userColumns = `u.id,u.full_name,u.mobile_number,u.password_hash,u.role,u.profile_photo_id,
u.longitude,u.latitude,u.district,u.taluka,u.language,u.created_at,u.updated_at,
m.id,m.url,m.public_id,m.content_type,m.size_bytes`

const userFrom = ` FROM users u LEFT JOIN media m ON m.id = u.profile_photo_id`

// UserRepo reads and writes the users table. PasswordHash must already be
// hashed by the caller.
type UserRepo struct{ DB database.DBTX }

func NewUserRepo(db database.DBTX) *UserRepo { return &UserRepo{DB: db} }

// Create inserts u and sets u.ID. A taken mobile number yields ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (full_name, mobile_number, password_hash, role, profile_photo_id, longitude, latitude, district, taluka, language)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		u.FullName, u.MobileNumber, u.PasswordHash, u.Role, u.ProfilePhotoID,
		u.Longitude, u.Latitude, u.District, u.Taluka, u.Language)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = uint64(id)
	return nil
}

// GetByMobile fetches a user by mobile number.
func (r *UserRepo) GetByMobile(ctx context.Context, mobile string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+userFrom+" WHERE u.mobile_number=? LIMIT 1",
		strings.TrimSpace(mobile))
	return scanUserRow(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+userColumns+userFrom+" WHERE u.id=? LIMIT 1", id)
	return scanUserRow(row)
}

// ListByRole returns users of the given role, newest first.
func (r *UserRepo) ListByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+userFrom+" WHERE u.role=? ORDER BY u.created_at DESC, u.id DESC", role)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return collectUsers(rows)
}

// ListByRoleInDistrict returns users of role whose district equals district,
// compared case-insensitively after trimming.
func (r *UserRepo) ListByRoleInDistrict(ctx context.Context, role model.Role, district string) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+userFrom+" WHERE u.role=? AND LOWER(TRIM(u.district))=? ORDER BY u.full_name",
		role, normDistrict(district))
	if err != nil {
		return nil, fmt.Errorf("list users by district: %w", err)
	}
	return collectUsers(rows)
}

// UpdateProfile writes the self-editable fields of u.
func (r *UserRepo) UpdateProfile(ctx context.Context, u model.User) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET full_name=?, longitude=?, latitude=?, district=?, taluka=?, language=? WHERE id=?",
		u.FullName, u.Longitude, u.Latitude, u.District, u.Taluka, u.Language, u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return expectOne(res)
}

// UpdatePassword stores a new, already hashed, password.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE id=?", hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectOne(res)
}

// SetProfilePhoto links (or, with nil, unlinks) the profile photo.
func (r *UserRepo) SetProfilePhoto(ctx context.Context, id uint64, mediaID *uint64) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET profile_photo_id=? WHERE id=?", mediaID, id)
	if err != nil {
		return fmt.Errorf("set profile photo: %w", err)
	}
	return expectOne(res)
}

// Delete removes the user. Sessions, crops, reports and the agronomist
// profile go with it through foreign key cascades.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectOne(res)
}

func scanUserRow(row rowScanner) (model.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func scanUser(s rowScanner) (model.User, error) {
	var (
		u       model.User
		photoID sql.NullInt64
		mID     sql.NullInt64
		mURL    sql.NullString
		mPublic sql.NullString
		mType   sql.NullString
		mSize   sql.NullInt64
	)
	err := s.Scan(&u.ID, &u.FullName, &u.MobileNumber, &u.PasswordHash, &u.Role, &photoID,
		&u.Longitude, &u.Latitude, &u.District, &u.Taluka, &u.Language, &u.CreatedAt, &u.UpdatedAt,
		&mID, &mURL, &mPublic, &mType, &mSize)
	if err != nil {
		return model.User{}, err
	}
	u.ProfilePhotoID = nullUint(photoID)
	if mID.Valid {
		owner := u.ID
		u.ProfilePhoto = &model.Media{
			ID:          uint64(mID.Int64),
			OwnerID:     &owner,
			URL:         mURL.String,
			PublicID:    mPublic.String,
			ContentType: mType.String,
			SizeBytes:   mSize.Int64,
		}
	}
	return u, nil
}

func collectUsers(rows *sql.Rows) ([]model.User, error) {
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// expectOne maps zero affected rows to ErrNotFound.
func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func normDistrict(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
