package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/krushi/krushi-api/internal/database"
	"github.com/krushi/krushi-api/internal/model"
)

const profileColumns = `p.id,p.user_id,p.qualification,p.experience,p.id_proof_id,p.status,p.availability,p.bio,p.created_at,p.updated_at,
pm.id,pm.url,pm.public_id,pm.content_type,pm.size_bytes`

const agronomistFrom = ` FROM users u
JOIN agronomist_profiles p ON p.user_id = u.id
LEFT JOIN media m ON m.id = u.profile_photo_id
LEFT JOIN media pm ON pm.id = p.id_proof_id`

// AgronomistRepo reads and writes agronomist_profiles.
type AgronomistRepo struct{ DB database.DBTX }

func NewAgronomistRepo(db database.DBTX) *AgronomistRepo { return &AgronomistRepo{DB: db} }

// Create inserts p and sets p.ID. A second profile for the same user yields
// ErrDuplicate.
func (r *AgronomistRepo) Create(ctx context.Context, p *model.AgronomistProfile) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO agronomist_profiles (user_id, qualification, experience, id_proof_id, status, availability, bio)
		 VALUES (?,?,?,?,?,?,?)`,
		p.UserID, p.Qualification, p.Experience, p.IDProofID, p.Status, p.Availability, p.Bio)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert agronomist profile: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert agronomist profile: %w", err)
	}
	p.ID = uint64(id)
	return nil
}

// GetByUserID loads the user together with the profile.
func (r *AgronomistRepo) GetByUserID(ctx context.Context, userID uint64) (model.Agronomist, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+","+profileColumns+agronomistFrom+" WHERE u.id=? LIMIT 1", userID)
	a, err := scanAgronomist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Agronomist{}, ErrNotFound
	}
	if err != nil {
		return model.Agronomist{}, fmt.Errorf("get agronomist: %w", err)
	}
	return a, nil
}

// UpdateStatus sets the verification status of the profile owned by userID.
func (r *AgronomistRepo) UpdateStatus(ctx context.Context, userID uint64, status model.AgronomistStatus) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE agronomist_profiles SET status=? WHERE user_id=?", status, userID)
	if err != nil {
		return fmt.Errorf("update agronomist status: %w", err)
	}
	return expectOne(res)
}

// UpdateProfile writes the self-editable profile fields.
func (r *AgronomistRepo) UpdateProfile(ctx context.Context, p model.AgronomistProfile) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE agronomist_profiles SET qualification=?, experience=?, availability=?, bio=? WHERE user_id=?",
		p.Qualification, p.Experience, p.Availability, p.Bio, p.UserID)
	if err != nil {
		return fmt.Errorf("update agronomist profile: %w", err)
	}
	return expectOne(res)
}

// List returns every agronomist with profile, newest first.
func (r *AgronomistRepo) List(ctx context.Context) ([]model.Agronomist, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+","+profileColumns+agronomistFrom+" ORDER BY u.created_at DESC, u.id DESC")
	if err != nil {
		return nil, fmt.Errorf("list agronomists: %w", err)
	}
	return collectAgronomists(rows)
}

// ListVerifiedInDistrict returns verified agronomists whose district equals
// district (case-insensitive, trimmed). With onlyAvailable set, agronomists
// marked unavailable are skipped.
func (r *AgronomistRepo) ListVerifiedInDistrict(ctx context.Context, district string, onlyAvailable bool) ([]model.Agronomist, error) {
	q := "SELECT " + userColumns + "," + profileColumns + agronomistFrom +
		" WHERE p.status=? AND LOWER(TRIM(u.district))=?"
	args := []any{model.AgronomistVerified, normDistrict(district)}
	if onlyAvailable {
		q += " AND p.availability=?"
		args = append(args, model.Available)
	}
	q += " ORDER BY u.full_name, u.id"

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list local agronomists: %w", err)
	}
	return collectAgronomists(rows)
}

func scanAgronomist(s rowScanner) (model.Agronomist, error) {
	var (
		u       model.User
		p       model.AgronomistProfile
		photoID sql.NullInt64
		mID     sql.NullInt64
		mURL    sql.NullString
		mPublic sql.NullString
		mType   sql.NullString
		mSize   sql.NullInt64
		proofID sql.NullInt64
		pmID    sql.NullInt64
		pmURL   sql.NullString
		pmPub   sql.NullString
		pmType  sql.NullString
		pmSize  sql.NullInt64
	)
	err := s.Scan(&u.ID, &u.FullName, &u.MobileNumber, &u.PasswordHash, &u.Role, &photoID,
		&u.Longitude, &u.Latitude, &u.District, &u.Taluka, &u.Language, &u.CreatedAt, &u.UpdatedAt,
		&mID, &mURL, &mPublic, &mType, &mSize,
		&p.ID, &p.UserID, &p.Qualification, &p.Experience, &proofID, &p.Status, &p.Availability, &p.Bio, &p.CreatedAt, &p.UpdatedAt,
		&pmID, &pmURL, &pmPub, &pmType, &pmSize)
	if err != nil {
		return model.Agronomist{}, err
	}
	u.ProfilePhotoID = nullUint(photoID)
	if mID.Valid {
		owner := u.ID
		u.ProfilePhoto = &model.Media{ID: uint64(mID.Int64), OwnerID: &owner, URL: mURL.String,
			PublicID: mPublic.String, ContentType: mType.String, SizeBytes: mSize.Int64}
	}
	p.IDProofID = nullUint(proofID)
	if pmID.Valid {
		owner := u.ID
		p.IDProof = &model.Media{ID: uint64(pmID.Int64), OwnerID: &owner, URL: pmURL.String,
			PublicID: pmPub.String, ContentType: pmType.String, SizeBytes: pmSize.Int64}
	}
	return model.Agronomist{User: u, Profile: p}, nil
}

func collectAgronomists(rows *sql.Rows) ([]model.Agronomist, error) {
	defer rows.Close()
	var out []model.Agronomist
	for rows.Next() {
		a, err := scanAgronomist(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agronomist: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
