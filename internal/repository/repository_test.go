package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krushi/krushi-api/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

var userCols = []string{
	"id", "full_name", "mobile_number", "password_hash", "role", "profile_photo_id",
	"longitude", "latitude", "district", "taluka", "language", "created_at", "updated_at",
	"m.id", "m.url", "m.public_id", "m.content_type", "m.size_bytes",
}

func TestUserRepo_CreateDuplicateMobile(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '9876543210'"})

	err := repo.Create(context.Background(), &model.User{FullName: "Asha", MobileNumber: "9876543210", Role: model.RoleFarmer})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUserRepo_CreateSetsID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("Asha", "9876543210", "$2a$hash", "farmer", nil, 73.8, 18.5, "Pune", "Haveli", "en").
		WillReturnResult(sqlmock.NewResult(11, 1))

	u := &model.User{FullName: "Asha", MobileNumber: "9876543210", PasswordHash: "$2a$hash", Role: model.RoleFarmer,
		Longitude: 73.8, Latitude: 18.5, District: "Pune", Taluka: "Haveli", Language: model.LangEnglish}
	require.NoError(t, repo.Create(context.Background(), u))
	assert.Equal(t, uint64(11), u.ID)
}

func TestUserRepo_GetByIDWithPhoto(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(userCols).AddRow(
		int64(5), "Asha", "9876543210", "$2a$hash", "farmer", int64(9),
		73.8, 18.5, "Pune", "Haveli", "mr", now, now,
		int64(9), "https://cdn.example/p.jpg", "profiles/p.jpg", "image/jpeg", int64(1200))
	mock.ExpectQuery(`(?s)SELECT .+ FROM users u LEFT JOIN media m ON m.id = u.profile_photo_id WHERE u.id=\?`).
		WithArgs(uint64(5)).WillReturnRows(rows)

	u, err := repo.GetByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, model.RoleFarmer, u.Role)
	assert.Equal(t, model.LangMarathi, u.Language)
	require.NotNil(t, u.ProfilePhoto)
	assert.Equal(t, "profiles/p.jpg", u.ProfilePhoto.PublicID)
	require.NotNil(t, u.ProfilePhotoID)
	assert.Equal(t, uint64(9), *u.ProfilePhotoID)
}

func TestUserRepo_GetByMobileNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(`WHERE u.mobile_number=\?`).WithArgs("9000000000").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByMobile(context.Background(), " 9000000000 ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepo_ListByRoleInDistrictNormalises(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE u.role=? AND LOWER(TRIM(u.district))=?")).
		WithArgs("farmer", "pune").
		WillReturnRows(sqlmock.NewRows(userCols))

	out, err := repo.ListByRoleInDistrict(context.Background(), model.RoleFarmer, "  PUNE ")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestUserRepo_DeleteMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec(`DELETE FROM users WHERE id=\?`).WithArgs(uint64(3)).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), 3), ErrNotFound)
}

func TestSessionRepo_CreateAndList(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)
	now := time.Now().UTC()
	exp := now.Add(30 * 24 * time.Hour)

	mock.ExpectExec(`INSERT INTO auth_sessions`).
		WithArgs(uint64(1), "hash-a", "curl/8", "10.0.0.1", now, exp).
		WillReturnResult(sqlmock.NewResult(21, 1))

	s := &model.AuthSession{UserID: 1, RefreshTokenHash: "hash-a", DeviceInfo: "curl/8", IPAddress: "10.0.0.1", LastUsedAt: now, ExpiresAt: exp}
	require.NoError(t, repo.Create(context.Background(), s))
	assert.Equal(t, uint64(21), s.ID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM auth_sessions WHERE user_id=? AND expires_at > UTC_TIMESTAMP()")).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "refresh_token_hash", "device_info", "ip_address", "last_used_at", "expires_at", "created_at"}).
			AddRow(int64(21), int64(1), "hash-a", "curl/8", "10.0.0.1", now, exp, now))

	list, err := repo.ListActive(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "hash-a", list[0].RefreshTokenHash)
}

func TestSessionRepo_TouchAfterLogout(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectExec(`UPDATE auth_sessions SET last_used_at`).
		WithArgs(uint64(21), "hash-a").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Touch(context.Background(), 21, "hash-a"), ErrNotFound)
}

func TestSessionRepo_DeleteByUserAndPurge(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectExec(`DELETE FROM auth_sessions WHERE user_id=\?`).WithArgs(uint64(4)).WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := repo.DeleteByUser(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM auth_sessions WHERE expires_at <= UTC_TIMESTAMP()")).WillReturnResult(sqlmock.NewResult(0, 2))
	n, err = repo.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCropRepo_AreaRoundTrip(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCropRepo(db)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO crops`).
		WithArgs(uint64(5), "Tomato", "Roma", nil, 2.5, "acres").
		WillReturnResult(sqlmock.NewResult(8, 1))
	c := &model.Crop{FarmerID: 5, CropName: "Tomato", CropVariety: "Roma", Area: model.Area{Value: 2.5, Unit: model.UnitAcres}}
	require.NoError(t, repo.Create(context.Background(), c))

	mock.ExpectQuery(`FROM crops WHERE id=\? AND farmer_id=\?`).
		WithArgs(uint64(8), uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "farmer_id", "crop_name", "crop_variety", "planting_date", "area_value", "area_unit", "created_at"}).
			AddRow(int64(8), int64(5), "Tomato", "Roma", nil, 2.5, "acres", now))

	got, err := repo.GetOwned(context.Background(), 8, 5)
	require.NoError(t, err)
	assert.Equal(t, model.Area{Value: 2.5, Unit: model.UnitAcres}, got.Area)
	assert.Nil(t, got.PlantingDate)
}

func TestCropRepo_DeleteOtherFarmer(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCropRepo(db)

	mock.ExpectExec(`DELETE FROM crops WHERE id=\? AND farmer_id=\?`).
		WithArgs(uint64(8), uint64(6)).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), 8, 6), ErrNotFound)
}

func TestLocationRepo_Duplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLocationRepo(db)

	mock.ExpectExec(`INSERT INTO locations`).WillReturnError(&mysql.MySQLError{Number: 1062})

	err := repo.Create(context.Background(), &model.Location{District: "Pune", Taluka: "Haveli", Longitude: 73.8, Latitude: 18.5})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestReportRepo_MarkTreatedTwice(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReportRepo(db)

	q := regexp.QuoteMeta("UPDATE disease_reports SET status=?, farmer_notes=COALESCE(?, farmer_notes) WHERE id=? AND farmer_id=?")
	mock.ExpectExec(q).WithArgs("treated", nil, uint64(3), uint64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("treated", nil, uint64(3), uint64(5)).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkTreated(context.Background(), 3, 5, nil))
	require.NoError(t, repo.MarkTreated(context.Background(), 3, 5, nil))
}

func TestReportRepo_AttachImages(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReportRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO disease_report_images (report_id, media_id, position) VALUES (?,?,?),(?,?,?)")).
		WithArgs(uint64(3), uint64(10), 0, uint64(3), uint64(11), 1).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.AttachImages(context.Background(), 3, []uint64{10, 11}))
	require.NoError(t, repo.AttachImages(context.Background(), 3, nil))
}

func TestReportRepo_ListByFarmerWithImages(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReportRepo(db)
	now := time.Now().UTC()

	cols := []string{"id", "farmer_id", "crop_id", "crop_name", "image_url", "image_key", "prediction", "confidence",
		"detected_disease", "diagnosis", "recommendation", "status", "farmer_notes", "report_language", "agronomist_id", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM disease_reports WHERE farmer_id=\? ORDER BY created_at DESC`).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(2), int64(5), int64(8), nil, nil, nil, nil, nil, "Early blight", "Spots", "Spray", "pending_action", "", "mr", nil, now, now).
			AddRow(int64(1), int64(5), nil, "tomato", "https://cdn/x.jpg", "reports/x.jpg", "Late blight", 87.0, nil, nil, nil, "treated", "ok", "en", int64(9), now, now))

	mock.ExpectQuery(`FROM disease_report_images ri`).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"report_id", "id", "owner_id", "url", "public_id", "content_type", "size_bytes", "created_at"}).
			AddRow(int64(2), int64(10), int64(5), "https://cdn/a.jpg", "reports/a.jpg", "image/jpeg", int64(10), now).
			AddRow(int64(2), int64(11), int64(5), "https://cdn/b.jpg", "reports/b.jpg", "image/png", int64(20), now))

	out, err := repo.ListByFarmer(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Len(t, out[0].Images, 2)
	assert.Equal(t, model.ReportMarathi, out[0].Language)
	require.NotNil(t, out[1].Confidence)
	assert.Equal(t, 87.0, *out[1].Confidence)
	assert.Equal(t, model.ReportTreated, out[1].Status)
	assert.Empty(t, out[1].Images)
}

func TestReportRepo_AssignAgronomistOnce(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReportRepo(db)

	q := regexp.QuoteMeta("UPDATE disease_reports SET agronomist_id=? WHERE id=? AND agronomist_id IS NULL")
	mock.ExpectExec(q).WithArgs(uint64(9), uint64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(uint64(9), uint64(3)).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.AssignAgronomist(context.Background(), 3, 9)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.AssignAgronomist(context.Background(), 3, 9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAgronomistRepo_UpdateStatusMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAgronomistRepo(db)

	mock.ExpectExec(`UPDATE agronomist_profiles SET status=\? WHERE user_id=\?`).
		WithArgs("verified", uint64(77)).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.UpdateStatus(context.Background(), 77, model.AgronomistVerified), ErrNotFound)
}

func TestAgronomistRepo_ListVerifiedAvailable(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAgronomistRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.status=? AND LOWER(TRIM(u.district))=? AND p.availability=?")).
		WithArgs("verified", "nashik", "available").
		WillReturnRows(sqlmock.NewRows(append(append([]string{}, userCols...),
			"p.id", "p.user_id", "qualification", "experience", "id_proof_id", "status", "availability", "bio", "p.created_at", "p.updated_at",
			"pm.id", "pm.url", "pm.public_id", "pm.content_type", "pm.size_bytes")))

	out, err := repo.ListVerifiedInDistrict(context.Background(), " Nashik", true)
	require.NoError(t, err)
	assert.Empty(t, out)
}
