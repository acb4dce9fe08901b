package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/krushi/krushi-api/internal/database"
	"github.com/krushi/krushi-api/internal/model"
	"github.com/krushi/krushi-api/internal/repository"
)

// The store interfaces below are satisfied by the repository package and by
// in-memory fakes in tests.

type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByMobile(ctx context.Context, mobile string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	ListByRole(ctx context.Context, role model.Role) ([]model.User, error)
	ListByRoleInDistrict(ctx context.Context, role model.Role, district string) ([]model.User, error)
	UpdateProfile(ctx context.Context, u model.User) error
	UpdatePassword(ctx context.Context, id uint64, hash string) error
	SetProfilePhoto(ctx context.Context, id uint64, mediaID *uint64) error
	Delete(ctx context.Context, id uint64) error
}

type AgronomistStore interface {
	Create(ctx context.Context, p *model.AgronomistProfile) error
	GetByUserID(ctx context.Context, userID uint64) (model.Agronomist, error)
	UpdateStatus(ctx context.Context, userID uint64, status model.AgronomistStatus) error
	UpdateProfile(ctx context.Context, p model.AgronomistProfile) error
	List(ctx context.Context) ([]model.Agronomist, error)
	ListVerifiedInDistrict(ctx context.Context, district string, onlyAvailable bool) ([]model.Agronomist, error)
}

type SessionStore interface {
	Create(ctx context.Context, s *model.AuthSession) error
	ListActive(ctx context.Context, userID uint64) ([]model.AuthSession, error)
	Touch(ctx context.Context, id uint64, hash string) error
	Rotate(ctx context.Context, id uint64, oldHash, newHash string, exp time.Time) error
	DeleteByUser(ctx context.Context, userID uint64) (int64, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type MediaStore interface {
	Create(ctx context.Context, m *model.Media) error
	GetByID(ctx context.Context, id uint64) (model.Media, error)
	ListByOwner(ctx context.Context, userID uint64) ([]model.Media, error)
	Delete(ctx context.Context, id uint64) error
	DeleteByOwner(ctx context.Context, userID uint64) error
}

type CropStore interface {
	Create(ctx context.Context, c *model.Crop) error
	GetOwned(ctx context.Context, id, farmerID uint64) (model.Crop, error)
	ListByFarmer(ctx context.Context, farmerID uint64) ([]model.Crop, error)
	Delete(ctx context.Context, id, farmerID uint64) error
}

type LocationStore interface {
	Create(ctx context.Context, l *model.Location) error
	List(ctx context.Context) ([]model.Location, error)
}

type ReportStore interface {
	Create(ctx context.Context, rep *model.DiseaseReport) error
	AttachImages(ctx context.Context, reportID uint64, mediaIDs []uint64) error
	GetByID(ctx context.Context, id uint64) (model.DiseaseReport, error)
	ListByFarmer(ctx context.Context, farmerID uint64) ([]model.DiseaseReport, error)
	ImageMedia(ctx context.Context, reportID uint64) ([]model.Media, error)
	ImageKeysByFarmer(ctx context.Context, farmerID uint64) ([]string, error)
	MarkTreated(ctx context.Context, id, farmerID uint64, notes *string) error
	Delete(ctx context.Context, id, farmerID uint64) error
	AssignAgronomist(ctx context.Context, reportID, agronomistID uint64) (bool, error)
}

// Repos bundles one set of stores sharing a connection or transaction.
type Repos struct {
	Users       UserStore
	Agronomists AgronomistStore
	Sessions    SessionStore
	Media       MediaStore
	Crops       CropStore
	Locations   LocationStore
	Reports     ReportStore
}

// Store hands out repositories and runs work atomically.
type Store interface {
	Repos() Repos
	InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}

// SQLStore is the MySQL backed Store.
type SQLStore struct {
	db    *sql.DB
	repos Repos
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, repos: reposOn(db)}
}

func (s *SQLStore) Repos() Repos { return s.repos }

// InTx runs fn with repositories bound to a single transaction.
func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	return database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx database.DBTX) error {
		return fn(ctx, reposOn(tx))
	})
}

func reposOn(db database.DBTX) Repos {
	return Repos{
		Users:       repository.NewUserRepo(db),
		Agronomists: repository.NewAgronomistRepo(db),
		Sessions:    repository.NewSessionRepo(db),
		Media:       repository.NewMediaRepo(db),
		Crops:       repository.NewCropRepo(db),
		Locations:   repository.NewLocationRepo(db),
		Reports:     repository.NewReportRepo(db),
	}
}
