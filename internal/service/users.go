package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/krushi/krushi-api/internal/config"
	"github.com/krushi/krushi-api/internal/logging"
	"github.com/krushi/krushi-api/internal/model"
	"github.com/krushi/krushi-api/internal/storage"
	"github.com/krushi/krushi-api/internal/utils"
)

// ProfileInput updates the shared user fields. Nil fields stay unchanged.
type ProfileInput struct {
	FullName  *string
	District  *string
	Taluka    *string
	Language  *string
	Longitude *float64
	Latitude  *float64
}

func (in ProfileInput) apply(u *model.User) error {
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return invalid("fullName cannot be empty")
		}
		u.FullName = name
	}
	if in.District != nil {
		u.District = strings.TrimSpace(*in.District)
	}
	if in.Taluka != nil {
		u.Taluka = strings.TrimSpace(*in.Taluka)
	}
	if in.Language != nil {
		u.Language = model.ParseLanguage(*in.Language)
	}
	if in.Longitude != nil || in.Latitude != nil {
		lon, lat := u.Longitude, u.Latitude
		if in.Longitude != nil {
			lon = *in.Longitude
		}
		if in.Latitude != nil {
			lat = *in.Latitude
		}
		if err := checkCoordinates(lon, lat); err != nil {
			return err
		}
		u.Longitude, u.Latitude = lon, lat
	}
	return nil
}

func checkCoordinates(lon, lat float64) error {
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return invalid("invalid coordinates: longitude must be within [-180,180] and latitude within [-90,90]")
	}
	return nil
}

// UserService manages the caller's own profile.
type UserService struct {
	store   Store
	objects storage.ObjectStore
	cfg     config.AuthConfig
	log     logging.Logger
}

func NewUserService(store Store, objects storage.ObjectStore, cfg config.AuthConfig, log logging.Logger) *UserService {
	return &UserService{store: store, objects: objects, cfg: cfg, log: log.With("component", "users")}
}

func (s *UserService) Get(ctx context.Context, id uint64) (model.User, error) {
	return s.store.Repos().Users.GetByID(ctx, id)
}

func (s *UserService) UpdateProfile(ctx context.Context, id uint64, in ProfileInput) (model.User, error) {
	users := s.store.Repos().Users
	u, err := users.GetByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if err := in.apply(&u); err != nil {
		return model.User{}, err
	}
	if err := users.UpdateProfile(ctx, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// ChangePassword replaces the password and ends all sessions of the user.
func (s *UserService) ChangePassword(ctx context.Context, id uint64, current, next string) error {
	if current == "" || next == "" {
		return invalid("currentPassword and newPassword are required")
	}
	if len(next) < 6 {
		return invalid("new password must be at least 6 characters")
	}
	u, err := s.store.Repos().Users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		return invalid("current password is incorrect")
	}
	hash, err := utils.HashPassword(next, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	return s.store.InTx(ctx, func(ctx context.Context, r Repos) error {
		if err := r.Users.UpdatePassword(ctx, id, hash); err != nil {
			return err
		}
		_, err := r.Sessions.DeleteByUser(ctx, id)
		return err
	})
}

// UploadPhoto replaces the profile photo. The old object is removed after
// the new one is linked.
func (s *UserService) UploadPhoto(ctx context.Context, id uint64, up Upload) (model.Media, error) {
	if err := up.check(imageTypes, MaxImageBytes, "photo"); err != nil {
		return model.Media{}, err
	}
	u, err := s.store.Repos().Users.GetByID(ctx, id)
	if err != nil {
		return model.Media{}, err
	}
	media, obj, err := storeMedia(ctx, s.objects, &u.ID, "profile-photos", up)
	if err != nil {
		return model.Media{}, err
	}
	err = s.store.InTx(ctx, func(ctx context.Context, r Repos) error {
		if err := r.Media.Create(ctx, &media); err != nil {
			return err
		}
		if err := r.Users.SetProfilePhoto(ctx, u.ID, &media.ID); err != nil {
			return err
		}
		if u.ProfilePhotoID != nil {
			return r.Media.Delete(ctx, *u.ProfilePhotoID)
		}
		return nil
	})
	if err != nil {
		discard(ctx, s.objects, s.log, obj.Key)
		return model.Media{}, fmt.Errorf("save profile photo: %w", err)
	}
	if u.ProfilePhoto != nil {
		discard(ctx, s.objects, s.log, u.ProfilePhoto.PublicID)
	}
	return media, nil
}

func (s *UserService) DeletePhoto(ctx context.Context, id uint64) error {
	u, err := s.store.Repos().Users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.ProfilePhotoID == nil {
		return invalid("no profile photo to delete")
	}
	err = s.store.InTx(ctx, func(ctx context.Context, r Repos) error {
		if err := r.Users.SetProfilePhoto(ctx, u.ID, nil); err != nil {
			return err
		}
		return r.Media.Delete(ctx, *u.ProfilePhotoID)
	})
	if err != nil {
		return err
	}
	if u.ProfilePhoto != nil {
		discard(ctx, s.objects, s.log, u.ProfilePhoto.PublicID)
	}
	return nil
}

// MediaService stores arbitrary user uploads.
type MediaService struct {
	store   Store
	objects storage.ObjectStore
	log     logging.Logger
}

func NewMediaService(store Store, objects storage.ObjectStore, log logging.Logger) *MediaService {
	return &MediaService{store: store, objects: objects, log: log.With("component", "media")}
}

func (s *MediaService) Upload(ctx context.Context, ownerID uint64, folder string, up Upload) (model.Media, error) {
	if err := up.check(nil, MaxImageBytes, "file"); err != nil {
		return model.Media{}, err
	}
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		folder = "uploads"
	}
	if strings.Contains(folder, "..") {
		return model.Media{}, invalid("invalid folder")
	}
	media, obj, err := storeMedia(ctx, s.objects, &ownerID, folder, up)
	if err != nil {
		return model.Media{}, err
	}
	if err := s.store.Repos().Media.Create(ctx, &media); err != nil {
		discard(ctx, s.objects, s.log, obj.Key)
		return model.Media{}, err
	}
	return media, nil
}
