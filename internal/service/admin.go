package service

import (
	"context"
	"errors"

	"github.com/krushi/krushi-api/internal/logging"
	"github.com/krushi/krushi-api/internal/model"
	"github.com/krushi/krushi-api/internal/repository"
	"github.com/krushi/krushi-api/internal/storage"
)

// AdminService lists and removes accounts.
type AdminService struct {
	store   Store
	objects storage.ObjectStore
	log     logging.Logger
}

func NewAdminService(store Store, objects storage.ObjectStore, log logging.Logger) *AdminService {
	return &AdminService{store: store, objects: objects, log: log.With("component", "admin")}
}

func (s *AdminService) Farmers(ctx context.Context) ([]model.User, error) {
	return s.store.Repos().Users.ListByRole(ctx, model.RoleFarmer)
}

func (s *AdminService) Agronomists(ctx context.Context) ([]model.Agronomist, error) {
	return s.store.Repos().Agronomists.List(ctx)
}

func (s *AdminService) User(ctx context.Context, id uint64) (model.User, error) {
	return s.store.Repos().Users.GetByID(ctx, id)
}

func (s *AdminService) DeleteFarmer(ctx context.Context, id uint64) error {
	return s.deleteAccount(ctx, id, model.RoleFarmer)
}

func (s *AdminService) DeleteAgronomist(ctx context.Context, id uint64) error {
	return s.deleteAccount(ctx, id, model.RoleAgronomist)
}

// deleteAccount removes the user, its media rows and sessions in one
// transaction; profile, crops and reports go with the user row. Stored
// objects are deleted once the rows are gone.
func (s *AdminService) deleteAccount(ctx context.Context, id uint64, role model.Role) error {
	r := s.store.Repos()
	u, err := r.Users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.Role != role {
		return repository.ErrNotFound
	}

	owned, err := r.Media.ListByOwner(ctx, id)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	var keys []string
	add := func(k string) {
		if k != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, m := range owned {
		add(m.PublicID)
	}
	if u.ProfilePhoto != nil {
		add(u.ProfilePhoto.PublicID)
	}
	var orphanPhoto *uint64
	if u.ProfilePhoto != nil && (u.ProfilePhoto.OwnerID == nil || *u.ProfilePhoto.OwnerID != id) {
		orphanPhoto = &u.ProfilePhoto.ID
	}
	if role == model.RoleFarmer {
		reportKeys, err := r.Reports.ImageKeysByFarmer(ctx, id)
		if err != nil {
			return err
		}
		for _, k := range reportKeys {
			add(k)
		}
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Repos) error {
		if err := tx.Media.DeleteByOwner(ctx, id); err != nil {
			return err
		}
		if orphanPhoto != nil {
			if err := tx.Media.Delete(ctx, *orphanPhoto); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}
		if _, err := tx.Sessions.DeleteByUser(ctx, id); err != nil {
			return err
		}
		return tx.Users.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	discard(ctx, s.objects, s.log, keys...)
	s.log.Info(ctx, "account deleted", "user_id", id, "role", role, "objects", len(keys))
	return nil
}
