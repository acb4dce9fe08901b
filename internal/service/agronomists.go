package service

import (
	"context"
	"strings"

	"github.com/krushi/krushi-api/internal/logging"
	"github.com/krushi/krushi-api/internal/model"
)

// AgronomistInput updates an agronomist's own profile. Nil fields stay
// unchanged.
type AgronomistInput struct {
	ProfileInput
	Qualification *string
	Experience    *int
	Availability  *string
	Bio           *string
}

// AgronomistService covers agronomist profiles, verification and
// district matching.
type AgronomistService struct {
	store Store
	log   logging.Logger
}

func NewAgronomistService(store Store, log logging.Logger) *AgronomistService {
	return &AgronomistService{store: store, log: log.With("component", "agronomists")}
}

func (s *AgronomistService) Get(ctx context.Context, userID uint64) (model.Agronomist, error) {
	return s.store.Repos().Agronomists.GetByUserID(ctx, userID)
}

func (s *AgronomistService) UpdateProfile(ctx context.Context, userID uint64, in AgronomistInput) (model.Agronomist, error) {
	a, err := s.store.Repos().Agronomists.GetByUserID(ctx, userID)
	if err != nil {
		return model.Agronomist{}, err
	}
	if err := in.apply(&a.User); err != nil {
		return model.Agronomist{}, err
	}
	p := &a.Profile
	if in.Qualification != nil {
		p.Qualification = strings.TrimSpace(*in.Qualification)
	}
	if in.Experience != nil {
		if *in.Experience < 0 {
			return model.Agronomist{}, invalid("experience cannot be negative")
		}
		p.Experience = *in.Experience
	}
	if in.Availability != nil {
		av := model.Availability(strings.ToLower(strings.TrimSpace(*in.Availability)))
		if av != model.Available && av != model.Unavailable {
			return model.Agronomist{}, invalid("availability must be available or unavailable")
		}
		p.Availability = av
	}
	if in.Bio != nil {
		bio := strings.TrimSpace(*in.Bio)
		if len([]rune(bio)) > 500 {
			return model.Agronomist{}, invalid("bio cannot exceed 500 characters")
		}
		p.Bio = bio
	}
	err = s.store.InTx(ctx, func(ctx context.Context, r Repos) error {
		if err := r.Users.UpdateProfile(ctx, a.User); err != nil {
			return err
		}
		return r.Agronomists.UpdateProfile(ctx, *p)
	})
	if err != nil {
		return model.Agronomist{}, err
	}
	return a, nil
}

// Verify sets the verification outcome of an agronomist application.
func (s *AgronomistService) Verify(ctx context.Context, userID uint64, status string) error {
	st := model.AgronomistStatus(strings.ToLower(strings.TrimSpace(status)))
	if st != model.AgronomistVerified && st != model.AgronomistRejected {
		return invalid("status must be verified or rejected")
	}
	if err := s.store.Repos().Agronomists.UpdateStatus(ctx, userID, st); err != nil {
		return err
	}
	s.log.Info(ctx, "agronomist status changed", "user_id", userID, "status", st)
	return nil
}

// Local lists verified agronomists sharing the farmer's district.
func (s *AgronomistService) Local(ctx context.Context, farmer model.User) ([]model.Agronomist, error) {
	if strings.TrimSpace(farmer.District) == "" {
		return []model.Agronomist{}, nil
	}
	return s.store.Repos().Agronomists.ListVerifiedInDistrict(ctx, farmer.District, false)
}

// Farmers lists farmers sharing the agronomist's district.
func (s *AgronomistService) Farmers(ctx context.Context, agronomist model.User) ([]model.User, error) {
	if strings.TrimSpace(agronomist.District) == "" {
		return []model.User{}, nil
	}
	return s.store.Repos().Users.ListByRoleInDistrict(ctx, model.RoleFarmer, agronomist.District)
}

// AssignReport gives an unassigned report to the first available, verified
// agronomist in the farmer's district. It returns nil when nobody matched
// or the report already had an agronomist.
func (s *AgronomistService) AssignReport(ctx context.Context, reportID, farmerID uint64) (*model.Agronomist, error) {
	r := s.store.Repos()
	farmer, err := r.Users.GetByID(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(farmer.District) == "" {
		return nil, nil
	}
	candidates, err := r.Agronomists.ListVerifiedInDistrict(ctx, farmer.District, true)
	if err != nil || len(candidates) == 0 {
		return nil, err
	}
	pick := candidates[0]
	ok, err := r.Reports.AssignAgronomist(ctx, reportID, pick.ID)
	if err != nil || !ok {
		return nil, err
	}
	return &pick, nil
}
