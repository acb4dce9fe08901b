package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/krushi/krushi-api/internal/model"
	"github.com/krushi/krushi-api/internal/repository"
)

// CropInput describes a new crop.
type CropInput struct {
	CropName     string
	CropVariety  string
	PlantingDate string // YYYY-MM-DD, optional
	AreaValue    float64
	AreaUnit     string
}

// CropService manages a farmer's crops.
type CropService struct{ store Store }

func NewCropService(store Store) *CropService { return &CropService{store: store} }

func (s *CropService) Create(ctx context.Context, farmerID uint64, in CropInput) (model.Crop, error) {
	c := model.Crop{
		FarmerID:    farmerID,
		CropName:    strings.TrimSpace(in.CropName),
		CropVariety: strings.TrimSpace(in.CropVariety),
		Area:        model.Area{Value: in.AreaValue, Unit: model.AreaUnit(strings.ToLower(strings.TrimSpace(in.AreaUnit)))},
	}
	if c.CropName == "" {
		return model.Crop{}, invalid("cropName is required")
	}
	if c.Area.Unit == "" {
		c.Area.Unit = model.UnitAcres
	}
	if !c.Area.Unit.Valid() {
		return model.Crop{}, invalid("area unit must be one of acres, hectares, guntha")
	}
	if c.Area.Value < 0 {
		return model.Crop{}, invalid("area value cannot be negative")
	}
	if d := strings.TrimSpace(in.PlantingDate); d != "" {
		t, err := time.Parse(time.DateOnly, d)
		if err != nil {
			return model.Crop{}, invalid("plantingDate must be YYYY-MM-DD")
		}
		c.PlantingDate = &t
	}
	if err := s.store.Repos().Crops.Create(ctx, &c); err != nil {
		return model.Crop{}, err
	}
	return c, nil
}

func (s *CropService) List(ctx context.Context, farmerID uint64) ([]model.Crop, error) {
	return s.store.Repos().Crops.ListByFarmer(ctx, farmerID)
}

func (s *CropService) Delete(ctx context.Context, farmerID, id uint64) error {
	return s.store.Repos().Crops.Delete(ctx, id, farmerID)
}

// LocationInput is an admin supplied district/taluka point.
type LocationInput struct {
	District    string
	Taluka      string
	Coordinates []float64 // [longitude, latitude]
}

// LocationService manages the admin location catalogue.
type LocationService struct{ store Store }

func NewLocationService(store Store) *LocationService { return &LocationService{store: store} }

func (s *LocationService) Create(ctx context.Context, adminID uint64, in LocationInput) (model.Location, error) {
	l := model.Location{District: strings.TrimSpace(in.District), Taluka: strings.TrimSpace(in.Taluka), CreatedBy: &adminID}
	if l.District == "" || l.Taluka == "" {
		return model.Location{}, invalid("district and taluka are required")
	}
	if len(in.Coordinates) != 2 {
		return model.Location{}, invalid("geo.coordinates must be [longitude, latitude]")
	}
	l.Longitude, l.Latitude = in.Coordinates[0], in.Coordinates[1]
	if err := checkCoordinates(l.Longitude, l.Latitude); err != nil {
		return model.Location{}, err
	}
	if err := s.store.Repos().Locations.Create(ctx, &l); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Location{}, invalid("location %s/%s already exists", l.District, l.Taluka)
		}
		return model.Location{}, err
	}
	return l, nil
}

func (s *LocationService) List(ctx context.Context) ([]model.Location, error) {
	return s.store.Repos().Locations.List(ctx)
}
