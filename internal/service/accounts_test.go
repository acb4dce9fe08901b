package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krushi/krushi-api/internal/config"
	"github.com/krushi/krushi-api/internal/logging"
	"github.com/krushi/krushi-api/internal/model"
	"github.com/krushi/krushi-api/internal/repository"
	"github.com/krushi/krushi-api/internal/service"
	"github.com/krushi/krushi-api/internal/utils"
)

func ptr[T any](v T) *T { return &v }

func TestCrop_AreaRoundTrip(t *testing.T) {
	env := newAuthEnv(t, false)
	ctx := context.Background()
	crops := service.NewCropService(env.store)

	c, err := crops.Create(ctx, 3, service.CropInput{CropName: "Wheat", PlantingDate: "2026-06-15", AreaValue: 2.5, AreaUnit: "acres"})
	require.NoError(t, err)

	list, err := crops.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.Area{Value: 2.5, Unit: model.UnitAcres}, list[0].Area)
	assert.Equal(t, "2026-06-15", list[0].PlantingDate.Format("2006-01-02"))

	var ve *service.ValidationError
	_, err = crops.Create(ctx, 3, service.CropInput{CropName: "Rice", AreaUnit: "bigha"})
	assert.ErrorAs(t, err, &ve)
	_, err = crops.Create(ctx, 3, service.CropInput{CropName: "Rice", PlantingDate: "15/06/2026"})
	assert.ErrorAs(t, err, &ve)

	assert.ErrorIs(t, crops.Delete(ctx, 4, c.ID), repository.ErrNotFound)
	assert.NoError(t, crops.Delete(ctx, 3, c.ID))
}

func TestLocation_CreateValidatesAndRejectsDuplicates(t *testing.T) {
	env := newAuthEnv(t, false)
	ctx := context.Background()
	locs := service.NewLocationService(env.store)

	_, err := locs.Create(ctx, 1, service.LocationInput{District: "Pune", Taluka: "Haveli", Coordinates: []float64{73.9, 18.5}})
	require.NoError(t, err)

	var ve *service.ValidationError
	_, err = locs.Create(ctx, 1, service.LocationInput{District: "Pune", Taluka: "Haveli", Coordinates: []float64{73.9, 18.5}})
	assert.ErrorAs(t, err, &ve)
	_, err = locs.Create(ctx, 1, service.LocationInput{District: "Pune", Taluka: "Mulshi", Coordinates: []float64{200, 18.5}})
	assert.ErrorAs(t, err, &ve)
	_, err = locs.Create(ctx, 1, service.LocationInput{District: "Pune", Taluka: "Mulshi", Coordinates: []float64{73.5}})
	assert.ErrorAs(t, err, &ve)

	list, err := locs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestChangePassword_RevokesSessions(t *testing.T) {
	env := newAuthEnv(t, false)
	ctx := context.Background()
	users := service.NewUserService(env.store, env.objects, config.AuthConfig{BcryptCost: 4}, logging.Nop())
	u, err := env.auth.Register(ctx, farmerInput())
	require.NoError(t, err)
	_, err = env.auth.Login(ctx, u.MobileNumber, "s3cret-pass", service.SessionMeta{})
	require.NoError(t, err)

	var ve *service.ValidationError
	assert.ErrorAs(t, users.ChangePassword(ctx, u.ID, "nope", "new-pass-1"), &ve)
	require.NoError(t, users.ChangePassword(ctx, u.ID, "s3cret-pass", "new-pass-1"))
	assert.Zero(t, env.store.SessionCount())

	raw, _ := env.store.RawUser(u.ID)
	assert.NotEqual(t, "new-pass-1", raw.PasswordHash)
	assert.True(t, utils.VerifyPassword(raw.PasswordHash, "new-pass-1"))
}

func TestProfilePhoto_ReplaceAndDelete(t *testing.T) {
	env := newAuthEnv(t, false)
	ctx := context.Background()
	users := service.NewUserService(env.store, env.objects, config.AuthConfig{}, logging.Nop())
	u, err := env.auth.Register(ctx, farmerInput())
	require.NoError(t, err)

	var ve *service.ValidationError
	assert.ErrorAs(t, users.DeletePhoto(ctx, u.ID), &ve)

	first, err := users.UploadPhoto(ctx, u.ID, png("a.png"))
	require.NoError(t, err)
	second, err := users.UploadPhoto(ctx, u.ID, png("b.png"))
	require.NoError(t, err)
	assert.False(t, env.objects.Has(first.PublicID))
	assert.True(t, env.objects.Has(second.PublicID))
	assert.Equal(t, 1, env.store.MediaCount())

	got, err := users.Get(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ProfilePhoto)
	assert.Equal(t, second.URL, got.ProfilePhoto.URL)

	require.NoError(t, users.DeletePhoto(ctx, u.ID))
	assert.Zero(t, env.objects.Len())
	assert.Zero(t, env.store.MediaCount())
}

func TestUpdateProfile(t *testing.T) {
	env := newAuthEnv(t, false)
	ctx := context.Background()
	users := service.NewUserService(env.store, env.objects, config.AuthConfig{}, logging.Nop())
	u, err := env.auth.Register(ctx, farmerInput())
	require.NoError(t, err)

	got, err := users.UpdateProfile(ctx, u.ID, service.ProfileInput{Language: ptr("mr"), Latitude: ptr(18.5), Longitude: ptr(73.8)})
	require.NoError(t, err)
	assert.Equal(t, model.LangMarathi, got.Language)
	assert.True(t, got.HasLocation())
	assert.Equal(t, "Sunita Patil", got.FullName)

	var ve *service.ValidationError
	_, err = users.UpdateProfile(ctx, u.ID, service.ProfileInput{Latitude: ptr(95.0)})
	assert.ErrorAs(t, err, &ve)
	_, err = users.UpdateProfile(ctx, u.ID, service.ProfileInput{FullName: ptr("  ")})
	assert.ErrorAs(t, err, &ve)
}

func TestDistrictMatching(t *testing.T) {
	env := newAuthEnv(t, false)
	ctx := context.Background()
	agros := service.NewAgronomistService(env.store, logging.Nop())

	farmer, err := env.auth.Register(ctx, farmerInput()) // district "Pune"
	require.NoError(t, err)

	in := agronomistInput("9123456789")
	in.District = "  pune"
	a1, err := env.auth.Register(ctx, in)
	require.NoError(t, err)
	in = agronomistInput("9123456780")
	in.District = "Nashik"
	a2, err := env.auth.Register(ctx, in)
	require.NoError(t, err)

	local, err := agros.Local(ctx, farmer)
	require.NoError(t, err)
	assert.Empty(t, local, "pending agronomists are not listed")

	require.NoError(t, agros.Verify(ctx, a1.ID, "verified"))
	require.NoError(t, agros.Verify(ctx, a2.ID, "verified"))
	var ve *service.ValidationError
	assert.ErrorAs(t, agros.Verify(ctx, a1.ID, "pending"), &ve)

	local, err = agros.Local(ctx, farmer)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, a1.ID, local[0].ID)

	farmers, err := agros.Farmers(ctx, a1)
	require.NoError(t, err)
	require.Len(t, farmers, 1)
	assert.Equal(t, farmer.ID, farmers[0].ID)

	crop, label := "tomato", "Healthy"
	rep := model.DiseaseReport{FarmerID: farmer.ID, CropName: &crop, Prediction: &label}
	require.NoError(t, env.store.Repos().Reports.Create(ctx, &rep))

	got, err := agros.AssignReport(ctx, rep.ID, farmer.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a1.ID, got.ID)

	again, err := agros.AssignReport(ctx, rep.ID, farmer.ID)
	require.NoError(t, err)
	assert.Nil(t, again, "already assigned")
}

func TestAgronomistUpdateProfile(t *testing.T) {
	env := newAuthEnv(t, false)
	ctx := context.Background()
	agros := service.NewAgronomistService(env.store, logging.Nop())
	a, err := env.auth.Register(ctx, agronomistInput("9123456789"))
	require.NoError(t, err)

	got, err := agros.UpdateProfile(ctx, a.ID, service.AgronomistInput{
		ProfileInput: service.ProfileInput{Taluka: ptr("Mulshi")},
		Availability: ptr("unavailable"),
		Experience:   ptr(9),
	})
	require.NoError(t, err)
	assert.Equal(t, model.Unavailable, got.Profile.Availability)
	assert.Equal(t, "Mulshi", got.Taluka)

	stored, err := agros.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, stored.Profile.Experience)

	var ve *service.ValidationError
	_, err = agros.UpdateProfile(ctx, a.ID, service.AgronomistInput{Availability: ptr("busy")})
	assert.ErrorAs(t, err, &ve)
}
