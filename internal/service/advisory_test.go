package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krushi/krushi-api/internal/logging"
	"github.com/krushi/krushi-api/internal/model"
	"github.com/krushi/krushi-api/internal/service"
	"github.com/krushi/krushi-api/internal/service/servicetest"
	"github.com/krushi/krushi-api/internal/weather"
)

type fakeForecast struct {
	calls int
	lang  string
	err   error
}

func (f *fakeForecast) Forecast(_ context.Context, _, _ float64, lang string) (weather.Forecast, error) {
	f.calls++
	f.lang = lang
	if f.err != nil {
		return weather.Forecast{}, f.err
	}
	return weather.Forecast{Daily: weather.Daily{Time: []string{"2026-10-16"}, TemperatureMax: []float64{34}}}, nil
}

func located(t *testing.T, store *servicetest.Store) model.User {
	t.Helper()
	u := model.User{FullName: "Sunita", MobileNumber: "9876543210", Role: model.RoleFarmer, Longitude: 73.86, Latitude: 18.52, District: "Pune", Language: model.LangMarathi}
	require.NoError(t, store.Repos().Users.Create(context.Background(), &u))
	return u
}

func TestForecast_RequiresLocation(t *testing.T) {
	store := servicetest.NewStore()
	fc := &fakeForecast{}
	svc := service.NewWeatherService(store, fc, nil, logging.Nop())

	_, err := svc.Forecast(context.Background(), model.User{ID: 1})
	assert.ErrorIs(t, err, service.ErrNoLocation)

	_, err = svc.Forecast(context.Background(), located(t, store))
	require.NoError(t, err)
	assert.Equal(t, "mr", fc.lang)
}

func TestAdvisories_NoCrops(t *testing.T) {
	store := servicetest.NewStore()
	fc := &fakeForecast{}
	svc := service.NewWeatherService(store, fc, &fakeAI{answer: "[]"}, logging.Nop())

	out, err := svc.Advisories(context.Background(), located(t, store))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, fc.calls)
}

func TestAdvisories_FromModel(t *testing.T) {
	store := servicetest.NewStore()
	u := located(t, store)
	crops := service.NewCropService(store)
	for _, name := range []string{"Onion", "Onion", "Grapes"} {
		_, err := crops.Create(context.Background(), u.ID, service.CropInput{CropName: name})
		require.NoError(t, err)
	}
	ai := &fakeAI{answer: `[{"cropName":"Grapes","threatLevel":"High","threat":"Downy mildew","recommendation":"Spray","impactDay":"2026-10-17"}]`}
	svc := service.NewWeatherService(store, &fakeForecast{}, ai, logging.Nop())

	out, err := svc.Advisories(context.Background(), u)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "High", out[0].ThreatLevel)
	require.Len(t, ai.prompts, 1)
	assert.Contains(t, ai.prompts[0], "Grapes, Onion")
	assert.Contains(t, ai.prompts[0], "temperature_2m_max")
}

func TestAdvisories_FallbackOnModelFailure(t *testing.T) {
	store := servicetest.NewStore()
	u := located(t, store)
	_, err := service.NewCropService(store).Create(context.Background(), u.ID, service.CropInput{CropName: "Cotton"})
	require.NoError(t, err)
	svc := service.NewWeatherService(store, &fakeForecast{}, &fakeAI{err: errors.New("503")}, logging.Nop())

	out, err := svc.Advisories(context.Background(), u)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "System Alert", out[0].CropName)
	assert.Equal(t, "Medium", out[0].ThreatLevel)
	assert.Len(t, out[0].ImpactDay, 10)
}
