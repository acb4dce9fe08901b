package weather

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krushi/krushi-api/internal/config"
	"github.com/krushi/krushi-api/internal/logging"
)

const (
	forecastURL = "https://api.open-meteo.com/v1/forecast"
	geocodeURL  = "https://nominatim.openstreetmap.org/reverse"
)

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func testWeatherConfig() config.WeatherConfig {
	return config.WeatherConfig{ForecastEndpoint: forecastURL, GeocodeEndpoint: geocodeURL, CacheTTL: time.Minute, Timeout: 5 * time.Second}
}

const openMeteoReply = `{
  "latitude": 18.52, "longitude": 73.86, "timezone": "Asia/Kolkata",
  "current": {"time":"2026-10-16T10:00","temperature_2m":29.4,"relative_humidity_2m":61,"apparent_temperature":31.2,"precipitation":0,"weather_code":2,"wind_speed_10m":8.3},
  "daily": {"time":["2026-10-16","2026-10-17"],"weather_code":[2,61],"temperature_2m_max":[31,28.5],"temperature_2m_min":[21,20.1],"precipitation_sum":[0,12.4],"precipitation_probability_max":[10,null]}
}`

func TestForecast_QueryAndCache(t *testing.T) {
	setupHTTPMock(t)

	httpmock.RegisterResponder("GET", forecastURL, func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		assert.Equal(t, "18.52", q.Get("latitude"))
		assert.Equal(t, "73.86", q.Get("longitude"))
		assert.Equal(t, "auto", q.Get("timezone"))
		assert.Equal(t, "mr", q.Get("language"))
		assert.Equal(t, dailyFields, q.Get("daily"))
		assert.NotEmpty(t, req.Header.Get("User-Agent"))
		return httpmock.NewStringResponse(http.StatusOK, openMeteoReply), nil
	})

	c := NewClient(testWeatherConfig(), logging.Nop())
	f, err := c.Forecast(context.Background(), 18.52, 73.86, "mr")
	require.NoError(t, err)
	assert.InDelta(t, 29.4, f.Current.Temperature, 0.001)
	assert.Equal(t, []int{2, 61}, f.Daily.WeatherCode)
	assert.Equal(t, []float64{10, 0}, f.Daily.PrecipitationProbability)

	_, err = c.Forecast(context.Background(), 18.52, 73.86, "mr")
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount(), "second call served from cache")
}

func TestForecast_UpstreamError(t *testing.T) {
	setupHTTPMock(t)

	httpmock.RegisterResponder("GET", forecastURL,
		httpmock.NewStringResponder(http.StatusBadRequest, `{"error":true,"reason":"Latitude must be in range"}`))

	_, err := NewClient(testWeatherConfig(), logging.Nop()).Forecast(context.Background(), 200, 0, "en")
	require.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "Latitude must be in range")
}

func TestReverse_FieldPrecedence(t *testing.T) {
	setupHTTPMock(t)

	httpmock.RegisterResponder("GET", geocodeURL, func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		assert.Equal(t, "json", q.Get("format"))
		assert.Equal(t, "10", q.Get("zoom"))
		assert.Equal(t, "1", q.Get("addressdetails"))
		return httpmock.NewStringResponse(http.StatusOK, `{
			"display_name":"Haveli, Pune, Maharashtra, India",
			"address":{"county":"Pune","state":"Maharashtra","town":"Haveli","village":"Loni"}
		}`), nil
	})

	p, err := NewGeocoder(testWeatherConfig()).Reverse(context.Background(), 18.5, 73.8)
	require.NoError(t, err)
	assert.Equal(t, "Pune", p.District)
	assert.Equal(t, "Haveli", p.Taluka)
	assert.Equal(t, "Maharashtra", p.State)
}

func TestReverse_ErrorBody(t *testing.T) {
	setupHTTPMock(t)

	httpmock.RegisterResponder("GET", geocodeURL, httpmock.NewStringResponder(http.StatusOK, `{"error":"Unable to geocode"}`))

	_, err := NewGeocoder(testWeatherConfig()).Reverse(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrUpstream)
}
