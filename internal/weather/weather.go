// Package weather wraps the Open-Meteo forecast API and Nominatim reverse
// geocoding.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/krushi/krushi-api/internal/config"
	"github.com/krushi/krushi-api/internal/logging"
)

// UserAgent is sent on every request; Nominatim rejects anonymous clients.
const UserAgent = "krushi-api/1.0 (+https://github.com/krushi/krushi-api)"

const (
	currentFields = "temperature_2m,relative_humidity_2m,apparent_temperature,precipitation,weather_code,wind_speed_10m"
	dailyFields   = "weather_code,temperature_2m_max,temperature_2m_min,precipitation_sum,precipitation_probability_max"
)

// ErrUpstream wraps any failure talking to a provider.
var ErrUpstream = errors.New("weather provider unavailable")

// Current is the "current" block of an Open-Meteo answer.
type Current struct {
	Time                string  `json:"time"`
	Temperature         float64 `json:"temperature_2m"`
	RelativeHumidity    float64 `json:"relative_humidity_2m"`
	ApparentTemperature float64 `json:"apparent_temperature"`
	Precipitation       float64 `json:"precipitation"`
	WeatherCode         int     `json:"weather_code"`
	WindSpeed           float64 `json:"wind_speed_10m"`
}

// Daily holds the parallel per-day arrays.
type Daily struct {
	Time                     []string  `json:"time"`
	WeatherCode              []int     `json:"weather_code"`
	TemperatureMax           []float64 `json:"temperature_2m_max"`
	TemperatureMin           []float64 `json:"temperature_2m_min"`
	PrecipitationSum         []float64 `json:"precipitation_sum"`
	PrecipitationProbability []float64 `json:"precipitation_probability_max"`
}

// Forecast is the subset of the Open-Meteo response we pass on.
type Forecast struct {
	Latitude     float64           `json:"latitude"`
	Longitude    float64           `json:"longitude"`
	Timezone     string            `json:"timezone"`
	Current      Current           `json:"current"`
	CurrentUnits map[string]string `json:"current_units"`
	Daily        Daily             `json:"daily"`
	DailyUnits   map[string]string `json:"daily_units"`
}

// Client fetches forecasts and caches them in process per (lat, lon, lang).
type Client struct {
	endpoint string
	http     *http.Client
	cache    *cache.Cache
	log      logging.Logger
}

func NewClient(cfg config.WeatherConfig, log logging.Logger) *Client {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Client{
		endpoint: cfg.ForecastEndpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
		cache:    cache.New(ttl, 2*ttl),
		log:      log.With("component", "weather"),
	}
}

// Forecast returns current conditions and a 7 day daily forecast.
func (c *Client) Forecast(ctx context.Context, lat, lon float64, lang string) (Forecast, error) {
	if lang == "" {
		lang = "en"
	}
	key := fmt.Sprintf("%.4f:%.4f:%s", lat, lon, lang)
	if v, ok := c.cache.Get(key); ok {
		return v.(Forecast), nil
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("current", currentFields)
	q.Set("daily", dailyFields)
	q.Set("timezone", "auto")
	q.Set("language", lang)

	var f Forecast
	if err := getJSON(ctx, c.http, c.endpoint+"?"+q.Encode(), &f); err != nil {
		c.log.Warn(ctx, "forecast fetch failed", "lat", lat, "lon", lon, "error", err)
		return Forecast{}, err
	}
	c.cache.SetDefault(key, f)
	return f, nil
}

func getJSON(ctx context.Context, hc *http.Client, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Reason string `json:"reason"`
			Error  string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		msg := e.Reason
		if msg == "" {
			msg = e.Error
		}
		return fmt.Errorf("%w: status %d %s", ErrUpstream, resp.StatusCode, msg)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	return nil
}
