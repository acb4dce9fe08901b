package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/krushi/krushi-api/internal/logging"
	"github.com/krushi/krushi-api/internal/model"
	"github.com/krushi/krushi-api/internal/weather"
)

// Forecaster returns a weather forecast for a coordinate.
type Forecaster interface {
	Forecast(ctx context.Context, lat, lon float64, lang string) (weather.Forecast, error)
}

// Advisory is one crop threat produced by the model.
type Advisory struct {
	CropName       string `json:"cropName"`
	ThreatLevel    string `json:"threatLevel"`
	Threat         string `json:"threat"`
	Recommendation string `json:"recommendation"`
	ImpactDay      string `json:"impactDay"`
}

const advisoryPrompt = `You are an expert agronomist for Indian agriculture.
Analyze the provided 7-day weather forecast for a farmer in %s growing these crops: %s.

Forecast Data: %s

Identify potential threats (disease, pests, waterlogging, heat stress, etc.) for each crop.

Return a JSON array of objects with this exact structure:
[
  {
    "cropName": "string",
    "threatLevel": "Low" | "Medium" | "High",
    "threat": "string",
    "recommendation": "string",
    "impactDay": "YYYY-MM-DD"
  }
]

If there are no threats, return an empty array [].`

// WeatherService serves forecasts and crop advisories at the user's
// coordinates.
type WeatherService struct {
	store    Store
	forecast Forecaster
	ai       Generator
	log      logging.Logger
	now      func() time.Time
}

func NewWeatherService(store Store, forecast Forecaster, ai Generator, log logging.Logger) *WeatherService {
	return &WeatherService{store: store, forecast: forecast, ai: ai, log: log.With("component", "weather"), now: time.Now}
}

// Forecast returns the forecast at u's coordinates in u's language.
func (s *WeatherService) Forecast(ctx context.Context, u model.User) (weather.Forecast, error) {
	if !u.HasLocation() {
		return weather.Forecast{}, ErrNoLocation
	}
	return s.forecast.Forecast(ctx, u.Latitude, u.Longitude, string(u.Language))
}

// Advisories asks the model for weather threats to u's crops. A farmer
// without crops gets an empty list; a model failure yields a single system
// alert instead of an error.
func (s *WeatherService) Advisories(ctx context.Context, u model.User) ([]Advisory, error) {
	if !u.HasLocation() {
		return nil, ErrNoLocation
	}
	crops, err := s.store.Repos().Crops.ListByFarmer(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if len(crops) == 0 {
		return []Advisory{}, nil
	}
	f, err := s.forecast.Forecast(ctx, u.Latitude, u.Longitude, "en")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(crops))
	seen := map[string]bool{}
	for _, c := range crops {
		if !seen[c.CropName] {
			seen[c.CropName] = true
			names = append(names, c.CropName)
		}
	}
	daily, err := json.MarshalIndent(f.Daily, "", "  ")
	if err != nil {
		return nil, err
	}
	region := "Maharashtra"
	if u.District != "" {
		region = u.District + ", Maharashtra"
	}
	prompt := fmt.Sprintf(advisoryPrompt, region, strings.Join(names, ", "), daily)

	var out []Advisory
	if s.ai == nil {
		err = ErrAIUnavailable
	} else {
		err = s.ai.GenerateJSON(ctx, prompt, nil, &out)
	}
	if err != nil {
		s.log.Warn(ctx, "advisory generation failed", "user_id", u.ID, "error", err)
		return []Advisory{s.fallback()}, nil
	}
	if out == nil {
		out = []Advisory{}
	}
	return out, nil
}

func (s *WeatherService) fallback() Advisory {
	return Advisory{
		CropName:       "System Alert",
		ThreatLevel:    "Medium",
		Threat:         "Could not generate AI advisory at this time.",
		Recommendation: "Please try again later.",
		ImpactDay:      s.now().UTC().Format(time.DateOnly),
	}
}
