package handler

import (
    "context"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/krushi/krushi-api/internal/logging"
    "github.com/krushi/krushi-api/internal/middleware"
    "github.com/krushi/krushi-api/internal/service"
    "github.com/krushi/krushi-api/internal/weather"
)

// ReverseGeocoder turns coordinates into an Indian district and taluka.
type ReverseGeocoder interface {
    Reverse(ctx context.Context, lat, lon float64) (weather.Place, error)
}

// WeatherHandler serves forecasts, crop advisories and reverse geocoding.
type WeatherHandler struct {
    Weather  *service.WeatherService
    Geocoder ReverseGeocoder
    Log      logging.Logger
}

func NewWeatherHandler(ws *service.WeatherService, geo ReverseGeocoder, log logging.Logger) *WeatherHandler {
    return &WeatherHandler{Weather: ws, Geocoder: geo, Log: log}
}

// Forecast returns the forecast at the user's saved coordinates.
func (h *WeatherHandler) Forecast(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
    defer cancel()

    f, err := h.Weather.Forecast(ctx, *middleware.CurrentUser(c))
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, f)
}

// Advisories returns model generated threats for the farmer's crops.
func (h *WeatherHandler) Advisories(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 60*time.Second)
    defer cancel()

    adv, err := h.Weather.Advisories(ctx, *middleware.CurrentUser(c))
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, adv)
}

// Reverse answers GET /geocode/reverse?lat=&lon=.
func (h *WeatherHandler) Reverse(c echo.Context) error {
    lat, errLat := strconv.ParseFloat(c.QueryParam("lat"), 64)
    lon, errLon := strconv.ParseFloat(c.QueryParam("lon"), 64)
    if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
        return badRequest(c, "lat and lon query parameters are required")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    p, err := h.Geocoder.Reverse(ctx, lat, lon)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"district": p.District, "taluka": p.Taluka, "state": p.State, "displayName": p.DisplayName})
}
