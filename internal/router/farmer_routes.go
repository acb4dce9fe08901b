package router

import (
    "github.com/labstack/echo/v4"

    "github.com/krushi/krushi-api/internal/handler"
    "github.com/krushi/krushi-api/internal/middleware"
    "github.com/krushi/krushi-api/internal/model"
)

// RegisterCrops registers the farmer's crop routes.
func RegisterCrops(e *echo.Echo, h *handler.CropHandler, auth echo.MiddlewareFunc) {
    g := e.Group(Prefix+"/crops", auth, middleware.RequireRole(model.RoleFarmer))
    g.POST("", h.Create)
    g.GET("", h.List)
    g.DELETE("/:id", h.Delete)
}

// RegisterReports registers disease detection and diagnosis. The inference
// status probe is public so the client can warm the service before upload.
func RegisterReports(e *echo.Echo, h *handler.ReportHandler, auth echo.MiddlewareFunc) {
    g := e.Group(Prefix+"/disease-reports", auth, middleware.RequireRole(model.RoleFarmer))
    g.POST("/detect", h.Detect)
    g.POST("", h.Create)
    g.GET("", h.List)
    g.PUT("/:id/mark-treated", h.MarkTreated)
    g.DELETE("/:id", h.Delete)

    e.GET(Prefix+"/ml-server/status", h.MLStatus)
}

// RegisterWeather registers forecasts and advisories for farmers and the
// public, cached reverse geocoder.
func RegisterWeather(e *echo.Echo, h *handler.WeatherHandler, auth, cache echo.MiddlewareFunc) {
    farmer := middleware.RequireRole(model.RoleFarmer)
    e.GET(Prefix+"/weather", h.Forecast, auth, farmer)
    e.GET(Prefix+"/advisories", h.Advisories, auth, farmer)
    e.GET(Prefix+"/geocode/reverse", h.Reverse, cache)
}
