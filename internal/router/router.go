// Package router wires handlers and middleware onto echo routes. Every API
// route lives under /api/v1.
package router

import (
    "github.com/labstack/echo/v4"

    "github.com/krushi/krushi-api/internal/handler"
    "github.com/krushi/krushi-api/internal/middleware"
    "github.com/krushi/krushi-api/internal/model"
)

// Prefix is the version prefix of the HTTP API.
const Prefix = "/api/v1"

// RegisterRoutes registers the unauthenticated liveness probes.
func RegisterRoutes(e *echo.Echo) {
    e.GET("/health", handler.Health)
    e.GET(Prefix+"/health", handler.Health)
}

// RegisterAuth registers registration, login and the token lifecycle. The
// limiter guards the credential endpoints; logout additionally needs a valid
// access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, auth, limiter echo.MiddlewareFunc) {
    g := e.Group(Prefix+"/auth", limiter)
    g.POST("/register", a.Register)
    g.POST("/login", a.Login)
    g.POST("/refresh-token", a.Refresh)
    g.POST("/logout", a.Logout, auth)
}

// RegisterUsers registers the self-service profile routes for every role.
func RegisterUsers(e *echo.Echo, h *handler.UserHandler, auth echo.MiddlewareFunc) {
    g := e.Group(Prefix+"/users", auth)
    g.GET("/me", h.Me)
    g.PUT("/update", h.Update)
    g.PUT("/change-password", h.ChangePassword)
    g.POST("/upload-photo", h.UploadPhoto)
    g.DELETE("/delete-photo", h.DeletePhoto)
}

// RegisterMedia registers generic uploads for any authenticated user.
func RegisterMedia(e *echo.Echo, h *handler.MediaHandler, auth echo.MiddlewareFunc) {
    e.POST(Prefix+"/media", h.Upload, auth)
}

// RegisterAgronomists registers agronomist self-service, admin verification
// and the district matching views. Roles differ per route.
func RegisterAgronomists(e *echo.Echo, h *handler.AgronomistHandler, auth echo.MiddlewareFunc) {
    g := e.Group(Prefix+"/agronomists", auth)
    agronomist := middleware.RequireRole(model.RoleAgronomist)
    g.GET("/me", h.Me, agronomist)
    g.PUT("/me", h.UpdateMe, agronomist)
    g.GET("/farmers", h.Farmers, agronomist)
    g.GET("/local", h.Local, middleware.RequireRole(model.RoleFarmer))
    g.PUT("/:id/verify", h.Verify, middleware.RequireRole(model.RoleAdmin))
}

// RegisterAdmin registers account listing and deletion.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, auth echo.MiddlewareFunc) {
    g := e.Group(Prefix+"/admin", auth, middleware.RequireRole(model.RoleAdmin))
    g.GET("/farmers", h.Farmers)
    g.DELETE("/farmers/:id", h.DeleteFarmer)
    g.GET("/agronomists", h.Agronomists)
    g.DELETE("/agronomists/:id", h.DeleteAgronomist)
    g.GET("/users/:id", h.User)
}

// RegisterLocations registers the admin location catalogue. The list is
// shared by all admins and served through the response cache; creates pass
// through the same cache so they invalidate the list.
func RegisterLocations(e *echo.Echo, h *handler.LocationHandler, auth, cache echo.MiddlewareFunc) {
    g := e.Group(Prefix+"/locations", auth, middleware.RequireRole(model.RoleAdmin), cache)
    g.POST("", h.Create)
    g.GET("", h.List)
}
