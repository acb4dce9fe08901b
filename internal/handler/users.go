package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/krushi/krushi-api/internal/logging"
    "github.com/krushi/krushi-api/internal/middleware"
    "github.com/krushi/krushi-api/internal/service"
)

// UserHandler serves the authenticated user's own profile.
type UserHandler struct {
    Users *service.UserService
    Log   logging.Logger
}

func NewUserHandler(users *service.UserService, log logging.Logger) *UserHandler {
    return &UserHandler{Users: users, Log: log}
}

type profileReq struct {
    FullName  *string  `json:"fullName"`
    District  *string  `json:"district"`
    Taluka    *string  `json:"taluka"`
    Language  *string  `json:"language"`
    Longitude *float64 `json:"longitude"`
    Latitude  *float64 `json:"latitude"`
}

func (r profileReq) input() service.ProfileInput {
    return service.ProfileInput{
        FullName:  r.FullName,
        District:  r.District,
        Taluka:    r.Taluka,
        Language:  r.Language,
        Longitude: r.Longitude,
        Latitude:  r.Latitude,
    }
}

type changePasswordReq struct {
    CurrentPassword string `json:"currentPassword"`
    NewPassword     string `json:"newPassword"`
}

// Me returns the current user without the password hash.
func (h *UserHandler) Me(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Users.Get(ctx, middleware.CurrentUserID(c))
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, viewUser(u))
}

func (h *UserHandler) Update(c echo.Context) error {
    var req profileReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Users.UpdateProfile(ctx, middleware.CurrentUserID(c), req.input())
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Profile updated", "user": viewUser(u)})
}

// ChangePassword also revokes every session of the user.
func (h *UserHandler) ChangePassword(c echo.Context) error {
    var req changePasswordReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if err := h.Users.ChangePassword(ctx, middleware.CurrentUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Password changed. Please log in again."})
}

func (h *UserHandler) UploadPhoto(c echo.Context) error {
    up, done, err := formUpload(c, "photo")
    if err != nil {
        return badRequest(c, "invalid photo upload")
    }
    defer done()
    if up == nil {
        return badRequest(c, "photo is required")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
    defer cancel()

    m, err := h.Users.UploadPhoto(ctx, middleware.CurrentUserID(c), *up)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Profile photo updated", "profilePhoto": viewMedia(&m)})
}

func (h *UserHandler) DeletePhoto(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    if err := h.Users.DeletePhoto(ctx, middleware.CurrentUserID(c)); err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Profile photo deleted"})
}

// MediaHandler stores generic uploads for the current user.
type MediaHandler struct {
    Media *service.MediaService
    Log   logging.Logger
}

func NewMediaHandler(media *service.MediaService, log logging.Logger) *MediaHandler {
    return &MediaHandler{Media: media, Log: log}
}

func (h *MediaHandler) Upload(c echo.Context) error {
    up, done, err := formUpload(c, "file")
    if err != nil {
        return badRequest(c, "invalid file upload")
    }
    defer done()
    if up == nil {
        return badRequest(c, "file is required")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
    defer cancel()

    m, err := h.Media.Upload(ctx, middleware.CurrentUserID(c), c.FormValue("folder"), *up)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, viewMedia(&m))
}
