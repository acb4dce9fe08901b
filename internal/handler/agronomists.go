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

// AgronomistHandler serves agronomist profiles, verification and the
// district matching views of both dashboards.
type AgronomistHandler struct {
    Agronomists *service.AgronomistService
    Log         logging.Logger
}

func NewAgronomistHandler(agronomists *service.AgronomistService, log logging.Logger) *AgronomistHandler {
    return &AgronomistHandler{Agronomists: agronomists, Log: log}
}

type agronomistReq struct {
    profileReq
    Qualification *string `json:"qualification"`
    Experience    *int    `json:"experience"`
    Availability  *string `json:"availability"`
    Bio           *string `json:"bio"`
}

type verifyReq struct {
    Status string `json:"status"`
}

func (h *AgronomistHandler) Me(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    a, err := h.Agronomists.Get(ctx, middleware.CurrentUserID(c))
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, viewAgronomist(a))
}

func (h *AgronomistHandler) UpdateMe(c echo.Context) error {
    var req agronomistReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    a, err := h.Agronomists.UpdateProfile(ctx, middleware.CurrentUserID(c), service.AgronomistInput{
        ProfileInput:  req.input(),
        Qualification: req.Qualification,
        Experience:    req.Experience,
        Availability:  req.Availability,
        Bio:           req.Bio,
    })
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Profile updated", "agronomist": viewAgronomist(a)})
}

// Verify lets an admin accept or reject an application.
func (h *AgronomistHandler) Verify(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid agronomist id")
    }
    var req verifyReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if err := h.Agronomists.Verify(ctx, id, req.Status); err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Agronomist status updated", "status": req.Status})
}

// Local lists verified agronomists in the farmer's district.
func (h *AgronomistHandler) Local(c echo.Context) error {
    u := middleware.CurrentUser(c)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    as, err := h.Agronomists.Local(ctx, *u)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, viewAgronomists(as))
}

// Farmers lists farmers in the agronomist's district.
func (h *AgronomistHandler) Farmers(c echo.Context) error {
    u := middleware.CurrentUser(c)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    fs, err := h.Agronomists.Farmers(ctx, *u)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, viewUsers(fs))
}
