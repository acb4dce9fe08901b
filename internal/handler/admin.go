package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/krushi/krushi-api/internal/logging"
    "github.com/krushi/krushi-api/internal/service"
)

// AdminHandler lists and deletes farmer and agronomist accounts.
type AdminHandler struct {
    Admin *service.AdminService
    Log   logging.Logger
}

func NewAdminHandler(admin *service.AdminService, log logging.Logger) *AdminHandler {
    return &AdminHandler{Admin: admin, Log: log}
}

func (h *AdminHandler) Farmers(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    us, err := h.Admin.Farmers(ctx)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, viewUsers(us))
}

func (h *AdminHandler) Agronomists(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    as, err := h.Admin.Agronomists(ctx)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, viewAgronomists(as))
}

func (h *AdminHandler) User(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid user id")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Admin.User(ctx, id)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, viewUser(u))
}

func (h *AdminHandler) DeleteFarmer(c echo.Context) error {
    return h.delete(c, "Farmer", h.Admin.DeleteFarmer)
}

func (h *AdminHandler) DeleteAgronomist(c echo.Context) error {
    return h.delete(c, "Agronomist", h.Admin.DeleteAgronomist)
}

func (h *AdminHandler) delete(c echo.Context, what string, del func(context.Context, uint64) error) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid user id")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 20*time.Second)
    defer cancel()

    if err := del(ctx, id); err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": what + " deleted"})
}
