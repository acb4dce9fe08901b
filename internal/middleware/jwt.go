package middleware

import (
    "context"
    "errors"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/krushi/krushi-api/internal/model"
    "github.com/krushi/krushi-api/internal/service"
)

// Authenticator resolves a raw access token to a live account.
type Authenticator interface {
    Authenticate(ctx context.Context, raw string) (model.Account, error)
}

// JWTAuth validates the Bearer access token and loads the account behind
// it. Handlers read the result with CurrentAccount, or through the
// "user_id" (uint64) and "role" (string) context values.
//
// Agronomists whose application is pending or rejected are refused with
// 403 so they cannot reach any protected route.
func JWTAuth(auth Authenticator) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            h := c.Request().Header.Get(echo.HeaderAuthorization)
            if !strings.HasPrefix(h, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
            if raw == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }

            acct, err := auth.Authenticate(c.Request().Context(), raw)
            switch {
            case err == nil:
            case errors.Is(err, service.ErrPendingApproval), errors.Is(err, service.ErrRejected):
                return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
            case errors.Is(err, service.ErrInvalidToken):
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            default:
                c.Logger().Errorf("authenticate: %v", err)
                return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
            }

            c.Set(ctxAccount, acct)
            c.Set(ctxUserID, acct.Identity().ID)
            c.Set(ctxRole, string(acct.Kind()))
            return next(c)
        }
    }
}
