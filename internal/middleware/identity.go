package middleware

// identity.go holds the context keys written by JWTAuth and the helpers
// handlers use to read them back.

import (
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/krushi/krushi-api/internal/model"
)

const (
    ctxUserID  = "user_id"
    ctxRole    = "role"
    ctxAccount = "account"
)

// CurrentAccount returns the account loaded by JWTAuth.
func CurrentAccount(c echo.Context) (model.Account, bool) {
    a, ok := c.Get(ctxAccount).(model.Account)
    return a, ok && a != nil
}

// CurrentUser returns the user row of the authenticated account, or nil.
func CurrentUser(c echo.Context) *model.User {
    if a, ok := CurrentAccount(c); ok {
        return a.Identity()
    }
    return nil
}

// CurrentUserID returns the authenticated user's id, zero for guests.
func CurrentUserID(c echo.Context) uint64 {
    id, _ := c.Get(ctxUserID).(uint64)
    return id
}

// userID renders the user id for cache and rate limit keys. Guests are
// keyed as "anon".
func userID(c echo.Context) string {
    if id := CurrentUserID(c); id != 0 {
        return strconv.FormatUint(id, 10)
    }
    return "anon"
}
