package middleware

import (
    "context"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/krushi/krushi-api/internal/config"
    "github.com/krushi/krushi-api/internal/logging"
    "github.com/krushi/krushi-api/internal/model"
    "github.com/krushi/krushi-api/internal/service"
)

type stubAuth map[string]authResult

type authResult struct {
    acct model.Account
    err  error
}

func (s stubAuth) Authenticate(_ context.Context, raw string) (model.Account, error) {
    r, ok := s[raw]
    if !ok {
        return nil, service.ErrInvalidToken
    }
    return r.acct, r.err
}

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(method, path, nil)
    if token != "" {
        req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func newProtected(auth Authenticator, roles ...model.Role) *echo.Echo {
    e := echo.New()
    g := e.Group("", JWTAuth(auth))
    if len(roles) > 0 {
        g.Use(RequireRole(roles...))
    }
    g.GET("/me", func(c echo.Context) error {
        u := CurrentUser(c)
        return c.JSON(http.StatusOK, echo.Map{"id": CurrentUserID(c), "name": u.FullName, "role": c.Get("role")})
    })
    return e
}

func TestJWTAuth(t *testing.T) {
    auth := stubAuth{
        "farmer":   {acct: &model.Farmer{User: model.User{ID: 7, FullName: "Asha", Role: model.RoleFarmer}}},
        "pending":  {err: service.ErrPendingApproval},
        "rejected": {err: service.ErrRejected},
    }
    e := newProtected(auth)

    rec := serve(e, http.MethodGet, "/me", "farmer")
    require.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"id":7,"name":"Asha","role":"farmer"}`, rec.Body.String())

    assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "").Code)
    assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "garbage").Code)

    rec = serve(e, http.MethodGet, "/me", "pending")
    assert.Equal(t, http.StatusForbidden, rec.Code)
    assert.Contains(t, rec.Body.String(), "waiting for admin approval")
    assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/me", "rejected").Code)
}

func TestRequireRole(t *testing.T) {
    auth := stubAuth{
        "admin":  {acct: &model.Admin{User: model.User{ID: 1, Role: model.RoleAdmin}}},
        "farmer": {acct: &model.Farmer{User: model.User{ID: 2, Role: model.RoleFarmer}}},
    }
    e := newProtected(auth, model.RoleAdmin)

    assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/me", "admin").Code)
    rec := serve(e, http.MethodGet, "/me", "farmer")
    assert.Equal(t, http.StatusForbidden, rec.Code)
    assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())
}

func TestRateKeyStrategies(t *testing.T) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
    req.Header.Set(echo.HeaderXRealIP, "10.0.0.5")
    c := e.NewContext(req, httptest.NewRecorder())
    c.SetPath("/api/v1/auth/login")

    cfg := config.RateLimitConfig{Prefix: "krushi:rl", KeyStrategy: "ip_route"}
    assert.Equal(t, "krushi:rl:ip:10.0.0.5:route:POST /api/v1/auth/login", rateKey(cfg, c))

    cfg.KeyStrategy = "user"
    assert.Equal(t, "krushi:rl:user:anon", rateKey(cfg, c))
    c.Set(ctxUserID, uint64(42))
    assert.Equal(t, "krushi:rl:user:42", rateKey(cfg, c))
}

func TestParseBucketResult(t *testing.T) {
    res, ok := parseBucketResult([]any{int64(0), int64(0), int64(1500)})
    require.True(t, ok)
    assert.False(t, res.allowed)
    assert.Equal(t, "1.5s", res.retry.String())

    res, ok = parseBucketResult([]any{int64(1), int64(9), int64(0)})
    require.True(t, ok)
    assert.True(t, res.allowed)
    assert.Equal(t, int64(9), res.remaining)

    _, ok = parseBucketResult("nope")
    assert.False(t, ok)
}

func TestCachedPayloadRoundTrip(t *testing.T) {
    hdr := http.Header{"Content-Type": {"application/json"}}
    bs, err := encodeCached(http.StatusOK, hdr, []byte(`{"ok":true}`))
    require.NoError(t, err)

    status, got, body, ok := decodeCached(bs)
    require.True(t, ok)
    assert.Equal(t, http.StatusOK, status)
    assert.Equal(t, "application/json", got.Get("Content-Type"))
    assert.Equal(t, `{"ok":true}`, string(body))

    _, _, _, ok = decodeCached(bs[:6])
    assert.False(t, ok)
}

func TestCacheKeyIncludesQuery(t *testing.T) {
    e := echo.New()
    cfg := config.CacheConfig{Prefix: "krushi:cache", KeyStrategy: "route_query"}
    key := func(q string) string {
        c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/geocode/reverse?"+q, nil), httptest.NewRecorder())
        c.SetPath("/api/v1/geocode/reverse")
        return cacheKey(cfg, c)
    }
    assert.NotEqual(t, key("lat=18.5&lon=73.8"), key("lat=19.9&lon=73.8"))
    assert.Equal(t, key("lat=18.5&lon=73.8"), key("lat=18.5&lon=73.8"))
}

func TestDisabledMiddlewaresPassThrough(t *testing.T) {
    e := echo.New()
    e.Use(NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, logging.Nop()))
    e.Use(NewRedisCache(config.CacheConfig{Enabled: true}, nil, logging.Nop()))
    e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

    rec := serve(e, http.MethodGet, "/ping", "")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Empty(t, rec.Header().Get("X-Cache"))
}
