package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/krushi/krushi-api/internal/logging"
    "github.com/krushi/krushi-api/internal/model"
    "github.com/krushi/krushi-api/internal/service"
)

// AuthHandler serves registration, login and the refresh-token lifecycle.
type AuthHandler struct {
    Auth *service.AuthService
    Log  logging.Logger
}

func NewAuthHandler(auth *service.AuthService, log logging.Logger) *AuthHandler {
    return &AuthHandler{Auth: auth, Log: log}
}

// ----- DTOs -----

type registerReq struct {
    FullName      string  `json:"fullName" form:"fullName"`
    MobileNumber  string  `json:"mobileNumber" form:"mobileNumber"`
    Password      string  `json:"password" form:"password"`
    Role          string  `json:"role" form:"role"`
    Language      string  `json:"language" form:"language"`
    District      string  `json:"district" form:"district"`
    Taluka        string  `json:"taluka" form:"taluka"`
    Longitude     float64 `json:"longitude" form:"longitude"`
    Latitude      float64 `json:"latitude" form:"latitude"`
    Qualification string  `json:"qualification" form:"qualification"`
    Experience    int     `json:"experience" form:"experience"`
    Bio           string  `json:"bio" form:"bio"`
}

type loginReq struct {
    MobileNumber string `json:"mobileNumber"`
    Password     string `json:"password"`
}

type refreshReq struct {
    RefreshToken string `json:"refreshToken"`
}

type loginResp struct {
    AccessToken      string    `json:"accessToken"`
    AccessExpiresAt  time.Time `json:"accessExpiresAt"`
    RefreshToken     string    `json:"refreshToken"`
    RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
    User             any       `json:"user"`
}

type refreshResp struct {
    AccessToken     string    `json:"accessToken"`
    AccessExpiresAt time.Time `json:"accessExpiresAt"`
    RefreshToken    string    `json:"refreshToken,omitempty"`
}

// Register accepts JSON or multipart. Agronomists must send an idProof file.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    in := service.RegisterInput{
        FullName:      req.FullName,
        MobileNumber:  req.MobileNumber,
        Password:      req.Password,
        Role:          model.Role(strings.ToLower(strings.TrimSpace(req.Role))),
        Language:      req.Language,
        District:      req.District,
        Taluka:        req.Taluka,
        Longitude:     req.Longitude,
        Latitude:      req.Latitude,
        Qualification: req.Qualification,
        Experience:    req.Experience,
        Bio:           req.Bio,
    }
    if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
        proof, done, err := formUpload(c, "idProof")
        if err != nil {
            return badRequest(c, "invalid idProof upload")
        }
        defer done()
        in.IDProof = proof
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
    defer cancel()

    u, err := h.Auth.Register(ctx, in)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    msg := "Registration successful"
    if u.Role == model.RoleAgronomist {
        msg = "Registration successful. Your account is pending admin approval."
    }
    return c.JSON(http.StatusCreated, echo.Map{"message": msg, "user": viewUser(u)})
}

// Login verifies the mobile number and password and opens a session.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    if strings.TrimSpace(req.MobileNumber) == "" || req.Password == "" {
        return badRequest(c, "mobileNumber and password are required")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    res, err := h.Auth.Login(ctx, strings.TrimSpace(req.MobileNumber), req.Password, service.SessionMeta{
        DeviceInfo: c.Request().UserAgent(),
        IPAddress:  c.RealIP(),
    })
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, loginResp{
        AccessToken:      res.Access.Token,
        AccessExpiresAt:  res.Access.Exp,
        RefreshToken:     res.Refresh.Raw,
        RefreshExpiresAt: res.Refresh.Exp,
        User:             viewAccount(res.Account),
    })
}

// Refresh exchanges a refresh token for a new access token.
func (h *AuthHandler) Refresh(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "refresh token required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    res, err := h.Auth.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
    if err != nil {
        return respondError(c, h.Log, err)
    }
    out := refreshResp{AccessToken: res.Access.Token, AccessExpiresAt: res.Access.Exp}
    if res.Refresh != nil {
        out.RefreshToken = res.Refresh.Raw
    }
    return c.JSON(http.StatusOK, out)
}

// Logout ends every session of the refresh token's user.
func (h *AuthHandler) Logout(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
        return badRequest(c, "refresh token required")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if err := h.Auth.Logout(ctx, strings.TrimSpace(req.RefreshToken)); err != nil {
        if errors.Is(err, service.ErrInvalidToken) {
            return badRequest(c, "invalid refresh token")
        }
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}
