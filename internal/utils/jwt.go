package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/sha256"   // SHA‑256 hashing for refresh tokens
    "crypto/subtle"   // constant time comparison of token digests
    "encoding/hex"    // hex encoding of digests
    "errors"          // sentinel error values
    "strconv"         // user id to subject conversion
    "time"            // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
    "github.com/google/uuid"       // unique token ids
)

// ErrInvalidToken is returned for any token that fails signature, expiry or
// type checks.  Callers never learn which check failed.
var ErrInvalidToken = errors.New("invalid or expired token")

const (
    typeAccess  = "access"
    typeRefresh = "refresh"
)

// AccessToken represents a signed JWT access token along with its expiry.
// Access tokens are short‑lived and sent in the Authorization header when
// calling protected endpoints.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// RefreshToken represents a long‑lived token used to obtain new access
// tokens.  Raw is returned to the client; only HashRefreshRaw(Raw) is
// persisted in a session row.
type RefreshToken struct {
    Raw string    // raw token string returned to the client
    Exp time.Time // UTC expiration time embedded in the token
}

// Claims is the payload of both token classes.  Typ keeps the two classes
// apart even if the secrets were ever shared.
type Claims struct {
    UserID uint64 `json:"uid"`
    Typ    string `json:"typ"`
    jwt.RegisteredClaims
}

// TokenService mints and verifies access and refresh tokens.  The two token
// classes are signed with distinct secrets so a leaked access token cannot
// be replayed as a refresh token.
type TokenService struct {
    accessSecret  []byte
    refreshSecret []byte
    accessTTL     time.Duration
    refreshTTL    time.Duration
}

// NewTokenService builds a TokenService.  Secrets must be non-empty and
// different; config.Parse enforces that.
func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
    return &TokenService{
        accessSecret:  []byte(accessSecret),
        refreshSecret: []byte(refreshSecret),
        accessTTL:     accessTTL,
        refreshTTL:    refreshTTL,
    }
}

// IssueAccessToken signs a short lived HS256 token carrying userID.
func (s *TokenService) IssueAccessToken(userID uint64) (AccessToken, error) {
    signed, exp, err := s.sign(userID, typeAccess, s.accessTTL, s.accessSecret)
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// IssueRefreshToken signs a long lived HS256 token carrying userID.  Every
// token gets a random jti, so two logins in the same second still produce
// distinct tokens (and distinct hashes).
func (s *TokenService) IssueRefreshToken(userID uint64) (RefreshToken, error) {
    signed, exp, err := s.sign(userID, typeRefresh, s.refreshTTL, s.refreshSecret)
    if err != nil {
        return RefreshToken{}, err
    }
    return RefreshToken{Raw: signed, Exp: exp}, nil
}

// VerifyAccess validates an access token and returns its claims.
func (s *TokenService) VerifyAccess(raw string) (Claims, error) {
    return verify(raw, typeAccess, s.accessSecret)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (s *TokenService) VerifyRefresh(raw string) (Claims, error) {
    return verify(raw, typeRefresh, s.refreshSecret)
}

func (s *TokenService) sign(userID uint64, typ string, ttl time.Duration, secret []byte) (string, time.Time, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := Claims{
        UserID: userID,
        Typ:    typ,
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   strconv.FormatUint(userID, 10),
            ID:        uuid.NewString(),
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString(secret)
    if err != nil {
        return "", time.Time{}, err
    }
    return signed, exp, nil
}

func verify(raw, typ string, secret []byte) (Claims, error) {
    var claims Claims
    tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
        // Reject anything that is not HMAC signed.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidToken
        }
        return secret, nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
    if err != nil || !tok.Valid {
        return Claims{}, ErrInvalidToken
    }
    if claims.Typ != typ || claims.UserID == 0 {
        return Claims{}, ErrInvalidToken
    }
    return claims, nil
}

// HashRefreshRaw returns the SHA‑256 hash of the raw refresh token as a hex
// string.  Storing only the hash prevents stolen database rows from being
// used to refresh sessions.
func HashRefreshRaw(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

// MatchRefreshHash reports whether raw hashes to storedHash.  The digests are
// compared in constant time.
func MatchRefreshHash(raw, storedHash string) bool {
    got := HashRefreshRaw(raw)
    return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}
