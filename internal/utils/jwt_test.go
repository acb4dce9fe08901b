package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokens() *TokenService {
	return NewTokenService("access-secret", "refresh-secret", 15*time.Minute, 30*24*time.Hour)
}

func TestAccessToken_RoundTrip(t *testing.T) {
	ts := newTestTokens()

	at, err := ts.IssueAccessToken(42)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), at.Exp, 5*time.Second)

	claims, err := ts.VerifyAccess(at.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, "42", claims.Subject)
}

func TestRefreshToken_NotUsableAsAccess(t *testing.T) {
	ts := newTestTokens()

	rt, err := ts.IssueRefreshToken(7)
	require.NoError(t, err)

	_, err = ts.VerifyAccess(rt.Raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	at, err := ts.IssueAccessToken(7)
	require.NoError(t, err)
	_, err = ts.VerifyRefresh(at.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err := ts.VerifyRefresh(rt.Raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), claims.UserID)
}

func TestVerify_Expired(t *testing.T) {
	ts := NewTokenService("a", "b", -time.Minute, -time.Minute)

	at, err := ts.IssueAccessToken(1)
	require.NoError(t, err)
	_, err = ts.VerifyAccess(at.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Tampered(t *testing.T) {
	ts := newTestTokens()
	at, err := ts.IssueAccessToken(1)
	require.NoError(t, err)

	parts := strings.Split(at.Token, ".")
	require.Len(t, parts, 3)
	forged := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]
	_, err = ts.VerifyAccess(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ts.VerifyAccess("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokens_AreUnique(t *testing.T) {
	ts := newTestTokens()
	a, err := ts.IssueRefreshToken(5)
	require.NoError(t, err)
	b, err := ts.IssueRefreshToken(5)
	require.NoError(t, err)
	assert.NotEqual(t, a.Raw, b.Raw)
	assert.NotEqual(t, HashRefreshRaw(a.Raw), HashRefreshRaw(b.Raw))
}

func TestRefreshHash(t *testing.T) {
	raw := "some-refresh-token"
	h := HashRefreshRaw(raw)

	assert.Len(t, h, 64)
	assert.NotEqual(t, raw, h)
	assert.True(t, MatchRefreshHash(raw, h))
	assert.False(t, MatchRefreshHash(raw+"x", h))
	assert.False(t, MatchRefreshHash(raw, ""))
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("s3cret-pass", 4)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", h)
	assert.True(t, VerifyPassword(h, "s3cret-pass"))
	assert.False(t, VerifyPassword(h, "wrong"))

	h2, err := HashPassword("s3cret-pass", 4)
	require.NoError(t, err)
	assert.NotEqual(t, h, h2, "salted hashes differ")
}
