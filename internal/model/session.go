package model

import "time"

// AuthSession models an entry in the `auth_sessions` table.  Each row is one
// refresh token grant.  The raw token is never stored, only its SHA-256 hex
// digest.
type AuthSession struct {
    ID               uint64    // auth_sessions.id
    UserID           uint64    // auth_sessions.user_id
    RefreshTokenHash string    // auth_sessions.refresh_token_hash
    DeviceInfo       string    // auth_sessions.device_info
    IPAddress        string    // auth_sessions.ip_address
    LastUsedAt       time.Time // auth_sessions.last_used_at
    ExpiresAt        time.Time // auth_sessions.expires_at
    CreatedAt        time.Time // auth_sessions.created_at
}
