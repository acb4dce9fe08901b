package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/krushi/krushi-api/internal/database"
	"github.com/krushi/krushi-api/internal/model"
)

// SessionRepo persists refresh token grants (hash only, never the raw
// token). Rows past expires_at are invisible to every read and are removed
// by PurgeExpired.
type SessionRepo struct{ DB database.DBTX }

func NewSessionRepo(db database.DBTX) *SessionRepo { return &SessionRepo{DB: db} }

// Create inserts a new session row and sets s.ID. Each login creates its own
// row, so concurrent logins never overwrite each other.
func (r *SessionRepo) Create(ctx context.Context, s *model.AuthSession) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO auth_sessions (user_id, refresh_token_hash, device_info, ip_address, last_used_at, expires_at)
		 VALUES (?,?,?,?,?,?)`,
		s.UserID, s.RefreshTokenHash, s.DeviceInfo, s.IPAddress, s.LastUsedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	s.ID = uint64(id)
	return nil
}

// ListActive returns the unexpired sessions of userID.
func (r *SessionRepo) ListActive(ctx context.Context, userID uint64) ([]model.AuthSession, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,user_id,refresh_token_hash,device_info,ip_address,last_used_at,expires_at,created_at
		 FROM auth_sessions WHERE user_id=? AND expires_at > UTC_TIMESTAMP() ORDER BY id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.AuthSession
	for rows.Next() {
		var s model.AuthSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.DeviceInfo, &s.IPAddress,
			&s.LastUsedAt, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Touch records a use of session id. It returns ErrNotFound when the row is
// gone or expired, which is how a refresh racing a logout loses: the update
// and the logout delete serialize on the row.
func (r *SessionRepo) Touch(ctx context.Context, id uint64, hash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE auth_sessions SET last_used_at=UTC_TIMESTAMP() WHERE id=? AND refresh_token_hash=? AND expires_at > UTC_TIMESTAMP()",
		id, hash)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return expectOne(res)
}

// Rotate swaps the stored hash of session id for newHash and extends its
// expiry. The old hash must still be current, so a token can be rotated at
// most once.
func (r *SessionRepo) Rotate(ctx context.Context, id uint64, oldHash, newHash string, exp time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE auth_sessions SET refresh_token_hash=?, expires_at=?, last_used_at=UTC_TIMESTAMP()
		 WHERE id=? AND refresh_token_hash=? AND expires_at > UTC_TIMESTAMP()`,
		newHash, exp, id, oldHash)
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	return expectOne(res)
}

// DeleteByUser removes every session of userID and returns how many went.
func (r *SessionRepo) DeleteByUser(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM auth_sessions WHERE user_id=?", userID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return res.RowsAffected()
}

// PurgeExpired deletes expired rows.
func (r *SessionRepo) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM auth_sessions WHERE expires_at <= UTC_TIMESTAMP()")
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}
