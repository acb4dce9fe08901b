package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/krushi/krushi-api/internal/config"
	"github.com/krushi/krushi-api/internal/logging"
	"github.com/krushi/krushi-api/internal/model"
	"github.com/krushi/krushi-api/internal/repository"
	"github.com/krushi/krushi-api/internal/storage"
	"github.com/krushi/krushi-api/internal/utils"
)

var mobilePattern = regexp.MustCompile(`^[6-9]\d{9}$`)

// RegisterInput carries a self-registration request. The agronomist fields
// are ignored for farmers.
type RegisterInput struct {
	FullName     string
	MobileNumber string
	Password     string
	Role         model.Role
	Language     string
	District     string
	Taluka       string
	Longitude    float64
	Latitude     float64

	Qualification string
	Experience    int
	Bio           string
	IDProof       *Upload
}

// SessionMeta describes the client that opened a session.
type SessionMeta struct {
	DeviceInfo string
	IPAddress  string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Access  utils.AccessToken
	Refresh utils.RefreshToken
	Account model.Account
}

// RefreshResult holds a new access token and, when rotation is enabled, the
// replacement refresh token.
type RefreshResult struct {
	Access  utils.AccessToken
	Refresh *utils.RefreshToken
}

// AuthService issues and checks credentials and owns the session store.
type AuthService struct {
	store   Store
	tokens  *utils.TokenService
	objects storage.ObjectStore
	cfg     config.AuthConfig
	log     logging.Logger
	now     func() time.Time
}

func NewAuthService(store Store, tokens *utils.TokenService, objects storage.ObjectStore, cfg config.AuthConfig, log logging.Logger) *AuthService {
	return &AuthService{store: store, tokens: tokens, objects: objects, cfg: cfg, log: log.With("component", "auth"), now: time.Now}
}

// Register creates a farmer or agronomist account. For agronomists the id
// proof is uploaded first, then user, media and profile are written in one
// transaction; on failure nothing survives and the object is removed.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.MobileNumber = strings.TrimSpace(in.MobileNumber)
	switch {
	case in.FullName == "" || in.MobileNumber == "" || in.Password == "":
		return model.User{}, invalid("fullName, mobileNumber and password are required")
	case !mobilePattern.MatchString(in.MobileNumber):
		return model.User{}, invalid("please enter a valid 10-digit mobile number")
	case in.Role == "":
		in.Role = model.RoleFarmer
	}
	if in.Role == model.RoleAdmin || !in.Role.Valid() {
		return model.User{}, invalid("invalid role")
	}
	if in.Role == model.RoleAgronomist {
		if in.IDProof == nil {
			return model.User{}, invalid("ID proof is required for agronomist registration")
		}
		if err := in.IDProof.check(idProofTypes, MaxIDProofBytes, "ID proof"); err != nil {
			return model.User{}, err
		}
	}

	hash, err := utils.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := model.User{
		FullName:     in.FullName,
		MobileNumber: in.MobileNumber,
		PasswordHash: hash,
		Role:         in.Role,
		Longitude:    in.Longitude,
		Latitude:     in.Latitude,
		District:     strings.TrimSpace(in.District),
		Taluka:       strings.TrimSpace(in.Taluka),
		Language:     model.ParseLanguage(in.Language),
	}

	if in.Role == model.RoleFarmer {
		if err := s.store.Repos().Users.Create(ctx, &u); err != nil {
			return model.User{}, registerErr(err)
		}
		return u, nil
	}

	media, obj, err := storeMedia(ctx, s.objects, nil, "id-proofs", *in.IDProof)
	if err != nil {
		return model.User{}, err
	}
	err = s.store.InTx(ctx, func(ctx context.Context, r Repos) error {
		if err := r.Users.Create(ctx, &u); err != nil {
			return err
		}
		media.OwnerID = &u.ID
		if err := r.Media.Create(ctx, &media); err != nil {
			return err
		}
		return r.Agronomists.Create(ctx, &model.AgronomistProfile{
			UserID:        u.ID,
			Qualification: strings.TrimSpace(in.Qualification),
			Experience:    in.Experience,
			IDProofID:     &media.ID,
			Status:        model.AgronomistPending,
			Availability:  model.Available,
			Bio:           strings.TrimSpace(in.Bio),
		})
	})
	if err != nil {
		discard(ctx, s.objects, s.log, obj.Key)
		return model.User{}, registerErr(err)
	}
	return u, nil
}

func registerErr(err error) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return invalid("user with this mobile number already exists")
	}
	return fmt.Errorf("register: %w", err)
}

// Login checks credentials and opens a new session. Agronomists must be
// verified.
func (s *AuthService) Login(ctx context.Context, mobile, password string, meta SessionMeta) (LoginResult, error) {
	r := s.store.Repos()
	u, err := r.Users.GetByMobile(ctx, strings.TrimSpace(mobile))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return LoginResult{}, ErrInvalidCredentials
	}
	acct, err := s.account(ctx, r, u)
	if err != nil {
		return LoginResult{}, err
	}

	access, err := s.tokens.IssueAccessToken(u.ID)
	if err != nil {
		return LoginResult{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken(u.ID)
	if err != nil {
		return LoginResult{}, err
	}
	now := s.now().UTC()
	sess := model.AuthSession{
		UserID:           u.ID,
		RefreshTokenHash: utils.HashRefreshRaw(refresh.Raw),
		DeviceInfo:       truncate(meta.DeviceInfo, 255),
		IPAddress:        truncate(meta.IPAddress, 64),
		LastUsedAt:       now,
		ExpiresAt:        now.Add(s.cfg.SessionTTL),
	}
	if err := r.Sessions.Create(ctx, &sess); err != nil {
		return LoginResult{}, err
	}
	s.log.Info(ctx, "login", "user_id", u.ID, "role", u.Role)
	return LoginResult{Access: access, Refresh: refresh, Account: acct}, nil
}

// Refresh exchanges a refresh token for a new access token. The presented
// token must match a live session of its user; a concurrent logout makes
// the final conditional update fail.
func (s *AuthService) Refresh(ctx context.Context, raw string) (RefreshResult, error) {
	claims, err := s.tokens.VerifyRefresh(raw)
	if err != nil {
		return RefreshResult{}, ErrInvalidToken
	}
	sessions := s.store.Repos().Sessions
	active, err := sessions.ListActive(ctx, claims.UserID)
	if err != nil {
		return RefreshResult{}, err
	}
	var match *model.AuthSession
	for i := range active {
		if utils.MatchRefreshHash(raw, active[i].RefreshTokenHash) {
			match = &active[i]
			break
		}
	}
	if match == nil {
		if len(active) == 0 {
			s.log.Debug(ctx, "refresh without session", "user_id", claims.UserID)
		} else {
			s.log.Debug(ctx, "refresh token mismatch", "user_id", claims.UserID)
		}
		return RefreshResult{}, ErrInvalidToken
	}

	var out RefreshResult
	if s.cfg.RotateRefresh {
		next, err := s.tokens.IssueRefreshToken(claims.UserID)
		if err != nil {
			return RefreshResult{}, err
		}
		err = sessions.Rotate(ctx, match.ID, match.RefreshTokenHash, utils.HashRefreshRaw(next.Raw), s.now().UTC().Add(s.cfg.SessionTTL))
		if err != nil {
			return RefreshResult{}, sessionGone(err)
		}
		out.Refresh = &next
	} else if err := sessions.Touch(ctx, match.ID, match.RefreshTokenHash); err != nil {
		return RefreshResult{}, sessionGone(err)
	}

	access, err := s.tokens.IssueAccessToken(claims.UserID)
	if err != nil {
		return RefreshResult{}, err
	}
	out.Access = access
	return out, nil
}

func sessionGone(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidToken
	}
	return err
}

// Logout verifies the refresh token and ends every session of its user.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	claims, err := s.tokens.VerifyRefresh(raw)
	if err != nil {
		return ErrInvalidToken
	}
	n, err := s.store.Repos().Sessions.DeleteByUser(ctx, claims.UserID)
	if err != nil {
		return err
	}
	s.log.Info(ctx, "logout", "user_id", claims.UserID, "sessions", n)
	return nil
}

// Authenticate resolves a bearer access token to the account behind it.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (model.Account, error) {
	claims, err := s.tokens.VerifyAccess(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}
	r := s.store.Repos()
	u, err := r.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return s.account(ctx, r, u)
}

// account builds the role variant for u, enforcing the agronomist gate.
func (s *AuthService) account(ctx context.Context, r Repos, u model.User) (model.Account, error) {
	switch u.Role {
	case model.RoleFarmer:
		return &model.Farmer{User: u}, nil
	case model.RoleAdmin:
		return &model.Admin{User: u}, nil
	case model.RoleAgronomist:
		a, err := r.Agronomists.GetByUserID(ctx, u.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrPendingApproval
			}
			return nil, err
		}
		switch a.Profile.Status {
		case model.AgronomistVerified:
			a.User = u
			return &a, nil
		case model.AgronomistRejected:
			return nil, ErrRejected
		default:
			return nil, ErrPendingApproval
		}
	}
	return nil, fmt.Errorf("unknown role %q", u.Role)
}

// EnsureAdmin creates the bootstrap admin, or brings an existing one in line
// with the configured name, address and password.
func (s *AuthService) EnsureAdmin(ctx context.Context, cfg config.AdminConfig) error {
	if cfg.Mobile == "" || cfg.Password == "" {
		return nil
	}
	users := s.store.Repos().Users
	u, err := users.GetByMobile(ctx, cfg.Mobile)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		hash, err := utils.HashPassword(cfg.Password, s.cfg.BcryptCost)
		if err != nil {
			return err
		}
		u = model.User{
			FullName:     cfg.FullName,
			MobileNumber: cfg.Mobile,
			PasswordHash: hash,
			Role:         model.RoleAdmin,
			District:     cfg.District,
			Taluka:       cfg.Taluka,
			Language:     model.LangEnglish,
		}
		if err := users.Create(ctx, &u); err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		s.log.Info(ctx, "bootstrap admin created", "user_id", u.ID)
		return nil
	case err != nil:
		return err
	}
	if u.Role != model.RoleAdmin {
		return fmt.Errorf("bootstrap admin mobile %s belongs to a %s", cfg.Mobile, u.Role)
	}
	if u.FullName != cfg.FullName || u.District != cfg.District || u.Taluka != cfg.Taluka {
		u.FullName, u.District, u.Taluka = cfg.FullName, cfg.District, cfg.Taluka
		if err := users.UpdateProfile(ctx, u); err != nil {
			return err
		}
	}
	if !utils.VerifyPassword(u.PasswordHash, cfg.Password) {
		hash, err := utils.HashPassword(cfg.Password, s.cfg.BcryptCost)
		if err != nil {
			return err
		}
		if err := users.UpdatePassword(ctx, u.ID, hash); err != nil {
			return err
		}
		s.log.Info(ctx, "bootstrap admin password updated", "user_id", u.ID)
	}
	return nil
}

// RunSessionPurge deletes expired sessions every interval until ctx ends.
func (s *AuthService) RunSessionPurge(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.store.Repos().Sessions.PurgeExpired(ctx)
			if err != nil {
				s.log.Warn(ctx, "session purge failed", "error", err)
				continue
			}
			if n > 0 {
				s.log.Debug(ctx, "expired sessions purged", "count", n)
			}
		}
	}
}

// truncate cuts s to at most n bytes of valid UTF-8 without splitting a
// rune.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
