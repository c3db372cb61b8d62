package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"fundportal/internal/core"
	"fundportal/internal/log"
	"fundportal/internal/ports"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength applies to passwords set through CreateUser.
const MinPasswordLength = 8

// dummyHash is compared against when the user does not exist, so unknown
// users take as long to reject as wrong passwords.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("fundportal-dummy-password"), bcrypt.DefaultCost)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// AuthService issues and resolves session tokens.
type AuthService struct {
	users    ports.UserStore
	sessions ports.SessionStore
	ttl      time.Duration
	now      func() time.Time
	logger   *log.Logger
}

func NewAuthService(users ports.UserStore, sessions ports.SessionStore, ttl time.Duration, logger *log.Logger) *AuthService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.WithComponent(log.ComponentAuth),
	}
}

// Login checks the credentials and opens a session. Unknown users, inactive
// users and wrong passwords all yield core.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (core.Session, core.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return core.Session{}, core.User{}, core.ErrInvalidCredentials
	}
	u, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, core.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		s.logger.InfoContext(ctx, "Login failed", log.FieldUser, username, "reason", "unknown user")
		return core.Session{}, core.User{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return core.Session{}, core.User{}, fmt.Errorf("login %s: %w", username, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil || !u.Active {
		s.logger.InfoContext(ctx, "Login failed", log.FieldUser, username, "reason", "bad password or inactive")
		return core.Session{}, core.User{}, core.ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return core.Session{}, core.User{}, err
	}
	now := s.now().UTC().Truncate(time.Second)
	sess := core.Session{Token: token, UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return core.Session{}, core.User{}, fmt.Errorf("create session: %w", err)
	}
	s.logger.InfoContext(ctx, "Login succeeded", log.FieldUser, u.Username, log.FieldRole, string(u.Role))
	return sess, u, nil
}

// Authenticate resolves a token to the principal it was issued to.
func (s *AuthService) Authenticate(ctx context.Context, token string) (core.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return core.Principal{}, core.ErrUnauthorized
	}
	sess, err := s.sessions.GetSession(ctx, token)
	if errors.Is(err, core.ErrNotFound) {
		return core.Principal{}, core.ErrUnauthorized
	}
	if err != nil {
		return core.Principal{}, fmt.Errorf("get session: %w", err)
	}
	if sess.Expired(s.now()) {
		_ = s.sessions.DeleteSession(ctx, token)
		return core.Principal{}, core.ErrUnauthorized
	}
	u, err := s.users.GetUser(ctx, sess.UserID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Principal{}, core.ErrUnauthorized
	}
	if err != nil {
		return core.Principal{}, fmt.Errorf("get user: %w", err)
	}
	if !u.Active {
		return core.Principal{}, core.ErrUnauthorized
	}
	return u.Principal(), nil
}

// Logout ends the session. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, token); err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// PurgeExpired removes expired sessions.
func (s *AuthService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	if n > 0 {
		s.logger.DebugContext(ctx, "Expired sessions removed", "count", n)
	}
	return n, nil
}

// NewUser is the input of CreateUser.
type NewUser struct {
	Username     string
	Password     string
	Role         core.Role
	DisplayName  string
	DistrictID   int64
	AgencyID     int64
	VendorID     int64
	Constituency string
}

// CreateUser adds an account. p must be allowed to manage users; the zero
// principal is accepted for bootstrap from the command line.
func (s *AuthService) CreateUser(ctx context.Context, p core.Principal, in NewUser) (core.User, error) {
	if p != (core.Principal{}) {
		if err := require(p, core.PermManageUsers); err != nil {
			return core.User{}, err
		}
	}
	role, err := core.ParseRole(string(in.Role))
	if err != nil {
		return core.User{}, err
	}
	if len(in.Password) < MinPasswordLength {
		return core.User{}, fmt.Errorf("%w: password must have at least %d characters", core.ErrInvalidInput, MinPasswordLength)
	}
	u := core.User{
		Username:     strings.ToLower(strings.TrimSpace(in.Username)),
		Role:         role,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		DistrictID:   in.DistrictID,
		AgencyID:     in.AgencyID,
		VendorID:     in.VendorID,
		Constituency: strings.TrimSpace(in.Constituency),
		Active:       true,
	}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	switch {
	case role == core.RoleDistrict && u.DistrictID == 0,
		role == core.RoleIA && u.AgencyID == 0,
		role == core.RoleVendor && u.VendorID == 0:
		return core.User{}, fmt.Errorf("%w: %s accounts need their %s", core.ErrInvalidInput, role.Label(), scopeName(role))
	}
	if u.PasswordHash, err = HashPassword(in.Password); err != nil {
		return core.User{}, err
	}
	created, err := s.users.CreateUser(ctx, u)
	if err != nil {
		return core.User{}, fmt.Errorf("create user %s: %w", u.Username, err)
	}
	s.logger.InfoContext(ctx, "User created", log.FieldUser, created.Username, log.FieldRole, string(created.Role))
	return created, nil
}

// ListUsers returns the accounts with role, or all accounts when role is
// empty. Password hashes are cleared.
func (s *AuthService) ListUsers(ctx context.Context, role core.Role) ([]core.User, error) {
	all, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]core.User, 0, len(all))
	for _, u := range all {
		if role != "" && u.Role != role {
			continue
		}
		u.PasswordHash = ""
		out = append(out, u)
	}
	return out, nil
}

func scopeName(r core.Role) string {
	switch r {
	case core.RoleDistrict:
		return "district"
	case core.RoleIA:
		return "implementing agency"
	case core.RoleVendor:
		return "vendor record"
	}
	return "scope"
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
