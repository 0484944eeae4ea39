package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/audit"
	"itdesk.org/internal/ids"
	"itdesk.org/internal/obs"
)

const defaultBcryptCost = 12

// ClientInfo identifies the device a session was opened from.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// LoginResult is returned by Login and Register.
type LoginResult struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// RefreshResult is returned by Refresh.
type RefreshResult struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// RegisterInput carries self-registration fields.
type RegisterInput struct {
	Email      string
	Username   string
	Password   string
	FirstName  string
	LastName   string
	Department string
}

// Profile is the authenticated user's own view.
type Profile struct {
	User        User     `json:"user"`
	Permissions []string `json:"permissions"`
}

// Service authenticates users, manages sessions and resolves principals.
type Service struct {
	store       Store
	issuer      *Issuer
	auditor     audit.Auditor
	log         *logrus.Logger
	now         func() time.Time
	bcryptCost  int
	defaultRole string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithAuditor sets the audit sink for login and session events.
func WithAuditor(a audit.Auditor) ServiceOption {
	return func(s *Service) { s.auditor = a }
}

// WithLogger overrides the service logger.
func WithLogger(l *logrus.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBcryptCost sets the cost used when hashing new passwords.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithDefaultRole names the role granted on self-registration.
func WithDefaultRole(name string) ServiceOption {
	return func(s *Service) {
		if name = strings.TrimSpace(name); name != "" {
			s.defaultRole = name
		}
	}
}

// WithTimeSource overrides the service clock.
func WithTimeSource(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs Service.
func NewService(store Store, issuer *Issuer, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		issuer:      issuer,
		log:         obs.Logger(),
		now:         time.Now,
		bcryptCost:  defaultBcryptCost,
		defaultRole: RoleUser,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies credentials and opens a new session.
func (s *Service) Login(ctx context.Context, email, password string, client ClientInfo) (LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		obs.ObserveLogin("invalid")
		return LoginResult{}, ErrInvalidCredentials
	}
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			obs.ObserveLogin("invalid")
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		obs.ObserveLogin("invalid")
		return LoginResult{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		obs.ObserveLogin("disabled")
		return LoginResult{}, ErrAccountDisabled
	}

	res, err := s.openSession(ctx, user, client)
	if err != nil {
		return LoginResult{}, err
	}
	now := s.now().UTC()
	if err := s.store.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("touch_last_login_failed")
	} else {
		res.User.LastLoginAt = &now
	}

	obs.ObserveLogin("success")
	s.record(ctx, user.ID, audit.ActionLogin, audit.Snapshot{"ipAddress": client.IPAddress, "userAgent": client.UserAgent})
	return res, nil
}

// Register creates an active account with the default role and logs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput, client ClientInfo) (LoginResult, error) {
	in.Email = normalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	fields := map[string]string{}
	if in.Email == "" {
		fields["email"] = "is required"
	}
	if in.Username == "" {
		fields["username"] = "is required"
	}
	if len(in.Password) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		return LoginResult{}, apperr.NewValidation(fields)
	}

	roleID, err := s.store.RoleIDByName(ctx, s.defaultRole)
	if err != nil {
		return LoginResult{}, fmt.Errorf("resolve default role %q: %w", s.defaultRole, err)
	}
	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return LoginResult{}, err
	}
	user, err := s.store.CreateUser(ctx, NewUser{
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Department:   strings.TrimSpace(in.Department),
		IsActive:     true,
		RoleIDs:      []string{roleID},
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return LoginResult{}, fmt.Errorf("%w: user with this email or username already exists", apperr.ErrConflict)
		}
		return LoginResult{}, err
	}

	res, err := s.openSession(ctx, user, client)
	if err != nil {
		return LoginResult{}, err
	}
	s.record(ctx, user.ID, audit.ActionRegister, audit.Snapshot{"email": user.Email, "username": user.Username})
	return res, nil
}

// Refresh issues a new access token for a refresh token whose session is
// still active. Signature validity alone is not enough.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return RefreshResult{}, err
	}
	now := s.now()
	sess, err := s.store.ActiveSessionByHash(ctx, HashToken(refreshToken), now)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return RefreshResult{}, ErrSessionRevoked
		}
		return RefreshResult{}, err
	}
	if !sess.IsActive || !sess.ExpiresAt.After(now) || sess.UserID != claims.Subject {
		return RefreshResult{}, ErrSessionRevoked
	}
	user, err := s.store.UserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return RefreshResult{}, ErrInvalidToken
		}
		return RefreshResult{}, err
	}
	if !user.IsActive {
		return RefreshResult{}, ErrAccountDisabled
	}
	access, _, err := s.issuer.IssueAccessToken(IdentityOf(user))
	if err != nil {
		return RefreshResult{}, err
	}
	return RefreshResult{AccessToken: access, ExpiresIn: int64(s.issuer.AccessTTL().Seconds())}, nil
}

// Logout revokes the session behind refreshToken. An empty token revokes nothing.
func (s *Service) Logout(ctx context.Context, userID, refreshToken string) error {
	revoked := false
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		ok, err := s.store.RevokeSession(ctx, userID, HashToken(refreshToken), s.now().UTC())
		if err != nil {
			return err
		}
		revoked = ok
	}
	s.record(ctx, userID, audit.ActionLogout, audit.Snapshot{"sessionRevoked": revoked})
	return nil
}

// LogoutAll revokes every active session of the user.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	n, err := s.store.RevokeUserSessions(ctx, userID, s.now().UTC())
	if err != nil {
		return err
	}
	s.record(ctx, userID, audit.ActionLogoutAll, audit.Snapshot{"revokedSessions": n})
	return nil
}

// Principal aggregates the user's effective permissions. It reads the store
// on every call so role changes apply to tokens already issued.
func (s *Service) Principal(ctx context.Context, userID string) (Principal, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	tags, err := s.store.UserPermissions(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(user, tags), nil
}

// Authenticate verifies an access token and resolves its principal.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.issuer.VerifyAccess(accessToken)
	if err != nil {
		return Principal{}, err
	}
	p, err := s.Principal(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, err
	}
	if !p.User.IsActive {
		return Principal{}, ErrAccountDisabled
	}
	return p, nil
}

// Profile returns the user with roles and effective permission tags.
func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	p, err := s.Principal(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{User: p.User, Permissions: p.Tags()}, nil
}

func (s *Service) openSession(ctx context.Context, user User, client ClientInfo) (LoginResult, error) {
	id := IdentityOf(user)
	access, _, err := s.issuer.IssueAccessToken(id)
	if err != nil {
		return LoginResult{}, err
	}
	refresh, refreshExp, err := s.issuer.IssueRefreshToken(id)
	if err != nil {
		return LoginResult{}, err
	}
	sess := Session{
		ID:        ids.New(),
		UserID:    user.ID,
		TokenHash: HashToken(refresh),
		ExpiresAt: refreshExp,
		IsActive:  true,
		UserAgent: client.UserAgent,
		IPAddress: client.IPAddress,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}
	return LoginResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
	}, nil
}

func (s *Service) record(ctx context.Context, userID, action string, values audit.Snapshot) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, userID, action, audit.ResourceAuth, userID, nil, values)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
