package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/audit"
	"itdesk.org/internal/audit/audittest"
)

type memStore struct {
	mu       sync.Mutex
	users    map[string]User
	perms    map[string][]string
	sessions map[string]Session
	roles    map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]User{},
		perms:    map[string][]string{},
		sessions: map[string]Session{},
		roles:    map[string]string{RoleUser: "role-user"},
	}
}

func (m *memStore) UserByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, apperr.ErrNotFound
}

func (m *memStore) UserByID(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, apperr.ErrNotFound
	}
	return u, nil
}

func (m *memStore) CreateUser(_ context.Context, nu NewUser) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == nu.Email || u.Username == nu.Username {
			return User{}, apperr.ErrConflict
		}
	}
	u := User{ID: "user-" + nu.Username, Email: nu.Email, Username: nu.Username, PasswordHash: nu.PasswordHash, IsActive: nu.IsActive}
	m.users[u.ID] = u
	return u, nil
}

func (m *memStore) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.LastLoginAt = &at
	m.users[userID] = u
	return nil
}

func (m *memStore) RoleIDByName(_ context.Context, name string) (string, error) {
	id, ok := m.roles[name]
	if !ok {
		return "", apperr.ErrNotFound
	}
	return id, nil
}

func (m *memStore) UserPermissions(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.perms[userID]...), nil
}

func (m *memStore) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.TokenHash] = s
	return nil
}

func (m *memStore) ActiveSessionByHash(_ context.Context, hash string, now time.Time) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[hash]
	if !ok || !s.IsActive || !s.ExpiresAt.After(now) {
		return Session{}, apperr.ErrNotFound
	}
	return s, nil
}

func (m *memStore) RevokeSession(_ context.Context, userID, hash string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[hash]
	if !ok || s.UserID != userID || !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	s.RevokedAt = &at
	m.sessions[hash] = s
	return true, nil
}

func (m *memStore) RevokeUserSessions(_ context.Context, userID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, s := range m.sessions {
		if s.UserID == userID && s.IsActive {
			s.IsActive = false
			s.RevokedAt = &at
			m.sessions[h] = s
			n++
		}
	}
	return n, nil
}

func (m *memStore) addUser(t *testing.T, id, email, password string, active bool, perms ...string) {
	t.Helper()
	hash, err := HashPassword(password, 4)
	require.NoError(t, err)
	m.users[id] = User{ID: id, Email: email, Username: id, PasswordHash: hash, IsActive: active}
	m.perms[id] = perms
}

func newTestService(t *testing.T) (*Service, *memStore, *audittest.Recorder) {
	t.Helper()
	store := newMemStore()
	rec := &audittest.Recorder{}
	svc := NewService(store, newTestIssuer(t, time.Now), WithAuditor(rec), WithBcryptCost(4))
	return svc, store, rec
}

func TestLoginOpensSessionAndAudits(t *testing.T) {
	svc, store, rec := newTestService(t)
	store.addUser(t, "u1", "ops@example.com", "s3cret-pass", true, PermRequestsRead)

	res, err := svc.Login(context.Background(), " OPS@example.com ", "s3cret-pass", ClientInfo{IPAddress: "10.1.1.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, int64(1800), res.ExpiresIn)
	assert.NotNil(t, res.User.LastLoginAt)

	sess, ok := store.sessions[HashToken(res.RefreshToken)]
	require.True(t, ok, "session stored under refresh token hash")
	assert.Equal(t, "u1", sess.UserID)
	assert.True(t, sess.IsActive)
	assert.Equal(t, "10.1.1.1", sess.IPAddress)

	assert.Equal(t, []string{audit.ActionLogin}, rec.Actions())
}

func TestLoginFailures(t *testing.T) {
	svc, store, rec := newTestService(t)
	store.addUser(t, "u1", "ops@example.com", "s3cret-pass", true)
	store.addUser(t, "u2", "gone@example.com", "s3cret-pass", false)

	cases := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"unknown email", "nobody@example.com", "s3cret-pass", ErrInvalidCredentials},
		{"wrong password", "ops@example.com", "nope", ErrInvalidCredentials},
		{"empty password", "ops@example.com", "", ErrInvalidCredentials},
		{"deactivated", "gone@example.com", "s3cret-pass", ErrAccountDisabled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tc.email, tc.password, ClientInfo{})
			require.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
		})
	}
	assert.Empty(t, rec.Actions())
	assert.Empty(t, store.sessions)
}

func TestRefreshRequiresActiveSession(t *testing.T) {
	svc, store, rec := newTestService(t)
	store.addUser(t, "u1", "ops@example.com", "s3cret-pass", true)
	ctx := context.Background()

	first, err := svc.Login(ctx, "ops@example.com", "s3cret-pass", ClientInfo{})
	require.NoError(t, err)
	second, err := svc.Login(ctx, "ops@example.com", "s3cret-pass", ClientInfo{})
	require.NoError(t, err)

	out, err := svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, out.AccessToken)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, first.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken, "access token must not refresh")

	require.NoError(t, svc.LogoutAll(ctx, "u1"))
	for _, tok := range []string{first.RefreshToken, second.RefreshToken} {
		_, err = svc.Refresh(ctx, tok)
		require.ErrorIs(t, err, ErrSessionRevoked)
	}
	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, audit.ActionLogoutAll, last.Action)
	assert.Equal(t, int64(2), last.NewValues["revokedSessions"])
}

func TestLogoutRevokesOnlyMatchingSession(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addUser(t, "u1", "ops@example.com", "s3cret-pass", true)
	ctx := context.Background()

	a, _ := svc.Login(ctx, "ops@example.com", "s3cret-pass", ClientInfo{})
	b, _ := svc.Login(ctx, "ops@example.com", "s3cret-pass", ClientInfo{})

	require.NoError(t, svc.Logout(ctx, "u1", a.RefreshToken))
	_, err := svc.Refresh(ctx, a.RefreshToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
	_, err = svc.Refresh(ctx, b.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, "u1", ""))
	_, err = svc.Refresh(ctx, b.RefreshToken)
	require.NoError(t, err, "logout without a token revokes nothing")
}

func TestRefreshRejectsDeactivatedUser(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addUser(t, "u1", "ops@example.com", "s3cret-pass", true)
	ctx := context.Background()

	res, err := svc.Login(ctx, "ops@example.com", "s3cret-pass", ClientInfo{})
	require.NoError(t, err)

	u := store.users["u1"]
	u.IsActive = false
	store.users["u1"] = u

	_, err = svc.Refresh(ctx, res.RefreshToken)
	require.ErrorIs(t, err, ErrAccountDisabled)
	_, err = svc.Authenticate(ctx, res.AccessToken)
	require.ErrorIs(t, err, ErrAccountDisabled)
}

func TestAuthenticateSeesPermissionChangesImmediately(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addUser(t, "u1", "ops@example.com", "s3cret-pass", true, PermRequestsRead)
	ctx := context.Background()

	res, err := svc.Login(ctx, "ops@example.com", "s3cret-pass", ClientInfo{})
	require.NoError(t, err)

	p, err := svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	require.Error(t, Authorize(&p, []string{PermRequestsDelete}))

	store.mu.Lock()
	store.perms["u1"] = append(store.perms["u1"], PermRequestsDelete)
	store.mu.Unlock()

	p, err = svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	require.NoError(t, Authorize(&p, []string{PermRequestsDelete}))
}

func TestRegisterAssignsDefaultRole(t *testing.T) {
	svc, store, rec := newTestService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Email: "New@Example.com", Username: "newbie", Password: "long-enough"}, ClientInfo{})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", res.User.Email)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, []string{audit.ActionRegister}, rec.Actions())

	_, err = svc.Register(ctx, RegisterInput{Email: "new@example.com", Username: "other", Password: "long-enough"}, ClientInfo{})
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.Register(ctx, RegisterInput{Email: "x@example.com", Username: "x", Password: "short"}, ClientInfo{})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Contains(t, apperr.Details(err), "password")

	delete(store.roles, RoleUser)
	_, err = svc.Register(ctx, RegisterInput{Email: "y@example.com", Username: "y", Password: "long-enough"}, ClientInfo{})
	require.True(t, errors.Is(err, apperr.ErrNotFound))
}
