package admin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/audit"
	"itdesk.org/internal/audit/audittest"
	"itdesk.org/internal/auth"
)

type stubStore struct {
	Store

	users    map[string]auth.User
	roles    map[string]auth.Role
	settings Settings
	created  auth.NewUser
	change   UserChange
	deleted  []string
	filter   audit.Filter
}

func newStubStore() *stubStore {
	return &stubStore{
		users: map[string]auth.User{
			"admin": {ID: "admin", Email: "admin@itdesk.local", IsActive: true},
			"bob":   {ID: "bob", Email: "bob@itdesk.local", FirstName: "Bob", IsActive: true},
		},
		roles: map[string]auth.Role{
			"r-user":  {ID: "r-user", Name: "User", UserCount: 3},
			"r-audit": {ID: "r-audit", Name: "Auditor", Permissions: []auth.Permission{{Resource: "audit", Action: "read"}}},
		},
		settings: Settings{"siteName": "IT Desk", "smtpPassword": "hunter22"},
	}
}

func (s *stubStore) UserByID(_ context.Context, id string) (auth.User, error) {
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, apperr.ErrNotFound
	}
	return u, nil
}

func (s *stubStore) CreateUser(_ context.Context, nu auth.NewUser) (auth.User, error) {
	s.created = nu
	for _, u := range s.users {
		if u.Email == nu.Email {
			return auth.User{}, apperr.ErrConflict
		}
	}
	u := auth.User{ID: "new", Email: nu.Email, Username: nu.Username, IsActive: nu.IsActive}
	s.users[u.ID] = u
	return u, nil
}

func (s *stubStore) UpdateUser(_ context.Context, id string, ch UserChange, _ time.Time) (auth.User, error) {
	s.change = ch
	u := s.users[id]
	if ch.FirstName != nil {
		u.FirstName = *ch.FirstName
	}
	if ch.IsActive != nil {
		u.IsActive = *ch.IsActive
	}
	s.users[id] = u
	return u, nil
}

func (s *stubStore) DeleteUser(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	delete(s.users, id)
	return nil
}

func (s *stubStore) RoleByID(_ context.Context, id string) (auth.Role, error) {
	r, ok := s.roles[id]
	if !ok {
		return auth.Role{}, apperr.ErrNotFound
	}
	return r, nil
}

func (s *stubStore) CreateRole(_ context.Context, in NewRole) (auth.Role, error) {
	r := auth.Role{ID: "r-new", Name: in.Name}
	for _, tag := range in.Permissions {
		res, act, _ := auth.ParseTag(tag)
		r.Permissions = append(r.Permissions, auth.Permission{Resource: res, Action: act})
	}
	s.roles[r.ID] = r
	return r, nil
}

func (s *stubStore) UpdateRole(_ context.Context, id string, upd RoleUpdate, _ time.Time) (auth.Role, error) {
	r := s.roles[id]
	if upd.Permissions != nil {
		r.Permissions = nil
		for _, tag := range *upd.Permissions {
			res, act, _ := auth.ParseTag(tag)
			r.Permissions = append(r.Permissions, auth.Permission{Resource: res, Action: act})
		}
	}
	s.roles[id] = r
	return r, nil
}

func (s *stubStore) DeleteRole(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	delete(s.roles, id)
	return nil
}

func (s *stubStore) Settings(context.Context) (Settings, error) {
	out := Settings{}
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}

func (s *stubStore) UpsertSettings(_ context.Context, values Settings, _ string, _ time.Time) error {
	for k, v := range values {
		s.settings[k] = v
	}
	return nil
}

func (s *stubStore) ListAuditLogs(_ context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	s.filter = f
	return nil, 0, nil
}

func newTestService() (*Service, *stubStore, *audittest.Recorder) {
	store := newStubStore()
	rec := &audittest.Recorder{}
	return NewService(store, rec, WithBcryptCost(bcrypt.MinCost)), store, rec
}

func TestCreateUser(t *testing.T) {
	svc, store, rec := newTestService()

	user, err := svc.CreateUser(context.Background(), "admin", NewUser{
		Email:     " Carol@ITDesk.local ",
		Password:  "correct-horse",
		FirstName: "Carol",
		LastName:  "Ng",
		RoleIDs:   []string{"r-user", "r-user", " "},
	})
	require.NoError(t, err)
	assert.Equal(t, "carol@itdesk.local", user.Email)
	assert.Equal(t, "carol", store.created.Username)
	assert.True(t, store.created.IsActive)
	assert.Equal(t, []string{"r-user"}, store.created.RoleIDs)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.created.PasswordHash), []byte("correct-horse")))

	e, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, audit.ActionCreateUser, e.Action)
	assert.Equal(t, audit.ResourceUser, e.ResourceType)
	assert.NotContains(t, e.NewValues, "password")
}

func TestCreateUserValidationAndConflict(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "admin", NewUser{Email: "not-an-email", Password: "short"})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	details := apperr.Details(err)
	for _, f := range []string{"email", "password", "firstName", "lastName"} {
		assert.Contains(t, details, f)
	}

	_, err = svc.CreateUser(ctx, "admin", NewUser{Email: "bob@itdesk.local", Password: "long-enough", FirstName: "B", LastName: "B"})
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestUpdateUserRecordsOnlyChanges(t *testing.T) {
	svc, store, rec := newTestService()

	name := " Robert "
	pw := "new-password"
	_, err := svc.UpdateUser(context.Background(), "admin", "bob", UserUpdate{FirstName: &name, Password: &pw})
	require.NoError(t, err)
	require.NotNil(t, store.change.PasswordHash)
	assert.Equal(t, "Robert", *store.change.FirstName)

	e, _ := rec.Last()
	assert.Equal(t, audit.Snapshot{"firstName": "Bob"}, e.OldValues)
	assert.Equal(t, audit.Snapshot{"firstName": "Robert", "passwordChanged": true}, e.NewValues)
}

func TestDeleteSelfForbidden(t *testing.T) {
	svc, store, rec := newTestService()

	err := svc.DeleteUser(context.Background(), "admin", "admin")
	require.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Empty(t, store.deleted)
	assert.Empty(t, rec.Entries())

	require.NoError(t, svc.DeleteUser(context.Background(), "admin", "bob"))
	assert.Equal(t, []string{"bob"}, store.deleted)
	assert.Equal(t, []string{audit.ActionDeleteUser}, rec.Actions())
}

func TestDeleteRoleInUseForbidden(t *testing.T) {
	svc, store, _ := newTestService()

	require.ErrorIs(t, svc.DeleteRole(context.Background(), "admin", "r-user"), apperr.ErrForbidden)
	require.NoError(t, svc.DeleteRole(context.Background(), "admin", "r-audit"))
	assert.Equal(t, []string{"r-audit"}, store.deleted)
}

func TestCreateRoleRejectsUnknownTags(t *testing.T) {
	svc, _, rec := newTestService()

	_, err := svc.CreateRole(context.Background(), "admin", NewRole{Name: "Ops", Permissions: []string{auth.PermAssetsRead, "assets:teleport"}})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Contains(t, apperr.Details(err)["permissions"], "assets:teleport")

	role, err := svc.CreateRole(context.Background(), "admin", NewRole{Name: "Ops", Permissions: []string{auth.PermAssetsRead, auth.PermAssetsRead}})
	require.NoError(t, err)
	require.Len(t, role.Permissions, 1)
	assert.Equal(t, []string{audit.ActionCreateRole}, rec.Actions())
}

func TestUpdateRolePermissionsDiff(t *testing.T) {
	svc, _, rec := newTestService()

	perms := []string{auth.PermAuditRead, auth.PermAdminRead}
	_, err := svc.UpdateRole(context.Background(), "admin", "r-audit", RoleUpdate{Permissions: &perms})
	require.NoError(t, err)

	e, _ := rec.Last()
	assert.Equal(t, audit.Snapshot{"permissions": []string{"audit:read"}}, e.OldValues)
	assert.Equal(t, audit.Snapshot{"permissions": []string{"admin:read", "audit:read"}}, e.NewValues)
}

func TestUpdateSettingsMasksSecrets(t *testing.T) {
	svc, _, rec := newTestService()

	got, err := svc.UpdateSettings(context.Background(), "admin", Settings{"smtpPassword": "s3cret!", "maintenanceMode": "true"})
	require.NoError(t, err)
	assert.Equal(t, "true", got["maintenanceMode"])
	assert.Equal(t, "IT Desk", got["siteName"])

	e, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, audit.ResourceSettings, e.ResourceType)
	assert.Equal(t, SettingsResourceID, e.ResourceID)
	assert.Equal(t, "true", e.NewValues["maintenanceMode"])
	assert.Equal(t, "********", e.NewValues["smtpPassword"])

	_, err = svc.UpdateSettings(context.Background(), "admin", Settings{"bad key!": "x"})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestAuditLogsAppliesDefaults(t *testing.T) {
	svc, store, _ := newTestService()

	_, _, err := svc.AuditLogs(context.Background(), audit.Filter{Action: audit.ActionLogin})
	require.NoError(t, err)
	assert.Equal(t, 50, store.filter.Page.Limit)
	assert.Equal(t, 1, store.filter.Page.Page)

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	_, _, err = svc.AuditLogs(context.Background(), audit.Filter{From: &from, To: &to})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}
