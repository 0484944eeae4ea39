package admin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/audit"
	"itdesk.org/internal/auth"
)

const (
	defaultBcryptCost = 12
	activeWindow      = 30 * 24 * time.Hour
	auditWindow       = 24 * time.Hour
	// SettingsResourceID is the audit resource id of the global settings row set.
	SettingsResourceID = "global"
)

var validate = validator.New()

var settingKeyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]{0,99}$`)

// Store persists administration data.
type Store interface {
	ListUsers(ctx context.Context, f UserFilter) ([]auth.User, int, error)
	UserByID(ctx context.Context, id string) (auth.User, error)
	CreateUser(ctx context.Context, u auth.NewUser) (auth.User, error)
	UpdateUser(ctx context.Context, id string, ch UserChange, at time.Time) (auth.User, error)
	DeleteUser(ctx context.Context, id string) error

	ListRoles(ctx context.Context) ([]auth.Role, error)
	RoleByID(ctx context.Context, id string) (auth.Role, error)
	// CreateRole and UpdateRole resolve permission tags against the
	// permissions table.
	CreateRole(ctx context.Context, r NewRole) (auth.Role, error)
	UpdateRole(ctx context.Context, id string, upd RoleUpdate, at time.Time) (auth.Role, error)
	// DeleteRole refuses with ErrForbidden while users hold the role.
	DeleteRole(ctx context.Context, id string) error
	ListPermissions(ctx context.Context) ([]auth.Permission, error)

	Settings(ctx context.Context) (Settings, error)
	UpsertSettings(ctx context.Context, values Settings, actorID string, at time.Time) error

	ListAuditLogs(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error)
	AdminStats(ctx context.Context, activeSince, auditSince time.Time) (Stats, error)
}

// Service implements administration.
type Service struct {
	store      Store
	auditor    audit.Auditor
	now        func() time.Time
	bcryptCost int
	maxLimit   int
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

// WithBcryptCost sets the cost used for administrator-set passwords.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithMaxPageLimit caps audit-log page sizes.
func WithMaxPageLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// NewService constructs Service.
func NewService(store Store, auditor audit.Auditor, opts ...ServiceOption) *Service {
	s := &Service{store: store, auditor: auditor, now: time.Now, bcryptCost: defaultBcryptCost, maxLimit: 100}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Users lists accounts.
func (s *Service) Users(ctx context.Context, f UserFilter) ([]auth.User, int, error) {
	return s.store.ListUsers(ctx, f)
}

// User returns one account with its roles.
func (s *Service) User(ctx context.Context, id string) (auth.User, error) {
	return s.store.UserByID(ctx, id)
}

// CreateUser creates an account on behalf of an administrator.
func (s *Service) CreateUser(ctx context.Context, actorID string, in NewUser) (auth.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	fields := map[string]string{}
	if !validEmail(in.Email) {
		fields["email"] = "must be a valid email address"
	}
	if len(in.Password) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	if strings.TrimSpace(in.FirstName) == "" {
		fields["firstName"] = "is required"
	}
	if strings.TrimSpace(in.LastName) == "" {
		fields["lastName"] = "is required"
	}
	if len(fields) > 0 {
		return auth.User{}, apperr.NewValidation(fields)
	}
	if in.Username == "" {
		in.Username = in.Email[:strings.IndexByte(in.Email, '@')]
	}
	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return auth.User{}, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	user, err := s.store.CreateUser(ctx, auth.NewUser{
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Department:   strings.TrimSpace(in.Department),
		IsActive:     active,
		RoleIDs:      dedupe(in.RoleIDs),
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return auth.User{}, fmt.Errorf("%w: user with this email or username already exists", apperr.ErrConflict)
		}
		return auth.User{}, err
	}
	s.record(ctx, actorID, audit.ActionCreateUser, audit.ResourceUser, user.ID, nil, userSnapshot(user))
	return user, nil
}

// UpdateUser applies a partial change. Password changes are audited as a
// flag, never as a value.
func (s *Service) UpdateUser(ctx context.Context, actorID, id string, upd UserUpdate) (auth.User, error) {
	fields := map[string]string{}
	ch := UserChange{
		Username:   trimmed(upd.Username),
		FirstName:  trimmed(upd.FirstName),
		LastName:   trimmed(upd.LastName),
		Department: trimmed(upd.Department),
		IsActive:   upd.IsActive,
	}
	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		if !validEmail(email) {
			fields["email"] = "must be a valid email address"
		}
		ch.Email = &email
	}
	if ch.Username != nil && *ch.Username == "" {
		fields["username"] = "must not be empty"
	}
	if upd.Password != nil && len(*upd.Password) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		return auth.User{}, apperr.NewValidation(fields)
	}
	if upd.RoleIDs != nil {
		roles := dedupe(*upd.RoleIDs)
		ch.RoleIDs = &roles
	}

	before, err := s.store.UserByID(ctx, id)
	if err != nil {
		return auth.User{}, err
	}
	if upd.Password != nil {
		hash, err := auth.HashPassword(*upd.Password, s.bcryptCost)
		if err != nil {
			return auth.User{}, err
		}
		ch.PasswordHash = &hash
	}
	after, err := s.store.UpdateUser(ctx, id, ch, s.now().UTC())
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return auth.User{}, fmt.Errorf("%w: email or username already in use", apperr.ErrConflict)
		}
		return auth.User{}, err
	}
	oldV, newV := audit.Diff(userSnapshot(before), userSnapshot(after))
	if ch.PasswordHash != nil {
		if newV == nil {
			newV = audit.Snapshot{}
		}
		newV["passwordChanged"] = true
	}
	s.record(ctx, actorID, audit.ActionUpdateUser, audit.ResourceUser, id, oldV, newV)
	return after, nil
}

// DeleteUser removes an account. Administrators cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actorID, id string) error {
	if id == actorID {
		return fmt.Errorf("%w: cannot delete your own account", apperr.ErrForbidden)
	}
	before, err := s.store.UserByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, audit.ActionDeleteUser, audit.ResourceUser, id, userSnapshot(before), nil)
	return nil
}

// Roles lists roles with their grants and member counts.
func (s *Service) Roles(ctx context.Context) ([]auth.Role, error) {
	return s.store.ListRoles(ctx)
}

// Role returns one role.
func (s *Service) Role(ctx context.Context, id string) (auth.Role, error) {
	return s.store.RoleByID(ctx, id)
}

// CreateRole defines a new role.
func (s *Service) CreateRole(ctx context.Context, actorID string, in NewRole) (auth.Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	fields := map[string]string{}
	if in.Name == "" {
		fields["name"] = "is required"
	}
	tags, bad := normalizeTags(in.Permissions)
	if bad != "" {
		fields["permissions"] = fmt.Sprintf("unknown permission %q", bad)
	}
	if len(fields) > 0 {
		return auth.Role{}, apperr.NewValidation(fields)
	}
	in.Permissions = tags
	role, err := s.store.CreateRole(ctx, in)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return auth.Role{}, fmt.Errorf("%w: role %q already exists", apperr.ErrConflict, in.Name)
		}
		return auth.Role{}, err
	}
	s.record(ctx, actorID, audit.ActionCreateRole, audit.ResourceRole, role.ID, nil, roleSnapshot(role))
	return role, nil
}

// UpdateRole renames a role or replaces its grants.
func (s *Service) UpdateRole(ctx context.Context, actorID, id string, upd RoleUpdate) (auth.Role, error) {
	fields := map[string]string{}
	upd.Name = trimmed(upd.Name)
	upd.Description = trimmed(upd.Description)
	if upd.Name != nil && *upd.Name == "" {
		fields["name"] = "must not be empty"
	}
	if upd.Permissions != nil {
		tags, bad := normalizeTags(*upd.Permissions)
		if bad != "" {
			fields["permissions"] = fmt.Sprintf("unknown permission %q", bad)
		}
		upd.Permissions = &tags
	}
	if len(fields) > 0 {
		return auth.Role{}, apperr.NewValidation(fields)
	}
	before, err := s.store.RoleByID(ctx, id)
	if err != nil {
		return auth.Role{}, err
	}
	after, err := s.store.UpdateRole(ctx, id, upd, s.now().UTC())
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return auth.Role{}, fmt.Errorf("%w: role name already in use", apperr.ErrConflict)
		}
		return auth.Role{}, err
	}
	oldV, newV := audit.Diff(roleSnapshot(before), roleSnapshot(after))
	s.record(ctx, actorID, audit.ActionUpdateRole, audit.ResourceRole, id, oldV, newV)
	return after, nil
}

// DeleteRole removes a role nobody holds.
func (s *Service) DeleteRole(ctx context.Context, actorID, id string) error {
	before, err := s.store.RoleByID(ctx, id)
	if err != nil {
		return err
	}
	if before.UserCount > 0 {
		return fmt.Errorf("%w: cannot delete role that is assigned to users", apperr.ErrForbidden)
	}
	if err := s.store.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, audit.ActionDeleteRole, audit.ResourceRole, id, roleSnapshot(before), nil)
	return nil
}

// Permissions lists the stored permission catalog.
func (s *Service) Permissions(ctx context.Context) ([]auth.Permission, error) {
	return s.store.ListPermissions(ctx)
}

// Settings returns the system settings.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	return s.store.Settings(ctx)
}

// UpdateSettings upserts values and returns the full settings set. Secret
// values are masked in the audit entry.
func (s *Service) UpdateSettings(ctx context.Context, actorID string, values Settings) (Settings, error) {
	if len(values) == 0 {
		return nil, apperr.FieldError("settings", "at least one setting is required")
	}
	fields := map[string]string{}
	for k := range values {
		if !settingKeyPattern.MatchString(k) {
			fields[k] = "invalid setting key"
		}
	}
	if len(fields) > 0 {
		return nil, apperr.NewValidation(fields)
	}
	before, err := s.store.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpsertSettings(ctx, values, actorID, s.now().UTC()); err != nil {
		return nil, err
	}
	after, err := s.store.Settings(ctx)
	if err != nil {
		return nil, err
	}
	oldV, newV := audit.Diff(settingsSnapshot(before, values), settingsSnapshot(after, values))
	maskSecrets(oldV)
	maskSecrets(newV)
	if newV != nil {
		s.record(ctx, actorID, audit.ActionUpdateSettings, audit.ResourceSettings, SettingsResourceID, oldV, newV)
	}
	return after, nil
}

// AuditLogs queries the audit trail, newest first.
func (s *Service) AuditLogs(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, 0, apperr.FieldError("endDate", "must not precede startDate")
	}
	return s.store.ListAuditLogs(ctx, f.Normalize(s.maxLimit))
}

// Stats returns dashboard counters.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	now := s.now().UTC()
	return s.store.AdminStats(ctx, now.Add(-activeWindow), now.Add(-auditWindow))
}

func (s *Service) record(ctx context.Context, actorID, action, resource, id string, oldV, newV audit.Snapshot) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, actorID, action, resource, id, oldV, newV)
}

// settingsSnapshot projects the keys touched by an update.
func settingsSnapshot(all, touched Settings) audit.Snapshot {
	out := audit.Snapshot{}
	for k := range touched {
		if v, ok := all[k]; ok {
			out[k] = v
		}
	}
	return out
}

func maskSecrets(s audit.Snapshot) {
	for k := range s {
		if secretKey(k) {
			s[k] = "********"
		}
	}
}

func secretKey(k string) bool {
	k = strings.ToLower(k)
	return strings.Contains(k, "password") || strings.Contains(k, "secret") || strings.Contains(k, "token")
}

// normalizeTags trims, dedupes and sorts tags, returning the first tag
// missing from the catalog.
func normalizeTags(tags []string) ([]string, string) {
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if !auth.InCatalog(t) {
			return nil, t
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out, ""
}

func validEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
