package pg

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"itdesk.org/internal/admin"
	"itdesk.org/internal/apperr"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/ids"
	"itdesk.org/internal/paging"
)

var userSortColumns = map[string]string{
	"createdAt": "u.created_at",
	"email":     "u.email",
	"username":  "u.username",
	"lastName":  "u.last_name",
}

// ListUsers pages through users, newest first. Role matches a role id or name.
func (s *Store) ListUsers(ctx context.Context, f admin.UserFilter) ([]auth.User, int, error) {
	if s.db == nil {
		return nil, 0, errUnavailable
	}
	var w where
	if f.Search != "" {
		p := w.arg(likePattern(f.Search))
		w.add(fmt.Sprintf("(u.email ilike %[1]s or u.username ilike %[1]s or u.first_name ilike %[1]s or u.last_name ilike %[1]s)", p))
	}
	if f.IsActive != nil {
		w.add("u.is_active = " + w.arg(*f.IsActive))
	}
	if f.Role != "" {
		p := w.arg(f.Role)
		w.add(fmt.Sprintf("exists (select 1 from user_roles ur join roles r on r.id = ur.role_id where ur.user_id = u.id and (r.id = %[1]s or r.name = %[1]s))", p))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users u`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	p := f.Page.Normalize(paging.DefaultLimit, paging.MaxLimit)
	args := append(append([]any{}, w.args...), p.Limit, p.Offset())
	query := `select ` + userColumns + ` from users u` + w.String() +
		orderBy(userSortColumns, "createdAt", "u.created_at", true) +
		fmt.Sprintf(" limit $%d offset $%d", len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := attachRoles(ctx, s.db, users); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// UpdateUser applies ch and, when RoleIDs is set, replaces the role set.
func (s *Store) UpdateUser(ctx context.Context, id string, ch admin.UserChange, at time.Time) (auth.User, error) {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var u setter
		if ch.Email != nil {
			u.set("email", *ch.Email)
		}
		if ch.Username != nil {
			u.set("username", *ch.Username)
		}
		if ch.PasswordHash != nil {
			u.set("password_hash", *ch.PasswordHash)
		}
		if ch.FirstName != nil {
			u.set("first_name", *ch.FirstName)
		}
		if ch.LastName != nil {
			u.set("last_name", *ch.LastName)
		}
		if ch.Department != nil {
			u.set("department", nullIfEmpty(*ch.Department))
		}
		if ch.IsActive != nil {
			u.set("is_active", *ch.IsActive)
		}
		u.set("updated_at", at)
		query, args := u.update("users", id)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return mapErr(err, "user")
		}
		if err := requireAffected(res, "user"); err != nil {
			return err
		}
		if ch.RoleIDs != nil {
			return replaceUserRoles(ctx, tx, id, *ch.RoleIDs)
		}
		return nil
	})
	if err != nil {
		return auth.User{}, err
	}
	return s.UserByID(ctx, id)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if s.db == nil {
		return errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return mapErr(err, "user")
	}
	return requireAffected(res, "user")
}

const roleColumns = `r.id, r.name, coalesce(r.description, ''),
	(select count(*) from user_roles ur where ur.role_id = r.id), r.created_at, r.updated_at`

func scanRole(row rowScanner) (auth.Role, error) {
	var r auth.Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.UserCount, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// attachPermissions loads the grants of every role in roles.
func attachPermissions(ctx context.Context, q querier, roles []auth.Role) error {
	if len(roles) == 0 {
		return nil
	}
	roleIDs := make([]string, len(roles))
	index := make(map[string]int, len(roles))
	for i, r := range roles {
		roleIDs[i] = r.ID
		index[r.ID] = i
	}
	rows, err := q.QueryContext(ctx, `
		select rp.role_id, p.id, p.resource, p.action, p.description
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = any($1::text[])
		order by p.resource asc, p.action asc
	`, textArray(roleIDs))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			roleID string
			p      auth.Permission
		)
		if err := rows.Scan(&roleID, &p.ID, &p.Resource, &p.Action, &p.Description); err != nil {
			return err
		}
		if i, ok := index[roleID]; ok {
			roles[i].Permissions = append(roles[i].Permissions, p)
		}
	}
	return rows.Err()
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `select `+roleColumns+` from roles r order by r.name asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []auth.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachPermissions(ctx, s.db, roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) RoleByID(ctx context.Context, id string) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errUnavailable
	}
	r, err := scanRole(s.db.QueryRowContext(ctx, `select `+roleColumns+` from roles r where r.id = $1`, id))
	if err != nil {
		return auth.Role{}, mapErr(err, "role")
	}
	list := []auth.Role{r}
	if err := attachPermissions(ctx, s.db, list); err != nil {
		return auth.Role{}, err
	}
	return list[0], nil
}

// grantPermissions replaces a role's grants with the permissions named by tags.
func grantPermissions(ctx context.Context, tx *sql.Tx, roleID string, tags []string) error {
	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	if len(tags) == 0 {
		return nil
	}
	res, err := tx.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id)
		select $1, p.id from permissions p
		where p.resource || ':' || p.action = any($2::text[])
	`, roleID, textArray(tags))
	if err != nil {
		return mapErr(err, "role permission")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) != len(tags) {
		return fmt.Errorf("%w: %d of %d permissions are not provisioned", apperr.ErrNotFound, len(tags)-int(n), len(tags))
	}
	return nil
}

func (s *Store) CreateRole(ctx context.Context, in admin.NewRole) (auth.Role, error) {
	id := ids.New()
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			insert into roles (id, name, description) values ($1, $2, $3)
		`, id, in.Name, nullIfEmpty(in.Description)); err != nil {
			return mapErr(err, "role")
		}
		return grantPermissions(ctx, tx, id, in.Permissions)
	})
	if err != nil {
		return auth.Role{}, err
	}
	return s.RoleByID(ctx, id)
}

func (s *Store) UpdateRole(ctx context.Context, id string, upd admin.RoleUpdate, at time.Time) (auth.Role, error) {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var u setter
		if upd.Name != nil {
			u.set("name", *upd.Name)
		}
		if upd.Description != nil {
			u.set("description", nullIfEmpty(*upd.Description))
		}
		u.set("updated_at", at)
		query, args := u.update("roles", id)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return mapErr(err, "role")
		}
		if err := requireAffected(res, "role"); err != nil {
			return err
		}
		if upd.Permissions != nil {
			return grantPermissions(ctx, tx, id, *upd.Permissions)
		}
		return nil
	})
	if err != nil {
		return auth.Role{}, err
	}
	return s.RoleByID(ctx, id)
}

// DeleteRole removes an unused role. user_roles restricts deletion of a role
// that is still held.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	if s.db == nil {
		return errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: role is assigned to users", apperr.ErrForbidden)
		}
		return err
	}
	return requireAffected(res, "role")
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, resource, action, description from permissions order by resource asc, action asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Resource, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Settings(ctx context.Context) (admin.Settings, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `select key, value from system_settings order by key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := admin.Settings{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// UpsertSettings writes values in key order within one transaction.
func (s *Store) UpsertSettings(ctx context.Context, values admin.Settings, actorID string, at time.Time) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, `
				insert into system_settings (key, value, updated_by, updated_at)
				values ($1, $2, $3, $4)
				on conflict (key) do update
				set value = excluded.value, updated_by = excluded.updated_by, updated_at = excluded.updated_at
			`, k, values[k], nullIfEmpty(actorID), at); err != nil {
				return mapErr(err, "setting")
			}
		}
		return nil
	})
}

func (s *Store) AdminStats(ctx context.Context, activeSince, auditSince time.Time) (admin.Stats, error) {
	if s.db == nil {
		return admin.Stats{}, errUnavailable
	}
	var st admin.Stats
	err := s.db.QueryRowContext(ctx, `
		select
			(select count(*) from users),
			(select count(*) from users where is_active and last_login_at >= $1),
			(select count(*) from roles),
			(select count(*) from permissions),
			(select count(*) from audit_logs where created_at >= $2)
	`, activeSince, auditSince).Scan(&st.TotalUsers, &st.ActiveUsers, &st.TotalRoles, &st.TotalPermissions, &st.RecentAuditLogs)
	if err != nil {
		return admin.Stats{}, err
	}
	return st, nil
}

var _ admin.Store = (*Store)(nil)
