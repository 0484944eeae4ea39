package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"itdesk.org/internal/auth"
	"itdesk.org/internal/ids"
)

const userColumns = `u.id, u.email, u.username, u.password_hash, u.first_name, u.last_name,
	coalesce(u.department, ''), u.is_active, u.is_verified, u.last_login_at, u.created_at, u.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var (
		u         auth.User
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Department, &u.IsActive, &u.IsVerified, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return auth.User{}, err
	}
	u.LastLoginAt = timePtr(lastLogin)
	return u, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// attachRoles loads the roles of every user in users with one query.
func attachRoles(ctx context.Context, q querier, users []auth.User) error {
	if len(users) == 0 {
		return nil
	}
	userIDs := make([]string, len(users))
	index := make(map[string]int, len(users))
	for i, u := range users {
		userIDs[i] = u.ID
		index[u.ID] = i
	}
	rows, err := q.QueryContext(ctx, `
		select ur.user_id, r.id, r.name, coalesce(r.description, ''), r.created_at, r.updated_at
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = any($1::text[])
		order by r.name asc
	`, textArray(userIDs))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			userID string
			r      auth.Role
		)
		if err := rows.Scan(&userID, &r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return err
		}
		if i, ok := index[userID]; ok {
			users[i].Roles = append(users[i].Roles, r)
		}
	}
	return rows.Err()
}

func (s *Store) userWhere(ctx context.Context, q querier, clause string, arg any) (auth.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, `select `+userColumns+` from users u where `+clause, arg))
	if err != nil {
		return auth.User{}, mapErr(err, "user")
	}
	list := []auth.User{u}
	if err := attachRoles(ctx, q, list); err != nil {
		return auth.User{}, err
	}
	return list[0], nil
}

// UserByEmail looks a user up by lower-cased email.
func (s *Store) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errUnavailable
	}
	return s.userWhere(ctx, s.db, "u.email = $1", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) UserByID(ctx context.Context, id string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errUnavailable
	}
	return s.userWhere(ctx, s.db, "u.id = $1", id)
}

// CreateUser inserts the user and its role grants in one transaction.
func (s *Store) CreateUser(ctx context.Context, in auth.NewUser) (auth.User, error) {
	id := ids.New()
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			insert into users (id, email, username, password_hash, first_name, last_name, department, is_active)
			values ($1, $2, $3, $4, $5, $6, $7, $8)
		`, id, in.Email, in.Username, in.PasswordHash, in.FirstName, in.LastName, nullIfEmpty(in.Department), in.IsActive); err != nil {
			return mapErr(err, "user")
		}
		return replaceUserRoles(ctx, tx, id, in.RoleIDs)
	})
	if err != nil {
		return auth.User{}, err
	}
	return s.UserByID(ctx, id)
}

func replaceUserRoles(ctx context.Context, tx *sql.Tx, userID string, roleIDs []string) error {
	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, userID); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id) values ($1, $2)
			on conflict do nothing
		`, userID, roleID); err != nil {
			return mapErr(err, "role")
		}
	}
	return nil
}

func (s *Store) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	if s.db == nil {
		return errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `update users set last_login_at = $2 where id = $1`, userID, at)
	if err != nil {
		return err
	}
	return requireAffected(res, "user")
}

func (s *Store) RoleIDByName(ctx context.Context, name string) (string, error) {
	if s.db == nil {
		return "", errUnavailable
	}
	var id string
	if err := s.db.QueryRowContext(ctx, `select id from roles where name = $1`, name).Scan(&id); err != nil {
		return "", mapErr(err, fmt.Sprintf("role %q", name))
	}
	return id, nil
}

// UserPermissions returns the distinct "resource:action" tags granted to the
// user through any of its roles.
func (s *Store) UserPermissions(ctx context.Context, userID string) ([]string, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.resource || ':' || p.action
		from user_roles ur
		join role_permissions rp on rp.role_id = ur.role_id
		join permissions p on p.id = rp.permission_id
		where ur.user_id = $1
		order by 1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *Store) CreateSession(ctx context.Context, sess auth.Session) error {
	if s.db == nil {
		return errUnavailable
	}
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, user_id, token_hash, expires_at, is_active, user_agent, ip_address, created_at)
		values ($1, $2, $3, $4, true, $5, $6, $7)
	`, sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt, nullIfEmpty(sess.UserAgent), nullIfEmpty(sess.IPAddress), sess.CreatedAt)
	return mapErr(err, "session")
}

func (s *Store) ActiveSessionByHash(ctx context.Context, tokenHash string, now time.Time) (auth.Session, error) {
	if s.db == nil {
		return auth.Session{}, errUnavailable
	}
	var (
		sess      auth.Session
		revokedAt sql.NullTime
		ua, ip    sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, expires_at, is_active, revoked_at, user_agent, ip_address, created_at
		from sessions
		where token_hash = $1 and is_active and expires_at > $2
	`, tokenHash, now).Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.ExpiresAt, &sess.IsActive,
		&revokedAt, &ua, &ip, &sess.CreatedAt)
	if err != nil {
		return auth.Session{}, mapErr(err, "session")
	}
	sess.RevokedAt = timePtr(revokedAt)
	sess.UserAgent = ua.String
	sess.IPAddress = ip.String
	return sess, nil
}

// RevokeSession deactivates the user's session for tokenHash and reports
// whether one was active.
func (s *Store) RevokeSession(ctx context.Context, userID, tokenHash string, at time.Time) (bool, error) {
	if s.db == nil {
		return false, errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update sessions set is_active = false, revoked_at = $3
		where user_id = $1 and token_hash = $2 and is_active
	`, userID, tokenHash, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) RevokeUserSessions(ctx context.Context, userID string, at time.Time) (int64, error) {
	if s.db == nil {
		return 0, errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update sessions set is_active = false, revoked_at = $2
		where user_id = $1 and is_active
	`, userID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ auth.Store = (*Store)(nil)

