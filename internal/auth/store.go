package auth

import (
	"context"
	"time"
)

// UserStore reads and creates identity records.
type UserStore interface {
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, u NewUser) (User, error)
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
	RoleIDByName(ctx context.Context, name string) (string, error)
}

// PermissionStore resolves the effective permission tags of a user.
type PermissionStore interface {
	UserPermissions(ctx context.Context, userID string) ([]string, error)
}

// SessionStore manages refresh-token sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s Session) error
	// ActiveSessionByHash returns the active, unexpired session for the token hash.
	ActiveSessionByHash(ctx context.Context, tokenHash string, now time.Time) (Session, error)
	RevokeSession(ctx context.Context, userID, tokenHash string, at time.Time) (bool, error)
	RevokeUserSessions(ctx context.Context, userID string, at time.Time) (int64, error)
}

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	UserStore
	PermissionStore
	SessionStore
}
