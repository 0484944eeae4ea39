package auth

import "time"

// User is an identity record. PasswordHash never leaves the process.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Department   string     `json:"department,omitempty"`
	IsActive     bool       `json:"isActive"`
	IsVerified   bool       `json:"isVerified"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	Roles        []Role     `json:"roles,omitempty"`
	PasswordHash string     `json:"-"`
}

// Role is a named bundle of permissions.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
	UserCount   int          `json:"userCount"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Permission is an atomic capability identified by (resource, action).
type Permission struct {
	ID          string `json:"id,omitempty"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// Tag returns the "resource:action" form used by route declarations.
func (p Permission) Tag() string { return p.Resource + ":" + p.Action }

// Session backs one refresh token. Only the SHA-256 of the token is stored.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expiresAt"`
	IsActive  bool       `json:"isActive"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	UserAgent string     `json:"userAgent,omitempty"`
	IPAddress string     `json:"ipAddress,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Identity is the claim set carried by every token.
type Identity struct {
	UserID   string
	Email    string
	Username string
}

// IdentityOf extracts the token identity from a user.
func IdentityOf(u User) Identity {
	return Identity{UserID: u.ID, Email: u.Email, Username: u.Username}
}

// NewUser carries the fields needed to insert a user row.
type NewUser struct {
	Email        string
	Username     string
	PasswordHash string
	FirstName    string
	LastName     string
	Department   string
	IsActive     bool
	RoleIDs      []string
}

// UserRef is the public projection of a user embedded in other records.
type UserRef struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}
