// Package admin implements user, role and system-settings administration
// together with the audit-log query and dashboard counters.
package admin

import (
	"itdesk.org/internal/audit"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/paging"
)

// NewUser is the administrator's create-user input. An empty Username is
// derived from the email's local part.
type NewUser struct {
	Email      string
	Username   string
	Password   string
	FirstName  string
	LastName   string
	Department string
	IsActive   *bool
	RoleIDs    []string
}

// UserUpdate holds optional changes to a user. RoleIDs, when set, replaces
// the user's role set.
type UserUpdate struct {
	Email      *string
	Username   *string
	Password   *string
	FirstName  *string
	LastName   *string
	Department *string
	IsActive   *bool
	RoleIDs    *[]string
}

// UserChange is UserUpdate after the password has been hashed.
type UserChange struct {
	Email        *string
	Username     *string
	PasswordHash *string
	FirstName    *string
	LastName     *string
	Department   *string
	IsActive     *bool
	RoleIDs      *[]string
}

// UserFilter narrows user listings.
type UserFilter struct {
	Search   string
	IsActive *bool
	Role     string
	Page     paging.Params
}

// NewRole creates a role granting the listed permission tags.
type NewRole struct {
	Name        string
	Description string
	Permissions []string
}

// RoleUpdate holds optional role changes. Permissions, when set, replaces
// the grant set.
type RoleUpdate struct {
	Name        *string
	Description *string
	Permissions *[]string
}

// Settings is the system key/value configuration.
type Settings map[string]string

// Stats feeds the admin dashboard.
type Stats struct {
	TotalUsers       int `json:"totalUsers"`
	ActiveUsers      int `json:"activeUsers"`
	TotalRoles       int `json:"totalRoles"`
	TotalPermissions int `json:"totalPermissions"`
	RecentAuditLogs  int `json:"recentAuditLogs"`
}

func userSnapshot(u auth.User) audit.Snapshot {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, r.Name)
	}
	return audit.Snapshot{
		"email":      u.Email,
		"username":   u.Username,
		"firstName":  u.FirstName,
		"lastName":   u.LastName,
		"department": u.Department,
		"isActive":   u.IsActive,
		"roles":      roles,
	}
}

func roleSnapshot(r auth.Role) audit.Snapshot {
	tags := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		tags = append(tags, p.Tag())
	}
	return audit.Snapshot{
		"name":        r.Name,
		"description": r.Description,
		"permissions": tags,
	}
}
