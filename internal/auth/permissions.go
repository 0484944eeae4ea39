package auth

import "strings"

// Permission tags referenced by the route table.
const (
	PermAdminRead   = "admin:read"
	PermAdminManage = "admin:manage"

	PermUsersRead   = "users:read"
	PermUsersCreate = "users:create"
	PermUsersUpdate = "users:update"
	PermUsersDelete = "users:delete"

	PermRolesRead   = "roles:read"
	PermRolesCreate = "roles:create"
	PermRolesUpdate = "roles:update"
	PermRolesDelete = "roles:delete"

	PermPermissionsRead = "permissions:read"
	PermSettingsRead    = "settings:read"
	PermSettingsUpdate  = "settings:update"
	PermAuditRead       = "audit:read"

	PermInventoryRead   = "inventory:read"
	PermInventoryCreate = "inventory:create"
	PermInventoryUpdate = "inventory:update"
	PermInventoryDelete = "inventory:delete"

	PermAssetsRead   = "assets:read"
	PermAssetsCreate = "assets:create"
	PermAssetsUpdate = "assets:update"
	PermAssetsDelete = "assets:delete"
	PermAssetsAssign = "assets:assign"

	PermMaintenanceRead   = "maintenance:read"
	PermMaintenanceCreate = "maintenance:create"

	PermWarehouseRead   = "warehouse:read"
	PermWarehouseUpdate = "warehouse:update"
	PermStockRead       = "stock:read"
	PermStockUpdate     = "stock:update"

	PermRequestsRead    = "requests:read"
	PermRequestsCreate  = "requests:create"
	PermRequestsUpdate  = "requests:update"
	PermRequestsDelete  = "requests:delete"
	PermRequestsAssign  = "requests:assign"
	PermRequestsComment = "requests:comment"
	PermRequestsManage  = "requests:manage"

	PermIssuesRead    = "issues:read"
	PermIssuesCreate  = "issues:create"
	PermIssuesUpdate  = "issues:update"
	PermIssuesDelete  = "issues:delete"
	PermIssuesAssign  = "issues:assign"
	PermIssuesComment = "issues:comment"

	PermReleasesRead   = "releases:read"
	PermReleasesCreate = "releases:create"
	PermReleasesUpdate = "releases:update"
	PermReleasesDelete = "releases:delete"
)

// Built-in role names created by the seed data.
const (
	RoleAdmin      = "Admin"
	RoleManager    = "Manager"
	RoleTechnician = "Technician"
	RoleUser       = "User"
)

var catalog = []struct {
	tag  string
	desc string
}{
	{PermAdminRead, "View the administrative dashboard"},
	{PermAdminManage, "Full administrative access"},
	{PermUsersRead, "View user information"},
	{PermUsersCreate, "Create new users"},
	{PermUsersUpdate, "Update user information"},
	{PermUsersDelete, "Delete users"},
	{PermRolesRead, "View roles"},
	{PermRolesCreate, "Create roles"},
	{PermRolesUpdate, "Update roles and their permissions"},
	{PermRolesDelete, "Delete roles"},
	{PermPermissionsRead, "View the permission catalog"},
	{PermSettingsRead, "View system settings"},
	{PermSettingsUpdate, "Change system settings"},
	{PermAuditRead, "View audit logs"},
	{PermInventoryRead, "View inventory"},
	{PermInventoryCreate, "Add new inventory items"},
	{PermInventoryUpdate, "Update inventory items"},
	{PermInventoryDelete, "Remove inventory items"},
	{PermAssetsRead, "View assets"},
	{PermAssetsCreate, "Register assets"},
	{PermAssetsUpdate, "Update assets"},
	{PermAssetsDelete, "Delete assets"},
	{PermAssetsAssign, "Assign and unassign assets"},
	{PermMaintenanceRead, "View maintenance schedules"},
	{PermMaintenanceCreate, "Schedule maintenance"},
	{PermWarehouseRead, "View warehouse statistics and alerts"},
	{PermWarehouseUpdate, "Resolve warehouse alerts"},
	{PermStockRead, "View stock movements"},
	{PermStockUpdate, "Adjust stock levels"},
	{PermRequestsRead, "View requests"},
	{PermRequestsCreate, "Create new requests"},
	{PermRequestsUpdate, "Update requests"},
	{PermRequestsDelete, "Delete requests"},
	{PermRequestsAssign, "Assign requests"},
	{PermRequestsComment, "Comment on requests"},
	{PermRequestsManage, "View organisation-wide request statistics"},
	{PermIssuesRead, "View issues"},
	{PermIssuesCreate, "Report issues"},
	{PermIssuesUpdate, "Update, close and label issues"},
	{PermIssuesDelete, "Delete issues"},
	{PermIssuesAssign, "Assign issues"},
	{PermIssuesComment, "Comment on issues"},
	{PermReleasesRead, "View releases"},
	{PermReleasesCreate, "Create releases"},
	{PermReleasesUpdate, "Update releases and linked issues"},
	{PermReleasesDelete, "Delete releases"},
}

// Catalog returns the static permission catalog.
func Catalog() []Permission {
	out := make([]Permission, 0, len(catalog))
	for _, c := range catalog {
		resource, action, _ := strings.Cut(c.tag, ":")
		out = append(out, Permission{Resource: resource, Action: action, Description: c.desc})
	}
	return out
}

// InCatalog reports whether tag is a known permission.
func InCatalog(tag string) bool {
	for _, c := range catalog {
		if c.tag == tag {
			return true
		}
	}
	return false
}

// ParseTag splits "resource:action".
func ParseTag(tag string) (resource, action string, ok bool) {
	resource, action, ok = strings.Cut(strings.TrimSpace(tag), ":")
	if !ok || resource == "" || action == "" || strings.Contains(action, ":") {
		return "", "", false
	}
	return resource, action, true
}

// CatalogTags returns every catalog tag in declaration order.
func CatalogTags() []string {
	out := make([]string, 0, len(catalog))
	for _, c := range catalog {
		out = append(out, c.tag)
	}
	return out
}
