package httpapi

import (
	"net/http"

	"itdesk.org/internal/auth"
	"itdesk.org/internal/obs"
)

// route is one row of the access table. Public routes skip authentication;
// every other route requires a principal holding all Tags. An empty Tags list
// on a non-public route means "any authenticated user".
type route struct {
	Method  string
	Path    string
	Tags    []string
	Public  bool
	Handler http.Handler
}

func (rt route) name() string { return rt.Method + " " + rt.Path }

func public(method, path string, h http.HandlerFunc) route {
	return route{Method: method, Path: path, Public: true, Handler: h}
}

func authed(method, path string, h http.HandlerFunc) route {
	return route{Method: method, Path: path, Handler: h}
}

func guarded(method, path string, h http.HandlerFunc, tags ...string) route {
	return route{Method: method, Path: path, Tags: tags, Handler: h}
}

// routeTable lists every endpoint. Literal segments are registered before
// the {id} pattern they would otherwise collide with.
func (a *API) routeTable() []route {
	const (
		get   = http.MethodGet
		post  = http.MethodPost
		put   = http.MethodPut
		patch = http.MethodPatch
		del   = http.MethodDelete
	)
	return []route{
		// platform
		public(get, "/healthz", a.Healthz),
		public(get, "/readyz", a.Ready),
		public(get, "/v1/info", a.Info),
		{Method: get, Path: "/metrics", Public: true, Handler: obs.Handler()},

		// auth
		public(post, "/auth/login", a.handleLogin),
		public(post, "/auth/register", a.handleRegister),
		public(post, "/auth/refresh", a.handleRefresh),
		authed(post, "/auth/logout", a.handleLogout),
		authed(post, "/auth/logout-all", a.handleLogoutAll),
		authed(get, "/auth/profile", a.handleProfile),

		// admin
		guarded(get, "/admin/stats", a.handleAdminStats, auth.PermAdminRead),
		guarded(get, "/admin/users", a.handleListUsers, auth.PermUsersRead),
		guarded(post, "/admin/users", a.handleCreateUser, auth.PermUsersCreate),
		guarded(get, "/admin/users/{id}", a.handleGetUser, auth.PermUsersRead),
		guarded(put, "/admin/users/{id}", a.handleUpdateUser, auth.PermUsersUpdate),
		guarded(del, "/admin/users/{id}", a.handleDeleteUser, auth.PermUsersDelete),
		guarded(get, "/admin/roles", a.handleListRoles, auth.PermRolesRead),
		guarded(post, "/admin/roles", a.handleCreateRole, auth.PermRolesCreate),
		guarded(get, "/admin/roles/{id}", a.handleGetRole, auth.PermRolesRead),
		guarded(put, "/admin/roles/{id}", a.handleUpdateRole, auth.PermRolesUpdate),
		guarded(del, "/admin/roles/{id}", a.handleDeleteRole, auth.PermRolesDelete),
		guarded(get, "/admin/permissions", a.handleListPermissions, auth.PermPermissionsRead),
		guarded(get, "/admin/settings", a.handleGetSettings, auth.PermSettingsRead),
		guarded(put, "/admin/settings", a.handleUpdateSettings, auth.PermSettingsUpdate),
		guarded(get, "/admin/audit-logs", a.handleListAuditLogs, auth.PermAuditRead),

		// inventory
		guarded(get, "/inventory/stats", a.handleInventoryStats, auth.PermInventoryRead),
		guarded(get, "/inventory/categories", a.handleListAssetCategories, auth.PermInventoryRead),
		guarded(post, "/inventory/categories", a.handleCreateAssetCategory, auth.PermInventoryCreate),
		guarded(get, "/inventory/locations", a.handleListLocations, auth.PermInventoryRead),
		guarded(post, "/inventory/locations", a.handleCreateLocation, auth.PermInventoryCreate),
		guarded(get, "/inventory/maintenance", a.handleListMaintenance, auth.PermMaintenanceRead),
		guarded(get, "/inventory/assets", a.handleListAssets, auth.PermAssetsRead),
		guarded(post, "/inventory/assets", a.handleCreateAsset, auth.PermAssetsCreate),
		guarded(get, "/inventory/assets/{id}", a.handleGetAsset, auth.PermAssetsRead),
		guarded(put, "/inventory/assets/{id}", a.handleUpdateAsset, auth.PermAssetsUpdate),
		guarded(del, "/inventory/assets/{id}", a.handleDeleteAsset, auth.PermAssetsDelete),
		guarded(put, "/inventory/assets/{id}/assign", a.handleAssignAsset, auth.PermAssetsAssign),
		guarded(put, "/inventory/assets/{id}/unassign", a.handleUnassignAsset, auth.PermAssetsAssign),
		guarded(post, "/inventory/assets/{id}/maintenance", a.handleScheduleMaintenance, auth.PermMaintenanceCreate),

		// warehouse
		guarded(get, "/warehouse/stats", a.handleWarehouseStats, auth.PermWarehouseRead),
		guarded(get, "/warehouse/alerts", a.handleListAlerts, auth.PermWarehouseRead),
		guarded(put, "/warehouse/alerts/{id}/resolve", a.handleResolveAlert, auth.PermWarehouseUpdate),
		guarded(get, "/warehouse/categories", a.handleListItemCategories, auth.PermWarehouseRead),
		guarded(get, "/warehouse/suppliers", a.handleListSuppliers, auth.PermWarehouseRead),
		guarded(get, "/warehouse/movements", a.handleListMovements, auth.PermStockRead),
		guarded(get, "/warehouse/items", a.handleListItems, auth.PermInventoryRead),
		guarded(post, "/warehouse/items", a.handleCreateItem, auth.PermInventoryCreate),
		guarded(get, "/warehouse/items/{id}", a.handleGetItem, auth.PermInventoryRead),
		guarded(put, "/warehouse/items/{id}", a.handleUpdateItem, auth.PermInventoryUpdate),
		guarded(del, "/warehouse/items/{id}", a.handleDeleteItem, auth.PermInventoryDelete),
		guarded(put, "/warehouse/items/{id}/stock", a.handleAdjustStock, auth.PermStockUpdate),
		guarded(get, "/warehouse/items/{id}/stock-history", a.handleStockHistory, auth.PermInventoryRead),

		// requests
		guarded(post, "/requests", a.handleCreateRequest, auth.PermRequestsCreate),
		guarded(get, "/requests", a.handleListRequests, auth.PermRequestsRead),
		guarded(get, "/requests/mine", a.handleMyRequests, auth.PermRequestsRead),
		guarded(get, "/requests/assigned", a.handleAssignedRequests, auth.PermRequestsRead),
		guarded(get, "/requests/stats", a.handleRequestStats, auth.PermRequestsRead),
		guarded(get, "/requests/all-stats", a.handleAllRequestStats, auth.PermRequestsManage),
		guarded(get, "/requests/{id}", a.handleGetRequest, auth.PermRequestsRead),
		guarded(put, "/requests/{id}", a.handleUpdateRequest, auth.PermRequestsUpdate),
		guarded(del, "/requests/{id}", a.handleDeleteRequest, auth.PermRequestsDelete),
		guarded(post, "/requests/{id}/assign", a.handleAssignRequest, auth.PermRequestsAssign),
		guarded(put, "/requests/{id}/status", a.handleRequestStatus, auth.PermRequestsUpdate),
		guarded(post, "/requests/{id}/comments", a.handleAddRequestComment, auth.PermRequestsComment),
		guarded(get, "/requests/{id}/comments", a.handleListRequestComments, auth.PermRequestsRead),

		// issues
		guarded(post, "/issues", a.handleCreateIssue, auth.PermIssuesCreate),
		guarded(get, "/issues", a.handleListIssues, auth.PermIssuesRead),
		guarded(get, "/issues/labels", a.handleIssueLabels, auth.PermIssuesRead),
		guarded(get, "/issues/stats", a.handleIssueStats, auth.PermIssuesRead),
		guarded(get, "/issues/{id}", a.handleGetIssue, auth.PermIssuesRead),
		guarded(patch, "/issues/{id}", a.handleUpdateIssue, auth.PermIssuesUpdate),
		guarded(del, "/issues/{id}", a.handleDeleteIssue, auth.PermIssuesDelete),
		guarded(post, "/issues/{id}/assign", a.handleAssignIssue, auth.PermIssuesAssign),
		guarded(post, "/issues/{id}/unassign", a.handleUnassignIssue, auth.PermIssuesAssign),
		guarded(post, "/issues/{id}/close", a.handleCloseIssue, auth.PermIssuesUpdate),
		guarded(post, "/issues/{id}/reopen", a.handleReopenIssue, auth.PermIssuesUpdate),
		guarded(post, "/issues/{id}/comments", a.handleAddIssueComment, auth.PermIssuesComment),
		guarded(get, "/issues/{id}/comments", a.handleListIssueComments, auth.PermIssuesRead),
		guarded(post, "/issues/{id}/labels", a.handleAddIssueLabel, auth.PermIssuesUpdate),
		guarded(del, "/issues/{id}/labels/{label}", a.handleRemoveIssueLabel, auth.PermIssuesUpdate),

		// releases
		guarded(post, "/releases", a.handleCreateRelease, auth.PermReleasesCreate),
		guarded(get, "/releases", a.handleListReleases, auth.PermReleasesRead),
		guarded(get, "/releases/latest", a.handleLatestReleases, auth.PermReleasesRead),
		guarded(get, "/releases/stats", a.handleReleaseStats, auth.PermReleasesRead),
		guarded(get, "/releases/{id}", a.handleGetRelease, auth.PermReleasesRead),
		guarded(patch, "/releases/{id}", a.handleUpdateRelease, auth.PermReleasesUpdate),
		guarded(del, "/releases/{id}", a.handleDeleteRelease, auth.PermReleasesDelete),
		guarded(post, "/releases/{id}/issues", a.handleLinkReleaseIssue, auth.PermReleasesUpdate),
		guarded(del, "/releases/{id}/issues/{issueId}", a.handleUnlinkReleaseIssue, auth.PermReleasesUpdate),
	}
}
